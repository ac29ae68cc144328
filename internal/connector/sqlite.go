package connector

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

// expectedSchemaVersion is the latest schema version the connector expects.
const expectedSchemaVersion = 1

// SQLiteConnector implements Connector on a local SQLite ledger.
type SQLiteConnector struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteConnector opens (or creates) the ledger database and brings
// its schema up to date.
func NewSQLiteConnector(ctx context.Context, dbPath string) (*SQLiteConnector, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("%w: database path is empty", common.ErrInvalidConfig)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c := &SQLiteConnector{db: db, dbPath: dbPath}
	if err := c.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database connection.
func (c *SQLiteConnector) Close() error {
	return c.db.Close()
}

// DB exposes the underlying handle so the process store can share it.
func (c *SQLiteConnector) DB() *sql.DB {
	return c.db
}

type migration struct {
	up          func(*sql.Tx) error
	description string
	version     int
}

var ledgerMigrations = []migration{
	{
		version:     1,
		description: "Initial ledger schema",
		up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS documents (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					process_id TEXT NOT NULL,
					segment_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_documents_segment ON documents(segment_id)`,
				`CREATE INDEX idx_documents_process ON documents(process_id)`,

				`CREATE TABLE IF NOT EXISTS entries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					document_id INTEGER NOT NULL,
					account TEXT NOT NULL,
					description TEXT,
					amount INTEGER NOT NULL,
					debit INTEGER NOT NULL,
					FOREIGN KEY (document_id) REFERENCES documents(id)
				)`,
				`CREATE INDEX idx_entries_document ON entries(document_id)`,
				`CREATE INDEX idx_entries_account ON entries(account)`,

				`CREATE TABLE IF NOT EXISTS accounts (
					number TEXT NOT NULL,
					role TEXT NOT NULL,
					name TEXT,
					PRIMARY KEY (number, role)
				)`,
				`CREATE INDEX idx_accounts_role ON accounts(role)`,

				`CREATE TABLE IF NOT EXISTS rates (
					asset TEXT NOT NULL,
					date DATETIME NOT NULL,
					rate REAL NOT NULL,
					PRIMARY KEY (asset, date)
				)`,

				`CREATE TABLE IF NOT EXISTS vat_rates (
					reason TEXT NOT NULL,
					valid_from DATETIME NOT NULL,
					percentage REAL NOT NULL,
					PRIMARY KEY (reason, valid_from)
				)`,

				`CREATE TABLE IF NOT EXISTS stocks (
					account TEXT NOT NULL,
					asset TEXT NOT NULL,
					amount TEXT NOT NULL,
					value INTEGER NOT NULL,
					PRIMARY KEY (account, asset)
				)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

func (c *SQLiteConnector) migrate(ctx context.Context) error {
	var currentVersion int
	if err := c.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range ledgerMigrations {
		if m.version <= currentVersion {
			continue
		}
		tx, txErr := c.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}
		if upErr := m.up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, upErr)
		}
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, commitErr)
		}
		common.LogInfo("Applied ledger migration", common.Fields{
			"version": m.version, "description": m.description,
		})
	}

	var finalVersion int
	if err := c.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != expectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", expectedSchemaVersion, finalVersion)
	}
	return nil
}

// ResultExists reports whether the ledger already holds a document
// matching the transaction. Screening runs in two stages: first a lookup
// under the same segment id and date, then an exact-match intersection
// over date, account, description and amount for every entry, so the
// same economic event re-imported under another segment id (a different
// export format, say) is still caught. A screen hit marks the
// transaction a duplicate instead of posting twice.
func (c *SQLiteConnector) ResultExists(ctx context.Context, tx model.Transaction) (bool, error) {
	hit, err := c.segmentScreen(ctx, tx)
	if err != nil || hit {
		return hit, err
	}
	return c.intersectionScreen(ctx, tx)
}

// segmentScreen matches documents recorded under the same segment id and
// date with the same entry multiset.
func (c *SQLiteConnector) segmentScreen(ctx context.Context, tx model.Transaction) (bool, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id FROM documents WHERE segment_id = ? AND date = ?`,
		tx.SegmentID, tx.Date.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return false, fmt.Errorf("failed to scan document id: %w", err)
		}
		candidates = append(candidates, id)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to iterate documents: %w", err)
	}

	for _, id := range candidates {
		same, err := c.entriesMatch(ctx, id, tx.Entries)
		if err != nil {
			return false, err
		}
		if same {
			return true, nil
		}
	}
	return false, nil
}

// intersectionScreen looks for one prior document, regardless of segment
// id, that every entry points at with the same date, account, description
// and amount, and whose entry multiset matches exactly.
func (c *SQLiteConnector) intersectionScreen(ctx context.Context, tx model.Transaction) (bool, error) {
	if len(tx.Entries) == 0 {
		return false, nil
	}

	var shared map[int64]bool
	for _, e := range tx.Entries {
		ids, err := c.documentsWithEntry(ctx, tx.Date, e)
		if err != nil {
			return false, err
		}
		if shared == nil {
			shared = ids
		} else {
			for id := range shared {
				if !ids[id] {
					delete(shared, id)
				}
			}
		}
		if len(shared) == 0 {
			return false, nil
		}
	}

	for id := range shared {
		same, err := c.entriesMatch(ctx, id, tx.Entries)
		if err != nil {
			return false, err
		}
		if same {
			return true, nil
		}
	}
	return false, nil
}

func (c *SQLiteConnector) documentsWithEntry(ctx context.Context, date time.Time, e model.Entry) (map[int64]bool, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT DISTINCT d.id FROM documents d
		 JOIN entries e ON e.document_id = d.id
		 WHERE d.date = ? AND e.account = ? AND e.description = ? AND e.amount = ? AND e.debit = ?`,
		date.UTC(), e.Account, e.Description, e.Amount, e.Debit)
	if err != nil {
		return nil, fmt.Errorf("failed to query matching entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matching entries: %w", err)
	}
	return ids, nil
}

func (c *SQLiteConnector) entriesMatch(ctx context.Context, documentID int64, entries []model.Entry) (bool, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT account, description, amount, debit FROM entries WHERE document_id = ? ORDER BY id`,
		documentID)
	if err != nil {
		return false, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type key struct {
		account     string
		description string
		amount      int64
		debit       bool
	}
	stored := make(map[key]int)
	count := 0
	for rows.Next() {
		var k key
		var description sql.NullString
		if err := rows.Scan(&k.account, &description, &k.amount, &k.debit); err != nil {
			return false, fmt.Errorf("failed to scan entry: %w", err)
		}
		k.description = description.String
		stored[k]++
		count++
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to iterate entries: %w", err)
	}

	if count != len(entries) {
		return false, nil
	}
	for _, e := range entries {
		k := key{account: e.Account, description: e.Description, amount: e.Amount, debit: e.Debit}
		if stored[k] == 0 {
			return false, nil
		}
		stored[k]--
	}
	return true, nil
}

// ApplyResult posts every unmarked transaction as a ledger document with
// its entries, atomically per call. Pre-marked transactions (ignored,
// duplicate, skipped) pass through untouched.
func (c *SQLiteConnector) ApplyResult(ctx context.Context, processID string, descs []model.TransactionDescription) (ApplyStats, error) {
	stats := ApplyStats{}

	dbTx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	for di := range descs {
		for ti := range descs[di].Transactions {
			tx := &descs[di].Transactions[ti]
			switch tx.ExecutionResult {
			case model.ResultDuplicate:
				stats.Duplicates++
				continue
			case model.ResultIgnored, model.ResultSkipped:
				continue
			}

			res, err := dbTx.ExecContext(ctx,
				`INSERT INTO documents (process_id, segment_id, date) VALUES (?, ?, ?)`,
				processID, tx.SegmentID, tx.Date.UTC())
			if err != nil {
				return stats, fmt.Errorf("failed to insert document: %w", err)
			}
			documentID, err := res.LastInsertId()
			if err != nil {
				return stats, fmt.Errorf("failed to read document id: %w", err)
			}

			for _, e := range tx.Entries {
				if _, err := dbTx.ExecContext(ctx,
					`INSERT INTO entries (document_id, account, description, amount, debit) VALUES (?, ?, ?, ?, ?)`,
					documentID, e.Account, e.Description, e.Amount, e.Debit); err != nil {
					return stats, fmt.Errorf("failed to insert entry: %w", err)
				}
				if err := c.applyStockChange(ctx, dbTx, e); err != nil {
					return stats, err
				}
			}

			tx.ExecutionResult = model.ResultCreated
			stats.Created++
		}
	}

	if err := dbTx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit results: %w", err)
	}
	return stats, nil
}

// applyStockChange folds an entry's quantity into the tracked position,
// so later runs can seed their cost-basis ledger from the database.
func (c *SQLiteConnector) applyStockChange(ctx context.Context, dbTx *sql.Tx, e model.Entry) error {
	quantityValue, ok := e.Data["quantity"]
	if !ok {
		return nil
	}
	assetValue, ok := e.Data["asset"]
	if !ok {
		return nil
	}
	quantity, err := decimal.NewFromString(quantityValue.Text())
	if err != nil {
		return fmt.Errorf("bad stock quantity %q: %w", quantityValue.Text(), err)
	}

	var (
		amountText string
		value      int64
	)
	err = dbTx.QueryRowContext(ctx,
		`SELECT amount, value FROM stocks WHERE account = ? AND asset = ?`,
		e.Account, assetValue.Text()).Scan(&amountText, &value)
	current := decimal.Zero
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("failed to query stock position: %w", err)
	default:
		current, err = decimal.NewFromString(amountText)
		if err != nil {
			return fmt.Errorf("corrupt stock amount %q: %w", amountText, err)
		}
	}

	next := current.Add(quantity)
	nextValue := value + e.Signed()
	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO stocks (account, asset, amount, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT(account, asset) DO UPDATE SET amount = excluded.amount, value = excluded.value`,
		e.Account, assetValue.Text(), next.String(), nextValue)
	if err != nil {
		return fmt.Errorf("failed to update stock position: %w", err)
	}
	return nil
}

// Rollback deletes every document and entry a process created. Entries
// go first to keep the foreign key satisfied.
func (c *SQLiteConnector) Rollback(ctx context.Context, processID string) (bool, error) {
	dbTx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	if _, err := dbTx.ExecContext(ctx,
		`DELETE FROM entries WHERE document_id IN (SELECT id FROM documents WHERE process_id = ?)`,
		processID); err != nil {
		return false, fmt.Errorf("failed to delete entries: %w", err)
	}
	res, err := dbTx.ExecContext(ctx, `DELETE FROM documents WHERE process_id = ?`, processID)
	if err != nil {
		return false, fmt.Errorf("failed to delete documents: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count deleted documents: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit rollback: %w", err)
	}
	return deleted > 0, nil
}

// GetRate returns the latest stored conversion rate for the asset on or
// before the given date.
func (c *SQLiteConnector) GetRate(ctx context.Context, asset string, when time.Time) (float64, error) {
	var rate float64
	err := c.db.QueryRowContext(ctx,
		`SELECT rate FROM rates WHERE asset = ? AND date <= ? ORDER BY date DESC LIMIT 1`,
		asset, when.UTC()).Scan(&rate)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no conversion rate for %s on %s", asset, when.Format("2006-01-02"))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query rate: %w", err)
	}
	return rate, nil
}

// SetRate stores a conversion rate.
func (c *SQLiteConnector) SetRate(ctx context.Context, asset string, when time.Time, rate float64) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO rates (asset, date, rate) VALUES (?, ?, ?)
		 ON CONFLICT(asset, date) DO UPDATE SET rate = excluded.rate`,
		asset, when.UTC(), rate)
	if err != nil {
		return fmt.Errorf("failed to store rate: %w", err)
	}
	return nil
}

// GetVAT returns the VAT percentage in force for a reason on a date.
// No stored rate means no VAT handling, not an error.
func (c *SQLiteConnector) GetVAT(ctx context.Context, reason model.TransferReason, when time.Time) (float64, error) {
	var pct float64
	err := c.db.QueryRowContext(ctx,
		`SELECT percentage FROM vat_rates WHERE reason = ? AND valid_from <= ? ORDER BY valid_from DESC LIMIT 1`,
		string(reason), when.UTC()).Scan(&pct)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query VAT: %w", err)
	}
	return pct, nil
}

// SetVAT stores a VAT percentage for a reason from a date onward.
func (c *SQLiteConnector) SetVAT(ctx context.Context, reason model.TransferReason, from time.Time, pct float64) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO vat_rates (reason, valid_from, percentage) VALUES (?, ?, ?)
		 ON CONFLICT(reason, valid_from) DO UPDATE SET percentage = excluded.percentage`,
		string(reason), from.UTC(), pct)
	if err != nil {
		return fmt.Errorf("failed to store VAT: %w", err)
	}
	return nil
}

// GetStock returns the tracked position of an asset on an account.
func (c *SQLiteConnector) GetStock(ctx context.Context, account, asset string) (StockBalance, error) {
	var (
		amountText string
		value      int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT amount, value FROM stocks WHERE account = ? AND asset = ?`,
		account, asset).Scan(&amountText, &value)
	if err == sql.ErrNoRows {
		return StockBalance{Amount: decimal.Zero}, nil
	}
	if err != nil {
		return StockBalance{}, fmt.Errorf("failed to query stock position: %w", err)
	}
	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return StockBalance{}, fmt.Errorf("corrupt stock amount %q: %w", amountText, err)
	}
	return StockBalance{Amount: amount, Value: value}, nil
}

// StockRow is one tracked position in the listing.
type StockRow struct {
	Account string
	Asset   string
	Amount  decimal.Decimal
	Value   int64
}

// ListStocks returns every tracked position, zeroed ones included.
func (c *SQLiteConnector) ListStocks(ctx context.Context) ([]StockRow, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT account, asset, amount, value FROM stocks ORDER BY account, asset`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StockRow
	for rows.Next() {
		var row StockRow
		var amountText string
		if err := rows.Scan(&row.Account, &row.Asset, &amountText, &row.Value); err != nil {
			return nil, fmt.Errorf("failed to scan stock row: %w", err)
		}
		if row.Amount, err = decimal.NewFromString(amountText); err != nil {
			return nil, fmt.Errorf("corrupt stock amount %q: %w", amountText, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stocks: %w", err)
	}
	return out, nil
}

// GetAccountCandidates returns the accounts registered for a role.
func (c *SQLiteConnector) GetAccountCandidates(ctx context.Context, role string) ([]model.AccountCandidate, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT number, name FROM accounts WHERE role = ? ORDER BY number`, role)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []model.AccountCandidate
	for rows.Next() {
		var cand model.AccountCandidate
		var name sql.NullString
		if err := rows.Scan(&cand.Number, &name); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		cand.Name = name.String
		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return candidates, nil
}

// RegisterAccount maps an account number to a role.
func (c *SQLiteConnector) RegisterAccount(ctx context.Context, number, role, name string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO accounts (number, role, name) VALUES (?, ?, ?)
		 ON CONFLICT(number, role) DO UPDATE SET name = excluded.name`,
		number, role, name)
	if err != nil {
		return fmt.Errorf("failed to register account: %w", err)
	}
	return nil
}

// InitializeBalances posts an opening balance document so the very first
// import run starts from known account balances.
func (c *SQLiteConnector) InitializeBalances(ctx context.Context, when time.Time, balances map[string]int64) error {
	if len(balances) == 0 {
		return nil
	}

	tx := model.Transaction{Date: when, SegmentID: "opening-balances"}
	for account, cents := range balances {
		entry := model.Entry{Account: account, Description: "Opening balance", Amount: cents, Debit: true}
		if cents < 0 {
			entry.Amount = -cents
			entry.Debit = false
		}
		tx.Entries = append(tx.Entries, entry)
	}

	_, err := c.ApplyResult(ctx, "opening-balances", []model.TransactionDescription{
		{Transactions: []model.Transaction{tx}},
	})
	return err
}
