package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/cli"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/config"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/connector"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/process"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/storage"
)

// openLedger opens the ledger database and the process store that
// shares it.
func openLedger(ctx context.Context) (*connector.SQLiteConnector, *storage.ProcessStore, error) {
	path, err := databasePath()
	if err != nil {
		return nil, nil, err
	}
	conn, err := connector.NewSQLiteConnector(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.NewProcessStore(ctx, conn.DB())
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, store, nil
}

// loadRules reads a JSON rule set file.
func loadRules(path string) ([]model.Rule, error) {
	if path == "" {
		path = viper.GetString("rules.path")
	}
	if path == "" {
		return nil, nil
	}
	path = config.ExpandPath(path)
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied rule file
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	var rules []model.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return rules, nil
}

// buildConfig assembles the pipeline configuration from viper and the
// given rule set.
func buildConfig(rules []model.Rule) (model.ProcessConfig, error) {
	cfg := model.ProcessConfig{
		Currency:            viper.GetString("import.currency"),
		Language:            viper.GetString("import.language"),
		Accounts:            viper.GetStringMapString("accounts"),
		BadTransactionDates: viper.GetString("import.bad_dates"),
		Unrecognized:        viper.GetString("import.unrecognized"),
		SuspenseAccount:     viper.GetString("import.suspense_account"),
		Force:               viper.GetBool("import.force"),
		DropOrphanLines:     viper.GetBool("import.drop_orphans"),
		Rules:               rules,
	}
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}

	var err error
	if cfg.FirstDate, err = parseDateFlag(viper.GetString("import.first_date")); err != nil {
		return cfg, err
	}
	if cfg.LastDate, err = parseDateFlag(viper.GetString("import.last_date")); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseDateFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected 2006-01-02", s)
	}
	return &t, nil
}

// answerLoop keeps asking and resuming while the run waits on input.
func answerLoop(ctx context.Context, m *process.Machine, state *model.ProcessState, prompter *cli.Prompter) error {
	for state.Stage == model.StageWaiting {
		if state.Directions == nil {
			return errors.New("waiting process has no directions")
		}
		answer, err := prompter.Ask(ctx, *state.Directions)
		if err != nil {
			return err
		}
		if err := m.Resume(ctx, state, answer); err != nil {
			return err
		}
	}
	return nil
}

func reportOutcome(state *model.ProcessState) {
	switch state.Stage {
	case model.StageApplied:
		created, duplicates, ignored := 0, 0, 0
		for _, descs := range state.Result {
			for _, desc := range descs {
				for _, tx := range desc.Transactions {
					switch tx.ExecutionResult {
					case model.ResultCreated:
						created++
					case model.ResultDuplicate:
						duplicates++
					case model.ResultIgnored:
						ignored++
					}
				}
			}
		}
		fmt.Println(cli.FormatSuccess(fmt.Sprintf(
			"Process %s applied: %d created, %d duplicates, %d ignored",
			state.ProcessID, created, duplicates, ignored)))
	case model.StageCrashed:
		fmt.Println(cli.FormatError(fmt.Sprintf("Process %s crashed: %s", state.ProcessID, state.Error)))
	default:
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Process %s stopped in stage %s", state.ProcessID, state.Stage)))
	}
}
