// Package process drives one import run through its stages: decode,
// segment, classify, analyze, apply. The machine owns the process state
// and persists it across every transition, so a run interrupted by a
// question or a crash can be picked up where it stopped.
package process

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/classify"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/connector"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/format"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/rule"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/segment"
)

// Store persists process state between stage transitions. A nil store
// keeps everything in memory, which the tests use.
type Store interface {
	SaveState(ctx context.Context, state *model.ProcessState) error
}

// Machine advances an import run through the pipeline.
type Machine struct {
	cfg      model.ProcessConfig
	registry *format.Registry
	conn     connector.Connector
	store    Store
}

// NewMachine creates a machine for one import configuration.
func NewMachine(cfg model.ProcessConfig, registry *format.Registry, conn connector.Connector, store Store) *Machine {
	return &Machine{cfg: cfg, registry: registry, conn: conn, store: store}
}

// Start decodes the given files into a fresh process state and runs the
// pipeline as far as it can go.
func (m *Machine) Start(ctx context.Context, files map[string][]byte) (*model.ProcessState, error) {
	state := &model.ProcessState{
		ProcessID: uuid.NewString(),
		Stage:     model.StageInitial,
		Files:     make(map[string][]model.DecodedLine, len(files)),
		Formats:   make(map[string]string, len(files)),
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		handler, err := m.registry.Find(name, files[name])
		if err != nil {
			return nil, err
		}
		lines, err := handler.Decode(name, files[name])
		if err != nil {
			return nil, err
		}
		state.Files[name] = lines
		state.Formats[name] = handler.Name()
		common.LogInfo("Decoded import file", common.Fields{
			"file": name, "format": handler.Name(), "lines": len(lines),
		})
	}

	if err := m.save(ctx, state); err != nil {
		return nil, err
	}
	return state, m.Run(ctx, state)
}

// Run advances the state until it is waiting on input, applied, or
// crashed. It is safe to call on any non-terminal state.
func (m *Machine) Run(ctx context.Context, state *model.ProcessState) error {
	for {
		var (
			next model.Stage
			q    *model.PendingQuestion
			err  error
		)

		switch state.Stage {
		case model.StageInitial:
			q, err = m.runSegment(state)
			next = model.StageSegmented
		case model.StageSegmented:
			q, err = m.runClassify(state)
			next = model.StageClassified
		case model.StageClassified:
			q, err = m.runAnalyze(ctx, state)
			next = model.StageAnalyzed
		case model.StageAnalyzed:
			err = m.runApply(ctx, state)
			next = model.StageApplied
		case model.StageApplied, model.StageCrashed, model.StageWaiting:
			return nil
		default:
			err = fmt.Errorf("unknown stage %q", state.Stage)
		}

		if err != nil {
			return m.crash(ctx, state, err)
		}
		if q != nil {
			return m.suspend(ctx, state, q)
		}

		state.Stage = next
		if err := m.save(ctx, state); err != nil {
			return err
		}
	}
}

// Resume merges an answer to the outstanding question and continues the
// run from the stage that raised it.
func (m *Machine) Resume(ctx context.Context, state *model.ProcessState, answer model.Value) error {
	if state.Stage != model.StageWaiting || state.Directions == nil {
		return fmt.Errorf("%w: process %s is in stage %s", common.ErrNotWaiting, state.ProcessID, state.Stage)
	}

	state.MergeAnswer(state.Directions.Element.SegmentID, state.Directions.Key, answer)
	state.Stage = state.ResumeStage
	state.ResumeStage = ""
	state.Directions = nil

	if err := m.save(ctx, state); err != nil {
		return err
	}
	return m.Run(ctx, state)
}

// Rollback removes everything this run created on the ledger side and
// marks the state crashed so it cannot be applied again.
func (m *Machine) Rollback(ctx context.Context, state *model.ProcessState) (bool, error) {
	done, err := m.conn.Rollback(ctx, state.ProcessID)
	if err != nil {
		return false, err
	}
	state.Stage = model.StageCrashed
	state.Error = "rolled back"
	if err := m.save(ctx, state); err != nil {
		return done, err
	}
	return done, nil
}

func (m *Machine) suspend(ctx context.Context, state *model.ProcessState, q *model.PendingQuestion) error {
	state.Directions = &model.Directions{Type: "ui", Key: q.Key, Element: q.Element}
	state.ResumeStage = state.Stage
	state.Stage = model.StageWaiting
	return m.save(ctx, state)
}

func (m *Machine) crash(ctx context.Context, state *model.ProcessState, cause error) error {
	state.Stage = model.StageCrashed
	state.Error = cause.Error()
	if err := m.save(ctx, state); err != nil {
		common.LogError(err, "Failed to persist crashed state", common.Fields{"process": state.ProcessID})
	}
	return fmt.Errorf("%w: %v", common.ErrCrashed, cause)
}

func (m *Machine) save(ctx context.Context, state *model.ProcessState) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.SaveState(ctx, state); err != nil {
		return fmt.Errorf("persisting process %s: %w", state.ProcessID, err)
	}
	return nil
}

// runSegment groups every file's decoded lines into segments. Lines no
// strategy can place are dropped when configured or confirmed by the
// user; a declined confirmation fails the file.
func (m *Machine) runSegment(state *model.ProcessState) (*model.PendingQuestion, error) {
	strategies := make(map[string]segment.Strategy, len(state.Formats))
	for name, formatName := range state.Formats {
		handler, ok := m.registry.Get(formatName)
		if !ok {
			return nil, fmt.Errorf("%w: format %s of file %s is not registered", common.ErrInvalidConfig, formatName, name)
		}
		strategies[name] = handler.Segmenter()
	}

	res, err := segment.Assign(state.Files, strategies)
	if err != nil {
		return nil, err
	}

	if len(res.Orphans) > 0 {
		if !m.cfg.DropOrphanLines {
			answer, ok := state.Answer("", "dropOrphanLines")
			if !ok {
				return model.NewYesNo("", "dropOrphanLines",
					fmt.Sprintf("%d lines have no resolvable segment. Drop them and continue?", len(res.Orphans))), nil
			}
			if !answer.Truthy() {
				return nil, common.InvalidFile(res.Orphans[0].File,
					fmt.Sprintf("%d lines have no resolvable segment", len(res.Orphans)))
			}
		}
		common.LogInfo("Dropping orphan lines", common.Fields{"count": len(res.Orphans)})
	}
	if len(res.Adjustments) > 0 {
		common.LogInfo("Secondary lines without a primary got their own segments",
			common.Fields{"count": len(res.Adjustments)})
	}

	state.Segments = res.Segments
	return nil, nil
}

// runClassify evaluates the rule set over every segment's lines. An
// unmatched segment falls through answer, policy, and finally the rule
// editor question, in that order.
func (m *Machine) runClassify(state *model.ProcessState) (*model.PendingQuestion, error) {
	engines := make(map[string]*rule.Engine, len(state.Formats))
	for name, formatName := range state.Formats {
		handler, ok := m.registry.Get(formatName)
		if !ok {
			return nil, fmt.Errorf("%w: format %s of file %s is not registered", common.ErrInvalidConfig, formatName, name)
		}
		engines[name] = rule.NewEngine(m.cfg.Rules, rule.FieldTypes{
			Numeric: handler.NumericFields(),
			Text:    handler.TextFields(),
		})
	}

	lineIndex := make(map[string]map[int]model.DecodedLine, len(state.Files))
	for name, lines := range state.Files {
		byNumber := make(map[int]model.DecodedLine, len(lines))
		for _, line := range lines {
			byNumber[line.LineNumber] = line
		}
		lineIndex[name] = byNumber
	}

	state.Transfers = make(map[string][]model.AssetTransfer, len(state.Segments))

	for _, seg := range sortedSegments(state.Segments) {
		var (
			transfers []model.AssetTransfer
			unmatched []model.DecodedLine
			engine    *rule.Engine
		)

		for _, ref := range seg.Lines {
			line, ok := lineIndex[ref.File][ref.Line]
			if !ok {
				return nil, fmt.Errorf("segment %s references missing line %s:%d", seg.ID, ref.File, ref.Line)
			}
			engine = engines[ref.File]

			produced, err := engine.Evaluate(line)
			if err != nil {
				return nil, err
			}
			if produced == nil {
				unmatched = append(unmatched, line)
				continue
			}
			transfers = append(transfers, produced...)
		}

		if len(unmatched) > 0 {
			resolved, q, err := m.resolveUnmatched(state, seg, unmatched, engine)
			if err != nil {
				return nil, err
			}
			if q != nil {
				return q, nil
			}
			transfers = append(transfers, resolved...)
		}

		state.Transfers[seg.ID] = transfers
	}
	return nil, nil
}

// resolveUnmatched handles a segment no permanent rule covers. A stored
// one-off rule answer applies first; otherwise the unrecognized policy
// decides, and with no policy the user is asked.
func (m *Machine) resolveUnmatched(state *model.ProcessState, seg model.Segment, unmatched []model.DecodedLine, engine *rule.Engine) ([]model.AssetTransfer, *model.PendingQuestion, error) {
	if answer, ok := state.Answer(seg.ID, "rule"); ok {
		return applyOneOffRule(answer, seg.ID, unmatched, engine)
	}

	switch m.cfg.Unrecognized {
	case model.PolicyIgnore:
		common.LogInfo("Ignoring unrecognized segment", common.Fields{"segment": seg.ID, "lines": len(unmatched)})
		return nil, nil, nil
	case model.PolicyHalt:
		return nil, nil, fmt.Errorf("%w: no rule matches segment %s", common.ErrUnrecognized, seg.ID)
	case model.PolicySuspense:
		return m.suspenseTransfers(seg, unmatched)
	default:
		return nil, engine.EditorElement(seg.ID, unmatched, nil), nil
	}
}

// suspenseTransfers books an unrecognized line against the suspense side
// by its amount column, leaving the classification for later by hand.
func (m *Machine) suspenseTransfers(seg model.Segment, unmatched []model.DecodedLine) ([]model.AssetTransfer, *model.PendingQuestion, error) {
	var transfers []model.AssetTransfer
	for _, line := range unmatched {
		raw := line.Column("amount")
		if raw == "" {
			common.LogInfo("Unrecognized line has no amount, dropping", common.Fields{
				"segment": seg.ID, "line": line.LineNumber,
			})
			continue
		}
		cents, err := model.ParseCents(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: segment %s amount %q", common.ErrUnrecognized, seg.ID, raw)
		}
		transfers = append(transfers,
			model.AssetTransfer{Reason: model.ReasonOther, Type: model.TypeAccount, Asset: m.cfg.Currency, Amount: cents},
			model.AssetTransfer{Reason: model.ReasonOther, Type: model.TypeExternal, Asset: m.cfg.Currency, Amount: -cents},
		)
	}
	return transfers, nil, nil
}

// applyOneOffRule evaluates an answered rule against the unmatched lines.
// The answer is a JSON-encoded rule; it covers this segment only and is
// never added to the permanent rule set.
func applyOneOffRule(answer model.Value, segmentID string, unmatched []model.DecodedLine, engine *rule.Engine) ([]model.AssetTransfer, *model.PendingQuestion, error) {
	var r model.Rule
	if err := json.Unmarshal([]byte(answer.Text()), &r); err != nil {
		return nil, nil, fmt.Errorf("%w: segment %s has malformed rule answer: %v", common.ErrUnrecognized, segmentID, err)
	}

	oneOff := rule.NewEngine([]model.Rule{r}, engine.Fields())
	var transfers []model.AssetTransfer
	for _, line := range unmatched {
		produced, err := oneOff.Evaluate(line)
		if err != nil {
			return nil, nil, err
		}
		if produced == nil {
			return nil, nil, fmt.Errorf("%w: answered rule does not match line %d of segment %s",
				common.ErrUnrecognized, line.LineNumber, segmentID)
		}
		transfers = append(transfers, produced...)
	}
	return transfers, nil, nil
}

// runAnalyze turns transfers into balanced transactions, segment by
// segment in time order. The analyzer is rebuilt on every entry; the
// oracle cache keeps re-evaluation deterministic within the run.
func (m *Machine) runAnalyze(ctx context.Context, state *model.ProcessState) (*model.PendingQuestion, error) {
	analyzer := classify.NewAnalyzer(m.cfg, classify.NewOracleCache(m.conn))
	state.Result = make(map[string][]model.TransactionDescription, len(state.Segments))

	for _, seg := range sortedSegments(state.Segments) {
		desc, q, err := analyzer.Analyze(ctx, seg, state.Transfers[seg.ID], state)
		if err != nil {
			return nil, err
		}
		if q != nil {
			return q, nil
		}
		state.Result[seg.ID] = []model.TransactionDescription{*desc}
	}
	return nil, nil
}

// runApply screens every produced transaction for duplicates and sends
// the rest to the connector in date order.
func (m *Machine) runApply(ctx context.Context, state *model.ProcessState) error {
	var descs []model.TransactionDescription
	for _, seg := range sortedSegments(state.Segments) {
		for i := range state.Result[seg.ID] {
			desc := &state.Result[seg.ID][i]
			for j := range desc.Transactions {
				tx := &desc.Transactions[j]
				if tx.ExecutionResult != "" {
					continue
				}
				exists, err := m.conn.ResultExists(ctx, *tx)
				if err != nil {
					return err
				}
				if exists {
					tx.ExecutionResult = model.ResultDuplicate
				}
			}
			descs = append(descs, *desc)
		}
	}

	stats, err := m.conn.ApplyResult(ctx, state.ProcessID, descs)
	if err != nil {
		return err
	}
	common.LogInfo("Applied import results", common.Fields{
		"process": state.ProcessID, "created": stats.Created, "duplicates": stats.Duplicates,
	})
	return nil
}

// sortedSegments orders segments by time, breaking ties on id so the
// order is total and stable across runs.
func sortedSegments(segments map[string]model.Segment) []model.Segment {
	out := make([]model.Segment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, seg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time.Equal(out[j].Time) {
			return out[i].ID < out[j].ID
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out
}
