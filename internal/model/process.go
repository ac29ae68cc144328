package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stage is the pipeline position of a process.
type Stage string

// Stage constants. Waiting is a side channel entered from any stage when
// an interactive question is outstanding; applied and crashed are terminal.
const (
	StageInitial    Stage = "initial"
	StageSegmented  Stage = "segmented"
	StageClassified Stage = "classified"
	StageAnalyzed   Stage = "analyzed"
	StageApplied    Stage = "applied"
	StageWaiting    Stage = "waiting"
	StageCrashed    Stage = "crashed"
)

// Policy values for configurable edge-case behavior.
const (
	PolicyIgnore   = "ignore"
	PolicyError    = "error"
	PolicyHalt     = "halt"
	PolicySuspense = "suspense"
)

// ProcessConfig carries everything one import run needs to know that is
// not in the files themselves.
type ProcessConfig struct {
	FirstDate *time.Time `json:"first_date,omitempty"`
	LastDate  *time.Time `json:"last_date,omitempty"`
	// Accounts maps account roles like "account.income" or
	// "statement.expense" to ledger account numbers.
	Accounts map[string]string `json:"accounts"`
	Currency string            `json:"currency"`
	Language string            `json:"language,omitempty"`
	// BadTransactionDates selects what to do with out-of-period dates:
	// ignore, error, or empty to ask interactively.
	BadTransactionDates string `json:"bad_transaction_dates,omitempty"`
	// Unrecognized selects what to do with segments no rule matches after
	// the user declined to answer: ignore, halt or suspense.
	Unrecognized    string `json:"unrecognized,omitempty"`
	SuspenseAccount string `json:"suspense_account,omitempty"`
	Rules           []Rule `json:"rules"`
	// Force posts transactions even when the balance invariant fails.
	Force bool `json:"force,omitempty"`
	// DropOrphanLines drops lines with no resolvable segment id instead of
	// raising a question about them.
	DropOrphanLines bool `json:"drop_orphan_lines,omitempty"`
}

// ProcessState is the complete, serializable state of one import run. It
// is owned by the process state machine; other components return deltas
// that the machine merges. It must round-trip losslessly through JSON so
// a suspended run survives a process restart.
type ProcessState struct {
	Files map[string][]DecodedLine `json:"files"`
	// Formats records which handler decoded each file, so a resumed run
	// can rebuild the same segmentation strategy and field typing.
	Formats   map[string]string                   `json:"formats"`
	Segments  map[string]Segment                  `json:"segments"`
	Transfers map[string][]AssetTransfer          `json:"transfers,omitempty"`
	Result    map[string][]TransactionDescription `json:"result,omitempty"`
	Answers   map[string]map[string]Value         `json:"answers,omitempty"`
	// Directions is present only while waiting.
	Directions *Directions `json:"directions,omitempty"`
	ProcessID  string      `json:"process_id"`
	Stage      Stage       `json:"stage"`
	// ResumeStage remembers which stage to re-run when an answer arrives.
	ResumeStage Stage  `json:"resume_stage,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Answer returns a stored answer for a segment question, if any.
func (s *ProcessState) Answer(segmentID, key string) (Value, bool) {
	qs, ok := s.Answers[segmentID]
	if !ok {
		return Value{}, false
	}
	v, ok := qs[key]
	return v, ok
}

// MergeAnswer records an answer under (segmentID, key).
func (s *ProcessState) MergeAnswer(segmentID, key string, v Value) {
	if s.Answers == nil {
		s.Answers = make(map[string]map[string]Value)
	}
	if s.Answers[segmentID] == nil {
		s.Answers[segmentID] = make(map[string]Value)
	}
	s.Answers[segmentID][key] = v
}

// Serialize renders the state as JSON.
func (s *ProcessState) Serialize() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("serializing process state: %w", err)
	}
	return data, nil
}

// DeserializeState restores a state previously produced by Serialize.
func DeserializeState(data []byte) (*ProcessState, error) {
	var s ProcessState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("deserializing process state: %w", err)
	}
	return &s, nil
}
