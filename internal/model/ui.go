package model

// UIElementType names the interactive element kinds the pipeline can emit.
type UIElementType string

// UI element type constants.
const (
	ElementRuleEditor    UIElementType = "ruleEditor"
	ElementYesNo         UIElementType = "yesNo"
	ElementAccountPicker UIElementType = "accountPicker"
)

// AccountCandidate is one selectable ledger account.
type AccountCandidate struct {
	Number string `json:"number"`
	Name   string `json:"name"`
}

// UIElement describes one interactive question for the caller to render.
// It is a closed, plain-data shape so it survives serialization between
// suspension and resume; unused fields stay empty per element type.
type UIElement struct {
	Type          UIElementType      `json:"type"`
	SegmentID     string             `json:"segment_id"`
	Question      string             `json:"question"`
	Lines         []DecodedLine      `json:"lines,omitempty"`
	NumericFields []string           `json:"numeric_fields,omitempty"`
	TextFields    []string           `json:"text_fields,omitempty"`
	Templates     []ResultTemplate   `json:"templates,omitempty"`
	Options       []AccountCandidate `json:"options,omitempty"`
}

// Directions is the suspended-output payload telling the caller what to
// render and collect an answer for. Key is where the answer merges back
// into the state's answer map.
type Directions struct {
	Type    string    `json:"type"`
	Key     string    `json:"key"`
	Element UIElement `json:"element"`
}

// PendingQuestion is the control-flow value raised instead of a result
// when human input is required. It is not an error: callers propagate it
// up to the process state machine, which converts it into a suspended
// state carrying Directions.
type PendingQuestion struct {
	SegmentID string    `json:"segment_id"`
	Key       string    `json:"key"`
	Element   UIElement `json:"element"`
}

// NewRuleEditor builds the question raised when no rule matches a segment.
func NewRuleEditor(segmentID string, lines []DecodedLine, numericFields, textFields []string, templates []ResultTemplate) *PendingQuestion {
	return &PendingQuestion{
		SegmentID: segmentID,
		Key:       "rule",
		Element: UIElement{
			Type:          ElementRuleEditor,
			SegmentID:     segmentID,
			Question:      "No import rule matches these lines",
			Lines:         lines,
			NumericFields: numericFields,
			TextFields:    textFields,
			Templates:     templates,
		},
	}
}

// NewYesNo builds a yes/no policy question, e.g. badTransactionDates.
func NewYesNo(segmentID, key, question string) *PendingQuestion {
	return &PendingQuestion{
		SegmentID: segmentID,
		Key:       key,
		Element: UIElement{
			Type:      ElementYesNo,
			SegmentID: segmentID,
			Question:  question,
		},
	}
}

// NewAccountPicker builds an account selection question.
func NewAccountPicker(segmentID, role string, options []AccountCandidate) *PendingQuestion {
	return &PendingQuestion{
		SegmentID: segmentID,
		Key:       "account." + role,
		Element: UIElement{
			Type:      ElementAccountPicker,
			SegmentID: segmentID,
			Question:  "Select account for " + role,
			Options:   options,
		},
	}
}
