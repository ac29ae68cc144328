package model

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DecodedLine is one record produced by a format handler. It is immutable
// once decoded; only the segment id is attached later by the segmenter.
type DecodedLine struct {
	Time       *time.Time        `json:"time,omitempty"`
	Columns    map[string]string `json:"columns"`
	SegmentID  string            `json:"segment_id,omitempty"`
	RawText    string            `json:"raw_text"`
	LineNumber int               `json:"line_number"`
}

// Column returns a named column value, empty when absent.
func (l DecodedLine) Column(name string) string {
	return l.Columns[name]
}

// ContentHash produces a stable id over the line's significant columns.
// Rerunning segmentation over the same decoded lines must reproduce the
// same ids, so the hash covers sorted key=value pairs only.
func (l DecodedLine) ContentHash(columns []string) string {
	pairs := make([]string, 0, len(columns))
	for _, c := range columns {
		pairs = append(pairs, fmt.Sprintf("%s=%s", c, l.Columns[c]))
	}
	if len(pairs) == 0 {
		for k, v := range l.Columns {
			pairs = append(pairs, fmt.Sprintf("%s=%s", k, v))
		}
	}
	sort.Strings(pairs)
	data := fmt.Sprintf("%d:%s", l.LineNumber, strings.Join(pairs, "\x1f"))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:8])
}

// LineRef points at one decoded line inside a named file.
type LineRef struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// Segment groups the decoded lines of one logical economic event. It is
// the unit of classification.
type Segment struct {
	Time  time.Time `json:"time"`
	ID    string    `json:"id"`
	Lines []LineRef `json:"lines"`
}
