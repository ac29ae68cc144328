// Package segment groups decoded lines into segments, each representing
// one logical economic event.
package segment

import (
	"fmt"
	"sort"
	"time"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

// Strategy resolves a decoded line to its segment id and time. The default
// is a content hash; formats with multi-line events install their own.
type Strategy interface {
	// SegmentID returns the segment id for a line, or false when the line
	// has no resolvable segment.
	SegmentID(line model.DecodedLine) (string, bool)
	// Time returns the line's timestamp when one can be derived.
	Time(line model.DecodedLine) (time.Time, bool)
}

// Preparer is implemented by strategies that need a pass over the whole
// file before per-line resolution, such as primary/secondary pairing.
type Preparer interface {
	Prepare(lines []model.DecodedLine)
}

// Result is the outcome of assigning segments over a set of files.
type Result struct {
	Segments map[string]model.Segment
	// Orphans lists lines with no resolvable segment id.
	Orphans []model.LineRef
	// Adjustments lists secondary lines that found no primary and were
	// given their own segment.
	Adjustments []model.LineRef
}

// Assign attaches segment ids to the decoded lines of every file and
// builds the segment map. It is idempotent: the same decoded lines always
// produce the same segment ids and membership.
func Assign(files map[string][]model.DecodedLine, strategies map[string]Strategy) (*Result, error) {
	res := &Result{Segments: make(map[string]model.Segment)}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		lines := files[name]
		strategy, ok := strategies[name]
		if !ok {
			return nil, fmt.Errorf("no segmentation strategy for file %s", name)
		}
		if p, ok := strategy.(Preparer); ok {
			p.Prepare(lines)
		}

		for i := range lines {
			line := &lines[i]
			id, ok := strategy.SegmentID(*line)
			if !ok {
				res.Orphans = append(res.Orphans, model.LineRef{File: name, Line: line.LineNumber})
				continue
			}
			line.SegmentID = id

			when, hasTime := strategy.Time(*line)
			if hasTime {
				t := when
				line.Time = &t
			}

			seg, exists := res.Segments[id]
			if !exists {
				seg = model.Segment{ID: id}
				if hasTime {
					seg.Time = when
				}
			} else if seg.Time.IsZero() && hasTime {
				seg.Time = when
			}
			seg.Lines = append(seg.Lines, model.LineRef{File: name, Line: line.LineNumber})
			res.Segments[id] = seg

			if a, ok := strategy.(adjustmentMarker); ok && a.IsAdjustment(*line) {
				res.Adjustments = append(res.Adjustments, model.LineRef{File: name, Line: line.LineNumber})
			}
		}
	}

	return res, nil
}

type adjustmentMarker interface {
	IsAdjustment(line model.DecodedLine) bool
}

// HashStrategy is the default segmentation: a stable content hash over a
// line's significant columns, so every line is its own segment.
type HashStrategy struct {
	TimeColumn  string
	Significant []string
	TimeLayouts []string
}

// SegmentID hashes the significant columns.
func (s *HashStrategy) SegmentID(line model.DecodedLine) (string, bool) {
	return line.ContentHash(s.Significant), true
}

// Time parses the configured time column against the configured layouts.
func (s *HashStrategy) Time(line model.DecodedLine) (time.Time, bool) {
	if s.TimeColumn == "" {
		return time.Time{}, false
	}
	raw := line.Column(s.TimeColumn)
	if raw == "" {
		return time.Time{}, false
	}
	return ParseTime(raw, s.TimeLayouts)
}

// DefaultTimeLayouts covers the date shapes seen across exported files.
var DefaultTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02.01.2006",
	"01/02/2006",
	"1/2/2006 15:04",
}

// ParseTime tries each layout in order.
func ParseTime(s string, layouts []string) (time.Time, bool) {
	if len(layouts) == 0 {
		layouts = DefaultTimeLayouts
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
