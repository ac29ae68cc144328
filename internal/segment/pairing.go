package segment

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

// PairingStrategy joins related lines into one segment: a first pass
// indexes all primary lines by pair key, a second pass attaches secondary
// lines (taxes, corrections) to the primary sharing their key. A
// secondary with no primary receives its own segment and is reported as
// an adjustment.
type PairingStrategy struct {
	primaries map[string]string
	// Primary reports whether a line is a primary event.
	Primary func(line model.DecodedLine) bool
	// PairKey derives the pairing key, e.g. date plus ISIN.
	PairKey func(line model.DecodedLine) (string, bool)
	// Fallback resolves lines with no pair key.
	Fallback Strategy
}

// Prepare indexes primary lines by pair key.
func (s *PairingStrategy) Prepare(lines []model.DecodedLine) {
	s.primaries = make(map[string]string)
	for _, line := range lines {
		if !s.Primary(line) {
			continue
		}
		key, ok := s.PairKey(line)
		if !ok {
			continue
		}
		if _, seen := s.primaries[key]; !seen {
			s.primaries[key] = pairHash(key)
		}
	}
}

// SegmentID resolves a line to the segment of its pair key's primary, or
// to its own keyed segment when no primary exists.
func (s *PairingStrategy) SegmentID(line model.DecodedLine) (string, bool) {
	key, ok := s.PairKey(line)
	if !ok {
		if s.Fallback != nil {
			return s.Fallback.SegmentID(line)
		}
		return "", false
	}
	if id, ok := s.primaries[key]; ok {
		return id, true
	}
	// Secondary with no primary: own segment keyed by line content so it
	// stays stable across reruns.
	return pairHash(key + "\x1f" + line.ContentHash(nil)), true
}

// Time delegates to the fallback strategy.
func (s *PairingStrategy) Time(line model.DecodedLine) (time.Time, bool) {
	if s.Fallback != nil {
		return s.Fallback.Time(line)
	}
	return time.Time{}, false
}

// IsAdjustment reports secondary lines whose pair key has no primary.
func (s *PairingStrategy) IsAdjustment(line model.DecodedLine) bool {
	if s.Primary(line) {
		return false
	}
	key, ok := s.PairKey(line)
	if !ok {
		return false
	}
	_, hasPrimary := s.primaries[key]
	return !hasPrimary
}

func pairHash(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", hash[:8])
}
