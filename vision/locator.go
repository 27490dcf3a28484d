package vision

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/visionplay/visionplay/types"
)

// MatchOptions control how search terms are compared against recognized
// text. ConfidenceThreshold is a hard filter applied before term priority
// is consulted. MaxDistance > 0 additionally accepts results within that
// levenshtein distance of a term, which catches the typical OCR
// misreadings ("C0ntinue").
type MatchOptions struct {
	CaseSensitive       bool
	PartialMatch        bool
	ConfidenceThreshold float64
	MaxDistance         int
	MaxResults          int
}

// dedupRadius is the center distance in pixels below which two matches are
// considered the same on-screen element.
const dedupRadius = 10

func (o MatchOptions) matches(result, term string) bool {
	if !o.CaseSensitive {
		result = strings.ToLower(result)
		term = strings.ToLower(term)
	}
	if o.PartialMatch {
		if strings.Contains(result, term) || strings.Contains(term, result) {
			return true
		}
	} else if result == term {
		return true
	}
	if o.MaxDistance > 0 {
		return levenshtein.ComputeDistance(result, term) <= o.MaxDistance
	}
	return false
}

// FindFirst returns the click target for the first result matching any of
// the search terms, or nil. Terms are tried in the caller-supplied priority
// order, results in recognizer-emitted order, so term order is the primary
// tie-break.
func FindFirst(searchTerms []string, results []types.TextResult, opts MatchOptions) *types.ClickTarget {
	for _, term := range searchTerms {
		for _, r := range results {
			if r.Confidence < opts.ConfidenceThreshold {
				continue
			}
			if opts.matches(r.Text, term) {
				target := r.Center()
				return &target
			}
		}
	}
	return nil
}

// FindAll collects all matching click targets, deduplicating results whose
// centers lie within dedupRadius of an already-collected match. A
// MaxResults of 0 means no cap.
func FindAll(searchTerms []string, results []types.TextResult, opts MatchOptions) []types.ClickTarget {
	targets := []types.ClickTarget{}
	for _, term := range searchTerms {
		for _, r := range results {
			if r.Confidence < opts.ConfidenceThreshold {
				continue
			}
			if !opts.matches(r.Text, term) {
				continue
			}
			target := r.Center()
			if isDuplicate(targets, target) {
				continue
			}
			targets = append(targets, target)
			if opts.MaxResults > 0 && len(targets) >= opts.MaxResults {
				return targets
			}
		}
	}
	return targets
}

func isDuplicate(targets []types.ClickTarget, t types.ClickTarget) bool {
	for _, existing := range targets {
		dx := existing.X - t.X
		dy := existing.Y - t.Y
		if dx*dx+dy*dy <= dedupRadius*dedupRadius {
			return true
		}
	}
	return false
}
