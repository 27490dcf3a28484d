package datamap

import (
	"regexp"
	"strings"

	"github.com/visionplay/visionplay/types"
)

// SubstitutionResult is the outcome of resolving one step's value against
// one data row.
type SubstitutionResult struct {
	Step        types.Step
	Substituted bool
	Column      string
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// SubstituteStepValue applies the precomputed step-to-column assignment to
// one step on one data row. If the assignment resolves to a defined cell
// the returned copy carries that cell's value; otherwise the step is
// returned unchanged with Substituted=false, leaving the caller to apply
// fallback.
func SubstituteStepValue(step types.Step, stepIndex int, row []string, stepToColumn map[int]string, headerIndex map[string]int) SubstitutionResult {
	column, ok := stepToColumn[stepIndex]
	if !ok {
		return SubstitutionResult{Step: step}
	}
	idx, ok := headerIndex[column]
	if !ok || idx >= len(row) {
		return SubstitutionResult{Step: step}
	}
	step.Value = row[idx]
	return SubstitutionResult{Step: step, Substituted: true, Column: column}
}

// ResolveStepValue is the full resolution chain: the mapped column first,
// then a direct label match against the headers, then a case- and
// whitespace-insensitive header search, and finally the step's originally
// recorded static value (with {{var}} placeholders expanded).
func ResolveStepValue(step types.Step, stepIndex int, row []string, stepToColumn map[int]string, headers []string, headerIndex map[string]int) SubstitutionResult {
	res := SubstituteStepValue(step, stepIndex, row, stepToColumn, headerIndex)
	if res.Substituted {
		return res
	}

	if idx, ok := headerIndex[step.Label]; ok && idx < len(row) {
		step.Value = row[idx]
		return SubstitutionResult{Step: step, Substituted: true, Column: step.Label}
	}

	want := NormalizeLabel(step.Label)
	if want != "" {
		for i, h := range headers {
			if NormalizeLabel(h) == want && i < len(row) {
				step.Value = row[i]
				return SubstitutionResult{Step: step, Substituted: true, Column: h}
			}
		}
	}

	step.Value = SubstituteVariables(step.Value, row, headerIndex)
	return SubstitutionResult{Step: step}
}

// SubstituteVariables replaces every {{name}} placeholder with the value of
// the column of that name, trying an exact header match first and a
// case-insensitive one second. Unresolved placeholders are left verbatim so
// that a bad recording shows up as visibly wrong output instead of silently
// blank fields.
func SubstituteVariables(text string, row []string, headerIndex map[string]int) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if idx, ok := headerIndex[name]; ok && idx < len(row) {
			return row[idx]
		}
		lower := strings.ToLower(name)
		for header, idx := range headerIndex {
			if strings.ToLower(header) == lower && idx < len(row) {
				return row[idx]
			}
		}
		return match
	})
}
