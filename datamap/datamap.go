// Package datamap pairs recorded steps with the columns of a data table.
// The tricky part is repeated field labels: three steps labeled "Search"
// against columns "Search_0/1/2" must map 1:1:1 in recorded order, which a
// naive match-by-label would get wrong by reassigning the first matching
// column to every occurrence.
package datamap

import (
	"regexp"
	"sort"
	"strings"

	"github.com/visionplay/visionplay/types"
)

var disambigSuffixRe = regexp.MustCompile(`_\d+$`)

// NormalizeLabel lowercases a label, collapses its whitespace and strips a
// trailing _N disambiguation suffix, so that "First  Name ", "first name"
// and "First Name_2" all group together.
func NormalizeLabel(label string) string {
	label = disambigSuffixRe.ReplaceAllString(strings.TrimSpace(label), "")
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

// BuildLabelToColumns groups the table's columns by normalized header
// label. Within each group columns keep their original column order.
func BuildLabelToColumns(fields []types.Field) map[string][]string {
	byLabel := map[string][]types.Field{}
	for _, f := range fields {
		key := NormalizeLabel(f.Name)
		if key == "" {
			continue
		}
		byLabel[key] = append(byLabel[key], f)
	}
	result := map[string][]string{}
	for key, group := range byLabel {
		sort.SliceStable(group, func(i, j int) bool { return group[i].Index < group[j].Index })
		names := make([]string, 0, len(group))
		for _, f := range group {
			names = append(names, f.Name)
		}
		result[key] = names
	}
	return result
}

// BuildStepToColumn computes the step index to column name assignment in a
// single forward pass. The assignment is injective: a per-label cursor
// walks that label's column list and a single global used-set guarantees no
// column is handed out twice, even when the same label occurs in several
// steps and several headers. A step whose label has no unused column left
// gets no entry, an explicit gap rather than a wrong guess.
//
// The cursors and the used-set are local to one call on purpose; sharing
// them across calls lets independent mappings cross-contaminate each
// other's numbering.
func BuildStepToColumn(steps []types.Step, labelToColumns map[string][]string) map[int]string {
	assignment := map[int]string{}
	cursors := map[string]int{}
	used := map[string]bool{}

	for i, step := range steps {
		label := NormalizeLabel(step.Label)
		if label == "" {
			continue
		}
		columns, ok := labelToColumns[label]
		if !ok {
			continue
		}
		for j := cursors[label]; j < len(columns); j++ {
			if used[columns[j]] {
				continue
			}
			assignment[i] = columns[j]
			used[columns[j]] = true
			cursors[label] = j + 1
			break
		}
	}
	return assignment
}
