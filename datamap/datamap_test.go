package datamap

import (
	"reflect"
	"testing"

	"github.com/visionplay/visionplay/types"
)

func fieldsFromHeaders(headers []string) []types.Field {
	t := types.Table{Headers: headers}
	return t.Fields()
}

func stepsFromLabels(labels []string) []types.Step {
	steps := make([]types.Step, 0, len(labels))
	for _, l := range labels {
		steps = append(steps, types.Step{Label: l, Event: types.EventInput, RecordedVia: types.ViaDOM})
	}
	return steps
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Search", "search"},
		{"Search_0", "search"},
		{"Search_12", "search"},
		{"  First  Name ", "first name"},
		{"First Name_2", "first name"},
		{"EMAIL\taddress", "email address"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeLabel(tt.input); got != tt.expected {
			t.Errorf("NormalizeLabel(%q) = %q; want %q", tt.input, got, tt.expected)
		}
	}
}

func TestBuildLabelToColumns(t *testing.T) {
	l2c := BuildLabelToColumns(fieldsFromHeaders([]string{"Search_0", "Name", "Search_1", "search_2"}))

	expected := []string{"Search_0", "Search_1", "search_2"}
	if !reflect.DeepEqual(l2c["search"], expected) {
		t.Errorf("expected search -> %v, got %v", expected, l2c["search"])
	}
	if !reflect.DeepEqual(l2c["name"], []string{"Name"}) {
		t.Errorf("expected name -> [Name], got %v", l2c["name"])
	}
}

func TestBuildStepToColumnRepeatedLabels(t *testing.T) {
	steps := stepsFromLabels([]string{"Search", "Search", "Search"})
	l2c := BuildLabelToColumns(fieldsFromHeaders([]string{"Search_0", "Search_1", "Search_2"}))

	s2c := BuildStepToColumn(steps, l2c)

	expected := map[int]string{0: "Search_0", 1: "Search_1", 2: "Search_2"}
	if !reflect.DeepEqual(s2c, expected) {
		t.Errorf("expected %v, got %v", expected, s2c)
	}
}

func TestBuildStepToColumnIsInjective(t *testing.T) {
	tests := []struct {
		name    string
		labels  []string
		headers []string
	}{
		{"repeated labels, enough columns", []string{"X", "X", "X"}, []string{"X", "x", "X "}},
		{"more steps than columns", []string{"X", "X", "X"}, []string{"X"}},
		{"mixed labels", []string{"A", "B", "A", "C", "B"}, []string{"B", "A", "a", "b", "C"}},
		{"no matching columns", []string{"X", "Y"}, []string{"A", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s2c := BuildStepToColumn(stepsFromLabels(tt.labels), BuildLabelToColumns(fieldsFromHeaders(tt.headers)))
			seen := map[string]int{}
			for stepIdx, col := range s2c {
				if prev, ok := seen[col]; ok {
					t.Errorf("column %q assigned to steps %d and %d", col, prev, stepIdx)
				}
				seen[col] = stepIdx
			}
		})
	}
}

func TestBuildStepToColumnGap(t *testing.T) {
	steps := stepsFromLabels([]string{"X", "X"})
	l2c := BuildLabelToColumns(fieldsFromHeaders([]string{"X", "Name"}))

	s2c := BuildStepToColumn(steps, l2c)

	if len(s2c) != 1 {
		t.Fatalf("expected exactly one mapping, got %v", s2c)
	}
	if s2c[0] != "X" {
		t.Errorf("expected step 0 -> X, got %v", s2c)
	}
	if _, ok := s2c[1]; ok {
		t.Errorf("expected step 1 to be an explicit gap, got %q", s2c[1])
	}
}

func TestBuildStepToColumnIsPure(t *testing.T) {
	steps := stepsFromLabels([]string{"Search", "Search", "Name"})
	fields := fieldsFromHeaders([]string{"Search", "Search", "Name"})

	first := BuildStepToColumn(steps, BuildLabelToColumns(fields))
	for i := 0; i < 10; i++ {
		if got := BuildStepToColumn(steps, BuildLabelToColumns(fields)); !reflect.DeepEqual(got, first) {
			t.Fatalf("call %d produced %v, first call produced %v", i, got, first)
		}
	}
}
