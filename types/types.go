// Package types defines shared types used across the application.
package types

import "time"

// Bounds is the bounding box of a recognized piece of text, in screenshot
// pixel coordinates.
type Bounds struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// TextResult is one piece of text the recognizer found in a screenshot,
// together with its confidence (0-100) and bounding box. Results only live
// for one recognition cycle.
type TextResult struct {
	Text       string
	Confidence float64
	Bounds     Bounds
}

// ClickTarget is the center point of a matched TextResult.
type ClickTarget struct {
	Text       string
	Confidence float64
	X          int
	Y          int
}

// Center derives a ClickTarget from a TextResult.
func (r TextResult) Center() ClickTarget {
	return ClickTarget{
		Text:       r.Text,
		Confidence: r.Confidence,
		X:          r.Bounds.X + r.Bounds.Width/2,
		Y:          r.Bounds.Y + r.Bounds.Height/2,
	}
}

// Screenshot is one captured frame of the surface under automation.
type Screenshot struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
}

// ConditionalConfig configures a single conditional-click poll session.
// SearchTerms are tried in priority order. TimeoutSeconds is a rolling
// timeout that resets on every successful click. A ConfidenceThreshold of 0
// means "use the global vision threshold".
type ConditionalConfig struct {
	SearchTerms         []string `yaml:"search_terms"`
	TimeoutSeconds      float64  `yaml:"timeout_seconds"`
	PollIntervalMS      float64  `yaml:"poll_interval_ms"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold,omitempty"`
	SuccessText         string   `yaml:"success_text,omitempty"`
}

// ConditionalClickResult summarizes one finished poll session.
type ConditionalClickResult struct {
	ButtonsClicked int
	TimedOut       bool
	Duration       time.Duration
	ClickedTexts   []string
}

const (
	ViaDOM      = "dom"
	ViaVision   = "vision"
	ViaKeyboard = "keyboard"
)

const (
	EventClick            = "click"
	EventInput            = "input"
	EventKeypress         = "keypress"
	EventConditionalClick = "conditional-click"
)

// Coordinates are the screen coordinates a vision step was recorded at.
type Coordinates struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// Step is one recorded interaction. Label is the field label the recorder
// extracted; the column mapper matches it against CSV headers. Selector is
// only set for DOM-recorded steps.
type Step struct {
	Label             string             `yaml:"label"`
	Event             string             `yaml:"event"`
	Value             string             `yaml:"value,omitempty"`
	RecordedVia       string             `yaml:"recorded_via"`
	Selector          string             `yaml:"selector,omitempty"`
	Key               string             `yaml:"key,omitempty"`
	Modifiers         []string           `yaml:"modifiers,omitempty"`
	Coordinates       *Coordinates       `yaml:"coordinates,omitempty"`
	DelaySeconds      float64            `yaml:"delay_seconds,omitempty"`
	ConditionalConfig *ConditionalConfig `yaml:"conditional,omitempty"`
}

// Recording is a recorded step sequence plus its playback parameters.
// Row 0 of the data table always executes all steps. LoopStartIndex < 0
// means rows >= 1 execute nothing; LoopStartIndex = k >= 0 means rows >= 1
// execute steps[k:].
type Recording struct {
	Name                string             `yaml:"name,omitempty"`
	Steps               []Step             `yaml:"steps"`
	LoopStartIndex      int                `yaml:"loop_start_index"`
	GlobalDelayMS       int                `yaml:"global_delay_ms,omitempty"`
	ConditionalDefaults *ConditionalConfig `yaml:"conditional_defaults,omitempty"`
}

// Table is tabular input data, one playback pass per row.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Field describes one column of the data table as presented to the column
// mapper: the header name plus its original column index.
type Field struct {
	Name  string
	Index int
}

// Fields returns the table's columns in original order.
func (t *Table) Fields() []Field {
	fields := make([]Field, 0, len(t.Headers))
	for i, h := range t.Headers {
		fields = append(fields, Field{Name: h, Index: i})
	}
	return fields
}

// HeaderIndex maps each header name to its column index. First occurrence
// wins for duplicate names.
func (t *Table) HeaderIndex() map[string]int {
	m := map[string]int{}
	for i, h := range t.Headers {
		if _, ok := m[h]; !ok {
			m[h] = i
		}
	}
	return m
}
