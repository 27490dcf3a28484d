// Package recording reads recorded step sequences and their input data.
// It only implements the read side; persisting and migrating recordings is
// owned by whatever recorded them.
package recording

import (
	"encoding/csv"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/visionplay/visionplay/types"
	"github.com/visionplay/visionplay/vision"
)

// LoadRecording reads and validates a recording from a yaml file.
func LoadRecording(path string) (*types.Recording, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rec types.Recording
	d := yaml.NewDecoder(file)
	if err := d.Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode recording %s: %w", path, err)
	}
	if err := Validate(&rec); err != nil {
		return nil, fmt.Errorf("invalid recording %s: %w", path, err)
	}
	return &rec, nil
}

// Validate checks a recording for the problems that would otherwise only
// show up rows into a playback session.
func Validate(rec *types.Recording) error {
	if len(rec.Steps) == 0 {
		return fmt.Errorf("recording has no steps")
	}
	if rec.LoopStartIndex >= len(rec.Steps) {
		return fmt.Errorf("loop_start_index %d is out of range for %d steps", rec.LoopStartIndex, len(rec.Steps))
	}
	for i, s := range rec.Steps {
		switch s.RecordedVia {
		case types.ViaDOM, types.ViaVision, types.ViaKeyboard:
		default:
			return fmt.Errorf("step %d: unknown recorded_via %q", i, s.RecordedVia)
		}
		switch s.Event {
		case types.EventClick, types.EventInput, types.EventKeypress, types.EventConditionalClick:
		default:
			return fmt.Errorf("step %d: unknown event %q", i, s.Event)
		}
		if s.Event == types.EventConditionalClick && s.ConditionalConfig == nil && rec.ConditionalDefaults == nil {
			return fmt.Errorf("step %d: conditional-click step without conditional config or defaults", i)
		}
	}
	return nil
}

// MergeConditional resolves the effective poll config for a step, layering
// the step's own config over the recording's defaults. Malformed durations
// are left to the poller, which substitutes safe values.
func MergeConditional(step types.Step, defaults *types.ConditionalConfig) types.ConditionalConfig {
	var cfg types.ConditionalConfig
	if defaults != nil {
		cfg = *defaults
	}
	if sc := step.ConditionalConfig; sc != nil {
		if len(sc.SearchTerms) > 0 {
			cfg.SearchTerms = sc.SearchTerms
		}
		if sc.TimeoutSeconds != 0 {
			cfg.TimeoutSeconds = sc.TimeoutSeconds
		}
		if sc.PollIntervalMS != 0 {
			cfg.PollIntervalMS = sc.PollIntervalMS
		}
		if sc.ConfidenceThreshold != 0 {
			cfg.ConfidenceThreshold = sc.ConfidenceThreshold
		}
		if sc.SuccessText != "" {
			cfg.SuccessText = sc.SuccessText
		}
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = vision.DefaultTimeoutSeconds
	}
	if cfg.PollIntervalMS == 0 {
		cfg.PollIntervalMS = vision.DefaultPollIntervalMS
	}
	return cfg
}

// LoadTable reads a csv file into a table. The first record is the header
// row. Ragged rows are allowed; short rows simply leave trailing columns
// undefined.
func LoadTable(path string) (*types.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv %s is empty", path)
	}
	return &types.Table{Headers: records[0], Rows: records[1:]}, nil
}
