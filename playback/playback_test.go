package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/visionplay/visionplay/config"
	"github.com/visionplay/visionplay/surface"
	"github.com/visionplay/visionplay/types"
)

func domClick(label, selector string) types.Step {
	return types.Step{Label: label, Event: types.EventClick, RecordedVia: types.ViaDOM, Selector: selector}
}

func domInput(label, selector string) types.Step {
	return types.Step{Label: label, Event: types.EventInput, RecordedVia: types.ViaDOM, Selector: selector}
}

func newTestPlayer(mock *surface.MockSurface) *Player {
	return NewPlayer(mock, mock, mock, mock, 60)
}

func TestPlayLoopStartIndex(t *testing.T) {
	tests := []struct {
		name           string
		loopStartIndex int
		rows           int
		expectedSteps  []int // executed steps per row
	}{
		{"negative index skips later rows", -1, 3, []int{5, 0, 0}},
		{"index 2 of 5 steps", 2, 3, []int{5, 3, 3}},
		{"index 0 repeats everything", 0, 2, []int{5, 5}},
		{"single row ignores loop start", 2, 1, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &types.Recording{
				Steps: []types.Step{
					domClick("A", "#a"), domClick("B", "#b"), domClick("C", "#c"),
					domClick("D", "#d"), domClick("E", "#e"),
				},
				LoopStartIndex: tt.loopStartIndex,
			}
			table := &types.Table{Headers: []string{"Name"}}
			for i := 0; i < tt.rows; i++ {
				table.Rows = append(table.Rows, []string{"v"})
			}

			mock := surface.NewMockSurface()
			var perRow []int
			opts := Options{Callbacks: Callbacks{
				OnRowComplete: func(rowIndex int, success bool) {
					if !success {
						t.Errorf("row %d unexpectedly failed", rowIndex)
					}
				},
			}}

			player := newTestPlayer(mock)
			result, err := player.Play(context.Background(), rec, table, opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.Completed {
				t.Error("expected a completed session")
			}
			for _, r := range result.Rows {
				perRow = append(perRow, r.StepsExecuted)
			}
			if len(perRow) != len(tt.expectedSteps) {
				t.Fatalf("expected %d rows, got %d", len(tt.expectedSteps), len(perRow))
			}
			for i, expected := range tt.expectedSteps {
				if perRow[i] != expected {
					t.Errorf("row %d: expected %d executed steps, got %d", i, expected, perRow[i])
				}
			}
		})
	}
}

func TestPlaySubstitutesRowValues(t *testing.T) {
	rec := &types.Recording{
		Steps: []types.Step{
			domInput("Search", "#s0"),
			domInput("Search", "#s1"),
			domInput("Search", "#s2"),
		},
		LoopStartIndex: 0,
	}
	table := &types.Table{
		Headers: []string{"Search_0", "Search_1", "Search_2"},
		Rows:    [][]string{{"one", "two", "three"}},
	}

	mock := surface.NewMockSurface()
	player := newTestPlayer(mock)
	if _, err := player.Play(context.Background(), rec, table, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"one", "two", "three"}
	if len(mock.Typed) != len(expected) {
		t.Fatalf("expected %d typed values, got %v", len(expected), mock.Typed)
	}
	for i, e := range expected {
		if mock.Typed[i] != e {
			t.Errorf("step %d: expected typed value %q, got %q", i, e, mock.Typed[i])
		}
	}
}

func TestPlayRejectsConcurrentSession(t *testing.T) {
	rec := &types.Recording{
		Steps: []types.Step{{
			Label: "A", Event: types.EventClick, RecordedVia: types.ViaDOM,
			Selector: "#a", DelaySeconds: 0.3,
		}},
	}
	table := &types.Table{Headers: []string{"Name"}, Rows: [][]string{{"v"}}}

	mock := surface.NewMockSurface()
	player := newTestPlayer(mock)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := player.Play(context.Background(), rec, table, Options{})
		done <- err
	}()
	<-started
	time.Sleep(50 * time.Millisecond)

	if _, err := player.Play(context.Background(), rec, table, Options{}); !errors.Is(err, ErrAlreadyPlaying) {
		t.Errorf("expected ErrAlreadyPlaying, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first session failed: %v", err)
	}

	// once the first session is over, a new one may start
	if _, err := player.Play(context.Background(), rec, table, Options{}); err != nil {
		t.Errorf("expected a new session to start after completion, got %v", err)
	}
}

func TestPlayRowShortCircuit(t *testing.T) {
	rec := &types.Recording{
		Steps: []types.Step{
			domClick("A", "#a"), domClick("B", "#b"), domClick("C", "#c"),
		},
		LoopStartIndex: 0,
	}
	table := &types.Table{Headers: []string{"Name"}, Rows: [][]string{{"r0"}, {"r1"}, {"r2"}}}

	mock := surface.NewMockSurface()
	// let the setup row pass, then break the middle step for later rows
	opts := Options{Callbacks: Callbacks{
		OnRowComplete: func(rowIndex int, success bool) {
			if rowIndex == 0 {
				mock.FailSelectors = map[string]bool{"#b": true}
			}
		},
	}}

	player := newTestPlayer(mock)
	result, err := player.Play(context.Background(), rec, table, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Completed {
		t.Error("a row failure past the setup row must not abort the session")
	}
	if len(result.Rows) != 3 {
		t.Fatalf("expected all 3 rows to be attempted, got %d", len(result.Rows))
	}
	if result.Rows[0].Failed {
		t.Error("row 0 should have passed")
	}
	for _, idx := range []int{1, 2} {
		r := result.Rows[idx]
		if !r.Failed {
			t.Errorf("row %d should have failed", idx)
		}
		// step 0 succeeded, step 1 failed, step 2 must not have run
		if r.StepsExecuted != 2 {
			t.Errorf("row %d: expected short-circuit after 2 steps, got %d", idx, r.StepsExecuted)
		}
	}
}

func TestPlaySetupRowFailureIsFatal(t *testing.T) {
	rec := &types.Recording{
		Steps:          []types.Step{domClick("A", "#a"), domClick("B", "#b")},
		LoopStartIndex: 0,
	}
	table := &types.Table{Headers: []string{"Name"}, Rows: [][]string{{"r0"}, {"r1"}}}

	mock := surface.NewMockSurface()
	mock.FailSelectors = map[string]bool{"#b": true}

	var completeErr error
	completeCalled := false
	opts := Options{Callbacks: Callbacks{
		OnComplete: func(success bool, err error) {
			completeCalled = true
			if success {
				t.Error("expected OnComplete(false, ...)")
			}
			completeErr = err
		},
	}}

	player := newTestPlayer(mock)
	result, err := player.Play(context.Background(), rec, table, opts)
	if err == nil {
		t.Fatal("expected a fatal error for a failed setup row")
	}
	if len(result.Rows) != 1 {
		t.Errorf("expected no rows after the failed setup row, got %d", len(result.Rows))
	}
	if !completeCalled || completeErr == nil {
		t.Error("expected OnComplete to carry the fatal error")
	}
}

func TestPlayConditionalTimeoutPolicy(t *testing.T) {
	rec := &types.Recording{
		Steps: []types.Step{{
			Label: "Popup", Event: types.EventConditionalClick, RecordedVia: types.ViaVision,
			ConditionalConfig: &types.ConditionalConfig{
				SearchTerms:    []string{"Never appears"},
				TimeoutSeconds: 0.05,
				PollIntervalMS: 5,
			},
		}},
	}
	table := &types.Table{Headers: []string{"Name"}, Rows: [][]string{{"r0"}}}

	t.Run("skip_step", func(t *testing.T) {
		mock := surface.NewMockSurface([]types.TextResult{})
		player := newTestPlayer(mock)
		result, err := player.Play(context.Background(), rec, table, Options{OnConditionalTimeout: config.TimeoutSkipStep})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Rows[0].Failed {
			t.Error("skip_step must not fail the row")
		}
	})

	t.Run("fail_row", func(t *testing.T) {
		mock := surface.NewMockSurface([]types.TextResult{})
		player := newTestPlayer(mock)
		_, err := player.Play(context.Background(), rec, table, Options{OnConditionalTimeout: config.TimeoutFailRow})
		if err == nil {
			t.Fatal("fail_row on the setup row must be fatal to the session")
		}
	})
}

func TestStopMidSession(t *testing.T) {
	rec := &types.Recording{
		Steps: []types.Step{{
			Label: "Popup", Event: types.EventConditionalClick, RecordedVia: types.ViaVision,
			ConditionalConfig: &types.ConditionalConfig{
				SearchTerms:    []string{"Never appears"},
				TimeoutSeconds: 60,
				PollIntervalMS: 20,
			},
		}},
	}
	table := &types.Table{Headers: []string{"Name"}, Rows: [][]string{{"r0"}}}

	mock := surface.NewMockSurface([]types.TextResult{})
	player := newTestPlayer(mock)

	done := make(chan *Result, 1)
	go func() {
		result, _ := player.Play(context.Background(), rec, table, Options{})
		done <- result
	}()

	time.Sleep(50 * time.Millisecond)
	player.Stop()

	select {
	case result := <-done:
		if result == nil {
			t.Fatal("expected a result")
		}
		if result.Completed {
			t.Error("a stopped session must not report completion")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not observe the stop signal")
	}

	if player.State().IsPlaying {
		t.Error("expected the session state to be reset after stop")
	}
}

func TestStopMidRowReportsInterruptedRow(t *testing.T) {
	rec := &types.Recording{
		Steps: []types.Step{
			{
				Label: "Popup", Event: types.EventConditionalClick, RecordedVia: types.ViaVision,
				ConditionalConfig: &types.ConditionalConfig{
					SearchTerms:    []string{"Never appears"},
					TimeoutSeconds: 60,
					PollIntervalMS: 20,
				},
			},
			domClick("A", "#a"),
		},
		LoopStartIndex: 0,
	}
	table := &types.Table{Headers: []string{"Name"}, Rows: [][]string{{"r0"}}}

	mock := surface.NewMockSurface([]types.TextResult{})
	player := newTestPlayer(mock)

	rowSuccess := make(chan bool, 1)
	opts := Options{Callbacks: Callbacks{
		OnRowComplete: func(rowIndex int, success bool) {
			rowSuccess <- success
		},
	}}

	done := make(chan *Result, 1)
	go func() {
		result, _ := player.Play(context.Background(), rec, table, opts)
		done <- result
	}()

	time.Sleep(50 * time.Millisecond)
	player.Stop()

	select {
	case result := <-done:
		if !result.Stopped {
			t.Error("expected the session to report the stop")
		}
		select {
		case success := <-rowSuccess:
			if success {
				t.Error("an interrupted row must not be reported as a clean pass")
			}
		default:
			t.Fatal("expected OnRowComplete to fire for the interrupted row")
		}
		// the second step must not have run after the stop
		if len(mock.Selected) != 0 {
			t.Errorf("expected no steps after the stop, got %v", mock.Selected)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not observe the stop signal")
	}
}

func TestPauseAndResume(t *testing.T) {
	rec := &types.Recording{
		Steps:          []types.Step{domClick("A", "#a"), domClick("B", "#b")},
		LoopStartIndex: 0,
	}
	table := &types.Table{Headers: []string{"Name"}, Rows: [][]string{{"r0"}}}

	mock := surface.NewMockSurface()
	player := newTestPlayer(mock)
	player.Pause()

	done := make(chan struct{})
	go func() {
		player.Play(context.Background(), rec, table, Options{})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("a paused session must not run steps")
	case <-time.After(250 * time.Millisecond):
	}

	player.Resume()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not resume")
	}
	if len(mock.Selected) != 2 {
		t.Errorf("expected both steps to run after resume, got %v", mock.Selected)
	}
}
