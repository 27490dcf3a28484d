// Package playback drives recorded step sequences against rows of tabular
// input data. One Player owns one playback session at a time; steps within
// a row run strictly in recorded order, rows strictly in table order, and a
// conditional poll fully resolves before its owning step is complete.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/visionplay/visionplay/config"
	"github.com/visionplay/visionplay/datamap"
	"github.com/visionplay/visionplay/log"
	"github.com/visionplay/visionplay/recording"
	"github.com/visionplay/visionplay/surface"
	"github.com/visionplay/visionplay/types"
	"github.com/visionplay/visionplay/vision"
)

// ErrAlreadyPlaying is returned when Play is called while a session is
// active. Start/stop is single-flight at this boundary on purpose; letting
// two sessions fight over the same surface is never recoverable.
var ErrAlreadyPlaying = errors.New("a playback session is already active")

// pauseCheckInterval is how often a paused session re-checks the pause
// flag. Pause is cooperative: it is consulted between steps, never
// mid-step.
const pauseCheckInterval = 100 * time.Millisecond

// State is a snapshot of the current playback session.
type State struct {
	IsPlaying        bool
	IsPaused         bool
	CurrentRowIndex  int
	CurrentStepIndex int
	TotalRows        int
	TotalSteps       int
	Err              error
}

// Callbacks let the caller observe a session's progress. All callbacks are
// optional and are invoked synchronously from the playback loop.
type Callbacks struct {
	OnStart        func()
	OnStepStart    func(step types.Step, stepIndex, rowIndex int)
	OnStepComplete func(step types.Step, stepIndex, rowIndex int, success bool)
	OnRowComplete  func(rowIndex int, success bool)
	OnComplete     func(success bool, err error)
	OnProgress     func(current, total int)
}

// Options configure one playback session.
type Options struct {
	Callbacks Callbacks
	// OnConditionalTimeout decides what happens to a row when a
	// conditional-click step times out without a single click.
	OnConditionalTimeout config.TimeoutPolicy
}

// RowResult summarizes one data row's pass.
type RowResult struct {
	RowIndex      int
	StepsExecuted int
	Failed        bool
	Err           error
}

// Result summarizes a finished session.
type Result struct {
	SessionID string
	Rows      []RowResult
	Completed bool
	Stopped   bool
}

// A Player executes recordings. It owns the poller and enforces the
// one-session-at-a-time invariant.
type Player struct {
	capturer   surface.Capturer
	executor   surface.Executor
	dom        surface.DOMExecutor
	recognizer vision.Recognizer
	poller     *vision.Poller
	confidence float64

	mu      sync.Mutex
	playing bool
	paused  bool
	cancel  context.CancelFunc
	state   State
}

func NewPlayer(c surface.Capturer, e surface.Executor, d surface.DOMExecutor, r vision.Recognizer, globalConfidence float64) *Player {
	return &Player{
		capturer:   c,
		executor:   e,
		dom:        d,
		recognizer: r,
		poller:     vision.NewPoller(c, r, e, globalConfidence),
		confidence: globalConfidence,
	}
}

// State returns a snapshot of the current session.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stop sets the session's cancellation signal. It is observed at the next
// poll tick or step boundary, never mid-recognition-call.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Pause suspends the session at the next step boundary.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.state.IsPaused = true
}

// Resume lifts a pause.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.state.IsPaused = false
}

// rowSteps returns the recorded index of the first step the given row
// executes, or -1 if the row executes nothing. Row 0 always executes the
// full sequence.
func rowSteps(rec *types.Recording, rowIndex int) int {
	if rowIndex == 0 {
		return 0
	}
	if rec.LoopStartIndex < 0 {
		return -1
	}
	return rec.LoopStartIndex
}

// Play runs the recording against every row of the table. It returns
// ErrAlreadyPlaying if a session is active. Mappings are built once and
// consumed for every row.
func (p *Player) Play(ctx context.Context, rec *types.Recording, table *types.Table, opts Options) (*Result, error) {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return nil, ErrAlreadyPlaying
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.playing = true
	p.cancel = cancel
	// a pause set before the session starts is honored at the first step
	p.state = State{IsPlaying: true, IsPaused: p.paused, TotalRows: len(table.Rows)}
	p.mu.Unlock()

	defer func() {
		cancel()
		p.mu.Lock()
		p.playing = false
		p.cancel = nil
		p.state.IsPlaying = false
		p.mu.Unlock()
	}()

	sessionID := uuid.New().String()[:8]
	logger := log.LoggerFromContext(ctx).With(slog.String("session", sessionID))
	runCtx = log.ContextWithLogger(runCtx, logger)

	labelToColumns := datamap.BuildLabelToColumns(table.Fields())
	stepToColumn := datamap.BuildStepToColumn(rec.Steps, labelToColumns)
	headerIndex := table.HeaderIndex()

	totalSteps := 0
	for rowIdx := range table.Rows {
		if start := rowSteps(rec, rowIdx); start >= 0 {
			totalSteps += len(rec.Steps) - start
		}
	}
	p.mu.Lock()
	p.state.TotalSteps = totalSteps
	p.mu.Unlock()

	if opts.Callbacks.OnStart != nil {
		opts.Callbacks.OnStart()
	}
	logger.Info(fmt.Sprintf("starting playback: %d steps, %d rows, %d total step executions",
		len(rec.Steps), len(table.Rows), totalSteps))

	result := &Result{SessionID: sessionID}
	executed := 0

	for rowIdx, row := range table.Rows {
		if runCtx.Err() != nil {
			result.Stopped = true
			break
		}
		rowLogger := logger.With(slog.Int("row", rowIdx))
		rowRes := RowResult{RowIndex: rowIdx}
		start := rowSteps(rec, rowIdx)
		if start < 0 {
			rowLogger.Debug("no loop start index, skipping row")
			result.Rows = append(result.Rows, rowRes)
			if opts.Callbacks.OnRowComplete != nil {
				opts.Callbacks.OnRowComplete(rowIdx, true)
			}
			continue
		}

		for stepIdx := start; stepIdx < len(rec.Steps); stepIdx++ {
			if err := p.waitWhilePaused(runCtx); err != nil {
				result.Stopped = true
				break
			}
			if runCtx.Err() != nil {
				result.Stopped = true
				break
			}

			p.mu.Lock()
			p.state.CurrentRowIndex = rowIdx
			p.state.CurrentStepIndex = stepIdx
			p.mu.Unlock()

			res := datamap.ResolveStepValue(rec.Steps[stepIdx], stepIdx, row, stepToColumn, table.Headers, headerIndex)
			step := res.Step
			if opts.Callbacks.OnStepStart != nil {
				opts.Callbacks.OnStepStart(step, stepIdx, rowIdx)
			}

			err := p.executeStep(runCtx, rec, step, opts.OnConditionalTimeout)
			rowRes.StepsExecuted++
			executed++
			success := err == nil
			if opts.Callbacks.OnStepComplete != nil {
				opts.Callbacks.OnStepComplete(step, stepIdx, rowIdx, success)
			}
			if opts.Callbacks.OnProgress != nil {
				opts.Callbacks.OnProgress(executed, totalSteps)
			}
			if err != nil {
				rowRes.Failed = true
				rowRes.Err = fmt.Errorf("step %d (%s): %w", stepIdx, step.Label, err)
				rowLogger.Error(fmt.Sprintf("step %d failed, abandoning remaining steps of this row: %v", stepIdx, err))
				break
			}

			if rec.GlobalDelayMS > 0 {
				if err := sleepCtx(runCtx, time.Duration(rec.GlobalDelayMS)*time.Millisecond); err != nil {
					result.Stopped = true
					break
				}
			}
		}

		result.Rows = append(result.Rows, rowRes)
		if opts.Callbacks.OnRowComplete != nil {
			// a row interrupted by a stop is not a clean pass
			opts.Callbacks.OnRowComplete(rowIdx, !rowRes.Failed && !result.Stopped)
		}
		if result.Stopped {
			break
		}
		// later rows assume the setup row's side effects happened
		if rowRes.Failed && rowIdx == 0 {
			err := fmt.Errorf("setup row failed: %w", rowRes.Err)
			p.mu.Lock()
			p.state.Err = err
			p.mu.Unlock()
			if opts.Callbacks.OnComplete != nil {
				opts.Callbacks.OnComplete(false, err)
			}
			return result, err
		}
	}

	// a stop during the final step would otherwise go unnoticed
	if runCtx.Err() != nil {
		result.Stopped = true
	}
	result.Completed = !result.Stopped
	if opts.Callbacks.OnComplete != nil {
		opts.Callbacks.OnComplete(result.Completed, nil)
	}
	logger.Info(fmt.Sprintf("playback done: completed=%t stopped=%t rows=%d", result.Completed, result.Stopped, len(result.Rows)))
	return result, nil
}

// executeStep dispatches one resolved step to the vision or DOM path.
func (p *Player) executeStep(ctx context.Context, rec *types.Recording, step types.Step, policy config.TimeoutPolicy) error {
	if step.DelaySeconds > 0 {
		if err := sleepCtx(ctx, time.Duration(step.DelaySeconds*float64(time.Second))); err != nil {
			return err
		}
	}

	if step.RecordedVia == types.ViaVision || step.Event == types.EventConditionalClick {
		return p.executeVisionStep(ctx, rec, step, policy)
	}

	switch step.Event {
	case types.EventClick:
		return p.dom.ClickSelector(ctx, step.Selector)
	case types.EventInput:
		return p.dom.TypeSelector(ctx, step.Selector, step.Value)
	case types.EventKeypress:
		return p.executor.SendKey(ctx, step.Key, step.Modifiers)
	default:
		return fmt.Errorf("unknown event %q", step.Event)
	}
}

func (p *Player) executeVisionStep(ctx context.Context, rec *types.Recording, step types.Step, policy config.TimeoutPolicy) error {
	logger := log.LoggerFromContext(ctx)

	switch step.Event {
	case types.EventConditionalClick:
		cfg := recording.MergeConditional(step, rec.ConditionalDefaults)
		res, err := p.poller.Run(ctx, cfg)
		if err != nil {
			return err
		}
		if res.TimedOut && res.ButtonsClicked == 0 && policy == config.TimeoutFailRow {
			return fmt.Errorf("conditional click timed out after %v without clicking anything", res.Duration)
		}
		if res.TimedOut {
			logger.Warn(fmt.Sprintf("conditional click timed out after %d clicks, continuing", res.ButtonsClicked))
		}
		return nil
	case types.EventClick:
		target, err := p.locate(ctx, step)
		if err != nil {
			return err
		}
		return p.executor.ClickAt(ctx, target.X, target.Y)
	case types.EventInput:
		target, err := p.locate(ctx, step)
		if err != nil {
			return err
		}
		if err := p.executor.ClickAt(ctx, target.X, target.Y); err != nil {
			return err
		}
		return p.executor.TypeText(ctx, step.Value)
	case types.EventKeypress:
		return p.executor.SendKey(ctx, step.Key, step.Modifiers)
	default:
		return fmt.Errorf("unknown vision event %q", step.Event)
	}
}

// locate finds the on-screen position for a vision step: a fresh
// capture-recognize cycle looking for the step's label first, the recorded
// coordinates as fallback. Labels beat coordinates because the surface may
// have moved since recording.
func (p *Player) locate(ctx context.Context, step types.Step) (*types.ClickTarget, error) {
	logger := log.LoggerFromContext(ctx)
	if step.Label != "" {
		shot, err := p.capturer.Capture(ctx)
		if err == nil {
			results, rerr := p.recognizer.Recognize(ctx, shot)
			if rerr == nil {
				opts := vision.MatchOptions{PartialMatch: true, ConfidenceThreshold: p.confidence}
				if target := vision.FindFirst([]string{step.Label}, results, opts); target != nil {
					return target, nil
				}
			} else {
				logger.Warn(fmt.Sprintf("recognition failed while locating %q: %v", step.Label, rerr))
			}
		} else {
			logger.Warn(fmt.Sprintf("capture failed while locating %q: %v", step.Label, err))
		}
	}
	if step.Coordinates != nil {
		logger.Debug(fmt.Sprintf("falling back to recorded coordinates (%d,%d) for %q",
			step.Coordinates.X, step.Coordinates.Y, step.Label))
		return &types.ClickTarget{Text: step.Label, X: step.Coordinates.X, Y: step.Coordinates.Y}, nil
	}
	return nil, fmt.Errorf("could not locate %q on screen and no recorded coordinates", step.Label)
}

func (p *Player) waitWhilePaused(ctx context.Context) error {
	for {
		p.mu.Lock()
		paused := p.paused
		p.mu.Unlock()
		if !paused {
			return nil
		}
		if err := sleepCtx(ctx, pauseCheckInterval); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
