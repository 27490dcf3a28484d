package vision

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/visionplay/visionplay/log"
	"github.com/visionplay/visionplay/surface"
	"github.com/visionplay/visionplay/types"
)

const (
	// DefaultTimeoutSeconds and DefaultPollIntervalMS are substituted for
	// malformed config values. They must never be propagated as-is.
	DefaultTimeoutSeconds = 420
	DefaultPollIntervalMS = 500

	// maxIterations is the hard ceiling on poll ticks. Together with the
	// sanitized interval it bounds every poll session even if the timeout
	// arithmetic goes wrong.
	maxIterations = 10000
)

// A Poller repeatedly captures, recognizes and clicks until its search
// terms stop appearing, the rolling timeout expires, the iteration cap is
// hit or it is cancelled. At most one poll session is active per Poller;
// starting a new one cancels the previous one first.
type Poller struct {
	capturer         surface.Capturer
	recognizer       Recognizer
	executor         surface.Executor
	globalConfidence float64

	mu           sync.Mutex
	cancelActive context.CancelFunc
	session      uint64
}

func NewPoller(c surface.Capturer, r Recognizer, e surface.Executor, globalConfidence float64) *Poller {
	return &Poller{
		capturer:         c,
		recognizer:       r,
		executor:         e,
		globalConfidence: globalConfidence,
	}
}

// Cancel stops the active poll session, if any. The session observes the
// cancellation within one poll tick and reports timedOut=false.
func (p *Poller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelActive != nil {
		p.cancelActive()
	}
}

// sanitizeDuration guards against NaN, infinities and non-positive values,
// all of which have been observed to turn timestamp arithmetic into an
// infinite loop.
func sanitizeDuration(value float64, def time.Duration, unit time.Duration) time.Duration {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return def
	}
	return time.Duration(value * float64(unit))
}

// Run executes one poll session. The returned result is the terminal
// summary; a non-nil error is only returned when a click primitive fails,
// which is fatal to the owning step. Timeouts and the iteration cap are
// reported via the result, not as errors.
func (p *Poller) Run(ctx context.Context, cfg types.ConditionalConfig) (*types.ConditionalClickResult, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("component", "poller"))

	timeout := sanitizeDuration(cfg.TimeoutSeconds, DefaultTimeoutSeconds*time.Second, time.Second)
	interval := sanitizeDuration(cfg.PollIntervalMS, DefaultPollIntervalMS*time.Millisecond, time.Millisecond)
	confidence := p.globalConfidence
	if cfg.ConfidenceThreshold > 0 {
		// per-call override wins over the global threshold
		confidence = cfg.ConfidenceThreshold
	}
	opts := MatchOptions{PartialMatch: true, ConfidenceThreshold: confidence}

	// a new poll session cancels any session still active
	p.mu.Lock()
	if p.cancelActive != nil {
		p.cancelActive()
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.session++
	session := p.session
	p.cancelActive = cancel
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		if p.session == session {
			p.cancelActive = nil
		}
		p.mu.Unlock()
	}()

	start := time.Now()
	lastClick := start
	result := &types.ConditionalClickResult{ClickedTexts: []string{}}
	logger.Debug(fmt.Sprintf("starting poll session: terms=%v timeout=%v interval=%v", cfg.SearchTerms, timeout, interval))

	for iteration := 0; ; iteration++ {
		// exit conditions are checked before any work, in this order
		if iteration >= maxIterations {
			logger.Warn(fmt.Sprintf("poll session hit the hard iteration cap of %d, stopping", maxIterations))
			result.TimedOut = true
			break
		}
		if runCtx.Err() != nil {
			logger.Debug("poll session cancelled")
			result.TimedOut = false
			break
		}
		if time.Since(lastClick) >= timeout {
			logger.Debug(fmt.Sprintf("poll session timed out after %v without a successful click", timeout))
			result.TimedOut = true
			break
		}

		target, done, err := p.tick(runCtx, cfg, opts, logger)
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		if done {
			break
		}
		if target != nil {
			result.ButtonsClicked++
			result.ClickedTexts = append(result.ClickedTexts, target.Text)
			lastClick = time.Now()
		}

		select {
		case <-runCtx.Done():
		case <-time.After(interval):
		}
	}

	result.Duration = time.Since(start)
	logger.Debug(fmt.Sprintf("poll session done: clicked=%d timedOut=%t duration=%v",
		result.ButtonsClicked, result.TimedOut, result.Duration))
	return result, nil
}

// tick performs one capture-recognize-locate-click cycle. It returns the
// clicked target (nil if nothing was found), whether the session should
// stop because the success text appeared, and a fatal click error.
func (p *Poller) tick(ctx context.Context, cfg types.ConditionalConfig, opts MatchOptions, logger *slog.Logger) (*types.ClickTarget, bool, error) {
	shot, err := p.capturer.Capture(ctx)
	if err != nil {
		// recoverable, same as a recognition failure
		logger.Warn(fmt.Sprintf("capture failed, treating as no matches this tick: %v", err))
		return nil, false, nil
	}
	results, err := p.recognizer.Recognize(ctx, shot)
	if err != nil {
		logger.Warn(fmt.Sprintf("recognition failed, treating as no matches this tick: %v", err))
		return nil, false, nil
	}

	if cfg.SuccessText != "" {
		if hit := FindFirst([]string{cfg.SuccessText}, results, opts); hit != nil {
			logger.Debug(fmt.Sprintf("success text %q appeared, stopping poll session", cfg.SuccessText))
			return nil, true, nil
		}
	}

	target := FindFirst(cfg.SearchTerms, results, opts)
	if target == nil {
		return nil, false, nil
	}
	if err := p.executor.ClickAt(ctx, target.X, target.Y); err != nil {
		return nil, false, fmt.Errorf("failed to click %q at (%d,%d): %w", target.Text, target.X, target.Y, err)
	}
	logger.Info(fmt.Sprintf("clicked %q at (%d,%d)", target.Text, target.X, target.Y))
	return target, false, nil
}
