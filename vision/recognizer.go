// Package vision implements the optical part of the player: turning
// screenshots into located text (recognizer), picking click targets from
// the recognized text (locator) and the bounded wait-until-it-appears loop
// (poller).
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/visionplay/visionplay/config"
	"github.com/visionplay/visionplay/log"
	"github.com/visionplay/visionplay/types"
	"github.com/visionplay/visionplay/utils"
)

// A Recognizer turns a screenshot into an ordered list of text results.
type Recognizer interface {
	Recognize(ctx context.Context, shot *types.Screenshot) ([]types.TextResult, error)
}

// The Engine is the tesseract-backed Recognizer. There is exactly one per
// process; the underlying tesseract session is expensive to create and is
// reused by every Recognize call.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
	cfg    config.VisionConfig
}

var (
	engineMu sync.Mutex
	engine   *Engine
)

// Init initializes the process-wide recognizer. It must be called once
// before GetEngine. Calling it again is a no-op.
func Init(cfg config.VisionConfig) error {
	engineMu.Lock()
	defer engineMu.Unlock()
	if engine != nil {
		return nil
	}
	client := gosseract.NewClient()
	if cfg.Language != "" {
		if err := client.SetLanguage(cfg.Language); err != nil {
			client.Close()
			return &InitializationError{Reason: fmt.Sprintf("failed to set language %s: %v", cfg.Language, err)}
		}
	}
	engine = &Engine{client: client, cfg: cfg}
	return nil
}

// GetEngine returns the process-wide recognizer. Using it before Init is a
// hard failure, not a silent no-op.
func GetEngine() (*Engine, error) {
	engineMu.Lock()
	defer engineMu.Unlock()
	if engine == nil {
		return nil, &InitializationError{Reason: "Init has not been called"}
	}
	return engine, nil
}

// CloseEngine releases the tesseract session. Only meant for process
// shutdown.
func CloseEngine() {
	engineMu.Lock()
	defer engineMu.Unlock()
	if engine != nil {
		engine.client.Close()
		engine = nil
	}
}

// Recognize runs OCR over the given screenshot and returns all non-empty
// results at or above the configured global confidence threshold, in the
// order tesseract emits them.
func (e *Engine) Recognize(ctx context.Context, shot *types.Screenshot) ([]types.TextResult, error) {
	logger := log.LoggerFromContext(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImageFromBytes(shot.Data); err != nil {
		return nil, &RecognitionError{Err: err}
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, &RecognitionError{Err: err}
	}

	results := make([]types.TextResult, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		if b.Confidence < e.cfg.ConfidenceThreshold {
			continue
		}
		results = append(results, types.TextResult{
			Text:       text,
			Confidence: b.Confidence,
			Bounds: types.Bounds{
				X:      b.Box.Min.X,
				Y:      b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
		})
	}
	if e.cfg.DebugMode {
		for _, r := range results {
			logger.Debug(fmt.Sprintf("recognized %q at (%d,%d) with confidence %.1f",
				utils.ShortenString(r.Text, 40), r.Bounds.X, r.Bounds.Y, r.Confidence))
		}
	}
	logger.Debug(fmt.Sprintf("recognized %d results", len(results)), slog.Int("dropped", len(boxes)-len(results)))
	return results, nil
}
