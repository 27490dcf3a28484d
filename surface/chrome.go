package surface

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"github.com/visionplay/visionplay/config"
	"github.com/visionplay/visionplay/log"
	"github.com/visionplay/visionplay/types"
)

// The ChromeSurface drives a headless chrome instance via chromedp. It
// implements Capturer, Executor and DOMExecutor against one shared browser
// context so that all interactions land on the same page.
type ChromeSurface struct {
	*config.BrowserConfig
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	debugDir      string
	quality       int
}

// NewChromeSurface starts a browser and navigates to the configured start
// url, if any. quality is the screenshot quality passed on to chromedp
// (100 produces png, anything below jpeg).
func NewChromeSurface(bc *config.BrowserConfig, vc *config.VisionConfig) (*ChromeSurface, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(bc.WindowWidth, bc.WindowHeight), // init with a desktop view (sometimes pages look different on mobile, eg buttons are missing)
	)
	if bc.UserAgent != "" {
		opts = append(opts,
			chromedp.UserAgent(bc.UserAgent))
	}
	allocContext, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocContext)
	s := &ChromeSurface{
		BrowserConfig: bc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		debugDir:      vc.DebugDir,
		quality:       vc.ScreenshotQuality,
	}
	if bc.StartURL != "" {
		if err := chromedp.Run(browserCtx, chromedp.Navigate(bc.StartURL)); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to navigate to start url %s: %w", bc.StartURL, err)
		}
	}
	return s, nil
}

func (s *ChromeSurface) Close() {
	s.cancelBrowser()
	s.cancelAlloc()
}

// run executes the given chromedp actions on the shared browser context but
// honors cancellation of the caller's context.
func (s *ChromeSurface) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(s.browserCtx, actions...)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (s *ChromeSurface) Capture(ctx context.Context) (*types.Screenshot, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("surface", "chrome"))
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, s.quality)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	shot := &types.Screenshot{
		Data:      buf,
		Timestamp: time.Now(),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(buf)); err == nil {
		shot.Width = cfg.Width
		shot.Height = cfg.Height
	}
	if config.Debug && s.debugDir != "" {
		if err := os.MkdirAll(s.debugDir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create debug directory: %v", err)
		}
		ext := "png"
		if s.quality < 100 {
			ext = "jpg"
		}
		filename := path.Join(s.debugDir, fmt.Sprintf("%s.%s", uuid.New().String()[:8], ext))
		logger.Debug(fmt.Sprintf("writing screenshot to file %s", filename))
		if err := os.WriteFile(filename, buf, 0644); err != nil {
			logger.Warn(fmt.Sprintf("failed to write debug screenshot: %v", err))
		}
	}
	return shot, nil
}

func (s *ChromeSurface) ClickAt(ctx context.Context, x, y int) error {
	logger := log.LoggerFromContext(ctx).With(slog.String("surface", "chrome"))
	logger.Debug(fmt.Sprintf("clicking at (%d,%d)", x, y))
	if err := s.run(ctx, chromedp.MouseClickXY(float64(x), float64(y))); err != nil {
		return fmt.Errorf("failed to click at (%d,%d): %w", x, y, err)
	}
	return nil
}

func (s *ChromeSurface) TypeText(ctx context.Context, text string) error {
	return s.run(ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		return input.InsertText(text).Do(cctx)
	}))
}

// namedKeys maps the key names the recorder emits to the chromedp kb
// constants.
var namedKeys = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
}

func (s *ChromeSurface) SendKey(ctx context.Context, key string, modifiers []string) error {
	keys := key
	if k, ok := namedKeys[key]; ok {
		keys = k
	}
	var mods input.Modifier
	for _, m := range modifiers {
		switch strings.ToLower(m) {
		case "alt":
			mods |= input.ModifierAlt
		case "ctrl", "control":
			mods |= input.ModifierCtrl
		case "shift":
			mods |= input.ModifierShift
		case "meta", "command":
			mods |= input.ModifierCommand
		}
	}
	if err := s.run(ctx, chromedp.KeyEvent(keys, chromedp.KeyModifiers(mods))); err != nil {
		return fmt.Errorf("failed to send key %s: %w", key, err)
	}
	return nil
}

func (s *ChromeSurface) ClickSelector(ctx context.Context, selector string) error {
	if err := s.checkSelector(ctx, selector); err != nil {
		return err
	}
	if err := s.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

func (s *ChromeSurface) TypeSelector(ctx context.Context, selector, value string) error {
	if err := s.checkSelector(ctx, selector); err != nil {
		return err
	}
	if err := s.run(ctx,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to type into %s: %w", selector, err)
	}
	return nil
}

// checkSelector verifies that the recorded selector still matches something
// on the current page. Without this, a selector that went stale surfaces as
// an opaque chromedp timeout instead of an actionable error.
func (s *ChromeSurface) checkSelector(ctx context.Context, selector string) error {
	var body string
	err := s.run(ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		node, err := dom.GetDocument().Do(cctx)
		if err != nil {
			return err
		}
		body, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(cctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("failed to fetch page content: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse page content: %w", err)
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("selector %q does not match any element on the current page", selector)
	}
	return nil
}
