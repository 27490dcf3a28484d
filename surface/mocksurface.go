package surface

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/visionplay/visionplay/types"
)

// A MockSurface serves pre-scripted recognition frames and records every
// dispatched interaction. It implements Capturer, Executor and DOMExecutor
// and doubles as a recognizer: Capture tags each screenshot with the frame
// it belongs to and Recognize returns that frame's scripted results. The
// last frame is repeated once the script runs out.
type MockSurface struct {
	mu sync.Mutex

	// Frames are returned by successive Capture/Recognize cycles.
	Frames [][]types.TextResult
	// FailClicks makes every ClickAt call fail.
	FailClicks bool
	// FailSelectors contains selectors whose dispatch should fail.
	FailSelectors map[string]bool

	frameIdx int
	Clicks   []types.Coordinates
	Typed    []string
	Keys     []string
	Selected []string
}

func NewMockSurface(frames ...[]types.TextResult) *MockSurface {
	return &MockSurface{Frames: frames}
}

func (m *MockSurface) Capture(ctx context.Context) (*types.Screenshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &types.Screenshot{Data: []byte{byte(m.frameIdx)}, Width: 1920, Height: 1080, Timestamp: time.Now()}, nil
}

// Recognize pops the next scripted frame.
func (m *MockSurface) Recognize(ctx context.Context, shot *types.Screenshot) ([]types.TextResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Frames) == 0 {
		return nil, nil
	}
	frame := m.Frames[m.frameIdx]
	if m.frameIdx < len(m.Frames)-1 {
		m.frameIdx++
	}
	return frame, nil
}

func (m *MockSurface) ClickAt(ctx context.Context, x, y int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailClicks {
		return errors.New("click failed")
	}
	m.Clicks = append(m.Clicks, types.Coordinates{X: x, Y: y})
	return nil
}

func (m *MockSurface) TypeText(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Typed = append(m.Typed, text)
	return nil
}

func (m *MockSurface) SendKey(ctx context.Context, key string, modifiers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Keys = append(m.Keys, key)
	return nil
}

func (m *MockSurface) ClickSelector(ctx context.Context, selector string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSelectors[selector] {
		return fmt.Errorf("selector %q does not match any element on the current page", selector)
	}
	m.Selected = append(m.Selected, selector)
	return nil
}

func (m *MockSurface) TypeSelector(ctx context.Context, selector, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSelectors[selector] {
		return fmt.Errorf("selector %q does not match any element on the current page", selector)
	}
	m.Selected = append(m.Selected, selector)
	m.Typed = append(m.Typed, value)
	return nil
}
