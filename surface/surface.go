// Package surface abstracts the visual surface under automation: capturing
// what it currently shows and dispatching clicks, text and key presses to
// it. The player only talks to these interfaces; how a bitmap is produced
// or a click is delivered is up to the implementation.
package surface

import (
	"context"

	"github.com/visionplay/visionplay/types"
)

// A Capturer produces screenshots of the surface.
type Capturer interface {
	Capture(ctx context.Context) (*types.Screenshot, error)
}

// An Executor dispatches low-level interactions to the surface.
type Executor interface {
	ClickAt(ctx context.Context, x, y int) error
	TypeText(ctx context.Context, text string) error
	SendKey(ctx context.Context, key string, modifiers []string) error
}

// A DOMExecutor dispatches interactions addressed by CSS selector instead
// of coordinates. Steps recorded via the DOM path use this.
type DOMExecutor interface {
	ClickSelector(ctx context.Context, selector string) error
	TypeSelector(ctx context.Context, selector, value string) error
}
