// Package generate is the boundary to the external text generator. Everything
// else in wm depends only on the Generator interface, so tests use stubs.
package generate

import (
	"context"
	"sync/atomic"
)

// Prompt is one generation request.
type Prompt struct {
	System string
	User   string
}

// Generator turns a prompt into text. Implementations return
// GENERATION_UNAVAILABLE or TIMEOUT errors on failure.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, p Prompt) (string, error)

// Generate implements Generator.
func (f Func) Generate(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// Guard tracks whether a generation call is outstanding in this process.
// Entry points check Active and refuse to start while it is set, so a
// generator that re-enters wm in-process cannot recurse.
type Guard struct {
	active atomic.Int32
}

// Active reports whether any wrapped call is in flight.
func (g *Guard) Active() bool {
	return g != nil && g.active.Load() > 0
}

// Wrap returns a Generator that holds the guard for the duration of each call.
func (g *Guard) Wrap(gen Generator) Generator {
	return Func(func(ctx context.Context, p Prompt) (string, error) {
		g.active.Add(1)
		defer g.active.Add(-1)
		return gen.Generate(ctx, p)
	})
}
