// Package groutine starts named goroutines. Names show up as pprof labels so
// a goroutine dump of a running relay says which loop is which.
package groutine

import (
	"context"
	"runtime/pprof"
	"sync"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn on a goroutine labelled name.
// If parentCtx is nil, context.Background() is used.
//
//	groutine.Go(ctx, "scan", func(ctx context.Context) {
//	    // work
//	})
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// Name returns the goroutine name stored by Go, or "".
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(goroutineNameKey).(string)
	return s
}

// Group is a set of named goroutines that can be waited on together.
type Group struct {
	wg sync.WaitGroup
}

// Go starts fn like the package level Go and tracks it.
func (g *Group) Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	Go(parentCtx, name, func(ctx context.Context) {
		defer g.wg.Done()
		fn(ctx)
	})
}

// Wait blocks until every tracked goroutine returned.
func (g *Group) Wait() {
	g.wg.Wait()
}
