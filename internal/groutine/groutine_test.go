package groutine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoNamesContext(t *testing.T) {
	got := make(chan string, 1)
	Go(nil, "scan", func(ctx context.Context) {
		got <- Name(ctx)
	})
	assert.Equal(t, "scan", <-got)
	assert.Equal(t, "", Name(context.Background()))
}

func TestGroupWait(t *testing.T) {
	var g Group
	var n atomic.Int32
	for i := 0; i < 8; i++ {
		g.Go(context.Background(), "worker", func(context.Context) {
			n.Add(1)
		})
	}
	g.Wait()
	assert.EqualValues(t, 8, n.Load())
}
