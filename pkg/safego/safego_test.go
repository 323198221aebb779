package safego

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	Go(func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}
	// Reaching here at all proves the panic did not crash the process.
}

func TestGoRunsFunction(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	Go(func() { ch <- 42 })

	select {
	case v := <-ch:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}
}
