// Package parallel runs independent per-atom evaluations concurrently.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
//
// A single atom is already a sizeable unit of work, so chunks may be as
// small as one item.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1,
	}
}

// Sequential returns a config that runs everything on the calling goroutine.
func Sequential() Config {
	return Config{NumWorkers: 1, MinChunkSize: 1}
}

func (c Config) chunk(n int) int {
	if !c.Enabled || c.NumWorkers <= 1 {
		return n
	}
	return max((n+c.NumWorkers-1)/c.NumWorkers, c.MinChunkSize, 1)
}

// Workers returns how many workers For uses for n items. Callers size
// per-worker state with it.
func Workers(n int, cfg Config) int {
	if n <= 0 {
		return 1
	}
	chunk := cfg.chunk(n)
	return (n + chunk - 1) / chunk
}

// For calls f(worker, i) for i in [0, n). Items are split into contiguous
// chunks, one goroutine per chunk; worker identifies the chunk so f can use
// per-worker scratch without locking.
//
// The first error cancels the remaining items and is returned. Cancellation
// of ctx is checked between items.
func For(ctx context.Context, n int, cfg Config, f func(worker, i int) error) error {
	chunk := cfg.chunk(n)
	if n <= chunk {
		// Sequential fallback.
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := f(0, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for w, start := 0, 0; start < n; w, start = w+1, start+chunk {
		w, start := w, start // per-iteration copies (pre-Go 1.22 loopvar semantics)
		end := min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := f(w, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
