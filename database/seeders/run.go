// Package seeders fills a database with demo data.
//
//	func init() {
//	    seeders.Register("regions", seedRegions)
//	}
//
// Run with: darcho seed
package seeders

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// SeederFunc inserts rows through the services, so it sees the same rules
// the API does.
type SeederFunc func(ctx context.Context) error

type seederEntry struct {
	name string
	fn   SeederFunc
}

var (
	mu      sync.Mutex
	entries []seederEntry
)

// Register adds a seeder. Seeders run in registration order.
func Register(name string, fn SeederFunc) {
	mu.Lock()
	defer mu.Unlock()
	entries = append(entries, seederEntry{name: name, fn: fn})
}

// RunAll executes every registered seeder, stopping at the first error.
// Progress is written to out.
func RunAll(ctx context.Context, out io.Writer) error {
	mu.Lock()
	current := append([]seederEntry(nil), entries...)
	mu.Unlock()

	if len(current) == 0 {
		fmt.Fprintln(out, "  (no seeders registered)")
		return nil
	}

	for _, e := range current {
		fmt.Fprintf(out, "  • %s … ", e.name)
		if err := e.fn(ctx); err != nil {
			fmt.Fprintln(out, "FAILED")
			return fmt.Errorf("seeder %q: %w", e.name, err)
		}
		fmt.Fprintln(out, "done")
	}
	return nil
}
