package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"forcecode/internal/notify"
)

// consoleSink prints status lines as they arrive.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *consoleSink) Status(_ context.Context, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

func (c *consoleSink) Finished(_ context.Context, o notify.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.Message != "" {
		fmt.Fprintf(c.out, "%s  %s\n", o.Status, o.Message)
		return
	}
	fmt.Fprintln(c.out, o.Status)
}
