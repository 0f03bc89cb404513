package datadog

import (
	"context"
	"fmt"

	"parleretl/internal/metrics"
)

// Enable constructs a backend tagged job:<job>, installs it as the global
// metrics backend, and returns a shutdown func that flushes and restores the
// nop backend. tagsCSV is extra tags like "env:prod,team:data".
func Enable(ctx context.Context, job, tagsCSV string) (func(), error) {
	b, err := NewBackend(ctx, Options{
		JobName: job,
		Tags:    ParseTagsCSV(tagsCSV),
	})
	if err != nil {
		return nil, fmt.Errorf("datadog metrics init: %w", err)
	}

	metrics.SetBackend(b)
	return func() {
		metrics.SetBackend(nil)
		_ = b.Close()
	}, nil
}
