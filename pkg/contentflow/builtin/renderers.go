package builtin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/randalmurphal/contentflow/pkg/contentflow"
)

// Writer renders one line per cycle: "<renderer> <event>: <merger>=<payload> ...".
type Writer struct {
	id string

	mu  sync.Mutex
	out io.Writer
}

// NewWriter creates a Writer. Concurrent renders are serialized.
func NewWriter(id string, out io.Writer) *Writer {
	return &Writer{id: id, out: out}
}

// ID implements contentflow.OutputRenderer.
func (w *Writer) ID() string { return w.id }

// Render implements contentflow.OutputRenderer.
func (w *Writer) Render(_ context.Context, items []contentflow.MergedItem) error {
	if len(items) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s:", w.id, items[0].EventID)
	for _, item := range items {
		fmt.Fprintf(&b, " %s=%v", item.MergerID, item.Payload)
	}
	b.WriteByte('\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := io.WriteString(w.out, b.String())
	return err
}

// NewLog returns a renderer that logs each merged item.
func NewLog(id string, logger *slog.Logger) contentflow.OutputRenderer {
	return contentflow.RendererFunc{
		Name: id,
		Fn: func(ctx context.Context, items []contentflow.MergedItem) error {
			for _, item := range items {
				logger.InfoContext(ctx, "rendered",
					slog.String("renderer_id", id),
					slog.String("merger_id", item.MergerID),
					slog.String("event_id", string(item.EventID)),
					slog.String("cycle_id", item.CycleID),
					slog.Any("payload", item.Payload))
			}
			return nil
		},
	}
}
