package builtin

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randalmurphal/contentflow/pkg/contentflow"
)

// Env holds what built-in renderers write to.
type Env struct {
	// Out receives writer renderer lines.
	// Default: os.Stdout
	Out io.Writer

	// Logger is used by the log renderer.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Register adds every built-in kind to cat.
func Register(cat *contentflow.Catalog, env Env) error {
	if env.Out == nil {
		env.Out = os.Stdout
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}

	return errors.Join(
		cat.Activators.Register("ticker", newTicker),
		cat.Producers.Register("constant", newConstant),
		cat.Producers.Register("clock", newClock),
		cat.Mergers.Register("sum", newSum),
		cat.Mergers.Register("join", newJoin),
		cat.Renderers.Register("writer", func(s contentflow.ComponentSpec) (contentflow.OutputRenderer, error) {
			return NewWriter(s.ID, env.Out), nil
		}),
		cat.Renderers.Register("log", func(s contentflow.ComponentSpec) (contentflow.OutputRenderer, error) {
			return NewLog(s.ID, env.Logger), nil
		}),
	)
}

// Catalog returns a new catalog holding the built-in kinds.
func Catalog(env Env) *contentflow.Catalog {
	cat := contentflow.NewCatalog()
	if err := Register(cat, env); err != nil {
		panic(fmt.Sprintf("builtin: %v", err))
	}
	return cat
}

// singleItem returns the one item a built-in producer declares.
func singleItem(s contentflow.ComponentSpec) (string, error) {
	if len(s.Items) != 1 {
		return "", fmt.Errorf("%s %s: want exactly one item, got %d", s.Kind, s.ID, len(s.Items))
	}
	return s.Items[0], nil
}
