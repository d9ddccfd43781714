package builtin_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/contentflow/pkg/contentflow"
	"github.com/randalmurphal/contentflow/pkg/contentflow/activator"
	"github.com/randalmurphal/contentflow/pkg/contentflow/builtin"
	"github.com/randalmurphal/contentflow/pkg/contentflow/registry"
)

func items(payloads ...any) []contentflow.ContentItem {
	out := make([]contentflow.ContentItem, len(payloads))
	for i, p := range payloads {
		out[i] = contentflow.ContentItem{ProducerID: "p", ItemID: "v", Payload: p}
	}
	return out
}

func TestSum(t *testing.T) {
	tests := []struct {
		name    string
		in      []contentflow.ContentItem
		want    any
		wantErr bool
	}{
		{"ints", items(1, 2, int64(3)), int64(6), false},
		{"mixed", items(1, 0.5), 1.5, false},
		{"empty", nil, int64(0), false},
		{"not a number", items(1, "two"), nil, true},
	}

	sum := builtin.NewSum("sum")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sum.Merge(context.Background(), tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoin(t *testing.T) {
	got, err := builtin.NewJoin("j", " | ").Merge(context.Background(), items("sunny", 21))
	require.NoError(t, err)
	assert.Equal(t, "sunny | 21", got)
}

func TestClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	p := builtin.NewClock("clock", "clock.now", "15:04", func() time.Time { return fixed })

	content, err := p.Produce(context.Background(), "tick")
	require.NoError(t, err)
	assert.Equal(t, contentflow.Content{ItemID: "clock.now", Payload: "09:30"}, content)
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := builtin.NewWriter("screen", &buf)

	require.NoError(t, w.Render(context.Background(), []contentflow.MergedItem{
		{MergerID: "a", EventID: "tick", Payload: 1},
		{MergerID: "b", EventID: "tick", Payload: "x"},
	}))
	require.NoError(t, w.Render(context.Background(), nil))

	assert.Equal(t, "screen tick: a=1 b=x\n", buf.String())
}

func TestLogRenderer(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := builtin.NewLog("log", logger)
	require.NoError(t, r.Render(context.Background(), []contentflow.MergedItem{
		{MergerID: "m", EventID: "tick", CycleID: "c1", Payload: 3},
	}))

	out := buf.String()
	assert.Contains(t, out, `"renderer_id":"log"`)
	assert.Contains(t, out, `"merger_id":"m"`)
	assert.Contains(t, out, `"payload":3`)
}

func TestRegister_Duplicate(t *testing.T) {
	cat := builtin.Catalog(builtin.Env{})
	assert.ErrorIs(t, builtin.Register(cat, builtin.Env{}), registry.ErrDuplicate)
	assert.Equal(t, []string{"clock", "constant"}, cat.Producers.Names())
	assert.Equal(t, []string{"join", "sum"}, cat.Mergers.Names())
	assert.Equal(t, []string{"log", "writer"}, cat.Renderers.Names())
	assert.Equal(t, []string{"ticker"}, cat.Activators.Names())
}

func TestFactoryErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     string
	}{
		{"ticker without event", "activators:\n      - {id: t, kind: ticker}", "want exactly one event"},
		{"ticker bad interval", "activators:\n      - {id: t, kind: ticker, events: [tick], config: {interval: -1s}}", "interval must be positive"},
		{"ticker negative limit", "activators:\n      - {id: t, kind: ticker, events: [tick], config: {limit: -2}}", "negative limit"},
		{"ticker zero retry attempts", "activators:\n      - {id: t, kind: ticker, events: [tick], config: {retry: {attempts: 0}}}", "retry.attempts must be at least 1"},
		{"ticker bad retry backoff", "activators:\n      - {id: t, kind: ticker, events: [tick], config: {retry: {backoff: 0s}}}", "retry.backoff must be positive"},
		{"constant two items", "producers:\n      - {id: p, kind: constant, events: [tick], items: [a, b]}", "want exactly one item"},
		{"clock no items", "producers:\n      - {id: p, kind: clock, events: [tick]}", "want exactly one item"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := contentflow.ParseManifest([]byte("addons:\n  - name: a\n    " + tt.manifest + "\n"))
			require.NoError(t, err)

			c := contentflow.New()
			defer c.Close(context.Background())

			err = c.Apply(context.Background(), m, builtin.Catalog(builtin.Env{}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTickerRetryConfig(t *testing.T) {
	factory, err := builtin.Catalog(builtin.Env{}).Activators.Get("ticker")
	require.NoError(t, err)

	a, err := factory(contentflow.ComponentSpec{
		ID:     "clock",
		Kind:   "ticker",
		Events: []string{"tick"},
		Config: map[string]any{
			"interval": "5ms",
			"retry":    map[string]any{"attempts": 7, "backoff": "2ms"},
		},
	})
	require.NoError(t, err)

	ticker, ok := a.(*activator.Ticker)
	require.True(t, ok)
	require.NotNil(t, ticker.Retry)
	assert.Equal(t, activator.RetryPolicy{
		Attempts:   7,
		Backoff:    2 * time.Millisecond,
		MaxBackoff: activator.DefaultRetryPolicy.MaxBackoff,
	}, *ticker.Retry)

	a, err = factory(contentflow.ComponentSpec{ID: "plain", Kind: "ticker", Events: []string{"tick"}})
	require.NoError(t, err)
	assert.Nil(t, a.(*activator.Ticker).Retry)
}

func TestManifestPipeline_TickerRetry(t *testing.T) {
	var buf bytes.Buffer
	m, err := contentflow.ParseManifest([]byte(`
addons:
  - name: slow
    activators:
      - {id: clock, kind: ticker, events: [tick], config: {interval: 1ms, limit: 3, retry: {attempts: 1000, backoff: 1ms, max_backoff: 2ms}}}
    producers:
      - {id: load, kind: constant, events: [tick], items: [load], config: {value: 4}}
    mergers:
      - {id: total, kind: sum, inputs: [load]}
    renderers:
      - {id: screen, kind: writer, inputs: [total]}
`))
	require.NoError(t, err)

	c := contentflow.New()
	require.NoError(t, c.Apply(context.Background(), m, builtin.Catalog(builtin.Env{Out: &buf})))

	require.Eventually(t, func() bool {
		s := c.Snapshot()
		return len(s.Activators) == 1 && !s.Activators[0].Running
	}, 5*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
}

func TestManifestPipeline(t *testing.T) {
	var buf bytes.Buffer
	cat := builtin.Catalog(builtin.Env{Out: &buf})

	m, err := contentflow.ParseManifest([]byte(`
addons:
  - name: dashboard
    activators:
      - {id: clock, kind: ticker, events: [tick], config: {interval: 5ms, limit: 2}}
    producers:
      - {id: temp, kind: constant, events: [tick], items: [temp.c], config: {value: 21}}
      - {id: wind, kind: constant, events: [tick], items: [wind.kph], config: {value: 9}}
      - {id: sky, kind: constant, events: [tick], items: [sky], config: {value: clear}}
    mergers:
      - {id: total, kind: sum, inputs: [temp.c, wind.kph]}
      - {id: text, kind: join, inputs: [sky, temp.c], config: {separator: /}}
    renderers:
      - {id: screen, kind: writer, inputs: [total, text]}
`))
	require.NoError(t, err)

	c := contentflow.New()
	require.NoError(t, c.Apply(context.Background(), m, cat))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Eventually(t, func() bool {
		s := c.Snapshot()
		return len(s.Activators) == 1 && !s.Activators[0].Running
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, c.Close(ctx))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Equal(t, "screen tick: text=clear/21 total=30", line)
	}
}
