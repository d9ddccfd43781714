package builtin

import (
	"context"
	"time"

	"github.com/randalmurphal/contentflow/pkg/contentflow"
	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
)

// NewConstant returns a producer that always produces value as itemID.
func NewConstant(id, itemID string, value any) contentflow.ContentProducer {
	return contentflow.ProducerFunc{
		Name: id,
		Fn: func(context.Context, event.ID) (contentflow.Content, error) {
			return contentflow.Content{ItemID: itemID, Payload: value}, nil
		},
	}
}

func newConstant(s contentflow.ComponentSpec) (contentflow.ContentProducer, error) {
	item, err := singleItem(s)
	if err != nil {
		return nil, err
	}
	return NewConstant(s.ID, item, s.Settings().Any("value", nil)), nil
}

// NewClock returns a producer of the current time formatted with layout.
func NewClock(id, itemID, layout string, now func() time.Time) contentflow.ContentProducer {
	if now == nil {
		now = time.Now
	}
	return contentflow.ProducerFunc{
		Name: id,
		Fn: func(context.Context, event.ID) (contentflow.Content, error) {
			return contentflow.Content{ItemID: itemID, Payload: now().Format(layout)}, nil
		},
	}
}

func newClock(s contentflow.ComponentSpec) (contentflow.ContentProducer, error) {
	item, err := singleItem(s)
	if err != nil {
		return nil, err
	}
	return NewClock(s.ID, item, s.Settings().String("layout", time.RFC3339), nil), nil
}
