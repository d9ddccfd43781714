package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/randalmurphal/contentflow/pkg/contentflow"
)

// NewSum returns a merger that adds numeric payloads. The result is an
// int64 when every payload is an integer, otherwise a float64.
func NewSum(id string) contentflow.OutputMerger {
	return contentflow.MergerFunc{
		Name: id,
		Fn: func(_ context.Context, items []contentflow.ContentItem) (any, error) {
			var (
				ints    int64
				floats  float64
				isFloat bool
			)
			for _, item := range items {
				switch v := item.Payload.(type) {
				case int:
					ints += int64(v)
				case int64:
					ints += v
				case float64:
					floats += v
					isFloat = true
				default:
					return nil, fmt.Errorf("item %s from %s: %T is not a number", item.ItemID, item.ProducerID, item.Payload)
				}
			}
			if isFloat {
				return floats + float64(ints), nil
			}
			return ints, nil
		},
	}
}

func newSum(s contentflow.ComponentSpec) (contentflow.OutputMerger, error) {
	return NewSum(s.ID), nil
}

// NewJoin returns a merger that formats payloads and joins them with sep.
func NewJoin(id, sep string) contentflow.OutputMerger {
	return contentflow.MergerFunc{
		Name: id,
		Fn: func(_ context.Context, items []contentflow.ContentItem) (any, error) {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = fmt.Sprint(item.Payload)
			}
			return strings.Join(parts, sep), nil
		},
	}
}

func newJoin(s contentflow.ComponentSpec) (contentflow.OutputMerger, error) {
	return NewJoin(s.ID, s.Settings().String("separator", ", ")), nil
}
