package universal

import (
	"context"
	"encoding/json"
	"fmt"
)

// Operation describes a single data request issued by a component.
type Operation struct {
	Name      string
	Query     string
	Variables map[string]any
}

// Key returns the cache key for op: the operation name followed by its
// variables in canonical JSON form.
func (op Operation) Key() string {
	if len(op.Variables) == 0 {
		return op.Name
	}
	encoded, err := json.Marshal(op.Variables)
	if err != nil {
		return fmt.Sprintf("%s(%v)", op.Name, op.Variables)
	}
	return fmt.Sprintf("%s(%s)", op.Name, encoded)
}

// Result is what a Link returns for an operation.
type Result struct {
	Data   any      `json:"data,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// Link sends an operation to wherever data comes from.
type Link interface {
	Request(ctx context.Context, op Operation) (Result, error)
}

// LinkFunc adapts a function to Link.
type LinkFunc func(ctx context.Context, op Operation) (Result, error)

// Request implements Link.
func (f LinkFunc) Request(ctx context.Context, op Operation) (Result, error) {
	if f == nil {
		return Result{}, nil
	}
	return f(ctx, op)
}

type noopLink struct{}

func (*noopLink) Request(context.Context, Operation) (Result, error) {
	return Result{}, nil
}

// NewDefaultLink returns a link that answers every operation with an empty
// result. It lets a tree render without any transport configured.
func NewDefaultLink() Link {
	return &noopLink{}
}
