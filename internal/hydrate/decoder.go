// Package hydrate decodes the JSON payload a server pass embedded in its
// output back into typed values for the client pass.
package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Context identifies the payload being decoded in errors and hooks.
type Context struct {
	PassID string
	Source string
}

// PreHook may rewrite the raw JSON object before decoding.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook may adjust or validate the decoded value.
type PostHook[T any] func(Context, *T) error

// DecoderOption configures a Decoder.
type DecoderOption[T any] func(*Decoder[T])

// Decoder turns embedded payload bytes into T.
type Decoder[T any] struct {
	preHooks  []PreHook
	postHooks []PostHook[T]
	useNumber bool
	strict    bool
}

// WithPreHook runs hook on the raw object before decoding.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.preHooks = append(d.preHooks, hook)
		}
	}
}

// WithPostHook runs hook on the decoded value.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.postHooks = append(d.postHooks, hook)
		}
	}
}

// WithUseNumber keeps JSON numbers as json.Number.
func WithUseNumber[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.useNumber = true
	}
}

// WithDisallowUnknownFields rejects fields T does not declare.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.strict = true
	}
}

// NewDecoder builds a Decoder.
func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode parses raw as a JSON object and decodes it into T, applying hooks.
// Empty input is an error; callers treat a missing payload separately.
func (d *Decoder[T]) Decode(ctx Context, raw []byte) (T, error) {
	var zero T

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return zero, fmt.Errorf("hydrate: empty payload for pass %q", ctx.PassID)
	}

	body := raw
	if len(d.preHooks) > 0 {
		var object map[string]any
		if err := d.newJSONDecoder(raw, false).Decode(&object); err != nil {
			return zero, fmt.Errorf("hydrate: parse payload for pass %q: %w", ctx.PassID, err)
		}
		for _, hook := range d.preHooks {
			next, err := hook(ctx, object)
			if err != nil {
				return zero, fmt.Errorf("hydrate: pre-hook for pass %q failed: %w", ctx.PassID, err)
			}
			if next != nil {
				object = next
			}
		}
		encoded, err := json.Marshal(object)
		if err != nil {
			return zero, fmt.Errorf("hydrate: re-encode payload for pass %q: %w", ctx.PassID, err)
		}
		body = encoded
	}

	var result T
	if err := d.newJSONDecoder(body, d.strict).Decode(&result); err != nil {
		return zero, fmt.Errorf("hydrate: decode payload for pass %q: %w", ctx.PassID, err)
	}

	for _, hook := range d.postHooks {
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for pass %q failed: %w", ctx.PassID, err)
		}
	}
	return result, nil
}

func (d *Decoder[T]) newJSONDecoder(raw []byte, strict bool) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if d.useNumber {
		dec.UseNumber()
	}
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec
}
