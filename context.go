package universal

import (
	"context"
	"errors"
)

// ErrNoClient is returned when no provider exposed a client to the context.
var ErrNoClient = errors.New("universal: no client in context")

type clientKey struct{}

// WithClient exposes client to everything rendered with the returned context.
func WithClient(ctx context.Context, client *Client) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// ClientFromContext returns the client exposed by the nearest provider.
func ClientFromContext(ctx context.Context) (*Client, bool) {
	if ctx == nil {
		return nil, false
	}
	client, ok := ctx.Value(clientKey{}).(*Client)
	return client, ok && client != nil
}

// UseClient is ClientFromContext for callers that want an error.
func UseClient(ctx context.Context) (*Client, error) {
	client, ok := ClientFromContext(ctx)
	if !ok {
		return nil, ErrNoClient
	}
	return client, nil
}

// Tracker runs fetches started during a pass so the driver can wait for all of
// them to settle.
type Tracker interface {
	Go(fn func() error)
}

type trackerKey struct{}

// WithTracker attaches tracker to ctx.
func WithTracker(ctx context.Context, tracker Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, tracker)
}

// TrackerFromContext returns the tracker of the current pass, if any.
func TrackerFromContext(ctx context.Context) (Tracker, bool) {
	if ctx == nil {
		return nil, false
	}
	tracker, ok := ctx.Value(trackerKey{}).(Tracker)
	return tracker, ok && tracker != nil
}
