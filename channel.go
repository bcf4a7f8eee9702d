package universal

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-universal/layering"
)

// DefaultCacheKey is the channel key used when a provider does not set one.
const DefaultCacheKey = "universal:cache"

// Payload maps channel keys to cache snapshots. It is what travels from the
// server pass to the client pass.
type Payload map[string]Snapshot

var (
	// ErrChannelClosed is returned by every mutating call after Close.
	ErrChannelClosed = errors.New("universal: channel closed")
	// ErrKeyConflict reports a second, different cache registered under a key.
	ErrKeyConflict = errors.New("universal: channel key already bound to another cache")
	// ErrWrongEnvironment reports an operation invoked on the wrong side of the
	// render boundary.
	ErrWrongEnvironment = errors.New("universal: operation not valid for channel environment")
)

// Channel is the serialization channel for one render pass. A server channel
// collects caches so the driver can extract them once data settled; a client
// channel is seeded with the payload delivered by the server and hands each
// snapshot out at most once. A channel never outlives its pass: Close drops
// everything it holds.
type Channel struct {
	mu     sync.Mutex
	id     string
	env    RenderEnvironment
	caches map[string]Cache
	seeded Payload
	taken  map[string]struct{}
	closed bool
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithChannelID overrides the generated pass identifier.
func WithChannelID(id string) ChannelOption {
	return func(c *Channel) {
		if id != "" {
			c.id = id
		}
	}
}

// NewChannel begins a pass for env.
func NewChannel(env RenderEnvironment, opts ...ChannelOption) *Channel {
	c := &Channel{
		id:     uuid.NewString(),
		env:    env,
		caches: map[string]Cache{},
		seeded: Payload{},
		taken:  map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// ID returns the pass identifier.
func (c *Channel) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

// Environment returns the side of the boundary the channel was opened for.
func (c *Channel) Environment() RenderEnvironment {
	if c == nil {
		return EnvironmentClient
	}
	return c.env
}

// Register binds cache to key for this pass. Registering the same cache again
// is a no-op.
func (c *Channel) Register(key string, cache Cache) error {
	if cache == nil {
		return ErrCacheRequired
	}
	if key == "" {
		key = DefaultCacheKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if existing, ok := c.caches[key]; ok {
		if sameCache(existing, cache) {
			return nil
		}
		return fmt.Errorf("%w: %q", ErrKeyConflict, key)
	}
	c.caches[key] = cache
	return nil
}

// sameCache reports whether a and b are the same cache instance. Map and
// slice backed caches are not comparable with ==, so they are matched on
// their backing storage instead.
func sameCache(a, b Cache) (same bool) {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if !va.Type().Comparable() {
		return false
	}
	// Structs holding interface fields can still panic on ==.
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// Registered returns the registered keys in sorted order.
func (c *Channel) Registered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.caches))
	for key := range c.caches {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Extract snapshots every registered cache. The driver calls it after all
// fetches of the pass settled. It is only valid on a server channel.
func (c *Channel) Extract() (Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}
	if c.env != EnvironmentServer {
		return nil, fmt.Errorf("%w: extract on %s channel", ErrWrongEnvironment, c.env)
	}
	payload := make(Payload, len(c.caches))
	for key, cache := range c.caches {
		payload[key] = cache.Extract()
	}
	return payload, nil
}

// Seed loads the payload delivered by the server into a client channel.
func (c *Channel) Seed(payload Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.env != EnvironmentClient {
		return fmt.Errorf("%w: seed on %s channel", ErrWrongEnvironment, c.env)
	}
	for key, snapshot := range payload {
		if key == "" {
			key = DefaultCacheKey
		}
		c.seeded[key] = layering.Clone(snapshot)
	}
	return nil
}

// Take returns the seeded snapshot for key and forgets it, so a snapshot is
// handed out at most once per pass. A missing snapshot is reported with
// ok == false and is not an error.
func (c *Channel) Take(key string) (Snapshot, bool) {
	if c == nil {
		return nil, false
	}
	if key == "" {
		key = DefaultCacheKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}
	if _, done := c.taken[key]; done {
		return nil, false
	}
	snapshot, ok := c.seeded[key]
	if !ok {
		return nil, false
	}
	delete(c.seeded, key)
	c.taken[key] = struct{}{}
	return snapshot, true
}

// Close ends the pass and discards every cache binding and snapshot. It is
// safe to call more than once, and safe to call when Extract never ran.
func (c *Channel) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.closed = true
	c.caches = map[string]Cache{}
	c.seeded = Payload{}
	c.mu.Unlock()
}

// Closed reports whether Close was called.
func (c *Channel) Closed() bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type channelKey struct{}

// WithChannel attaches ch to ctx for the duration of a pass.
func WithChannel(ctx context.Context, ch *Channel) context.Context {
	return context.WithValue(ctx, channelKey{}, ch)
}

// ChannelFromContext returns the channel of the current pass, if any.
func ChannelFromContext(ctx context.Context) (*Channel, bool) {
	if ctx == nil {
		return nil, false
	}
	ch, ok := ctx.Value(channelKey{}).(*Channel)
	return ch, ok && ch != nil
}
