// Package ssr drives server and client render passes of a templ tree that
// contains universal providers.
//
// A server pass renders the tree repeatedly with a fetch tracker until no
// component starts a new fetch, extracts every registered cache from the pass
// channel, then renders the tree a final time with the payload embedded. A
// client pass seeds a channel from that payload before rendering, so providers
// restore their caches instead of refetching.
package ssr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/a-h/templ"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	universal "github.com/goliatone/go-universal"
	"github.com/goliatone/go-universal/pkg/activity"
	"github.com/goliatone/go-universal/pkg/transport"
)

const (
	tracerName = "github.com/goliatone/go-universal/ssr"

	// DefaultMaxPrepasses bounds how many data passes run before the final
	// render.
	DefaultMaxPrepasses = 4
)

// ErrTreeRequired reports a render call without a component.
var ErrTreeRequired = errors.New("ssr: component tree is required")

// Page is the output of one server or client pass.
type Page struct {
	PassID  string
	HTML    []byte
	Payload universal.Payload
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger attaches a logger. A nil logger disables logging.
func WithLogger(logger universal.Logger) Option {
	return func(d *Driver) {
		if logger == nil {
			d.logger = universal.LoggerFunc(nil)
			return
		}
		d.logger = logger
	}
}

// WithScriptID sets the id of the embedded payload element.
func WithScriptID(id string) Option {
	return func(d *Driver) {
		if id != "" {
			d.scriptID = id
		}
	}
}

// WithMaxPrepasses bounds the prepass loop. Values below one are ignored.
func WithMaxPrepasses(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.maxPrepasses = n
		}
	}
}

// WithFetchLimit caps concurrently running fetches within one prepass.
func WithFetchLimit(n int) Option {
	return func(d *Driver) {
		d.fetchLimit = n
	}
}

// WithStore keeps every extracted payload in store for ttl, keyed by pass
// id, so a client can pick it up out of band.
func WithStore(store transport.Store, ttl time.Duration) Option {
	return func(d *Driver) {
		d.store = store
		d.storeTTL = ttl
	}
}

// WithActivityHooks reports extractions to hooks.
func WithActivityHooks(hooks activity.Hooks) Option {
	return func(d *Driver) {
		d.emitter = activity.NewEmitter(hooks, activity.Config{Enabled: true})
	}
}

// Driver runs render passes. It holds no per-pass state and is safe for
// concurrent use.
type Driver struct {
	logger       universal.Logger
	scriptID     string
	maxPrepasses int
	fetchLimit   int
	store        transport.Store
	storeTTL     time.Duration
	emitter      *activity.Emitter
}

// NewDriver builds a Driver.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		logger:       universal.LoggerFunc(nil),
		scriptID:     transport.DefaultScriptID,
		maxPrepasses: DefaultMaxPrepasses,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// ScriptID returns the id of the embedded payload element.
func (d *Driver) ScriptID() string {
	return d.scriptID
}

// RenderServer runs a server pass over tree. The pass channel is closed
// before RenderServer returns, whether or not extraction happened.
func (d *Driver) RenderServer(ctx context.Context, tree templ.Component) (page Page, err error) {
	if tree == nil {
		return Page{}, ErrTreeRequired
	}
	ch := universal.NewChannel(universal.EnvironmentServer)
	defer ch.Close()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "universal.ssr.render_server",
		trace.WithAttributes(attribute.String("universal.pass_id", ch.ID())))
	defer endSpan(span, &err)

	passCtx := universal.WithChannel(ctx, ch)
	if err := d.prepass(passCtx, ch, tree); err != nil {
		return Page{}, err
	}

	start := time.Now()
	payload, err := ch.Extract()
	if err != nil {
		d.log(universal.LogEvent{Stage: "extract", PassID: ch.ID(), Environment: universal.EnvironmentServer, Err: err})
		return Page{}, fmt.Errorf("ssr: extract pass %s: %w", ch.ID(), err)
	}
	d.log(universal.LogEvent{Stage: "extract", PassID: ch.ID(), Environment: universal.EnvironmentServer, Duration: time.Since(start)})
	for key, snapshot := range payload {
		d.emit(ctx, activity.BuildCacheExtractedEvent(activity.PassEventInput{
			PassID:      ch.ID(),
			Key:         key,
			Environment: universal.EnvironmentServer.String(),
			Records:     len(snapshot),
		}))
	}
	span.SetAttributes(attribute.Int("universal.caches", len(payload)))

	var buf bytes.Buffer
	if err := tree.Render(passCtx, &buf); err != nil {
		return Page{}, fmt.Errorf("ssr: render pass %s: %w", ch.ID(), err)
	}
	if err := transport.Embed(d.scriptID, payload).Render(ctx, &buf); err != nil {
		return Page{}, fmt.Errorf("ssr: embed payload for pass %s: %w", ch.ID(), err)
	}

	if d.store != nil {
		if err := d.store.Save(ctx, ch.ID(), payload, d.storeTTL); err != nil {
			return Page{}, fmt.Errorf("ssr: store payload for pass %s: %w", ch.ID(), err)
		}
	}

	return Page{PassID: ch.ID(), HTML: buf.Bytes(), Payload: payload}, nil
}

// prepass renders tree until a pass starts no fetch, waiting for every fetch
// of a pass before starting the next one.
func (d *Driver) prepass(ctx context.Context, ch *universal.Channel, tree templ.Component) error {
	for pass := 0; pass < d.maxPrepasses; pass++ {
		start := time.Now()
		group, groupCtx := errgroup.WithContext(ctx)
		if d.fetchLimit > 0 {
			group.SetLimit(d.fetchLimit)
		}
		tracker := &groupTracker{group: group}

		renderErr := tree.Render(universal.WithTracker(groupCtx, tracker), io.Discard)
		waitErr := group.Wait()
		if err := errors.Join(renderErr, waitErr); err != nil {
			d.log(universal.LogEvent{Stage: "prepass", PassID: ch.ID(), Environment: universal.EnvironmentServer, Duration: time.Since(start), Err: err})
			return fmt.Errorf("ssr: prepass %d of pass %s: %w", pass+1, ch.ID(), err)
		}
		d.log(universal.LogEvent{Stage: "prepass", PassID: ch.ID(), Environment: universal.EnvironmentServer, Duration: time.Since(start)})
		if tracker.launched.Load() == 0 {
			return nil
		}
	}
	return nil
}

// RenderClient runs a client pass over tree using the payload embedded in
// markup. Markup without a payload renders with empty caches.
func (d *Driver) RenderClient(ctx context.Context, markup []byte, tree templ.Component) (Page, error) {
	payload, _, err := transport.ReadMarkup(bytes.NewReader(markup), d.scriptID)
	if err != nil {
		return Page{}, fmt.Errorf("ssr: read payload: %w", err)
	}
	return d.renderClient(ctx, "", payload, tree)
}

// RenderClientFromStore runs a client pass using the payload a server pass
// saved under passID. The payload is consumed.
func (d *Driver) RenderClientFromStore(ctx context.Context, passID string, tree templ.Component) (Page, error) {
	if d.store == nil {
		return Page{}, errors.New("ssr: driver has no payload store")
	}
	payload, _, err := d.store.Take(ctx, passID)
	if err != nil {
		return Page{}, fmt.Errorf("ssr: take payload for pass %s: %w", passID, err)
	}
	return d.renderClient(ctx, passID, payload, tree)
}

func (d *Driver) renderClient(ctx context.Context, passID string, payload universal.Payload, tree templ.Component) (page Page, err error) {
	if tree == nil {
		return Page{}, ErrTreeRequired
	}
	ch := universal.NewChannel(universal.EnvironmentClient, universal.WithChannelID(passID))
	defer ch.Close()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "universal.ssr.render_client",
		trace.WithAttributes(attribute.String("universal.pass_id", ch.ID())))
	defer endSpan(span, &err)

	if err := ch.Seed(payload); err != nil {
		return Page{}, fmt.Errorf("ssr: seed pass %s: %w", ch.ID(), err)
	}

	start := time.Now()
	var buf bytes.Buffer
	if err := tree.Render(universal.WithChannel(ctx, ch), &buf); err != nil {
		d.log(universal.LogEvent{Stage: "render", PassID: ch.ID(), Environment: universal.EnvironmentClient, Duration: time.Since(start), Err: err})
		return Page{}, fmt.Errorf("ssr: render pass %s: %w", ch.ID(), err)
	}
	d.log(universal.LogEvent{Stage: "render", PassID: ch.ID(), Environment: universal.EnvironmentClient, Duration: time.Since(start)})
	return Page{PassID: ch.ID(), HTML: buf.Bytes(), Payload: payload}, nil
}

func (d *Driver) log(event universal.LogEvent) {
	d.logger.Log(event)
}

func (d *Driver) emit(ctx context.Context, event activity.Event) {
	if err := d.emitter.Emit(ctx, event); err != nil {
		d.log(universal.LogEvent{Stage: "activity", PassID: event.ObjectID, Err: err})
	}
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}

// groupTracker runs pass fetches on an errgroup and counts them.
type groupTracker struct {
	group    *errgroup.Group
	launched atomic.Int64
}

func (t *groupTracker) Go(fn func() error) {
	t.launched.Add(1)
	t.group.Go(fn)
}
