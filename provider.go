package universal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/a-h/templ"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/goliatone/go-universal/pkg/activity"
)

const tracerName = "github.com/goliatone/go-universal"

// ProviderState is a step of the provider mount lifecycle.
type ProviderState int

const (
	StateUninitialized ProviderState = iota
	StateConfiguring
	StateBound
	StateMounted
	StateUnmounted
)

func (s ProviderState) String() string {
	switch s {
	case StateConfiguring:
		return "configuring"
	case StateBound:
		return "bound"
	case StateMounted:
		return "mounted"
	case StateUnmounted:
		return "unmounted"
	default:
		return "uninitialized"
	}
}

// ErrOptionsFactoryRequired reports a provider built without an options
// callback.
var ErrOptionsFactoryRequired = errors.New("universal: client options factory is required")

// OptionsFactory produces the caller's partial client options. A provider
// invokes it exactly once per mount.
type OptionsFactory func() (ClientOptions, error)

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithEnvironment fixes how the provider learns which side it renders on.
// Without it the provider uses the environment of the pass channel.
func WithEnvironment(detector EnvironmentDetector) ProviderOption {
	return func(p *Provider) {
		p.detector = detector
	}
}

// WithClientBuilder replaces NewClient.
func WithClientBuilder(build ClientBuilder) ProviderOption {
	return func(p *Provider) {
		if build != nil {
			p.build = build
		}
	}
}

// WithCacheKey sets the channel key the provider registers its cache under.
func WithCacheKey(key string) ProviderOption {
	return func(p *Provider) {
		if key != "" {
			p.key = key
		}
	}
}

// WithProviderChannel binds the provider to ch instead of the channel carried
// by the render context.
func WithProviderChannel(ch *Channel) ProviderOption {
	return func(p *Provider) {
		p.channel = ch
	}
}

// WithLogger attaches a logger. A nil logger disables logging.
func WithLogger(logger Logger) ProviderOption {
	return func(p *Provider) {
		if logger == nil {
			p.logger = noopLogger{}
			return
		}
		p.logger = logger
	}
}

// WithActivityHooks fans lifecycle events out to hooks.
func WithActivityHooks(hooks activity.Hooks) ProviderOption {
	return func(p *Provider) {
		p.emitter = activity.NewEmitter(hooks, activity.Config{Enabled: true})
	}
}

// Provider is the composition root of one subtree. Mounting resolves client
// options, builds the client, binds its cache to the pass channel, restores
// the server snapshot on the client, and exposes the client to descendants.
//
// The options factory, client builder and cache Restore run without the
// provider's state lock held, so they may call State, Environment or Client.
// They must not call Mount or Unmount.
type Provider struct {
	// mountMu serializes Mount and Unmount.
	mountMu sync.Mutex
	mu      sync.Mutex

	createOptions OptionsFactory
	detector      EnvironmentDetector
	build         ClientBuilder
	key           string
	channel       *Channel
	logger        Logger
	emitter       *activity.Emitter

	state  ProviderState
	env    RenderEnvironment
	client *Client
	passID string
	bound  *Channel
}

// NewProvider returns an unmounted provider.
func NewProvider(createOptions OptionsFactory, opts ...ProviderOption) *Provider {
	p := &Provider{
		createOptions: createOptions,
		build:         func(o ResolvedClientOptions) (*Client, error) { return NewClient(o) },
		key:           DefaultCacheKey,
		logger:        noopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// State returns the current lifecycle state.
func (p *Provider) State() ProviderState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Environment returns the environment resolved at mount.
func (p *Provider) Environment() RenderEnvironment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.env
}

// Client returns the mounted client.
func (p *Provider) Client() (*Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateMounted {
		return nil, false
	}
	return p.client, true
}

// Mount runs the provider through Configuring and Bound into Mounted.
// Mounting again against the channel the provider is bound to, or from a
// context without a channel, is a no-op, so re-renders never invoke the
// options factory again. A different channel means a new pass: the provider
// unmounts and mounts afresh for it. On error the provider is left
// uninitialized and the error is returned unchanged in its chain.
func (p *Provider) Mount(ctx context.Context) (err error) {
	if p.createOptions == nil {
		return ErrOptionsFactoryRequired
	}
	p.mountMu.Lock()
	defer p.mountMu.Unlock()

	channel := p.channel
	if channel == nil {
		channel, _ = ChannelFromContext(ctx)
	}
	p.mu.Lock()
	state, bound := p.state, p.bound
	p.mu.Unlock()
	if state == StateMounted {
		if channel == nil || channel == bound {
			return nil
		}
		p.unmount(ctx)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "universal.provider.mount")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.mu.Lock()
			p.reset()
			p.mu.Unlock()
		}
		span.End()
	}()

	start := time.Now()
	env := p.environment(channel)
	p.mu.Lock()
	p.state = StateConfiguring
	p.env = env
	p.mu.Unlock()
	span.SetAttributes(
		attribute.String("universal.environment", env.String()),
		attribute.String("universal.cache_key", p.key),
	)

	input, err := p.createOptions()
	if err != nil {
		return fmt.Errorf("universal: create client options: %w", err)
	}
	client, err := p.build(Resolve(input, env))
	if err != nil {
		return fmt.Errorf("universal: build client: %w", err)
	}
	p.mu.Lock()
	p.client = client
	p.state = StateBound
	p.mu.Unlock()

	var passID string
	if channel != nil {
		passID = channel.ID()
		if err := p.bind(ctx, channel, passID, env, client.Cache()); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.state = StateMounted
	p.bound = channel
	p.passID = passID
	p.mu.Unlock()
	p.logger.Log(LogEvent{Stage: "mount", Key: p.key, PassID: passID, Environment: env, Duration: time.Since(start)})
	p.emit(ctx, activity.BuildProviderMountedEvent(p.eventInput(passID, env, 0)))
	return nil
}

// bind registers the cache with the pass channel and, on a client pass,
// restores the snapshot the server left for it.
func (p *Provider) bind(ctx context.Context, channel *Channel, passID string, env RenderEnvironment, cache Cache) error {
	if err := channel.Register(p.key, cache); err != nil {
		return fmt.Errorf("universal: register cache: %w", err)
	}
	p.emit(ctx, activity.BuildCacheRegisteredEvent(p.eventInput(passID, env, 0)))

	if env != EnvironmentClient {
		return nil
	}
	snapshot, ok := channel.Take(p.key)
	if !ok {
		return nil
	}
	start := time.Now()
	if err := cache.Restore(snapshot); err != nil {
		p.logger.Log(LogEvent{Stage: "restore", Key: p.key, PassID: passID, Environment: env, Duration: time.Since(start), Err: err})
		return fmt.Errorf("universal: restore cache %q: %w", p.key, err)
	}
	p.logger.Log(LogEvent{Stage: "restore", Key: p.key, PassID: passID, Environment: env, Duration: time.Since(start)})
	p.emit(ctx, activity.BuildCacheRestoredEvent(p.eventInput(passID, env, len(snapshot))))
	return nil
}

func (p *Provider) environment(channel *Channel) RenderEnvironment {
	if p.detector != nil {
		return Detect(p.detector)
	}
	if channel != nil {
		return channel.Environment()
	}
	return EnvironmentClient
}

// Provide returns ctx carrying the mounted client. Before mount it returns ctx
// unchanged.
func (p *Provider) Provide(ctx context.Context) context.Context {
	client, ok := p.Client()
	if !ok {
		return ctx
	}
	return WithClient(ctx, client)
}

// Render mounts the provider if needed and runs fn with the client exposed.
func (p *Provider) Render(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.Mount(ctx); err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	return fn(p.Provide(ctx))
}

// Wrap returns a component that mounts the provider and renders children with
// the client in their context.
func (p *Provider) Wrap(children templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := p.Mount(ctx); err != nil {
			return err
		}
		if children == nil {
			return nil
		}
		return children.Render(p.Provide(ctx), w)
	})
}

// Unmount tears the provider down. It drops its references to the client and
// channel without touching either. A later Mount starts a new mount.
func (p *Provider) Unmount(ctx context.Context) {
	p.mountMu.Lock()
	defer p.mountMu.Unlock()
	p.unmount(ctx)
}

func (p *Provider) unmount(ctx context.Context) {
	p.mu.Lock()
	if p.state != StateMounted {
		p.mu.Unlock()
		return
	}
	passID, env := p.passID, p.env
	p.reset()
	p.state = StateUnmounted
	p.mu.Unlock()

	p.emit(ctx, activity.BuildProviderUnmountedEvent(p.eventInput(passID, env, 0)))
	p.logger.Log(LogEvent{Stage: "unmount", Key: p.key, PassID: passID, Environment: env})
}

func (p *Provider) reset() {
	p.state = StateUninitialized
	p.client = nil
	p.passID = ""
	p.bound = nil
}

func (p *Provider) eventInput(passID string, env RenderEnvironment, records int) activity.PassEventInput {
	return activity.PassEventInput{
		PassID:      passID,
		Key:         p.key,
		Environment: env.String(),
		Records:     records,
	}
}

func (p *Provider) emit(ctx context.Context, event activity.Event) {
	if err := p.emitter.Emit(ctx, event); err != nil {
		p.logger.Log(LogEvent{Stage: "activity", Key: p.key, Err: err})
	}
}
