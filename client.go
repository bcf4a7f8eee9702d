package universal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchPolicy decides how a query balances the cache against the link.
type FetchPolicy string

const (
	FetchCacheFirst      FetchPolicy = "cache-first"
	FetchCacheOnly       FetchPolicy = "cache-only"
	FetchNetworkOnly     FetchPolicy = "network-only"
	FetchCacheAndNetwork FetchPolicy = "cache-and-network"
	FetchNoCache         FetchPolicy = "no-cache"
)

func (p FetchPolicy) valid() bool {
	switch p {
	case FetchCacheFirst, FetchCacheOnly, FetchNetworkOnly, FetchCacheAndNetwork, FetchNoCache:
		return true
	default:
		return false
	}
}

// forcesFetch reports whether p bypasses a cache hit.
func (p FetchPolicy) forcesFetch() bool {
	return p == FetchNetworkOnly || p == FetchCacheAndNetwork
}

// QueryError carries the errors a link reported for an operation.
type QueryError struct {
	Operation string
	Errors    []string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("universal: operation %q failed: %s", e.Operation, strings.Join(e.Errors, "; "))
}

// ClientBuilder constructs a client from resolved options. Providers accept
// one so tests can observe or replace client construction.
type ClientBuilder func(ResolvedClientOptions) (*Client, error)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClock replaces time.Now for the force-fetch delay window.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client runs operations through its link and keeps results in its cache.
type Client struct {
	options   ResolvedClientOptions
	now       func() time.Time
	createdAt time.Time
	inflight  singleflight.Group
}

// NewClient validates options and builds a client.
func NewClient(options ResolvedClientOptions, opts ...ClientOption) (*Client, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	c := &Client{options: options, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.createdAt = c.now()
	return c, nil
}

// Options returns the options the client was built from.
func (c *Client) Options() ResolvedClientOptions {
	return c.options
}

// Cache returns the client's cache.
func (c *Client) Cache() Cache {
	return c.options.Cache
}

// Link returns the client's link.
func (c *Client) Link() Link {
	return c.options.Link
}

// NetworkFetchesDisabled reports whether force-fetch policies are currently
// downgraded to cache-first: always in SSR mode, and otherwise until the
// force-fetch delay elapsed since construction.
func (c *Client) NetworkFetchesDisabled() bool {
	if c.options.SSRMode {
		return true
	}
	return c.now().Before(c.createdAt.Add(c.options.SSRForceFetchDelay))
}

type queryConfig struct {
	policy FetchPolicy
}

// QueryOption configures a single query.
type QueryOption func(*queryConfig)

// WithFetchPolicy overrides the client's default fetch policy.
func WithFetchPolicy(policy FetchPolicy) QueryOption {
	return func(cfg *queryConfig) {
		cfg.policy = policy
	}
}

// Query resolves op according to its fetch policy.
func (c *Client) Query(ctx context.Context, op Operation, opts ...QueryOption) (Result, error) {
	policy, err := c.effectivePolicy(opts)
	if err != nil {
		return Result{}, err
	}

	key := op.Key()
	switch policy {
	case FetchCacheOnly:
		data, _ := c.read(key)
		return Result{Data: data}, nil
	case FetchCacheFirst:
		if data, ok := c.read(key); ok {
			return Result{Data: data}, nil
		}
		return c.fetch(ctx, op, true)
	case FetchCacheAndNetwork:
		result, err := c.fetch(ctx, op, true)
		if err != nil {
			if data, ok := c.read(key); ok {
				return Result{Data: data}, nil
			}
		}
		return result, err
	case FetchNoCache:
		return c.fetch(ctx, op, false)
	default:
		return c.fetch(ctx, op, true)
	}
}

// Prefetch starts op in the background of the current pass when the context
// carries a Tracker, so the render driver can await it before extraction.
// Without a tracker it runs inline. Operations the cache can already answer
// are not started at all.
func (c *Client) Prefetch(ctx context.Context, op Operation, opts ...QueryOption) error {
	policy, err := c.effectivePolicy(opts)
	if err != nil {
		return err
	}
	if policy == FetchCacheOnly {
		return nil
	}
	if policy == FetchCacheFirst {
		if _, ok := c.read(op.Key()); ok {
			return nil
		}
	}

	tracker, ok := TrackerFromContext(ctx)
	if !ok {
		_, err := c.Query(ctx, op, opts...)
		return err
	}
	tracker.Go(func() error {
		_, err := c.Query(ctx, op, opts...)
		return err
	})
	return nil
}

// effectivePolicy applies opts and downgrades force-fetch policies while
// network fetches are disabled.
func (c *Client) effectivePolicy(opts []QueryOption) (FetchPolicy, error) {
	cfg := queryConfig{policy: c.options.DefaultFetchPolicy}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if !cfg.policy.valid() {
		return "", fmt.Errorf("universal: unknown fetch policy %q", cfg.policy)
	}
	if cfg.policy.forcesFetch() && c.NetworkFetchesDisabled() {
		return FetchCacheFirst, nil
	}
	return cfg.policy, nil
}

func (c *Client) read(key string) (any, bool) {
	reader, ok := c.options.Cache.(CacheReader)
	if !ok {
		return nil, false
	}
	return reader.Read(key)
}

func (c *Client) fetch(ctx context.Context, op Operation, store bool) (Result, error) {
	request := func() (any, error) {
		result, err := c.options.Link.Request(ctx, op)
		if err != nil {
			return Result{}, err
		}
		if len(result.Errors) > 0 {
			return result, &QueryError{Operation: op.Name, Errors: result.Errors}
		}
		if store {
			if writer, ok := c.options.Cache.(CacheWriter); ok {
				writer.Write(op.Key(), result.Data)
			}
		}
		return result, nil
	}

	if !c.options.QueryDeduplication || !store {
		value, err := request()
		result, _ := value.(Result)
		return result, err
	}
	value, err, _ := c.inflight.Do(op.Key(), request)
	result, _ := value.(Result)
	return result, err
}
