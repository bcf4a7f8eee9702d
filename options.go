package universal

import (
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-universal/layering"
)

// DefaultSSRForceFetchDelay is the force-fetch delay applied when the caller
// leaves SSRForceFetchDelay unset. It applies on both sides of the boundary.
const DefaultSSRForceFetchDelay = 100 * time.Millisecond

// ClientOptions is the partial configuration returned by a provider's options
// callback. Nil pointers and nil interfaces mean "use the default".
type ClientOptions struct {
	Cache              Cache
	Link               Link
	SSRMode            *bool
	SSRForceFetchDelay *time.Duration
	ConnectToDevTools  *bool
	QueryDeduplication *bool
	DefaultFetchPolicy FetchPolicy
	Name               string
	Version            string
	// Extra carries settings for the underlying client that this package does
	// not interpret.
	Extra map[string]any
}

// ResolvedClientOptions is ClientOptions with every recognised field defined.
type ResolvedClientOptions struct {
	Cache              Cache
	Link               Link
	SSRMode            bool
	SSRForceFetchDelay time.Duration
	ConnectToDevTools  bool
	QueryDeduplication bool
	DefaultFetchPolicy FetchPolicy
	Name               string
	Version            string
	Extra              map[string]any

	sources map[string]OptionSource
}

// OptionSource records where a resolved field came from.
type OptionSource string

const (
	// SourceInput marks a value supplied by the caller.
	SourceInput OptionSource = "input"
	// SourceDefault marks a value filled in by Resolve.
	SourceDefault OptionSource = "default"
)

// Bool returns a pointer to v, for optional boolean fields.
func Bool(v bool) *bool { return &v }

// Duration returns a pointer to d, for optional duration fields.
func Duration(d time.Duration) *time.Duration { return &d }

// Resolve fills every absent field of input with the default for env and
// returns a new record. input is never mutated; a Cache or Link supplied by
// the caller is returned as the same instance.
func Resolve(input ClientOptions, env RenderEnvironment) ResolvedClientOptions {
	defaults := ClientOptions{
		SSRMode:            Bool(env == EnvironmentServer),
		SSRForceFetchDelay: Duration(DefaultSSRForceFetchDelay),
		ConnectToDevTools:  Bool(env == EnvironmentClient),
		QueryDeduplication: Bool(true),
		DefaultFetchPolicy: FetchCacheFirst,
	}
	if input.Cache == nil {
		defaults.Cache = NewInMemoryCache()
	}
	if input.Link == nil {
		defaults.Link = NewDefaultLink()
	}

	merged := layering.Fill(input, defaults)
	return ResolvedClientOptions{
		Cache:              merged.Cache,
		Link:               merged.Link,
		SSRMode:            *merged.SSRMode,
		SSRForceFetchDelay: *merged.SSRForceFetchDelay,
		ConnectToDevTools:  *merged.ConnectToDevTools,
		QueryDeduplication: *merged.QueryDeduplication,
		DefaultFetchPolicy: merged.DefaultFetchPolicy,
		Name:               merged.Name,
		Version:            merged.Version,
		Extra:              merged.Extra,
		sources:            optionSources(input),
	}
}

func optionSources(input ClientOptions) map[string]OptionSource {
	source := func(set bool) OptionSource {
		if set {
			return SourceInput
		}
		return SourceDefault
	}
	return map[string]OptionSource{
		"cache":              source(input.Cache != nil),
		"link":               source(input.Link != nil),
		"ssrMode":            source(input.SSRMode != nil),
		"ssrForceFetchDelay": source(input.SSRForceFetchDelay != nil),
		"connectToDevTools":  source(input.ConnectToDevTools != nil),
		"queryDeduplication": source(input.QueryDeduplication != nil),
		"defaultFetchPolicy": source(input.DefaultFetchPolicy != ""),
	}
}

// Sources reports, per recognised field, whether the value came from the
// caller or from Resolve. Options built by hand report nil.
func (o ResolvedClientOptions) Sources() map[string]OptionSource {
	if o.sources == nil {
		return nil
	}
	out := make(map[string]OptionSource, len(o.sources))
	for key, value := range o.sources {
		out[key] = value
	}
	return out
}

var (
	// ErrCacheRequired reports resolved options without a cache.
	ErrCacheRequired = errors.New("universal: cache is required")
	// ErrLinkRequired reports resolved options without a link.
	ErrLinkRequired = errors.New("universal: link is required")
)

// Validate checks the invariants NewClient relies on.
func (o ResolvedClientOptions) Validate() error {
	if o.Cache == nil {
		return ErrCacheRequired
	}
	if o.Link == nil {
		return ErrLinkRequired
	}
	if o.SSRForceFetchDelay < 0 {
		return fmt.Errorf("universal: ssr force fetch delay must not be negative, got %s", o.SSRForceFetchDelay)
	}
	if !o.DefaultFetchPolicy.valid() {
		return fmt.Errorf("universal: unknown fetch policy %q", o.DefaultFetchPolicy)
	}
	return nil
}
