package universal

// Snapshot is the serializable contents of a cache at a point in time. Values
// must be JSON-compatible so a snapshot survives the trip through markup.
type Snapshot map[string]any

// Cache is the capability the handoff protocol needs from a client cache.
// Extract is called on the server after every fetch in the pass settled;
// Restore is called on the client at most once, before the first read.
type Cache interface {
	Extract() Snapshot
	Restore(Snapshot) error
}

// CacheReader is implemented by caches the Client can serve queries from.
type CacheReader interface {
	Read(key string) (any, bool)
}

// CacheWriter is implemented by caches the Client can store results into.
type CacheWriter interface {
	Write(key string, data any)
}
