package activity

import (
	"strings"
	"time"
)

const (
	VerbProviderMounted   = "provider.mounted"
	VerbProviderUnmounted = "provider.unmounted"
	VerbCacheRegistered   = "cache.registered"
	VerbCacheRestored     = "cache.restored"
	VerbCacheExtracted    = "cache.extracted"
)

// PassEventInput describes the render pass an event belongs to.
type PassEventInput struct {
	ActorID     string
	UserID      string
	TenantID    string
	PassID      string
	Key         string
	Environment string
	Records     int
	Metadata    map[string]any
	OccurredAt  time.Time
}

// BuildProviderMountedEvent reports a provider that exposed its client.
func BuildProviderMountedEvent(input PassEventInput) Event {
	return buildPassEvent(VerbProviderMounted, "provider", input)
}

// BuildProviderUnmountedEvent reports a provider teardown.
func BuildProviderUnmountedEvent(input PassEventInput) Event {
	return buildPassEvent(VerbProviderUnmounted, "provider", input)
}

// BuildCacheRegisteredEvent reports a cache bound to a pass channel.
func BuildCacheRegisteredEvent(input PassEventInput) Event {
	return buildPassEvent(VerbCacheRegistered, "cache", input)
}

// BuildCacheRestoredEvent reports a snapshot restored into a client cache.
func BuildCacheRestoredEvent(input PassEventInput) Event {
	return buildPassEvent(VerbCacheRestored, "cache", input)
}

// BuildCacheExtractedEvent reports a snapshot extracted on the server.
func BuildCacheExtractedEvent(input PassEventInput) Event {
	return buildPassEvent(VerbCacheExtracted, "cache", input)
}

func buildPassEvent(verb, objectType string, input PassEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	if input.PassID != "" {
		metadata["pass_id"] = input.PassID
	}
	if input.Environment != "" {
		metadata["environment"] = input.Environment
	}
	if input.Records > 0 {
		metadata["records"] = input.Records
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	objectID := strings.TrimSpace(input.Key)
	if objectID == "" {
		objectID = strings.TrimSpace(input.PassID)
	}
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: objectType,
		ObjectID:   objectID,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}
