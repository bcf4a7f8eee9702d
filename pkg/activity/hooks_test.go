package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNormalizeEventTrimsClonesAndDefaults(t *testing.T) {
	meta := map[string]any{"pass_id": "p1", "keys": map[string]any{"Viewer": 1}}
	evt := Event{
		Verb:       " cache.restored ",
		ActorID:    " actor ",
		ObjectType: " cache ",
		ObjectID:   " universal:cache ",
		Channel:    " universal ",
		Metadata:   meta,
	}

	got := NormalizeEvent(evt)

	if got.Verb != "cache.restored" || got.ObjectType != "cache" || got.ObjectID != "universal:cache" {
		t.Fatalf("unexpected normalized fields: %+v", got)
	}
	if got.ActorID != "actor" || got.Channel != "universal" {
		t.Fatalf("unexpected trimming: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be set")
	}
	got.Metadata["pass_id"] = "changed"
	got.Metadata["keys"].(map[string]any)["Viewer"] = 2
	if meta["pass_id"] != "p1" || meta["keys"].(map[string]any)["Viewer"] != 1 {
		t.Fatalf("expected original metadata untouched: %+v", meta)
	}
}

func TestHooksNotifyShortCircuitsMissingRequired(t *testing.T) {
	capture := &CaptureHook{}
	if err := (Hooks{capture}).Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events()) != 0 {
		t.Fatalf("expected no events captured, got %d", len(capture.Events()))
	}
}

func TestHooksNotifyFanOutAndJoinErrors(t *testing.T) {
	capture := &CaptureHook{}
	boom1 := errors.New("boom1")
	boom2 := errors.New("boom2")
	var ctxSeen bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, _ Event) error {
			ctxSeen = ctx != nil
			return nil
		}),
		capture,
		HookFunc(func(context.Context, Event) error { return boom1 }),
		nil,
		HookFunc(func(context.Context, Event) error { return boom2 }),
	}

	//nolint:staticcheck // nil context fallback is part of the contract
	err := hooks.Notify(nil, Event{Verb: VerbCacheRegistered, ObjectType: "cache", ObjectID: "k"})
	if !errors.Is(err, boom1) || !errors.Is(err, boom2) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !ctxSeen {
		t.Fatalf("expected context fallback to be non-nil")
	}
	if len(capture.Events()) != 1 {
		t.Fatalf("expected event to be captured once, got %d", len(capture.Events()))
	}
}

func TestEmitterDisabledAndEnabled(t *testing.T) {
	capture := &CaptureHook{}
	event := Event{Verb: VerbProviderMounted, ObjectType: "provider", ObjectID: "1"}

	disabled := NewEmitter(Hooks{capture}, Config{Enabled: false})
	if disabled.Enabled() {
		t.Fatalf("expected emitter to be disabled")
	}
	if err := disabled.Emit(context.Background(), event); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events()) != 0 {
		t.Fatalf("expected no events captured when disabled")
	}

	enabled := NewEmitter(Hooks{capture}, Config{Enabled: true})
	if err := enabled.Emit(context.Background(), event); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(capture.Events()) != 1 {
		t.Fatalf("expected one event captured, got %d", len(capture.Events()))
	}
	if capture.Events()[0].Channel != DefaultChannel {
		t.Fatalf("expected default channel applied, got %q", capture.Events()[0].Channel)
	}
}

func TestEmitterNilIsDisabled(t *testing.T) {
	var emitter *Emitter
	if emitter.Enabled() {
		t.Fatalf("expected nil emitter to be disabled")
	}
	if err := emitter.Emit(context.Background(), Event{Verb: "x", ObjectType: "y", ObjectID: "z"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestBuildCacheRestoredEvent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	event := BuildCacheRestoredEvent(PassEventInput{
		UserID:      " u1 ",
		PassID:      "pass-1",
		Key:         "universal:cache",
		Environment: "client",
		Records:     3,
		OccurredAt:  at,
	})

	if event.Verb != VerbCacheRestored || event.ObjectType != "cache" || event.ObjectID != "universal:cache" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.UserID != "u1" {
		t.Fatalf("expected trimmed user id, got %q", event.UserID)
	}
	if event.Metadata["pass_id"] != "pass-1" || event.Metadata["environment"] != "client" || event.Metadata["records"] != 3 {
		t.Fatalf("unexpected metadata: %+v", event.Metadata)
	}
	if !event.OccurredAt.Equal(at) {
		t.Fatalf("expected occurred_at preserved, got %v", event.OccurredAt)
	}
}

func TestBuildProviderEventFallsBackToPassID(t *testing.T) {
	event := BuildProviderMountedEvent(PassEventInput{PassID: "pass-2"})
	if event.ObjectID != "pass-2" {
		t.Fatalf("expected pass id as object id, got %q", event.ObjectID)
	}

	event = BuildProviderUnmountedEvent(PassEventInput{})
	if event.ObjectID != "provider" || event.Metadata != nil {
		t.Fatalf("expected bare provider event, got %+v", event)
	}
}
