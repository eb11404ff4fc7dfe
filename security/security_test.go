package security

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestAppKeySealer_SealOpenRoundTrip(t *testing.T) {
	sealer, err := NewAppKeySealerFromString("super-secret-test-key", WithKeyID("hooks-v1"), WithVersion(3))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	sealed, err := sealer.Seal(context.Background(), "Bearer token-123")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !IsSealed(sealed) || strings.Contains(sealed, "token-123") {
		t.Fatalf("expected opaque sealed value, got %q", sealed)
	}
	meta, err := ParseEnvelopeMetadata(sealed)
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if meta.KeyID != "hooks-v1" || meta.Version != 3 || meta.Algorithm != envelopeAlgorithm {
		t.Fatalf("unexpected envelope metadata %+v", meta)
	}

	opened, err := sealer.Open(context.Background(), sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "Bearer token-123" {
		t.Fatalf("expected round trip plaintext, got %q", opened)
	}
}

func TestAppKeySealer_RejectsMetadataMismatch(t *testing.T) {
	issuer, err := NewAppKeySealerFromString("super-secret-test-key", WithKeyID("hooks-v1"))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	receiver, err := NewAppKeySealerFromString("super-secret-test-key", WithKeyID("hooks-v2"))
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	sealed, err := issuer.Seal(context.Background(), "payload")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := receiver.Open(context.Background(), sealed); err == nil {
		t.Fatalf("expected key id mismatch error")
	}
}

func TestAppKeySealer_RejectsWrongKeyMaterial(t *testing.T) {
	issuer, _ := NewAppKeySealerFromString("first-key")
	receiver, _ := NewAppKeySealerFromString("second-key")
	sealed, err := issuer.Seal(context.Background(), "payload")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := receiver.Open(context.Background(), sealed); err == nil {
		t.Fatalf("expected authentication failure with a different key")
	}
}

func TestNewAppKeySealer_RequiresKeyMaterial(t *testing.T) {
	if _, err := NewAppKeySealer([]byte("   ")); err == nil {
		t.Fatalf("expected blank key material to fail")
	}
}

func TestKeyRing_UnsealPassesPlainValuesThrough(t *testing.T) {
	primary, _ := NewAppKeySealerFromString("ring-key")
	ring, err := NewKeyRing(primary)
	if err != nil {
		t.Fatalf("new key ring: %v", err)
	}
	value, err := ring.Unseal(context.Background(), "application/json")
	if err != nil {
		t.Fatalf("unseal plain value: %v", err)
	}
	if value != "application/json" {
		t.Fatalf("expected plain value unchanged, got %q", value)
	}
}

func TestKeyRing_RotationKeepsRetiredKeyInsideWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first, _ := NewAppKeySealerFromString("first", WithKeyID("hooks"), WithVersion(1))
	second, _ := NewAppKeySealerFromString("second", WithKeyID("hooks"), WithVersion(2))
	ring, err := NewKeyRing(first, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new key ring: %v", err)
	}

	old, err := ring.Seal(context.Background(), "old-secret")
	if err != nil {
		t.Fatalf("seal with first key: %v", err)
	}
	if err := ring.Rotate(second, KeyRotationWindow{NotAfter: now.Add(time.Hour)}); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	fresh, err := ring.Seal(context.Background(), "new-secret")
	if err != nil {
		t.Fatalf("seal with second key: %v", err)
	}
	if meta, _ := ParseEnvelopeMetadata(fresh); meta.Version != 2 {
		t.Fatalf("expected rotated primary to seal, got version %d", meta.Version)
	}

	for sealed, want := range map[string]string{old: "old-secret", fresh: "new-secret"} {
		got, err := ring.Unseal(context.Background(), sealed)
		if err != nil {
			t.Fatalf("unseal %q: %v", want, err)
		}
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
	if keys := ring.Keys(); len(keys) != 2 || keys[0] != "hooks:1" || keys[1] != "hooks:2" {
		t.Fatalf("unexpected ring keys %v", keys)
	}

	now = now.Add(2 * time.Hour)
	if _, err := ring.Unseal(context.Background(), old); err == nil {
		t.Fatalf("expected retired key to stop opening after its window")
	}
}

func TestKeyRotationWindow_Allows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := KeyRotationWindow{NotBefore: now.Add(-time.Hour), NotAfter: now.Add(time.Hour)}
	if !window.Allows(now) {
		t.Fatalf("expected window to allow now")
	}
	if window.Allows(now.Add(-2 * time.Hour)) || window.Allows(now.Add(2*time.Hour)) {
		t.Fatalf("expected window to reject times outside its bounds")
	}
	if !(KeyRotationWindow{}).Allows(now) {
		t.Fatalf("expected empty window to allow any time")
	}
}
