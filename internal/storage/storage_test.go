package storage

import (
	"strings"
	"testing"
	"time"
)

func TestCacheKeyScopedByRecipient(t *testing.T) {
	a := cacheKey("Nvidia sube", "a@example.com")
	b := cacheKey("Nvidia sube", "b@example.com")
	if a == b {
		t.Fatalf("cache keys must differ per recipient: %q", a)
	}
	if !strings.HasPrefix(a, cacheKeyPrefix+"a@example.com:") {
		t.Fatalf("unexpected cache key %q", a)
	}
	if a != cacheKey("Nvidia sube", "a@example.com") {
		t.Fatalf("cache key not deterministic")
	}
}

func TestStoreNowDefaultsToWallClock(t *testing.T) {
	s := &Store{}
	if d := time.Since(s.now()); d < 0 || d > time.Minute {
		t.Fatalf("now() drifted by %s", d)
	}
	fixed := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return fixed }
	if !s.now().Equal(fixed) {
		t.Fatalf("now() should use injected clock")
	}
}
