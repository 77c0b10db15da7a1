package cache

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *RistrettoCache {
	t.Helper()

	c, err := NewRistrettoCache(&RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestRistrettoCache(t *testing.T) {
	c := newTestCache(t)

	t.Run("set-and-get", func(t *testing.T) {
		if !c.Set(Key("market", "0xabc"), "snapshot", time.Hour) {
			t.Fatal("expected Set to succeed")
		}

		got, found := c.Get(Key("market", "0xabc"))
		if !found {
			t.Fatal("expected key to be found")
		}
		if got != "snapshot" {
			t.Errorf("expected %q, got %v", "snapshot", got)
		}
	})

	t.Run("get-missing-key", func(t *testing.T) {
		if _, found := c.Get(Key("market", "missing")); found {
			t.Error("expected key to not be found")
		}
	})

	t.Run("delete", func(t *testing.T) {
		c.Set(Key("history", "tok"), 1, time.Hour)
		c.Delete(Key("history", "tok"))

		if _, found := c.Get(Key("history", "tok")); found {
			t.Error("expected key to be deleted")
		}
	})
}

func TestFetch(t *testing.T) {
	c := newTestCache(t)
	calls := 0
	load := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		got, err := Fetch(c, Key("meta", "tok"), time.Hour, load)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 42 {
			t.Errorf("expected 42, got %d", got)
		}
	}

	if calls != 1 {
		t.Errorf("expected loader to run once, ran %d times", calls)
	}
}

func TestFetch_LoaderError(t *testing.T) {
	c := newTestCache(t)
	wantErr := errors.New("upstream down")

	_, err := Fetch(c, Key("meta", "bad"), time.Hour, func() (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if _, found := c.Get(Key("meta", "bad")); found {
		t.Error("expected nothing cached after loader error")
	}
}

func TestNamespaceOf(t *testing.T) {
	tests := map[string]string{
		"market:0xabc": "market",
		"history:a:b":  "history",
		"plain":        "default",
		":leading":     "default",
	}
	for key, want := range tests {
		if got := namespaceOf(key); got != want {
			t.Errorf("namespaceOf(%q) = %q, want %q", key, got, want)
		}
	}
}
