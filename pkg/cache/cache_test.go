package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCache() *Cache {
	return New(NewMemoryStore(time.Minute, time.Minute))
}

func TestKeyDeterminism(t *testing.T) {
	tests := []struct {
		name      string
		a, b      string
		wantEqual bool
	}{
		{"identical inputs", "당뇨병 관리 방법은?", "당뇨병 관리 방법은?", true},
		{"whitespace collapsed", "당뇨병   관리\t방법은?", "당뇨병 관리 방법은?", true},
		{"case folded", "Diabetes Management", "diabetes management", true},
		{"different inputs", "당뇨병 관리", "고혈압 관리", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyA := Key("retrieve", "2.0", tt.a, "5")
			keyB := Key("retrieve", "2.0", tt.b, "5")
			if (keyA == keyB) != tt.wantEqual {
				t.Errorf("Key equality = %v, want %v (%q vs %q)", keyA == keyB, tt.wantEqual, keyA, keyB)
			}
		})
	}
}

func TestKeyRollsOverWithPromptVersion(t *testing.T) {
	before := Key("generate", "2.0", "question")
	after := Key("generate", "custom-20260301T000000", "question")
	if before == after {
		t.Fatal("expected a prompt version change to produce a different key")
	}
}

func TestGetOrComputeCountsHitsAndMisses(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	key := Key("retrieve", "1.0", "q")

	compute := func(ctx context.Context) ([]byte, error) {
		return []byte("value"), nil
	}

	value, hit, err := c.GetOrCompute(ctx, key, time.Minute, compute)
	if err != nil {
		t.Fatalf("first GetOrCompute: %v", err)
	}
	if hit {
		t.Error("first call must be a miss")
	}
	if string(value) != "value" {
		t.Errorf("value = %q, want %q", value, "value")
	}

	value, hit, err = c.GetOrCompute(ctx, key, time.Minute, compute)
	if err != nil {
		t.Fatalf("second GetOrCompute: %v", err)
	}
	if !hit {
		t.Error("second call must be a hit")
	}
	if string(value) != "value" {
		t.Errorf("cached value = %q, want %q", value, "value")
	}

	if c.Hits() != 1 || c.Misses() != 1 {
		t.Errorf("counters = %d hits / %d misses, want 1/1", c.Hits(), c.Misses())
	}
	if rate := c.HitRate(); rate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", rate)
	}
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	key := Key("retrieve", "1.0", "concurrent")

	var computations atomic.Int64
	release := make(chan struct{})

	compute := func(ctx context.Context) ([]byte, error) {
		computations.Add(1)
		<-release
		return []byte("shared"), nil
	}

	const waiters = 16
	results := make([]string, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, _, err := c.GetOrCompute(ctx, key, time.Minute, compute)
			if err != nil {
				t.Errorf("waiter %d: %v", i, err)
				return
			}
			results[i] = string(value)
		}(i)
	}

	// Give the goroutines time to pile onto the same key before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := computations.Load(); got != 1 {
		t.Errorf("compute ran %d times, want 1", got)
	}
	for i, r := range results {
		if r != "shared" {
			t.Errorf("waiter %d got %q, want %q", i, r, "shared")
		}
	}
}

func TestGetOrComputeError(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	wantErr := errors.New("backend down")

	_, _, err := c.GetOrCompute(ctx, Key("retrieve", "1.0", "boom"), time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}

	// Errors are not cached.
	value, _, err := c.GetOrCompute(ctx, Key("retrieve", "1.0", "boom"), time.Minute, func(ctx context.Context) ([]byte, error) {
		return []byte("recovered"), nil
	})
	if err != nil {
		t.Fatalf("retry after error: %v", err)
	}
	if string(value) != "recovered" {
		t.Errorf("value = %q, want %q", value, "recovered")
	}
}

func TestGetOrComputeJSONRoundTrip(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	type snippet struct {
		Source string  `json:"source"`
		Text   string  `json:"text"`
		Score  float64 `json:"score"`
	}

	key := Key("retrieve", "1.0", "json")
	first, hit, err := GetOrComputeJSON(ctx, c, key, time.Minute, func(ctx context.Context) ([]snippet, error) {
		return []snippet{{Source: "academic", Text: "metformin 500mg", Score: 0.9}}, nil
	})
	if err != nil || hit {
		t.Fatalf("first call: hit=%v err=%v", hit, err)
	}

	second, hit, err := GetOrComputeJSON(ctx, c, key, time.Minute, func(ctx context.Context) ([]snippet, error) {
		t.Fatal("compute must not run on a hit")
		return nil, nil
	})
	if err != nil || !hit {
		t.Fatalf("second call: hit=%v err=%v", hit, err)
	}
	if len(second) != 1 || second[0] != first[0] {
		t.Errorf("round-trip mismatch: %+v vs %+v", second, first)
	}
}

func TestFlush(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	key := Key("generate", "2.0", "flush me")

	if _, _, err := c.GetOrCompute(ctx, key, time.Minute, func(ctx context.Context) ([]byte, error) {
		return []byte("v1"), nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	_, hit, err := c.GetOrCompute(ctx, key, time.Minute, func(ctx context.Context) ([]byte, error) {
		return []byte("v2"), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("expected a miss after Flush")
	}
}
