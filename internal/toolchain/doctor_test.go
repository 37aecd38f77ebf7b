package toolchain

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingProber struct {
	calls int
	err   error
	at    time.Time
}

func (p *countingProber) RunDoctor(ctx context.Context) (*Capabilities, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &Capabilities{HasEncode: true, ProbedAt: p.at}, nil
}

func TestCachedDoctor_CachesWithinTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p := &countingProber{at: now}
	d := NewCachedDoctor(p, discard())
	d.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := d.Get(context.Background()); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if p.calls != 1 {
		t.Errorf("probe calls = %d, want 1", p.calls)
	}

	d.now = func() time.Time { return now.Add(defaultCacheTTL + time.Second) }
	if _, err := d.Get(context.Background()); err != nil {
		t.Fatalf("Get after expiry: %v", err)
	}
	if p.calls != 2 {
		t.Errorf("probe calls after expiry = %d, want 2", p.calls)
	}
}

func TestCachedDoctor_StaleOnError(t *testing.T) {
	p := &countingProber{at: time.Now()}
	d := NewCachedDoctor(p, discard())

	first, err := d.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	p.err = errors.New("ffmpeg vanished")
	got, err := d.Refresh(context.Background())
	if err != nil {
		t.Fatalf("expected stale cache, got error %v", err)
	}
	if got != first {
		t.Error("expected the cached capabilities to be returned")
	}

	d.Invalidate()
	if d.Peek() != nil {
		t.Error("Peek after Invalidate should be nil")
	}
	if _, err := d.Refresh(context.Background()); err == nil {
		t.Error("expected error with empty cache")
	}
}
