package httpx

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_PacesRequests(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		DefaultRPS: 10, // 100ms between tokens
	})

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx, "https://rumble.com/c/test"); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	// Burst of 1, so the second and third calls each wait ~100ms.
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("3 requests took %s, want >= 150ms of pacing", elapsed)
	}
}

func TestRateLimiter_UnlimitedHost(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		DefaultRPS: 10,
		PerHost:    map[string]float64{"localhost": 0},
	})

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := rl.Wait(ctx, "http://localhost:8080/x"); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("unlimited host waited %s, want no pacing", elapsed)
	}
}

func TestRateLimiter_ContextCanceled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DefaultRPS: 0.001})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Drain the initial token, then the next wait must block until the
	// context deadline.
	if err := rl.Wait(ctx, "https://rumble.com/a"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if err := rl.Wait(ctx, "https://rumble.com/b"); err == nil {
		t.Error("Wait() = nil, want context deadline error")
	}
}

func TestHostOf(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://rumble.com/c/news", want: "rumble.com"},
		{url: "http://localhost:8080/x", want: "localhost"},
		{url: "not a url\x7f", want: "unknown"},
		{url: "/relative/path", want: "unknown"},
	}
	for _, tt := range tests {
		if got := hostOf(tt.url); got != tt.want {
			t.Errorf("hostOf(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
