package middleware_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/muahq/mua/internal/middleware"
)

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newEngine(middleware.NewRateLimiter(ctx, 1, 2).Handler())

	for i := range 3 {
		w := get(r, "1.2.3.4", "")

		want := http.StatusOK
		if i == 2 {
			want = http.StatusTooManyRequests
		}

		if w.Code != want {
			t.Fatalf("request %d: got %d, want %d", i, w.Code, want)
		}

		if i == 2 && w.Header().Get("Retry-After") != "1" {
			t.Errorf("Retry-After = %q, want 1", w.Header().Get("Retry-After"))
		}
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newEngine(middleware.NewRateLimiter(ctx, 1, 1).Handler())

	get(r, "1.1.1.1", "")

	if w := get(r, "2.2.2.2", ""); w.Code != http.StatusOK {
		t.Fatalf("different IP should not be rate limited, got %d", w.Code)
	}

	if w := get(r, "1.1.1.1", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("exhausted IP got %d", w.Code)
	}
}
