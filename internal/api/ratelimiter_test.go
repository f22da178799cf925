package api

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToLimitThenBlocks(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("team-1") {
			t.Fatalf("expected request %d to be allowed", i)
		}
	}
	if rl.Allow("team-1") {
		t.Fatal("expected 4th request within the window to be blocked")
	}
}

func TestRateLimiterTracksKeysIndependently(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	if !rl.Allow("team-1") {
		t.Fatal("expected first request for team-1 to be allowed")
	}
	if !rl.Allow("team-2") {
		t.Fatal("expected first request for team-2 to be allowed regardless of team-1's usage")
	}
	if rl.Allow("team-1") {
		t.Fatal("expected team-1's second request to be blocked")
	}
}

func TestRateLimiterForgetsExpiredRequests(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	if !rl.Allow("team-1") {
		t.Fatal("expected first request to be allowed")
	}
	if rl.Allow("team-1") {
		t.Fatal("expected immediate second request to be blocked")
	}

	time.Sleep(30 * time.Millisecond)

	if !rl.Allow("team-1") {
		t.Fatal("expected request to be allowed again once the window elapsed")
	}
}
