package convstore

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter()
	for i := 0; i < 3; i++ {
		allowed, _ := rl.CheckRate("user1", "chat", 5)
		if !allowed {
			t.Fatalf("expected action %d to be allowed", i)
		}
		rl.RecordAction("user1", "chat")
	}
}

func TestRateLimiter_BlocksAtLimit(t *testing.T) {
	rl := NewRateLimiter()
	for i := 0; i < 3; i++ {
		rl.RecordAction("user1", "chat")
	}
	allowed, reset := rl.CheckRate("user1", "chat", 3)
	if allowed {
		t.Fatalf("expected action to be blocked at the limit")
	}
	if reset <= 0 || reset > 60 {
		t.Fatalf("expected a reset window within 60s, got %d", reset)
	}
}

func TestRateLimiter_IsolatesUsersAndActions(t *testing.T) {
	rl := NewRateLimiter()
	rl.RecordAction("user1", "chat")
	rl.RecordAction("user1", "chat")

	if allowed, _ := rl.CheckRate("user2", "chat", 2); !allowed {
		t.Fatalf("user2 should be unaffected by user1's events")
	}
	if allowed, _ := rl.CheckRate("user1", "generate", 2); !allowed {
		t.Fatalf("a different action for the same user should be unaffected")
	}
}

func TestRateLimiter_PruneOlderThanDropsExpiredEvents(t *testing.T) {
	rl := NewRateLimiter()
	key := rateKey("user1", "chat")
	rl.events[key] = []time.Time{time.Now().Add(-2 * time.Hour)}

	rl.PruneOlderThan(time.Hour)

	if len(rl.events[key]) != 0 {
		t.Fatalf("expected stale event to be pruned, got %d remaining", len(rl.events[key]))
	}
}
