package ratelimiter

import (
	"testing"

	"github.com/vellumhq/vellum-go/lib/settings"
)

func TestCheckRateLimitBudget(t *testing.T) {
	limiting := settings.ChangeRateLimiting{Duration: 60, Points: 2}
	key := Key("author-" + t.Name())

	if err := CheckRateLimit(key, limiting); err != nil {
		t.Fatalf("first change: %v", err)
	}
	if err := CheckRateLimit(key, limiting); err != nil {
		t.Fatalf("second change: %v", err)
	}
	if err := CheckRateLimit(key, limiting); err == nil {
		t.Fatal("third change should exceed the budget")
	}
}

func TestCheckRateLimitIsPerKey(t *testing.T) {
	limiting := settings.ChangeRateLimiting{Duration: 60, Points: 1}

	if err := CheckRateLimit(Key("first-"+t.Name()), limiting); err != nil {
		t.Fatalf("first key: %v", err)
	}
	if err := CheckRateLimit(Key("second-"+t.Name()), limiting); err != nil {
		t.Fatalf("second key should have its own budget: %v", err)
	}
}

func TestCheckRateLimitDisabled(t *testing.T) {
	limiting := settings.ChangeRateLimiting{Duration: 60, Points: 0, Disabled: true}
	key := Key("author-" + t.Name())

	for i := 0; i < 5; i++ {
		if err := CheckRateLimit(key, limiting); err != nil {
			t.Fatalf("disabled limiter rejected change %d: %v", i, err)
		}
	}
}
