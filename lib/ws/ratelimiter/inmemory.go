// Package ratelimiter caps how fast one author may push changes into a
// session, with a sliding window kept in memory.
package ratelimiter

import (
	"sync"
	"time"

	"github.com/vellumhq/vellum-go/lib/settings"
)

// Key identifies the author being limited.
type Key string

type Event struct {
	LastOccurrence int64
}

type RateLimiter struct {
	Mu          sync.RWMutex
	RateLimiter map[Key][]Event
}

var rateLimiter RateLimiter

func init() {
	rateLimiter = RateLimiter{
		Mu:          sync.RWMutex{},
		RateLimiter: make(map[Key][]Event),
	}
}

type ErrRateLimitExceeded struct{}

func (e ErrRateLimitExceeded) Error() string {
	return "rate limit exceeded"
}

// CheckRateLimit records one change for the key and reports whether the
// window's budget is spent.
func CheckRateLimit(key Key, limiting settings.ChangeRateLimiting) error {
	if limiting.Disabled {
		return nil
	}

	rateLimiter.Mu.RLock()
	value, ok := rateLimiter.RateLimiter[key]
	rateLimiter.Mu.RUnlock()
	if !ok {
		rateLimiter.Mu.Lock()
		rateLimiter.RateLimiter[key] = []Event{}
		value = rateLimiter.RateLimiter[key]
		rateLimiter.Mu.Unlock()
	}

	// Drop events that fell out of the window.
	cutoff := time.Now().Add(time.Duration(-limiting.Duration) * time.Second).Unix()
	var filteredEvents []Event
	for _, event := range value {
		if event.LastOccurrence >= cutoff {
			filteredEvents = append(filteredEvents, event)
		}
	}

	filteredEvents = append(filteredEvents, Event{LastOccurrence: time.Now().Unix()})
	rateLimiter.Mu.Lock()
	defer rateLimiter.Mu.Unlock()
	rateLimiter.RateLimiter[key] = filteredEvents
	if len(rateLimiter.RateLimiter[key]) > limiting.Points {
		return ErrRateLimitExceeded{}
	}
	return nil
}
