package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// FakeCountryRoster knows a fixed set of country codes
type FakeCountryRoster struct {
	mu    sync.Mutex
	known map[string]bool
	calls int
	Err   error
}

func NewFakeCountryRoster(codes ...string) *FakeCountryRoster {
	known := make(map[string]bool, len(codes))
	for _, c := range codes {
		known[c] = true
	}
	return &FakeCountryRoster{known: known}
}

func (r *FakeCountryRoster) ValidateCountries(ctx context.Context, codes []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	if r.Err != nil {
		return nil, r.Err
	}
	return lo.Filter(codes, func(code string, _ int) bool {
		return r.known[strings.ToUpper(code)]
	}), nil
}

func (r *FakeCountryRoster) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// FakePermissionChecker answers every Authorize call with Level or Err
type FakePermissionChecker struct {
	Level int
	Err   error
	// Seen records "user/company" for every call
	Seen []string
	mu   sync.Mutex
}

func (c *FakePermissionChecker) Authorize(ctx context.Context, userUUID, companyID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Seen = append(c.Seen, userUUID+"/"+companyID)
	if c.Err != nil {
		return 0, c.Err
	}
	return c.Level, nil
}

// PublishedEvent is one captured change event
type PublishedEvent struct {
	CompanyID string
	Event     string
	Data      map[string]interface{}
}

// EventRecorder captures published change events
type EventRecorder struct {
	mu     sync.Mutex
	events []PublishedEvent
}

func (r *EventRecorder) Publish(companyID, event string, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, PublishedEvent{CompanyID: companyID, Event: event, Data: data})
}

func (r *EventRecorder) Events() []PublishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PublishedEvent(nil), r.events...)
}
