package service

import (
	"context"
	"sync"
)

// stubAudit collects audit entries emitted by services under test.
type stubAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (s *stubAudit) Record(ctx context.Context, entry AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func (s *stubAudit) recorded() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// stubNotifier collects notifications instead of dispatching them.
type stubNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (s *stubNotifier) Notify(ctx context.Context, notification Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, notification)
}

func (s *stubNotifier) notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.sent))
	copy(out, s.sent)
	return out
}
