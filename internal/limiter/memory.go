package limiter

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	fails        int
	blockedUntil time.Time
	updatedAt    time.Time
}

// Memory is a process-local limiter with the same policy as PG.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	policy  Policy
	now     func() time.Time
}

// NewMemory constructs an in-memory limiter.
func NewMemory(p Policy) *Memory {
	return &Memory{entries: map[string]*entry{}, policy: p, now: time.Now}
}

func key(login string, ipHash []byte) string { return login + "\x00" + string(ipHash) }

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, login string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key(login, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if now := m.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success implements Limiter.
func (m *Memory) Success(_ context.Context, login string, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key(login, ipHash))
	return nil
}

// Failure implements Limiter.
func (m *Memory) Failure(_ context.Context, login string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	k := key(login, ipHash)
	e, ok := m.entries[k]
	if !ok || now.Sub(e.updatedAt) > m.policy.Window {
		e = &entry{}
		m.entries[k] = e
	}
	e.fails++
	e.updatedAt = now
	if e.fails >= m.policy.MaxFails {
		e.blockedUntil = now.Add(m.policy.BlockFor)
		return true, m.policy.BlockFor, nil
	}
	return false, 0, nil
}
