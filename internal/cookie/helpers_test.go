package cookie_test

import (
	"context"
	"sync"
	"time"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
)

type memoryKeysetStore struct {
	mu        sync.Mutex
	props     map[string]domain.CookieSecurityProperties
	interval  time.Duration
	getErr    error
	getHook   func(ctx context.Context) error
	rotations int
	attempts  int
}

func newMemoryKeysetStore(interval time.Duration) *memoryKeysetStore {
	return &memoryKeysetStore{props: map[string]domain.CookieSecurityProperties{}, interval: interval}
}

func (m *memoryKeysetStore) GetCookieSecurityProperties(ctx context.Context, orgID string) (domain.CookieSecurityProperties, error) {
	m.mu.Lock()
	hook := m.getHook
	m.getHook = nil
	m.mu.Unlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return domain.CookieSecurityProperties{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.CookieSecurityProperties{}, m.getErr
	}
	p := m.props[orgID]
	p.Keyset = append([]byte(nil), p.Keyset...)
	p.RotationInterval = m.interval
	return p, nil
}

func (m *memoryKeysetStore) RotateCookieSecurityProperties(_ context.Context, orgID string, expected time.Time, next domain.CookieSecurityProperties) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	current, exists := m.props[orgID]
	if expected.IsZero() {
		if exists && len(current.Keyset) > 0 {
			return false, nil
		}
	} else if !current.LastRotation.Equal(expected) {
		return false, nil
	}
	m.props[orgID] = next
	m.rotations++
	return true, nil
}

func (m *memoryKeysetStore) snapshot(orgID string) domain.CookieSecurityProperties {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.props[orgID]
}

func (m *memoryKeysetStore) rotationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotations
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeResolver struct {
	orgs map[string]domain.Organization
	err  error
}

func (f *fakeResolver) Resolve(_ context.Context, host string) (*domain.Organization, error) {
	if f.err != nil {
		return nil, f.err
	}
	org, ok := f.orgs[host]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &org, nil
}
