package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qrauth/cmd/identity"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(_ context.Context, ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	m     *Machine
	store *MemoryStore
	users *identity.MemoryDirectory
	clock *testClock
	log   *eventLog
	alice identity.User
	bob   identity.User
}

func newFixture(t *testing.T, storeOpts ...MemoryStoreOption) *fixture {
	t.Helper()

	ctx := context.Background()
	f := &fixture{
		store: NewMemoryStore(storeOpts...),
		users: identity.NewMemoryDirectory(),
		clock: newTestClock(),
		log:   &eventLog{},
	}

	var err error
	f.alice, err = f.users.RegisterOrGet(ctx, "alice@example.com", "Alice Tester")
	require.NoError(t, err)
	f.bob, err = f.users.RegisterOrGet(ctx, "bob@example.com", "Bob Developer")
	require.NoError(t, err)

	f.m = NewMachine(DefaultConfig(), f.store, f.users, WithClock(f.clock.Now), WithObserver(f.log))
	return f
}
