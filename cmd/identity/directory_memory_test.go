package identity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func TestMemoryDirectory_RegisterOrGet_FirstDisplayNameWins(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory()

	u1, err := d.RegisterOrGet(ctx, "alice@example.com", "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, u1.ID)

	u2, err := d.RegisterOrGet(ctx, "ALICE@example.com", "Someone Else")
	require.NoError(t, err)

	assert.Equal(t, u1.ID, u2.ID)
	assert.Equal(t, "Alice", u2.DisplayName)
	assert.Equal(t, "alice@example.com", u2.EmailNorm)
	assert.Equal(t, 1, d.Len())
}

func TestMemoryDirectory_RegisterOrGet_DefaultDisplayName(t *testing.T) {
	d := NewMemoryDirectory()

	u, err := d.RegisterOrGet(context.Background(), "  bob@example.com ", "   ")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.DisplayName)
	assert.Equal(t, "bob@example.com", u.Email)
}

func TestMemoryDirectory_RegisterOrGet_InvalidEmail(t *testing.T) {
	d := NewMemoryDirectory()

	for _, email := range []string{"", "   ", "not-an-email", "a@"} {
		_, err := d.RegisterOrGet(context.Background(), email, "x")
		require.Error(t, err, email)
		assert.True(t, IsInvalidInput(err), email)
	}
	assert.Equal(t, 0, d.Len())
}

func TestMemoryDirectory_RegisterOrGet_IDCollision(t *testing.T) {
	d := NewMemoryDirectory(WithIDGenerator(func(time.Time) string { return "same" }))

	_, err := d.RegisterOrGet(context.Background(), "a@example.com", "")
	require.NoError(t, err)

	_, err = d.RegisterOrGet(context.Background(), "b@example.com", "")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryDirectory_Lookup(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory()

	u, err := d.RegisterOrGet(ctx, "user@test.com", "Test User")
	require.NoError(t, err)

	got, err := d.ByEmail(ctx, " USER@Test.com ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = d.ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "user@test.com", got.Email)

	_, err = d.ByEmail(ctx, "nobody@test.com")
	assert.True(t, IsNotFound(err))

	_, err = d.ByID(ctx, "missing")
	assert.True(t, IsNotFound(err))

	_, err = d.ByEmail(ctx, "")
	assert.True(t, IsInvalidInput(err))
}

func TestMemoryDirectory_All_SortedByCreation(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory(WithClock(fixedClock(time.Unix(1_700_000_000, 0).UTC())))

	for _, e := range []string{"c@example.com", "a@example.com", "b@example.com"} {
		_, err := d.RegisterOrGet(ctx, e, "")
		require.NoError(t, err)
	}

	all, err := d.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c@example.com", all[0].Email)
	assert.Equal(t, "a@example.com", all[1].Email)
	assert.Equal(t, "b@example.com", all[2].Email)
}

func TestMemoryDirectory_RecordLogin(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory()

	u, err := d.RegisterOrGet(ctx, "alice@example.com", "Alice")
	require.NoError(t, err)
	require.Nil(t, u.LastLoginAt)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	u, err = d.RecordLogin(ctx, u.ID, "phone-1", at)
	require.NoError(t, err)
	require.NotNil(t, u.LastLoginAt)
	assert.True(t, at.Equal(*u.LastLoginAt))
	assert.Equal(t, []string{"phone-1"}, u.DeviceIDs)

	// Same device again: set semantics.
	u, err = d.RecordLogin(ctx, u.ID, "phone-1", at.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"phone-1"}, u.DeviceIDs)

	u, err = d.RecordLogin(ctx, u.ID, "", at.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Len(t, u.DeviceIDs, 1)
	assert.True(t, u.HasDevice("phone-1"))

	_, err = d.RecordLogin(ctx, "missing", "x", at)
	assert.True(t, IsNotFound(err))
}

func TestMemoryDirectory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory()

	u, err := d.RegisterOrGet(ctx, "alice@example.com", "Alice")
	require.NoError(t, err)
	u, err = d.RecordLogin(ctx, u.ID, "phone-1", time.Now())
	require.NoError(t, err)

	u.DeviceIDs[0] = "tampered"
	u.DisplayName = "tampered"

	got, err := d.ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.Equal(t, []string{"phone-1"}, got.DeviceIDs)
}

func TestMemoryDirectory_ConcurrentRegisterSameEmail(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory()

	const n = 32
	ids := make([]string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := d.RegisterOrGet(ctx, "race@example.com", fmt.Sprintf("name-%d", i))
			if err == nil {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, d.Len())
}

func TestMemoryDirectory_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryDirectory().RegisterOrGet(ctx, "a@example.com", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseSeeds(t *testing.T) {
	seeds, err := ParseSeeds(" alice@example.com:Alice Tester , bob@example.com ,")
	require.NoError(t, err)
	require.Equal(t, []Seed{
		{Email: "alice@example.com", DisplayName: "Alice Tester"},
		{Email: "bob@example.com"},
	}, seeds)

	seeds, err = ParseSeeds("")
	require.NoError(t, err)
	assert.Nil(t, seeds)

	_, err = ParseSeeds("nope:Name")
	require.Error(t, err)
}

func TestSeedDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory()

	require.NoError(t, SeedDirectory(ctx, d, DemoSeeds))
	assert.Equal(t, len(DemoSeeds), d.Len())

	u, err := d.ByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Bob Developer", u.DisplayName)
}
