package invites

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/campus-server/internal/store"
	"github.com/vovakirdan/campus-server/internal/store/sqlstore"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *sqlstore.Store) {
	t.Helper()
	st, err := sqlstore.New(context.Background(), sqlstore.Options{Driver: sqlstore.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := New(st)
	svc.now = func() time.Time { return epoch }
	return svc, st
}

func newUser(t *testing.T, st store.Store, email string, role store.Role) *store.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), email, "hash", role)
	require.NoError(t, err)
	return u
}

func TestCreate(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	admin := newUser(t, st, "admin@example.com", store.RoleAdmin)

	inv, err := svc.Create(ctx, admin.ID, store.RoleMember, epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(inv.Code), 6)
	assert.Equal(t, store.RoleMember, inv.RoleToGrant)

	stored, err := st.GetInvite(ctx, inv.Code)
	require.NoError(t, err)
	assert.Nil(t, stored.UsedBy)
	assert.True(t, stored.ExpiresAt.Equal(epoch.Add(time.Hour)))

	entries, err := st.ListAudit(ctx, "invite", inv.Code)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "invite.create", entries[0].Action)
	assert.Equal(t, admin.ID, entries[0].ActorID)
	assert.Equal(t, "member", entries[0].Meta["role"])
}

func TestCreateRejects(t *testing.T) {
	svc, st := newService(t)
	admin := newUser(t, st, "admin@example.com", store.RoleAdmin)

	tests := []struct {
		name    string
		role    store.Role
		expires time.Time
		want    error
	}{
		{name: "expiry now", role: store.RoleMember, expires: epoch, want: ErrExpiryInPast},
		{name: "expiry past", role: store.RoleMember, expires: epoch.Add(-time.Minute), want: ErrExpiryInPast},
		{name: "unknown role", role: store.Role("owner"), expires: epoch.Add(time.Hour), want: ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), admin.ID, tt.role, tt.expires)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRedeem(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	admin := newUser(t, st, "admin@example.com", store.RoleAdmin)
	bob := newUser(t, st, "bob@example.com", store.RoleUser)
	eve := newUser(t, st, "eve@example.com", store.RoleUser)

	inv, err := svc.Create(ctx, admin.ID, store.RoleMember, epoch.Add(time.Hour))
	require.NoError(t, err)

	role, err := svc.Redeem(ctx, bob.ID, inv.Code)
	require.NoError(t, err)
	assert.Equal(t, store.RoleMember, role)

	got, err := st.GetUserByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RoleMember, got.Role)

	_, err = svc.Redeem(ctx, eve.ID, inv.Code)
	assert.ErrorIs(t, err, ErrInviteUsed)
	got, err = st.GetUserByID(ctx, eve.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RoleUser, got.Role)

	entries, err := st.ListAudit(ctx, "invite", inv.Code)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "invite.redeem", entries[1].Action)
	assert.Equal(t, bob.ID, entries[1].ActorID)
}

func TestRedeemErrors(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	admin := newUser(t, st, "admin@example.com", store.RoleAdmin)
	bob := newUser(t, st, "bob@example.com", store.RoleUser)

	inv, err := svc.Create(ctx, admin.ID, store.RoleMember, epoch.Add(time.Minute))
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, bob.ID, "no-such-code")
	assert.ErrorIs(t, err, ErrInvalidCode)

	svc.now = func() time.Time { return epoch.Add(time.Minute) }
	_, err = svc.Redeem(ctx, bob.ID, inv.Code)
	assert.ErrorIs(t, err, ErrInviteExpired)

	got, err := st.GetInvite(ctx, inv.Code)
	require.NoError(t, err)
	assert.Nil(t, got.UsedBy, "a failed redeem must not consume the invite")
}

func TestRedeemConcurrent(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	admin := newUser(t, st, "admin@example.com", store.RoleAdmin)
	inv, err := svc.Create(ctx, admin.ID, store.RoleAdmin, epoch.Add(time.Hour))
	require.NoError(t, err)

	const n = 8
	users := make([]*store.User, n)
	for i := range users {
		users[i] = newUser(t, st, "user"+string(rune('a'+i))+"@example.com", store.RoleUser)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for _, u := range users {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := svc.Redeem(ctx, id, inv.Code)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInviteUsed)
		}(u.ID)
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestPurgeExpired(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	admin := newUser(t, st, "admin@example.com", store.RoleAdmin)
	bob := newUser(t, st, "bob@example.com", store.RoleUser)

	stale, err := svc.Create(ctx, admin.ID, store.RoleMember, epoch.Add(time.Minute))
	require.NoError(t, err)
	used, err := svc.Create(ctx, admin.ID, store.RoleMember, epoch.Add(time.Minute))
	require.NoError(t, err)
	fresh, err := svc.Create(ctx, admin.ID, store.RoleMember, epoch.Add(time.Hour))
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, bob.ID, used.Code)
	require.NoError(t, err)

	svc.now = func() time.Time { return epoch.Add(2 * time.Minute) }
	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = st.GetInvite(ctx, stale.Code)
	assert.ErrorIs(t, err, store.ErrNotFound)
	for _, code := range []string{used.Code, fresh.Code} {
		_, err = st.GetInvite(ctx, code)
		assert.NoError(t, err)
	}
}

func TestJanitor(t *testing.T) {
	svc, st := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	admin := newUser(t, st, "admin@example.com", store.RoleAdmin)

	stale, err := svc.Create(ctx, admin.ID, store.RoleMember, epoch.Add(time.Minute))
	require.NoError(t, err)
	svc.now = func() time.Time { return epoch.Add(time.Hour) }

	_, err = NewJanitor(svc, "not a cron", &zerolog.Logger{})
	require.Error(t, err)

	logger := zerolog.Nop()
	j, err := NewJanitor(svc, "*/5 * * * *", &logger)
	require.NoError(t, err)

	var waits []time.Duration
	j.now = func() time.Time { return epoch.Add(time.Hour + 2*time.Minute) }
	j.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		if len(waits) > 1 {
			return nil
		}
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := st.GetInvite(context.Background(), stale.Code)
		return err != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
	assert.Equal(t, 3*time.Minute, waits[0])
}
