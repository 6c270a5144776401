package license

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store with the same claim semantics as the
// sqlite implementation, used to exercise the engines without a database.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	byKey   map[string]*License
	logs    []logEntry
	failing bool
}

type logEntry struct {
	licenseID int64
	action    string
	details   string
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, byKey: make(map[string]*License)}
}

func (m *memStore) Insert(_ context.Context, l *License) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byKey[l.Key]; exists {
		return 0, ErrDuplicateKey
	}
	clone := *l
	clone.ID = m.nextID
	m.nextID++
	m.byKey[l.Key] = &clone
	return clone.ID, nil
}

func (m *memStore) GetByKey(_ context.Context, key string) (*License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *l
	return &clone, nil
}

func (m *memStore) ListAll(_ context.Context) ([]License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]License, 0, len(m.byKey))
	for _, l := range m.byKey {
		out = append(out, *l)
	}
	return out, nil
}

func (m *memStore) ListByOwner(_ context.Context, ownerID string) ([]License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []License
	for _, l := range m.byKey {
		if l.OwnerID != nil && *l.OwnerID == ownerID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memStore) find(id int64) *License {
	for _, l := range m.byKey {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (m *memStore) UpdateOwner(_ context.Context, id int64, ownerID, ownerName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.find(id)
	if l == nil {
		return ErrNotFound
	}
	l.OwnerID, l.OwnerName = &ownerID, &ownerName
	return nil
}

func (m *memStore) ClaimOwner(_ context.Context, id int64, ownerID, ownerName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.find(id)
	if l == nil {
		return false, ErrNotFound
	}
	if l.OwnerID != nil {
		return false, nil
	}
	l.OwnerID, l.OwnerName = &ownerID, &ownerName
	return true, nil
}

func (m *memStore) UpdateActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.find(id)
	if l == nil {
		return ErrNotFound
	}
	l.IsActive = active
	return nil
}

func (m *memStore) UpdateRenewal(_ context.Context, id int64, expiresAt *int64, meta Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.find(id)
	if l == nil {
		return ErrNotFound
	}
	l.ExpiresAt = expiresAt
	l.Metadata = meta
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, l := range m.byKey {
		if l.ID == id {
			delete(m.byKey, key)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) AppendLog(_ context.Context, licenseID int64, action, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, logEntry{licenseID: licenseID, action: action, details: details})
	return nil
}

func newTestService(t *testing.T, store Store, now time.Time) *Service {
	t.Helper()
	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return now }
	return svc
}

func TestCreateLicense(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newMemStore()
	svc := newTestService(t, store, now)

	lic, err := svc.Create(context.Background(), CreateParams{
		Product:      "cs2",
		DurationDays: ptrInt(30),
		CreatedBy:    "admin-1",
		KeyPrefix:    "C",
	})
	require.NoError(t, err)

	assert.Equal(t, "cs2", lic.Product)
	assert.Equal(t, now.Unix(), lic.IssuedAt)
	require.NotNil(t, lic.ExpiresAt)
	assert.Equal(t, now.Unix()+30*SecondsPerDay, *lic.ExpiresAt)
	assert.True(t, lic.IsActive)
	assert.Nil(t, lic.OwnerID)
	assert.Len(t, lic.Key, KeyLength)
	assert.Equal(t, "admin-1", lic.Metadata.CreatedBy)

	require.Len(t, store.logs, 1)
	assert.Equal(t, ActionCreate, store.logs[0].action)
}

func TestCreateLifetimeLicense(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	svc := newTestService(t, newMemStore(), now)

	lic, err := svc.Create(context.Background(), CreateParams{Product: "eft", CreatedBy: "admin-1"})
	require.NoError(t, err)
	assert.Nil(t, lic.ExpiresAt)
}

func TestCreateRetriesOnDuplicateKey(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := &collidingStore{memStore: newMemStore(), collisions: 2}
	svc := newTestService(t, store, now)

	lic, err := svc.Create(context.Background(), CreateParams{Product: "cs2", CreatedBy: "admin-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, lic.Key)
	assert.Equal(t, 3, store.attempts)
}

func TestCreateExhaustsKeyAttempts(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := &collidingStore{memStore: newMemStore(), collisions: maxKeyAttempts + 1}
	svc := newTestService(t, store, now)

	_, err := svc.Create(context.Background(), CreateParams{Product: "cs2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

// collidingStore forces the first n inserts to fail with ErrDuplicateKey.
type collidingStore struct {
	*memStore
	collisions int
	attempts   int
}

func (c *collidingStore) Insert(ctx context.Context, l *License) (int64, error) {
	c.attempts++
	if c.attempts <= c.collisions {
		return 0, ErrDuplicateKey
	}
	return c.memStore.Insert(ctx, l)
}

func TestBulkCreateSharesBatchID(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	svc := newTestService(t, newMemStore(), now)

	licenses, err := svc.BulkCreate(context.Background(), 5, CreateParams{Product: "cs2", CreatedBy: "admin-1"})
	require.NoError(t, err)
	require.Len(t, licenses, 5)

	batch := licenses[0].Metadata.BatchID
	require.NotEmpty(t, batch)
	seen := make(map[string]bool)
	for _, lic := range licenses {
		assert.Equal(t, batch, lic.Metadata.BatchID)
		assert.False(t, seen[lic.Key], "bulk create produced duplicate committed key")
		seen[lic.Key] = true
	}
}

func TestLookupUppercasesKey(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newMemStore()
	svc := newTestService(t, store, now)

	lic, err := svc.Create(context.Background(), CreateParams{Product: "cs2"})
	require.NoError(t, err)

	found, err := svc.Lookup(context.Background(), "  "+lowercase(lic.Key)+" ")
	require.NoError(t, err)
	assert.Equal(t, lic.Key, found.Key)
}

func lowercase(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + ('a' - 'A')
		}
	}
	return string(out)
}

func TestLookupNotFound(t *testing.T) {
	svc := newTestService(t, newMemStore(), time.Unix(1_700_000_000, 0))

	_, err := svc.Lookup(context.Background(), "XXXX-XXXX-XXXX-XXXX")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeemScenarios(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	t.Run("successful redemption", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(t, store, now)
		lic, err := svc.Create(context.Background(), CreateParams{Product: "cs2", DurationDays: ptrInt(30)})
		require.NoError(t, err)

		got, err := svc.Redeem(context.Background(), lic.Key, "U1", "user one")
		require.NoError(t, err)
		require.NotNil(t, got.OwnerID)
		assert.Equal(t, "U1", *got.OwnerID)
		assert.Equal(t, "user one", *got.OwnerName)
	})

	t.Run("second redeem by same user is a no-op success", func(t *testing.T) {
		svc := newTestService(t, newMemStore(), now)
		lic, err := svc.Create(context.Background(), CreateParams{Product: "cs2", DurationDays: ptrInt(30)})
		require.NoError(t, err)

		_, err = svc.Redeem(context.Background(), lic.Key, "U1", "user one")
		require.NoError(t, err)

		got, err := svc.Redeem(context.Background(), lic.Key, "U1", "user one")
		require.NoError(t, err)
		assert.Equal(t, "U1", *got.OwnerID)
	})

	t.Run("redeem by second user conflicts", func(t *testing.T) {
		svc := newTestService(t, newMemStore(), now)
		lic, err := svc.Create(context.Background(), CreateParams{Product: "cs2", DurationDays: ptrInt(30)})
		require.NoError(t, err)

		_, err = svc.Redeem(context.Background(), lic.Key, "U1", "user one")
		require.NoError(t, err)

		_, err = svc.Redeem(context.Background(), lic.Key, "U2", "user two")
		assert.ErrorIs(t, err, ErrAlreadyAssigned)
	})

	t.Run("deactivated license cannot be redeemed", func(t *testing.T) {
		svc := newTestService(t, newMemStore(), now)
		lic, err := svc.Create(context.Background(), CreateParams{Product: "cs2"})
		require.NoError(t, err)
		require.NoError(t, svc.SetActive(context.Background(), lic, false))

		_, err = svc.Redeem(context.Background(), lic.Key, "U1", "user one")
		assert.ErrorIs(t, err, ErrInactive)
	})

	t.Run("expired license cannot be redeemed", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(t, store, now)
		lic, err := svc.Create(context.Background(), CreateParams{Product: "cs2", DurationDays: ptrInt(1)})
		require.NoError(t, err)

		svc.now = func() time.Time { return now.Add(2 * SecondsPerDay * time.Second) }
		_, err = svc.Redeem(context.Background(), lic.Key, "U1", "user one")
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("unknown key", func(t *testing.T) {
		svc := newTestService(t, newMemStore(), now)
		_, err := svc.Redeem(context.Background(), "XXXX-XXXX-XXXX-XXXX", "U1", "user one")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRedeemLostRaceBySameUserSucceeds(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newMemStore()
	svc := newTestService(t, store, now)
	lic, err := svc.Create(context.Background(), CreateParams{Product: "cs2"})
	require.NoError(t, err)

	// Simulate losing the claim to a concurrent request from the same user:
	// the record reads back unassigned but the conditional write reports no
	// rows because the other request landed first.
	raced := &racingStore{memStore: store, winner: "U1", winnerName: "user one"}
	svc.store = raced

	got, err := svc.Redeem(context.Background(), lic.Key, "U1", "user one")
	require.NoError(t, err)
	assert.Equal(t, "U1", *got.OwnerID)
}

func TestRedeemLostRaceToOtherUserConflicts(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newMemStore()
	svc := newTestService(t, store, now)
	lic, err := svc.Create(context.Background(), CreateParams{Product: "cs2"})
	require.NoError(t, err)

	raced := &racingStore{memStore: store, winner: "U2", winnerName: "user two"}
	svc.store = raced

	_, err = svc.Redeem(context.Background(), lic.Key, "U1", "user one")
	assert.ErrorIs(t, err, ErrAlreadyAssigned)
}

// racingStore makes every claim lose to a concurrent winner that assigned
// the license between the read and the conditional write.
type racingStore struct {
	*memStore
	winner     string
	winnerName string
}

func (r *racingStore) ClaimOwner(ctx context.Context, id int64, _, _ string) (bool, error) {
	_, err := r.memStore.ClaimOwner(ctx, id, r.winner, r.winnerName)
	if err != nil {
		return false, err
	}
	return false, nil
}

func TestAssignOverwritesOwner(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	svc := newTestService(t, newMemStore(), now)
	lic, err := svc.Create(context.Background(), CreateParams{Product: "cs2"})
	require.NoError(t, err)

	require.NoError(t, svc.Assign(context.Background(), lic, "U1", "user one"))
	require.NoError(t, svc.Assign(context.Background(), lic, "U2", "user two"),
		"administrative reassignment is allowed")
	assert.Equal(t, "U2", *lic.OwnerID)
}

func TestSetActiveLogsAction(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newMemStore()
	svc := newTestService(t, store, now)
	lic, err := svc.Create(context.Background(), CreateParams{Product: "cs2"})
	require.NoError(t, err)

	require.NoError(t, svc.SetActive(context.Background(), lic, false))
	assert.False(t, lic.IsActive)
	require.NoError(t, svc.SetActive(context.Background(), lic, true))
	assert.True(t, lic.IsActive)

	actions := make([]string, 0, len(store.logs))
	for _, l := range store.logs {
		actions = append(actions, l.action)
	}
	assert.Equal(t, []string{ActionCreate, ActionDeactivate, ActionActivate}, actions)
}

func TestDeleteRemovesRecord(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newMemStore()
	svc := newTestService(t, store, now)
	lic, err := svc.Create(context.Background(), CreateParams{Product: "cs2"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), lic))
	_, err = svc.Lookup(context.Background(), lic.Key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateReturnsSnapshot(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	svc := newTestService(t, newMemStore(), now)
	lic, err := svc.Create(context.Background(), CreateParams{Product: "cs2", DurationDays: ptrInt(30)})
	require.NoError(t, err)

	status, err := svc.Validate(context.Background(), lic.Key)
	require.NoError(t, err)
	assert.True(t, status.IsValid)
	assert.False(t, status.IsExpired)
	assert.Nil(t, status.OwnerID)
}
