package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptrInt64(v int64) *int64 { return &v }
func ptrStr(v string) *string { return &v }
func ptrInt(v int) *int       { return &v }

func TestLicenseValidity(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name        string
		license     License
		wantExpired bool
		wantValid   bool
	}{
		{
			name:        "active lifetime license",
			license:     License{IsActive: true},
			wantExpired: false,
			wantValid:   true,
		},
		{
			name:        "active unexpired license",
			license:     License{IsActive: true, ExpiresAt: ptrInt64(now.Unix() + 3600)},
			wantExpired: false,
			wantValid:   true,
		},
		{
			name:        "active license expiring exactly now is not yet expired",
			license:     License{IsActive: true, ExpiresAt: ptrInt64(now.Unix())},
			wantExpired: false,
			wantValid:   true,
		},
		{
			name:        "active expired license",
			license:     License{IsActive: true, ExpiresAt: ptrInt64(now.Unix() - 1)},
			wantExpired: true,
			wantValid:   false,
		},
		{
			name:        "deactivated unexpired license",
			license:     License{IsActive: false, ExpiresAt: ptrInt64(now.Unix() + 3600)},
			wantExpired: false,
			wantValid:   false,
		},
		{
			name:        "deactivated and expired are independent axes",
			license:     License{IsActive: false, ExpiresAt: ptrInt64(now.Unix() - 3600)},
			wantExpired: true,
			wantValid:   false,
		},
		{
			name:        "deactivated lifetime license",
			license:     License{IsActive: false},
			wantExpired: false,
			wantValid:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantExpired, tt.license.Expired(now))
			assert.Equal(t, tt.wantValid, tt.license.Valid(now))
		})
	}
}

func TestValidityIsIdempotent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	lic := License{IsActive: true, ExpiresAt: ptrInt64(now.Unix() + 60)}

	first := lic.Valid(now)
	second := lic.Valid(now)
	assert.Equal(t, first, second)
}

func TestStatusAt(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	lic := License{
		Key:       "CAAA-BBBB-CCCC-DDDD",
		Product:   "cs2",
		OwnerID:   ptrStr("U1"),
		OwnerName: ptrStr("user one"),
		Email:     ptrStr("u1@example.com"),
		IssuedAt:  now.Unix() - 100,
		ExpiresAt: ptrInt64(now.Unix() - 10),
		IsActive:  true,
	}

	status := lic.StatusAt(now)

	assert.Equal(t, lic.Key, status.Key)
	assert.Equal(t, "cs2", status.Product)
	assert.True(t, status.IsActive)
	assert.True(t, status.IsExpired)
	assert.False(t, status.IsValid, "expired license must not be valid even while active")
	assert.Equal(t, "U1", *status.OwnerID)
	assert.Equal(t, lic.ExpiresAt, status.ExpiresAt)
}

func TestRevokedLicenseStatus(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	lic := License{
		Key:       "CAAA-BBBB-CCCC-DDDD",
		Product:   "cs2",
		IssuedAt:  now.Unix(),
		ExpiresAt: ptrInt64(now.Unix() + SecondsPerDay),
		IsActive:  false,
	}

	status := lic.StatusAt(now)

	assert.False(t, status.IsValid)
	assert.False(t, status.IsExpired)
	assert.False(t, status.IsActive)
}
