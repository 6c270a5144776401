package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxKeyAttempts bounds regeneration retries when the store rejects a
// generated key under the unique constraint.
const maxKeyAttempts = 5

// Store is the persistence contract the engines require. The sqlite package
// provides the production implementation.
type Store interface {
	// Insert persists a new record and returns the store-assigned id. It
	// returns ErrDuplicateKey when the key violates the unique constraint.
	Insert(ctx context.Context, l *License) (int64, error)

	// GetByKey returns the record for an exact key match or ErrNotFound.
	GetByKey(ctx context.Context, key string) (*License, error)

	// ListAll returns every extant record.
	ListAll(ctx context.Context) ([]License, error)

	// ListByOwner returns records assigned to the given owner.
	ListByOwner(ctx context.Context, ownerID string) ([]License, error)

	// UpdateOwner overwrites the owner fields unconditionally.
	UpdateOwner(ctx context.Context, id int64, ownerID, ownerName string) error

	// ClaimOwner sets the owner fields only if the record is currently
	// unassigned, reporting whether the claim won. This is the conditional
	// write that closes the redeem race.
	ClaimOwner(ctx context.Context, id int64, ownerID, ownerName string) (bool, error)

	// UpdateActive toggles the is_active flag.
	UpdateActive(ctx context.Context, id int64, active bool) error

	// UpdateRenewal replaces expiration and metadata in a single statement.
	UpdateRenewal(ctx context.Context, id int64, expiresAt *int64, meta Metadata) error

	// Delete removes the record permanently.
	Delete(ctx context.Context, id int64) error

	// AppendLog writes one row to the append-only usage log.
	AppendLog(ctx context.Context, licenseID int64, action, details string) error
}

// Service is the lifecycle engine. All operations are synchronous single-row
// writes; the only read-modify-write sequence, self-service redemption, is
// protected by the store's conditional claim.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a lifecycle engine over the given store.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With(slog.String("component", "license")),
		now:    time.Now,
	}
}

// CreateParams carries the inputs for issuing one license. A nil
// DurationDays issues a lifetime license.
type CreateParams struct {
	Product      string
	Email        string
	DurationDays *int
	CreatedBy    string
	KeyPrefix    string
	BatchID      string
}

// Create issues a new license. The key is generated locally and committed
// under the store's unique constraint; on a duplicate the key is regenerated
// up to maxKeyAttempts times before the conflict is surfaced.
func (s *Service) Create(ctx context.Context, p CreateParams) (*License, error) {
	issuedAt := s.now().Unix()

	var expiresAt *int64
	if p.DurationDays != nil {
		exp := issuedAt + int64(*p.DurationDays)*SecondsPerDay
		expiresAt = &exp
	}

	lic := &License{
		Product:   p.Product,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		IsActive:  true,
		Metadata: Metadata{
			CreatedBy: p.CreatedBy,
			BatchID:   p.BatchID,
		},
	}
	if p.Email != "" {
		email := p.Email
		lic.Email = &email
	}

	var lastErr error
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		lic.Key = GenerateKey(p.KeyPrefix)

		id, err := s.store.Insert(ctx, lic)
		if err == nil {
			lic.ID = id
			s.logCreated(ctx, lic)
			return lic, nil
		}
		if !errors.Is(err, ErrDuplicateKey) {
			return nil, fmt.Errorf("create license: %w", err)
		}
		lastErr = err
		s.logger.WarnContext(ctx, "generated key collided, regenerating",
			slog.String("product", p.Product),
			slog.Int("attempt", attempt+1))
	}
	return nil, fmt.Errorf("create license: exhausted key generation attempts: %w", lastErr)
}

// BulkCreate issues count licenses sharing one batch id. Partial failure
// returns the licenses created so far alongside the error.
func (s *Service) BulkCreate(ctx context.Context, count int, p CreateParams) ([]License, error) {
	if p.BatchID == "" {
		p.BatchID = uuid.New().String()
	}

	created := make([]License, 0, count)
	for i := 0; i < count; i++ {
		lic, err := s.Create(ctx, p)
		if err != nil {
			return created, fmt.Errorf("bulk create: license %d of %d: %w", i+1, count, err)
		}
		created = append(created, *lic)
	}
	return created, nil
}

// Lookup returns the record for a key, or ErrNotFound. Keys are uppercased
// here so every caller gets the case-insensitive-by-convention behavior.
func (s *Service) Lookup(ctx context.Context, key string) (*License, error) {
	return s.store.GetByKey(ctx, strings.ToUpper(strings.TrimSpace(key)))
}

// Validate resolves a key to its outward-facing status snapshot. It is the
// sole contract the engine exposes to the validation boundary.
func (s *Service) Validate(ctx context.Context, key string) (*Status, error) {
	lic, err := s.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	status := lic.StatusAt(s.now())
	return &status, nil
}

// Assign overwrites the owner fields unconditionally. This is the
// administrative path; it deliberately permits reassignment, so callers
// that want redemption semantics must use Redeem instead.
func (s *Service) Assign(ctx context.Context, lic *License, ownerID, ownerName string) error {
	if err := s.store.UpdateOwner(ctx, lic.ID, ownerID, ownerName); err != nil {
		return fmt.Errorf("assign license: %w", err)
	}
	lic.OwnerID = &ownerID
	lic.OwnerName = &ownerName

	s.appendLog(ctx, lic.ID, ActionAssign, fmt.Sprintf("Assigned to %s (%s)", ownerName, ownerID))
	return nil
}

// Redeem performs self-service assignment of an unassigned license.
//
// Redeeming a license you already own is a no-op success. A license owned by
// someone else fails with ErrAlreadyAssigned, a deactivated one with
// ErrInactive, an expired one with ErrExpired. The final claim is a
// conditional store write, so two concurrent redeemers cannot both win: the
// loser observes zero affected rows and is re-checked against the winning
// owner.
func (s *Service) Redeem(ctx context.Context, key, ownerID, ownerName string) (*License, error) {
	lic, err := s.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	if lic.OwnerID != nil {
		if *lic.OwnerID == ownerID {
			return lic, nil
		}
		return nil, ErrAlreadyAssigned
	}
	if !lic.IsActive {
		return nil, ErrInactive
	}
	if lic.Expired(s.now()) {
		return nil, ErrExpired
	}

	claimed, err := s.store.ClaimOwner(ctx, lic.ID, ownerID, ownerName)
	if err != nil {
		return nil, fmt.Errorf("redeem license: %w", err)
	}
	if !claimed {
		// Lost the race. If the winner was a concurrent request from the
		// same user, honor the no-op success contract.
		current, lookupErr := s.store.GetByKey(ctx, lic.Key)
		if lookupErr == nil && current.OwnerID != nil && *current.OwnerID == ownerID {
			return current, nil
		}
		return nil, ErrAlreadyAssigned
	}

	lic.OwnerID = &ownerID
	lic.OwnerName = &ownerName
	s.appendLog(ctx, lic.ID, ActionAssign, fmt.Sprintf("Redeemed by %s (%s)", ownerName, ownerID))
	s.logger.InfoContext(ctx, "license redeemed",
		slog.String("key", maskKey(lic.Key)),
		slog.String("owner_id", ownerID))
	return lic, nil
}

// SetActive toggles the administrative active flag. Setting the current
// value is harmless; the engine does not special-case it.
func (s *Service) SetActive(ctx context.Context, lic *License, active bool) error {
	if err := s.store.UpdateActive(ctx, lic.ID, active); err != nil {
		return fmt.Errorf("set license active: %w", err)
	}
	lic.IsActive = active

	action := ActionDeactivate
	details := "License deactivated"
	if active {
		action = ActionActivate
		details = "License activated"
	}
	s.appendLog(ctx, lic.ID, action, details)
	return nil
}

// Delete removes the record permanently. There is no tombstone: the usage
// log is the only remaining trace of a deleted license.
func (s *Service) Delete(ctx context.Context, lic *License) error {
	s.appendLog(ctx, lic.ID, ActionDelete, "License deleted")
	if err := s.store.Delete(ctx, lic.ID); err != nil {
		return fmt.Errorf("delete license: %w", err)
	}
	s.logger.InfoContext(ctx, "license deleted", slog.String("key", maskKey(lic.Key)))
	return nil
}

// List returns every extant license.
func (s *Service) List(ctx context.Context) ([]License, error) {
	return s.store.ListAll(ctx)
}

// ListByOwner returns the licenses assigned to one owner.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]License, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

func (s *Service) logCreated(ctx context.Context, lic *License) {
	s.appendLog(ctx, lic.ID, ActionCreate, "License created")
	s.logger.InfoContext(ctx, "license created",
		slog.String("key", maskKey(lic.Key)),
		slog.String("product", lic.Product),
		slog.Bool("lifetime", lic.ExpiresAt == nil))
}

// appendLog writes to the usage log, logging rather than failing the parent
// operation when the audit write itself fails.
func (s *Service) appendLog(ctx context.Context, licenseID int64, action, details string) {
	if err := s.store.AppendLog(ctx, licenseID, action, details); err != nil {
		s.logger.ErrorContext(ctx, "usage log write failed",
			slog.Int64("license_id", licenseID),
			slog.String("action", action),
			slog.String("error", err.Error()))
	}
}

// maskKey keeps only the leading group of a key in log output.
func maskKey(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[:4] + "***"
}
