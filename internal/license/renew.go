package license

import (
	"context"
	"fmt"
	"log/slog"
)

// Renew computes a new expiration for an existing license and appends one
// entry to its renewal history. Identity is preserved: key, product, owner,
// email, and issue date never change; the record is updated in place.
//
// A nil durationDays renews to lifetime unconditionally, regardless of
// extend. With extend set, an unexpired license that has an expiration gets
// the new duration stacked on top of its remaining time. Every other case
// (fresh start, extending a lifetime or an already-expired license) restarts
// the clock from now.
func (s *Service) Renew(ctx context.Context, key string, durationDays *int, extend bool, renewedBy string) (*License, error) {
	lic, err := s.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.now().Unix()

	var newExpiresAt *int64
	if durationDays != nil {
		base := now
		if extend && lic.ExpiresAt != nil && now <= *lic.ExpiresAt {
			base = *lic.ExpiresAt
		}
		exp := base + int64(*durationDays)*SecondsPerDay
		newExpiresAt = &exp
	}

	meta := lic.Metadata
	meta.RenewalHistory = append(meta.RenewalHistory, RenewalEvent{
		RenewedBy:          renewedBy,
		RenewedAt:          now,
		PreviousExpiration: lic.ExpiresAt,
		NewExpiration:      newExpiresAt,
		Duration:           durationLabel(durationDays),
	})

	if err := s.store.UpdateRenewal(ctx, lic.ID, newExpiresAt, meta); err != nil {
		return nil, fmt.Errorf("renew license: %w", err)
	}

	lic.ExpiresAt = newExpiresAt
	lic.Metadata = meta

	s.appendLog(ctx, lic.ID, ActionRenew, fmt.Sprintf("Renewed by %s (%s)", renewedBy, durationLabel(durationDays)))
	s.logger.InfoContext(ctx, "license renewed",
		slog.String("key", maskKey(lic.Key)),
		slog.String("duration", durationLabel(durationDays)),
		slog.Bool("extend", extend))
	return lic, nil
}

// durationLabel renders a duration for the renewal history and usage log.
func durationLabel(durationDays *int) string {
	if durationDays == nil {
		return "lifetime"
	}
	if *durationDays == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", *durationDays)
}
