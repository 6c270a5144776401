// Package license implements the license lifecycle engine: key generation,
// the validity state machine, redemption and assignment, and renewal
// arithmetic. It owns the License record and its invariants; persistence is
// delegated to a Store implementation and backups to the backup package.
//
// Validity is always derived, never stored: a license is valid when it is
// administratively active and its expiration (if any) has not passed. The
// two axes are independent, so a license can be both deactivated and
// expired at the same time.
package license
