package credit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// UserID identifies an account owner.
type UserID struct {
	value string
}

// EventID identifies the billable event behind a consumption, typically a
// completed interview session.
type EventID struct {
	value string
}

// CreditAmount is a strictly positive whole number of interview credits.
type CreditAmount struct {
	value int64
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// Reference links a ledger entry to an external object such as a payment or
// a subscription.
type Reference struct {
	kind string
	id   string
}

// LedgerKind enumerates ledger entry kinds.
type LedgerKind string

const (
	KindPurchase          LedgerKind = "purchase"
	KindUsage             LedgerKind = "usage"
	KindRefund            LedgerKind = "refund"
	KindSubscriptionGrant LedgerKind = "subscription_grant"
	KindSubscriptionReset LedgerKind = "subscription_reset"
	KindAdminAdjustment   LedgerKind = "admin_adjustment"
)

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewEventID validates and normalizes an event id.
func NewEventID(raw string) (EventID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EventID{}, fmt.Errorf("%w: empty value", ErrInvalidEventID)
	}
	return EventID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id EventID) String() string {
	return id.value
}

// NewCreditAmount validates an amount and ensures it is strictly positive.
func NewCreditAmount(raw int64) (CreditAmount, error) {
	if raw <= 0 {
		return CreditAmount{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidCreditAmount)
	}
	return CreditAmount{value: raw}, nil
}

// Int64 returns the amount as a plain integer.
func (amount CreditAmount) Int64() int64 {
	return amount.value
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// NewReference validates an external reference.
func NewReference(kind string, id string) (Reference, error) {
	trimmedKind := strings.TrimSpace(kind)
	trimmedID := strings.TrimSpace(id)
	if trimmedKind == "" {
		return Reference{}, fmt.Errorf("%w: empty kind", ErrInvalidReference)
	}
	if trimmedID == "" {
		return Reference{}, fmt.Errorf("%w: empty id", ErrInvalidReference)
	}
	return Reference{kind: trimmedKind, id: trimmedID}, nil
}

// Kind returns the referenced object kind, for example "payment".
func (reference Reference) Kind() string {
	return reference.kind
}

// ID returns the referenced object identifier.
func (reference Reference) ID() string {
	return reference.id
}

// ParseLedgerKind validates a raw ledger kind string.
func ParseLedgerKind(raw string) (LedgerKind, error) {
	kind := LedgerKind(strings.TrimSpace(raw))
	switch kind {
	case KindPurchase, KindUsage, KindRefund, KindSubscriptionGrant, KindSubscriptionReset, KindAdminAdjustment:
		return kind, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLedgerKind, raw)
}

// IsSubscription reports whether the kind re-bases the subscription cycle.
func (kind LedgerKind) IsSubscription() bool {
	return kind == KindSubscriptionGrant || kind == KindSubscriptionReset
}

// Store is the persistence contract used by Service. Mutating operations run
// inside a WithTx closure so the account counters, the ledger append, and the
// usage record commit or abort together.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetOrCreateAccount(ctx context.Context, userID UserID) (Account, error)
	GetAccountForUpdate(ctx context.Context, accountID string) (Account, error)
	UpdateAccountCounters(ctx context.Context, account Account) error
	InsertLedgerEntry(ctx context.Context, input LedgerEntryInput) (LedgerEntry, error)
	InsertUsageRecord(ctx context.Context, input UsageRecordInput) (UsageRecord, error)
	GetUsageRecord(ctx context.Context, accountID string, eventID EventID) (UsageRecord, bool, error)
	ListUsageRecords(ctx context.Context, accountID string, limit int) ([]UsageRecord, error)
	ListLedgerEntries(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]LedgerEntry, error)
	SumConsumedCredits(ctx context.Context, accountID string) (int64, error)
}
