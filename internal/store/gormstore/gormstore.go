package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/Cyber1009/Interview-backend/pkg/credit"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintAccountUser       = "idx_credit_accounts_user"
	constraintUsageAccountEvent = "idx_credit_usage_account_event"
	defaultMetadataJSON         = "{}"
	pgUniqueViolationCode       = "23505"
	pgSerializationFailure      = "40001"
	pgDeadlockDetected          = "40P01"
	pgLockNotAvailable          = "55P03"
	sqliteConstraintCode        = 19
	sqliteBusyCode              = 5
	sqliteLockedCode            = 6
	errorOperationStore         = "store"
	errorSubjectAccount         = "account"
	errorSubjectEntry           = "entry"
	errorSubjectUsage           = "usage_record"
	errorSubjectTransaction     = "transaction"
	errorCodeContention         = "contention"
	errorCodeDuplicate          = "duplicate"
	errorCodeGet                = "get"
	errorCodeInsert             = "insert"
	errorCodeList               = "list"
	errorCodeLock               = "lock"
	errorCodeLookup             = "lookup"
	errorCodeSum                = "sum_consumed"
	errorCodeUpdate             = "update"
)

// Store implements credit.Store using GORM. It serves both postgres and
// sqlite deployments; the row lock taken by GetAccountForUpdate serializes
// postgres writers, and the version check in UpdateAccountCounters catches
// sqlite writers (whose dialect drops the locking clause) as contention.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema. sqlite deployments use this; postgres schema
// is owned by the SQL migrations.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{}, &LedgerEntry{}, &UsageRecord{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore credit.Store) error) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
	if err != nil && isContention(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeContention, credit.ErrStoreContention)
	}
	return err
}

func (store *Store) GetOrCreateAccount(ctx context.Context, userID credit.UserID) (credit.Account, error) {
	var account Account
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"user_id": clause.Expr{SQL: "excluded.user_id"},
			}),
		}).
		FirstOrCreate(&account, Account{UserID: userID.String()}).Error
	if err != nil {
		return credit.Account{}, classify(errorSubjectAccount, errorCodeLookup, err)
	}
	return mapAccount(account), nil
}

func (store *Store) GetAccountForUpdate(ctx context.Context, accountID string) (credit.Account, error) {
	var account Account
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).
		Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return credit.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLock, credit.ErrAccountNotFound)
		}
		return credit.Account{}, classify(errorSubjectAccount, errorCodeLock, err)
	}
	return mapAccount(account), nil
}

func (store *Store) UpdateAccountCounters(ctx context.Context, account credit.Account) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ? AND version = ?", account.AccountID, account.Version).
		Updates(map[string]interface{}{
			"purchased_balance":      account.PurchasedBalance,
			"purchased_consumed":     account.PurchasedConsumed,
			"lifetime_purchased":     account.LifetimePurchased,
			"subscription_allowance": account.SubscriptionAllowance,
			"subscription_consumed":  account.SubscriptionConsumed,
			"cycle_reset_at":         unixPointer(account.CycleResetUnixUTC),
			"version":                account.Version + 1,
			"updated_at":             time.Unix(account.UpdatedUnixUTC, 0).UTC(),
		})
	if result.Error != nil {
		return classify(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeContention, credit.ErrStoreContention)
	}
	return nil
}

func (store *Store) InsertLedgerEntry(ctx context.Context, input credit.LedgerEntryInput) (credit.LedgerEntry, error) {
	entry := LedgerEntry{
		AccountID:             input.AccountID,
		Kind:                  string(input.Kind),
		Amount:                input.Amount,
		PurchasedBalanceAfter: input.PurchasedBalanceAfter,
		Description:           input.Description,
		ReferenceKind:         input.ReferenceKind,
		ReferenceID:           input.ReferenceID,
		Metadata:              datatypesJSON(input.MetadataJSON),
		CreatedAt:             time.Unix(input.CreatedUnixUTC, 0).UTC(),
	}
	if input.CreatedUnixUTC == 0 {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return credit.LedgerEntry{}, classify(errorSubjectEntry, errorCodeInsert, err)
	}
	return mapLedgerEntry(entry)
}

func (store *Store) InsertUsageRecord(ctx context.Context, input credit.UsageRecordInput) (credit.UsageRecord, error) {
	record := UsageRecord{
		AccountID:        input.AccountID,
		EventID:          input.EventID,
		CreditsConsumed:  input.CreditsConsumed,
		FromSubscription: input.FromSubscription,
		FromPurchased:    input.FromPurchased,
		CostBreakdown:    datatypesJSON(input.CostBreakdownJSON),
		Processing:       datatypesJSON(input.ProcessingJSON),
		CreatedAt:        time.Unix(input.CreatedUnixUTC, 0).UTC(),
	}
	if input.CreatedUnixUTC == 0 {
		record.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&record).Error
	if isUniqueViolation(err, constraintUsageAccountEvent) {
		return credit.UsageRecord{}, wrapStoreError(errorSubjectUsage, errorCodeDuplicate, credit.ErrEventAlreadyRecorded)
	}
	if err != nil {
		return credit.UsageRecord{}, classify(errorSubjectUsage, errorCodeInsert, err)
	}
	return mapUsageRecord(record), nil
}

func (store *Store) GetUsageRecord(ctx context.Context, accountID string, eventID credit.EventID) (credit.UsageRecord, bool, error) {
	var record UsageRecord
	err := store.db.WithContext(ctx).
		Where("account_id = ? AND event_id = ?", accountID, eventID.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return credit.UsageRecord{}, false, nil
	}
	if err != nil {
		return credit.UsageRecord{}, false, classify(errorSubjectUsage, errorCodeGet, err)
	}
	return mapUsageRecord(record), true, nil
}

func (store *Store) ListUsageRecords(ctx context.Context, accountID string, limit int) ([]credit.UsageRecord, error) {
	var rows []UsageRecord
	err := store.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, classify(errorSubjectUsage, errorCodeList, err)
	}
	records := make([]credit.UsageRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, mapUsageRecord(row))
	}
	return records, nil
}

func (store *Store) ListLedgerEntries(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]credit.LedgerEntry, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}

	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("account_id = ? AND created_at < ?", accountID, before).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, classify(errorSubjectEntry, errorCodeList, err)
	}

	entries := make([]credit.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) SumConsumedCredits(ctx context.Context, accountID string) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&UsageRecord{}).
		Select("coalesce(sum(credits_consumed),0) as total").
		Where("account_id = ?", accountID).
		Scan(&sum).Error
	if err != nil {
		return 0, classify(errorSubjectUsage, errorCodeSum, err)
	}
	return sum.Total, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return credit.WrapError(errorOperationStore, subject, code, err)
}

func classify(subject string, code string, err error) error {
	if isContention(err) {
		return wrapStoreError(subject, errorCodeContention, credit.ErrStoreContention)
	}
	return wrapStoreError(subject, code, err)
}

type sqlSum struct {
	Total int64
}

func mapAccount(row Account) credit.Account {
	return credit.Account{
		AccountID:             row.AccountID,
		UserID:                row.UserID,
		PurchasedBalance:      row.PurchasedBalance,
		PurchasedConsumed:     row.PurchasedConsumed,
		LifetimePurchased:     row.LifetimePurchased,
		SubscriptionAllowance: row.SubscriptionAllowance,
		SubscriptionConsumed:  row.SubscriptionConsumed,
		CycleResetUnixUTC:     timeOrZero(row.CycleResetAt),
		Version:               row.Version,
		CreatedUnixUTC:        row.CreatedAt.Unix(),
		UpdatedUnixUTC:        row.UpdatedAt.Unix(),
	}
}

func mapLedgerEntry(row LedgerEntry) (credit.LedgerEntry, error) {
	kind, err := credit.ParseLedgerKind(row.Kind)
	if err != nil {
		return credit.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	return credit.LedgerEntry{
		EntryID:               row.EntryID,
		AccountID:             row.AccountID,
		Kind:                  kind,
		Amount:                row.Amount,
		PurchasedBalanceAfter: row.PurchasedBalanceAfter,
		Description:           row.Description,
		ReferenceKind:         row.ReferenceKind,
		ReferenceID:           row.ReferenceID,
		MetadataJSON:          string(row.Metadata),
		CreatedUnixUTC:        row.CreatedAt.Unix(),
	}, nil
}

func mapUsageRecord(row UsageRecord) credit.UsageRecord {
	return credit.UsageRecord{
		RecordID:          row.RecordID,
		AccountID:         row.AccountID,
		EventID:           row.EventID,
		CreditsConsumed:   row.CreditsConsumed,
		FromSubscription:  row.FromSubscription,
		FromPurchased:     row.FromPurchased,
		CostBreakdownJSON: string(row.CostBreakdown),
		ProcessingJSON:    string(row.Processing),
		CreatedUnixUTC:    row.CreatedAt.Unix(),
	}
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}

func unixPointer(unixUTC int64) *time.Time {
	if unixUTC == 0 {
		return nil
	}
	value := time.Unix(unixUTC, 0).UTC()
	return &value
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintName
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

func isContention(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, credit.ErrStoreContention) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
		return false
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xFF
		return code == sqliteBusyCode || code == sqliteLockedCode
	}
	return false
}
