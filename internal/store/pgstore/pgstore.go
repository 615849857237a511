package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/Cyber1009/Interview-backend/pkg/credit"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintUsageAccountEvent = "idx_credit_usage_account_event"
	pgUniqueViolationCode       = "23505"
	pgSerializationFailure      = "40001"
	pgDeadlockDetected          = "40P01"
	pgLockNotAvailable          = "55P03"
	errorOperationStore         = "store"
	errorSubjectAccount         = "account"
	errorSubjectEntry           = "entry"
	errorSubjectUsage           = "usage_record"
	errorSubjectTransaction     = "transaction"
	errorCodeBegin              = "begin"
	errorCodeCommit             = "commit"
	errorCodeContention         = "contention"
	errorCodeDuplicate          = "duplicate"
	errorCodeGet                = "get"
	errorCodeInsert             = "insert"
	errorCodeInvalid            = "invalid"
	errorCodeList               = "list"
	errorCodeLock               = "lock"
	errorCodeLookup             = "lookup"
	errorCodeSum                = "sum_consumed"
	errorCodeUpdate             = "update"

	sqlInsertOrGetAccount = `
		insert into credit_accounts(user_id) values($1)
		on conflict (user_id) do update set user_id = excluded.user_id
		returning
			account_id::text,
			user_id,
			purchased_balance,
			purchased_consumed,
			lifetime_purchased,
			subscription_allowance,
			subscription_consumed,
			coalesce(extract(epoch from cycle_reset_at)::bigint,0),
			version,
			extract(epoch from created_at)::bigint,
			extract(epoch from updated_at)::bigint
	`

	sqlSelectAccountForUpdate = `
		select
			account_id::text,
			user_id,
			purchased_balance,
			purchased_consumed,
			lifetime_purchased,
			subscription_allowance,
			subscription_consumed,
			coalesce(extract(epoch from cycle_reset_at)::bigint,0),
			version,
			extract(epoch from created_at)::bigint,
			extract(epoch from updated_at)::bigint
		from credit_accounts
		where account_id = $1
		for update
	`

	sqlUpdateAccountCounters = `
		update credit_accounts
		set purchased_balance = $3,
			purchased_consumed = $4,
			lifetime_purchased = $5,
			subscription_allowance = $6,
			subscription_consumed = $7,
			cycle_reset_at = to_timestamp(nullif($8,0)),
			version = version + 1,
			updated_at = to_timestamp($9)
		where account_id = $1 and version = $2
	`

	sqlInsertEntry = `
		insert into credit_ledger_entries(
			entry_id, account_id, kind, amount, purchased_balance_after, description, reference_kind, reference_id, metadata, created_at
		)
		values(
			gen_random_uuid(), $1, $2, $3, $4, $5,
			nullif($6,''), nullif($7,''),
			coalesce(nullif($8,''),'{}')::jsonb,
			to_timestamp($9)
		)
		returning entry_id::text
	`

	sqlInsertUsageRecord = `
		insert into credit_usage_records(
			record_id, account_id, event_id, credits_consumed, from_subscription, from_purchased, cost_breakdown, processing, created_at
		)
		values(
			gen_random_uuid(), $1, $2, $3, $4, $5,
			coalesce(nullif($6,''),'{}')::jsonb,
			coalesce(nullif($7,''),'{}')::jsonb,
			to_timestamp($8)
		)
		returning record_id::text
	`

	sqlSelectUsageRecord = `
		select
			record_id::text,
			account_id::text,
			event_id,
			credits_consumed,
			from_subscription,
			from_purchased,
			coalesce(cost_breakdown::text,'{}'),
			coalesce(processing::text,'{}'),
			extract(epoch from created_at)::bigint
		from credit_usage_records
		where account_id = $1 and event_id = $2
	`

	sqlListUsageRecords = `
		select
			record_id::text,
			account_id::text,
			event_id,
			credits_consumed,
			from_subscription,
			from_purchased,
			coalesce(cost_breakdown::text,'{}'),
			coalesce(processing::text,'{}'),
			extract(epoch from created_at)::bigint
		from credit_usage_records
		where account_id = $1
		order by created_at desc
		limit $2
	`

	sqlListEntriesBefore = `
		select
			entry_id::text,
			account_id::text,
			kind,
			amount,
			purchased_balance_after,
			coalesce(description,''),
			coalesce(reference_kind,''),
			coalesce(reference_id,''),
			coalesce(metadata::text,'{}'),
			extract(epoch from created_at)::bigint
		from credit_ledger_entries
		where account_id = $1 and created_at < to_timestamp($2)
		order by created_at desc
		limit $3
	`

	sqlSumConsumed = `
		select coalesce(sum(credits_consumed),0) from credit_usage_records
		where account_id = $1
	`
)

// Store implements credit.Store using a pgx connection pool (autocommit).
type Store struct {
	pool *pgxpool.Pool
}

// TxStore implements credit.Store for an active transaction.
type TxStore struct {
	tx pgx.Tx
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore credit.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &TxStore{tx: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) GetOrCreateAccount(ctx context.Context, userID credit.UserID) (credit.Account, error) {
	account, err := scanAccount(store.pool.QueryRow(ctx, sqlInsertOrGetAccount, userID.String()))
	if err != nil {
		return credit.Account{}, classify(errorSubjectAccount, errorCodeLookup, err)
	}
	return account, nil
}

func (store *Store) GetAccountForUpdate(ctx context.Context, accountID string) (credit.Account, error) {
	account, err := scanAccount(store.pool.QueryRow(ctx, sqlSelectAccountForUpdate, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credit.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLock, credit.ErrAccountNotFound)
		}
		return credit.Account{}, classify(errorSubjectAccount, errorCodeLock, err)
	}
	return account, nil
}

func (store *Store) UpdateAccountCounters(ctx context.Context, account credit.Account) error {
	tag, err := store.pool.Exec(ctx, sqlUpdateAccountCounters,
		account.AccountID,
		account.Version,
		account.PurchasedBalance,
		account.PurchasedConsumed,
		account.LifetimePurchased,
		account.SubscriptionAllowance,
		account.SubscriptionConsumed,
		account.CycleResetUnixUTC,
		account.UpdatedUnixUTC,
	)
	if err != nil {
		return classify(errorSubjectAccount, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeContention, credit.ErrStoreContention)
	}
	return nil
}

func (store *Store) InsertLedgerEntry(ctx context.Context, input credit.LedgerEntryInput) (credit.LedgerEntry, error) {
	var entryID string
	err := store.pool.QueryRow(ctx, sqlInsertEntry,
		input.AccountID,
		string(input.Kind),
		input.Amount,
		input.PurchasedBalanceAfter,
		input.Description,
		input.ReferenceKind,
		input.ReferenceID,
		input.MetadataJSON,
		input.CreatedUnixUTC,
	).Scan(&entryID)
	if err != nil {
		return credit.LedgerEntry{}, classify(errorSubjectEntry, errorCodeInsert, err)
	}
	return entryFromInput(input, entryID), nil
}

func (store *Store) InsertUsageRecord(ctx context.Context, input credit.UsageRecordInput) (credit.UsageRecord, error) {
	var recordID string
	err := store.pool.QueryRow(ctx, sqlInsertUsageRecord,
		input.AccountID,
		input.EventID,
		input.CreditsConsumed,
		input.FromSubscription,
		input.FromPurchased,
		input.CostBreakdownJSON,
		input.ProcessingJSON,
		input.CreatedUnixUTC,
	).Scan(&recordID)
	if isEventConflict(err) {
		return credit.UsageRecord{}, wrapStoreError(errorSubjectUsage, errorCodeDuplicate, credit.ErrEventAlreadyRecorded)
	}
	if err != nil {
		return credit.UsageRecord{}, classify(errorSubjectUsage, errorCodeInsert, err)
	}
	return recordFromInput(input, recordID), nil
}

func (store *Store) GetUsageRecord(ctx context.Context, accountID string, eventID credit.EventID) (credit.UsageRecord, bool, error) {
	record, err := scanUsageRecord(store.pool.QueryRow(ctx, sqlSelectUsageRecord, accountID, eventID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credit.UsageRecord{}, false, nil
		}
		return credit.UsageRecord{}, false, classify(errorSubjectUsage, errorCodeGet, err)
	}
	return record, true, nil
}

func (store *Store) ListUsageRecords(ctx context.Context, accountID string, limit int) ([]credit.UsageRecord, error) {
	rows, err := store.pool.Query(ctx, sqlListUsageRecords, accountID, limit)
	if err != nil {
		return nil, classify(errorSubjectUsage, errorCodeList, err)
	}
	defer rows.Close()
	records, err := scanUsageRecords(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectUsage, errorCodeInvalid, err)
	}
	return records, nil
}

func (store *Store) ListLedgerEntries(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]credit.LedgerEntry, error) {
	rows, err := store.pool.Query(ctx, sqlListEntriesBefore, accountID, normalizeBefore(beforeUnixUTC), limit)
	if err != nil {
		return nil, classify(errorSubjectEntry, errorCodeList, err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entries, nil
}

func (store *Store) SumConsumedCredits(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	if err := store.pool.QueryRow(ctx, sqlSumConsumed, accountID).Scan(&sum); err != nil {
		return 0, classify(errorSubjectUsage, errorCodeSum, err)
	}
	return sum, nil
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore credit.Store) error) error {
	return fn(ctx, store)
}

func (store *TxStore) GetOrCreateAccount(ctx context.Context, userID credit.UserID) (credit.Account, error) {
	account, err := scanAccount(store.tx.QueryRow(ctx, sqlInsertOrGetAccount, userID.String()))
	if err != nil {
		return credit.Account{}, classify(errorSubjectAccount, errorCodeLookup, err)
	}
	return account, nil
}

func (store *TxStore) GetAccountForUpdate(ctx context.Context, accountID string) (credit.Account, error) {
	account, err := scanAccount(store.tx.QueryRow(ctx, sqlSelectAccountForUpdate, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credit.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLock, credit.ErrAccountNotFound)
		}
		return credit.Account{}, classify(errorSubjectAccount, errorCodeLock, err)
	}
	return account, nil
}

func (store *TxStore) UpdateAccountCounters(ctx context.Context, account credit.Account) error {
	tag, err := store.tx.Exec(ctx, sqlUpdateAccountCounters,
		account.AccountID,
		account.Version,
		account.PurchasedBalance,
		account.PurchasedConsumed,
		account.LifetimePurchased,
		account.SubscriptionAllowance,
		account.SubscriptionConsumed,
		account.CycleResetUnixUTC,
		account.UpdatedUnixUTC,
	)
	if err != nil {
		return classify(errorSubjectAccount, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeContention, credit.ErrStoreContention)
	}
	return nil
}

func (store *TxStore) InsertLedgerEntry(ctx context.Context, input credit.LedgerEntryInput) (credit.LedgerEntry, error) {
	var entryID string
	err := store.tx.QueryRow(ctx, sqlInsertEntry,
		input.AccountID,
		string(input.Kind),
		input.Amount,
		input.PurchasedBalanceAfter,
		input.Description,
		input.ReferenceKind,
		input.ReferenceID,
		input.MetadataJSON,
		input.CreatedUnixUTC,
	).Scan(&entryID)
	if err != nil {
		return credit.LedgerEntry{}, classify(errorSubjectEntry, errorCodeInsert, err)
	}
	return entryFromInput(input, entryID), nil
}

func (store *TxStore) InsertUsageRecord(ctx context.Context, input credit.UsageRecordInput) (credit.UsageRecord, error) {
	var recordID string
	err := store.tx.QueryRow(ctx, sqlInsertUsageRecord,
		input.AccountID,
		input.EventID,
		input.CreditsConsumed,
		input.FromSubscription,
		input.FromPurchased,
		input.CostBreakdownJSON,
		input.ProcessingJSON,
		input.CreatedUnixUTC,
	).Scan(&recordID)
	if isEventConflict(err) {
		return credit.UsageRecord{}, wrapStoreError(errorSubjectUsage, errorCodeDuplicate, credit.ErrEventAlreadyRecorded)
	}
	if err != nil {
		return credit.UsageRecord{}, classify(errorSubjectUsage, errorCodeInsert, err)
	}
	return recordFromInput(input, recordID), nil
}

func (store *TxStore) GetUsageRecord(ctx context.Context, accountID string, eventID credit.EventID) (credit.UsageRecord, bool, error) {
	record, err := scanUsageRecord(store.tx.QueryRow(ctx, sqlSelectUsageRecord, accountID, eventID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credit.UsageRecord{}, false, nil
		}
		return credit.UsageRecord{}, false, classify(errorSubjectUsage, errorCodeGet, err)
	}
	return record, true, nil
}

func (store *TxStore) ListUsageRecords(ctx context.Context, accountID string, limit int) ([]credit.UsageRecord, error) {
	rows, err := store.tx.Query(ctx, sqlListUsageRecords, accountID, limit)
	if err != nil {
		return nil, classify(errorSubjectUsage, errorCodeList, err)
	}
	defer rows.Close()
	records, err := scanUsageRecords(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectUsage, errorCodeInvalid, err)
	}
	return records, nil
}

func (store *TxStore) ListLedgerEntries(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]credit.LedgerEntry, error) {
	rows, err := store.tx.Query(ctx, sqlListEntriesBefore, accountID, normalizeBefore(beforeUnixUTC), limit)
	if err != nil {
		return nil, classify(errorSubjectEntry, errorCodeList, err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entries, nil
}

func (store *TxStore) SumConsumedCredits(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	if err := store.tx.QueryRow(ctx, sqlSumConsumed, accountID).Scan(&sum); err != nil {
		return 0, classify(errorSubjectUsage, errorCodeSum, err)
	}
	return sum, nil
}

func scanAccount(row pgx.Row) (credit.Account, error) {
	var account credit.Account
	err := row.Scan(
		&account.AccountID,
		&account.UserID,
		&account.PurchasedBalance,
		&account.PurchasedConsumed,
		&account.LifetimePurchased,
		&account.SubscriptionAllowance,
		&account.SubscriptionConsumed,
		&account.CycleResetUnixUTC,
		&account.Version,
		&account.CreatedUnixUTC,
		&account.UpdatedUnixUTC,
	)
	if err != nil {
		return credit.Account{}, err
	}
	return account, nil
}

func scanUsageRecord(row pgx.Row) (credit.UsageRecord, error) {
	var record credit.UsageRecord
	err := row.Scan(
		&record.RecordID,
		&record.AccountID,
		&record.EventID,
		&record.CreditsConsumed,
		&record.FromSubscription,
		&record.FromPurchased,
		&record.CostBreakdownJSON,
		&record.ProcessingJSON,
		&record.CreatedUnixUTC,
	)
	if err != nil {
		return credit.UsageRecord{}, err
	}
	return record, nil
}

func scanUsageRecords(rows pgx.Rows) ([]credit.UsageRecord, error) {
	records := make([]credit.UsageRecord, 0, 32)
	for rows.Next() {
		record, err := scanUsageRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanEntries(rows pgx.Rows) ([]credit.LedgerEntry, error) {
	entries := make([]credit.LedgerEntry, 0, 32)
	for rows.Next() {
		var (
			entry     credit.LedgerEntry
			kindValue string
		)
		if err := rows.Scan(
			&entry.EntryID,
			&entry.AccountID,
			&kindValue,
			&entry.Amount,
			&entry.PurchasedBalanceAfter,
			&entry.Description,
			&entry.ReferenceKind,
			&entry.ReferenceID,
			&entry.MetadataJSON,
			&entry.CreatedUnixUTC,
		); err != nil {
			return nil, err
		}
		kind, err := credit.ParseLedgerKind(kindValue)
		if err != nil {
			return nil, err
		}
		entry.Kind = kind
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func entryFromInput(input credit.LedgerEntryInput, entryID string) credit.LedgerEntry {
	return credit.LedgerEntry{
		EntryID:               entryID,
		AccountID:             input.AccountID,
		Kind:                  input.Kind,
		Amount:                input.Amount,
		PurchasedBalanceAfter: input.PurchasedBalanceAfter,
		Description:           input.Description,
		ReferenceKind:         input.ReferenceKind,
		ReferenceID:           input.ReferenceID,
		MetadataJSON:          defaultJSON(input.MetadataJSON),
		CreatedUnixUTC:        input.CreatedUnixUTC,
	}
}

func recordFromInput(input credit.UsageRecordInput, recordID string) credit.UsageRecord {
	return credit.UsageRecord{
		RecordID:          recordID,
		AccountID:         input.AccountID,
		EventID:           input.EventID,
		CreditsConsumed:   input.CreditsConsumed,
		FromSubscription:  input.FromSubscription,
		FromPurchased:     input.FromPurchased,
		CostBreakdownJSON: defaultJSON(input.CostBreakdownJSON),
		ProcessingJSON:    defaultJSON(input.ProcessingJSON),
		CreatedUnixUTC:    input.CreatedUnixUTC,
	}
}

func defaultJSON(raw string) string {
	if raw == "" {
		return "{}"
	}
	return raw
}

// normalizeBefore keeps a zero cursor meaning "everything so far"; the extra
// second absorbs same-second inserts.
func normalizeBefore(beforeUnixUTC int64) int64 {
	if beforeUnixUTC == 0 {
		return time.Now().UTC().Add(time.Second).Unix()
	}
	return beforeUnixUTC
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

func isEventConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintUsageAccountEvent
	}
	return false
}

func isContention(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
	}
	return false
}
