package credit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
)

const (
	stubAccountID      = "acct-1"
	stubNowUnixUTC     = int64(1700000000)
	grantUserValue     = "user-grant"
	consumeUserValue   = "user-consume"
	eventIDValue       = "session-1"
	monthCycle         = 30 * 24 * time.Hour
	expectationMessage = "expected %v, got %v"
)

func TestGrantPurchaseTopsUpPurchasedPool(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 0, 0, 0)
	service := mustNewService(test, store)
	userID := mustUserID(test, grantUserValue)
	amount := mustAmount(test, 20)
	metadata := mustMetadata(test, `{"pack":"starter"}`)
	reference := mustReference(test, "payment", "pay-123")

	entry, err := service.Grant(context.Background(), userID, amount, KindPurchase, "starter pack", &reference, 0, metadata)
	if err != nil {
		test.Fatalf("grant: %v", err)
	}
	if entry.Kind != KindPurchase || entry.Amount != 20 {
		test.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.PurchasedBalanceAfter != 20 {
		test.Fatalf("expected purchased balance 20 after grant, got %d", entry.PurchasedBalanceAfter)
	}
	if entry.ReferenceKind != "payment" || entry.ReferenceID != "pay-123" {
		test.Fatalf("unexpected reference on entry: %+v", entry)
	}
	if entry.CreatedUnixUTC != stubNowUnixUTC {
		test.Fatalf("unexpected entry time: %d", entry.CreatedUnixUTC)
	}
	if store.account.PurchasedBalance != 20 {
		test.Fatalf("expected purchased pool 20, got %d", store.account.PurchasedBalance)
	}
	if store.account.SubscriptionAllowance != 0 || store.account.SubscriptionConsumed != 0 {
		test.Fatalf("purchase must not touch the subscription cycle: %+v", store.account)
	}
}

func TestGrantSubscriptionReplacesCycle(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 5, 10, 4)
	service := mustNewService(test, store)
	userID := mustUserID(test, grantUserValue)
	amount := mustAmount(test, 50)
	metadata := mustMetadata(test, `{"plan":"premium"}`)

	entry, err := service.Grant(context.Background(), userID, amount, KindSubscriptionGrant, "premium plan", nil, monthCycle, metadata)
	if err != nil {
		test.Fatalf("grant: %v", err)
	}
	if store.account.SubscriptionAllowance != 50 || store.account.SubscriptionConsumed != 0 {
		test.Fatalf("expected re-based cycle, got %+v", store.account)
	}
	wantReset := stubNowUnixUTC + int64(monthCycle/time.Second)
	if store.account.CycleResetUnixUTC != wantReset {
		test.Fatalf(expectationMessage, wantReset, store.account.CycleResetUnixUTC)
	}
	if store.account.PurchasedBalance != 5 || entry.PurchasedBalanceAfter != 5 {
		test.Fatalf("subscription grant must not touch the purchased pool: %+v", store.account)
	}
	if !strings.Contains(entry.MetadataJSON, `"previous_cycle_forfeited":6`) {
		test.Fatalf("expected forfeited remainder 6 in metadata, got %s", entry.MetadataJSON)
	}
	if !strings.Contains(entry.MetadataJSON, `"cycle_reset_at":`+strconv.FormatInt(wantReset, 10)) {
		test.Fatalf("expected cycle reset in metadata, got %s", entry.MetadataJSON)
	}
	if !strings.Contains(entry.MetadataJSON, `"plan":"premium"`) {
		test.Fatalf("expected caller metadata preserved, got %s", entry.MetadataJSON)
	}
}

func TestGrantSubscriptionResetOnFreshAccount(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 0, 0, 0)
	service := mustNewService(test, store)
	userID := mustUserID(test, grantUserValue)
	amount := mustAmount(test, 10)
	metadata := mustMetadata(test, "")

	entry, err := service.Grant(context.Background(), userID, amount, KindSubscriptionReset, "basic renewal", nil, monthCycle, metadata)
	if err != nil {
		test.Fatalf("grant: %v", err)
	}
	if !strings.Contains(entry.MetadataJSON, `"previous_cycle_forfeited":0`) {
		test.Fatalf("expected zero forfeit on fresh account, got %s", entry.MetadataJSON)
	}
	if store.account.SubscriptionAllowance != 10 {
		test.Fatalf("expected allowance 10, got %d", store.account.SubscriptionAllowance)
	}
}

func TestGrantValidatesKindAndCycleLength(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name        string
		kind        LedgerKind
		cycleLength time.Duration
		wantErr     error
	}{
		{name: "usage kind rejected", kind: KindUsage, cycleLength: 0, wantErr: ErrInvalidLedgerKind},
		{name: "unknown kind rejected", kind: LedgerKind("bonus"), cycleLength: 0, wantErr: ErrInvalidLedgerKind},
		{name: "purchase with cycle length", kind: KindPurchase, cycleLength: monthCycle, wantErr: ErrInvalidCycleLength},
		{name: "refund with cycle length", kind: KindRefund, cycleLength: time.Hour, wantErr: ErrInvalidCycleLength},
		{name: "subscription grant without cycle length", kind: KindSubscriptionGrant, cycleLength: 0, wantErr: ErrInvalidCycleLength},
		{name: "subscription reset with negative cycle length", kind: KindSubscriptionReset, cycleLength: -time.Hour, wantErr: ErrInvalidCycleLength},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test, 0, 0, 0)
			service := mustNewService(test, store)
			userID := mustUserID(test, grantUserValue)
			amount := mustAmount(test, 5)
			metadata := mustMetadata(test, "")

			_, err := service.Grant(context.Background(), userID, amount, testCase.kind, "", nil, testCase.cycleLength, metadata)
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf(expectationMessage, testCase.wantErr, err)
			}
			if len(store.entries) != 0 {
				test.Fatalf("expected no ledger writes, got %d", len(store.entries))
			}
		})
	}
}

func TestConsumeDrainsSubscriptionFirst(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 10, 10, 0)
	service := mustNewService(test, store)
	userID := mustUserID(test, consumeUserValue)
	eventID := mustEventID(test, eventIDValue)
	amount := mustAmount(test, 3)
	breakdown := mustMetadata(test, `{"minutes":42}`)
	processing := mustMetadata(test, "")

	result, err := service.Consume(context.Background(), userID, eventID, amount, breakdown, processing)
	if err != nil {
		test.Fatalf("consume: %v", err)
	}
	if result.Outcome != OutcomeConsumed {
		test.Fatalf(expectationMessage, OutcomeConsumed, result.Outcome)
	}
	if result.FromSubscription != 3 || result.FromPurchased != 0 {
		test.Fatalf("unexpected split: %+v", result)
	}
	if store.account.SubscriptionConsumed != 3 || store.account.PurchasedBalance != 10 {
		test.Fatalf("unexpected counters: %+v", store.account)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected one usage entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.Kind != KindUsage || entry.Amount != -3 || entry.PurchasedBalanceAfter != 10 {
		test.Fatalf("unexpected usage entry: %+v", entry)
	}
	if !strings.Contains(entry.MetadataJSON, `"source_pool":"subscription"`) {
		test.Fatalf("unexpected entry metadata: %s", entry.MetadataJSON)
	}
	if result.Record.CostBreakdownJSON != `{"minutes":42}` {
		test.Fatalf("expected cost breakdown stored verbatim, got %s", result.Record.CostBreakdownJSON)
	}
	if result.Summary.TotalAvailable != 17 || result.Summary.LifetimeConsumed != 3 {
		test.Fatalf("unexpected summary: %+v", result.Summary)
	}
}

func TestConsumeSpillsIntoPurchasedPool(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 10, 5, 3)
	service := mustNewService(test, store)
	userID := mustUserID(test, consumeUserValue)
	eventID := mustEventID(test, eventIDValue)
	amount := mustAmount(test, 6)
	metadata := mustMetadata(test, "")

	result, err := service.Consume(context.Background(), userID, eventID, amount, metadata, metadata)
	if err != nil {
		test.Fatalf("consume: %v", err)
	}
	if result.FromSubscription != 2 || result.FromPurchased != 4 {
		test.Fatalf("unexpected split: %+v", result)
	}
	if store.account.SubscriptionConsumed != 5 || store.account.PurchasedBalance != 6 {
		test.Fatalf("unexpected counters: %+v", store.account)
	}
	entry := store.entries[0]
	if entry.Amount != -6 || entry.PurchasedBalanceAfter != 6 {
		test.Fatalf("unexpected usage entry: %+v", entry)
	}
	if !strings.Contains(entry.MetadataJSON, `"source_pool":"mixed"`) {
		test.Fatalf("unexpected entry metadata: %s", entry.MetadataJSON)
	}
}

func TestConsumeInsufficientCreditsWritesNothing(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 1, 2, 2)
	service := mustNewService(test, store)
	userID := mustUserID(test, consumeUserValue)
	eventID := mustEventID(test, eventIDValue)
	amount := mustAmount(test, 3)
	metadata := mustMetadata(test, "")

	result, err := service.Consume(context.Background(), userID, eventID, amount, metadata, metadata)
	if err != nil {
		test.Fatalf("consume: %v", err)
	}
	if result.Outcome != OutcomeInsufficientCredits {
		test.Fatalf(expectationMessage, OutcomeInsufficientCredits, result.Outcome)
	}
	if result.Summary.TotalAvailable != 1 {
		test.Fatalf("expected summary with available 1, got %+v", result.Summary)
	}
	if len(store.entries) != 0 || len(store.usageRecords) != 0 {
		test.Fatalf("insufficient credits must not write: entries=%d records=%d", len(store.entries), len(store.usageRecords))
	}
	if store.account.PurchasedBalance != 1 || store.account.SubscriptionConsumed != 2 {
		test.Fatalf("unexpected counters after refusal: %+v", store.account)
	}
}

func TestConsumeReplayReturnsOriginalSplit(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 10, 10, 0)
	service := mustNewService(test, store)
	userID := mustUserID(test, consumeUserValue)
	eventID := mustEventID(test, eventIDValue)
	amount := mustAmount(test, 4)
	metadata := mustMetadata(test, "")

	first, err := service.Consume(context.Background(), userID, eventID, amount, metadata, metadata)
	if err != nil {
		test.Fatalf("first consume: %v", err)
	}
	second, err := service.Consume(context.Background(), userID, eventID, amount, metadata, metadata)
	if err != nil {
		test.Fatalf("second consume: %v", err)
	}
	if second.Outcome != OutcomeAlreadyConsumed {
		test.Fatalf(expectationMessage, OutcomeAlreadyConsumed, second.Outcome)
	}
	if second.FromSubscription != 4 || second.FromPurchased != 0 {
		test.Fatalf("expected original split on replay, got %+v", second)
	}
	if second.Record.RecordID != first.Record.RecordID {
		test.Fatalf("expected the original usage record, got %+v", second.Record)
	}
	if store.account.SubscriptionConsumed != 4 {
		test.Fatalf("replay must not bill twice: %+v", store.account)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected single usage entry, got %d", len(store.entries))
	}
}

func TestConsumeReplayWinsOverInsufficientBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 0, 5, 0)
	service := mustNewService(test, store)
	userID := mustUserID(test, consumeUserValue)
	eventID := mustEventID(test, eventIDValue)
	amount := mustAmount(test, 5)
	metadata := mustMetadata(test, "")

	if _, err := service.Consume(context.Background(), userID, eventID, amount, metadata, metadata); err != nil {
		test.Fatalf("first consume: %v", err)
	}
	replay, err := service.Consume(context.Background(), userID, eventID, amount, metadata, metadata)
	if err != nil {
		test.Fatalf("replayed consume: %v", err)
	}
	if replay.Outcome != OutcomeAlreadyConsumed {
		test.Fatalf("replay must report already_consumed even with the balance drained, got %s", replay.Outcome)
	}
}

func TestBalanceDerivesPools(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 7, 10, 4)
	store.seedUsageRecord(test, "past-1", 5, 5, 0)
	store.seedUsageRecord(test, "past-2", 3, 2, 1)
	service := mustNewService(test, store)
	userID := mustUserID(test, consumeUserValue)

	summary, err := service.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if summary.PurchasedBalance != 7 || summary.SubscriptionAllowance != 10 || summary.SubscriptionConsumed != 4 {
		test.Fatalf("unexpected counters: %+v", summary)
	}
	if summary.SubscriptionRemaining != 6 || summary.TotalAvailable != 13 {
		test.Fatalf("unexpected derived pools: %+v", summary)
	}
	if summary.LifetimeConsumed != 8 {
		test.Fatalf("expected lifetime 8, got %d", summary.LifetimeConsumed)
	}
}

func TestUsageHistoryNormalizesLimit(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		limit     int
		wantLimit int
		wantErr   error
	}{
		{name: "zero selects default", limit: 0, wantLimit: DefaultHistoryLimit},
		{name: "explicit limit passes through", limit: 5, wantLimit: 5},
		{name: "maximum accepted", limit: MaxHistoryLimit, wantLimit: MaxHistoryLimit},
		{name: "negative rejected", limit: -1, wantErr: ErrInvalidHistoryLimit},
		{name: "above maximum rejected", limit: MaxHistoryLimit + 1, wantErr: ErrInvalidHistoryLimit},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test, 0, 0, 0)
			service := mustNewService(test, store)
			userID := mustUserID(test, consumeUserValue)

			_, err := service.UsageHistory(context.Background(), userID, testCase.limit)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					test.Fatalf(expectationMessage, testCase.wantErr, err)
				}
				return
			}
			if err != nil {
				test.Fatalf("usage history: %v", err)
			}
			if store.gotListLimit != testCase.wantLimit {
				test.Fatalf(expectationMessage, testCase.wantLimit, store.gotListLimit)
			}
		})
	}
}

func TestLedgerHistoryDelegatesToStore(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 0, 0, 0)
	store.listLedger = []LedgerEntry{
		{EntryID: "entry-2", Kind: KindUsage, Amount: -1, CreatedUnixUTC: stubNowUnixUTC},
		{EntryID: "entry-1", Kind: KindPurchase, Amount: 5, CreatedUnixUTC: stubNowUnixUTC - 10},
	}
	service := mustNewService(test, store)
	userID := mustUserID(test, consumeUserValue)

	out, err := service.LedgerHistory(context.Background(), userID, stubNowUnixUTC+1, 10)
	if err != nil {
		test.Fatalf("ledger history: %v", err)
	}
	if len(out) != 2 || out[0].EntryID != "entry-2" || out[1].EntryID != "entry-1" {
		test.Fatalf("unexpected entries: %+v", out)
	}
	if store.gotListBefore != stubNowUnixUTC+1 || store.gotListLimit != 10 {
		test.Fatalf("expected before/limit forwarded, got before=%d limit=%d", store.gotListBefore, store.gotListLimit)
	}
}

func TestConsumeRetriesContention(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 5, 0, 0)
	store.contentionAttempts = 2
	service := mustNewService(test, store)
	userID := mustUserID(test, consumeUserValue)
	eventID := mustEventID(test, eventIDValue)
	amount := mustAmount(test, 1)
	metadata := mustMetadata(test, "")

	result, err := service.Consume(context.Background(), userID, eventID, amount, metadata, metadata)
	if err != nil {
		test.Fatalf("consume: %v", err)
	}
	if result.Outcome != OutcomeConsumed {
		test.Fatalf(expectationMessage, OutcomeConsumed, result.Outcome)
	}
	if store.withTxCalls != 3 {
		test.Fatalf("expected 3 transaction attempts, got %d", store.withTxCalls)
	}
}

func TestConsumeContentionExhaustionReturnsUnavailable(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 5, 0, 0)
	store.contentionAttempts = contentionRetryLimit + 5
	service := mustNewService(test, store)
	userID := mustUserID(test, consumeUserValue)
	eventID := mustEventID(test, eventIDValue)
	amount := mustAmount(test, 1)
	metadata := mustMetadata(test, "")

	_, err := service.Consume(context.Background(), userID, eventID, amount, metadata, metadata)
	if !errors.Is(err, ErrTemporarilyUnavailable) {
		test.Fatalf(expectationMessage, ErrTemporarilyUnavailable, err)
	}
	if store.withTxCalls != contentionRetryLimit+1 {
		test.Fatalf("expected %d transaction attempts, got %d", contentionRetryLimit+1, store.withTxCalls)
	}
}

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	_, err := NewService(nil, func() int64 { return 0 })
	if !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
	store := newStubStore(test, 0, 0, 0)
	_, err = NewService(store, nil)
	if !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
}

type stubStore struct {
	account      Account
	entries      []LedgerEntry
	usageRecords map[string]UsageRecord
	listLedger   []LedgerEntry
	listUsage    []UsageRecord

	withTxCalls        int
	contentionAttempts int
	gotListLimit       int
	gotListBefore      int64

	getAccountError    error
	lockAccountError   error
	updateAccountError error
	insertEntryError   error
	insertUsageError   error
	getUsageError      error
	listUsageError     error
	listLedgerError    error
	sumError           error
}

func newStubStore(test *testing.T, purchased int64, allowance int64, consumed int64) *stubStore {
	test.Helper()
	return &stubStore{
		account: Account{
			AccountID:             stubAccountID,
			PurchasedBalance:      purchased,
			SubscriptionAllowance: allowance,
			SubscriptionConsumed:  consumed,
			CreatedUnixUTC:        stubNowUnixUTC,
			UpdatedUnixUTC:        stubNowUnixUTC,
		},
		usageRecords: make(map[string]UsageRecord),
	}
}

func (store *stubStore) seedUsageRecord(test *testing.T, eventID string, consumed int64, fromSubscription int64, fromPurchased int64) {
	test.Helper()
	store.usageRecords[eventID] = UsageRecord{
		RecordID:         "record-" + eventID,
		AccountID:        store.account.AccountID,
		EventID:          eventID,
		CreditsConsumed:  consumed,
		FromSubscription: fromSubscription,
		FromPurchased:    fromPurchased,
		CreatedUnixUTC:   stubNowUnixUTC,
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.withTxCalls++
	if store.contentionAttempts > 0 {
		store.contentionAttempts--
		return ErrStoreContention
	}
	return fn(ctx, store)
}

func (store *stubStore) GetOrCreateAccount(ctx context.Context, userID UserID) (Account, error) {
	if store.getAccountError != nil {
		return Account{}, store.getAccountError
	}
	if store.account.UserID == "" {
		store.account.UserID = userID.String()
	}
	return store.account, nil
}

func (store *stubStore) GetAccountForUpdate(ctx context.Context, accountID string) (Account, error) {
	if store.lockAccountError != nil {
		return Account{}, store.lockAccountError
	}
	if accountID != store.account.AccountID {
		return Account{}, ErrAccountNotFound
	}
	return store.account, nil
}

func (store *stubStore) UpdateAccountCounters(ctx context.Context, account Account) error {
	if store.updateAccountError != nil {
		return store.updateAccountError
	}
	store.account = account
	return nil
}

func (store *stubStore) InsertLedgerEntry(ctx context.Context, input LedgerEntryInput) (LedgerEntry, error) {
	if store.insertEntryError != nil {
		return LedgerEntry{}, store.insertEntryError
	}
	entry := LedgerEntry{
		EntryID:               "entry-" + strconv.Itoa(len(store.entries)+1),
		AccountID:             input.AccountID,
		Kind:                  input.Kind,
		Amount:                input.Amount,
		PurchasedBalanceAfter: input.PurchasedBalanceAfter,
		Description:           input.Description,
		ReferenceKind:         input.ReferenceKind,
		ReferenceID:           input.ReferenceID,
		MetadataJSON:          input.MetadataJSON,
		CreatedUnixUTC:        input.CreatedUnixUTC,
	}
	store.entries = append(store.entries, entry)
	return entry, nil
}

func (store *stubStore) InsertUsageRecord(ctx context.Context, input UsageRecordInput) (UsageRecord, error) {
	if store.insertUsageError != nil {
		return UsageRecord{}, store.insertUsageError
	}
	if _, exists := store.usageRecords[input.EventID]; exists {
		return UsageRecord{}, ErrEventAlreadyRecorded
	}
	record := UsageRecord{
		RecordID:          "record-" + input.EventID,
		AccountID:         input.AccountID,
		EventID:           input.EventID,
		CreditsConsumed:   input.CreditsConsumed,
		FromSubscription:  input.FromSubscription,
		FromPurchased:     input.FromPurchased,
		CostBreakdownJSON: input.CostBreakdownJSON,
		ProcessingJSON:    input.ProcessingJSON,
		CreatedUnixUTC:    input.CreatedUnixUTC,
	}
	store.usageRecords[input.EventID] = record
	return record, nil
}

func (store *stubStore) GetUsageRecord(ctx context.Context, accountID string, eventID EventID) (UsageRecord, bool, error) {
	if store.getUsageError != nil {
		return UsageRecord{}, false, store.getUsageError
	}
	record, found := store.usageRecords[eventID.String()]
	return record, found, nil
}

func (store *stubStore) ListUsageRecords(ctx context.Context, accountID string, limit int) ([]UsageRecord, error) {
	if store.listUsageError != nil {
		return nil, store.listUsageError
	}
	store.gotListLimit = limit
	return append([]UsageRecord(nil), store.listUsage...), nil
}

func (store *stubStore) ListLedgerEntries(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]LedgerEntry, error) {
	if store.listLedgerError != nil {
		return nil, store.listLedgerError
	}
	store.gotListBefore = beforeUnixUTC
	store.gotListLimit = limit
	return append([]LedgerEntry(nil), store.listLedger...), nil
}

func (store *stubStore) SumConsumedCredits(ctx context.Context, accountID string) (int64, error) {
	if store.sumError != nil {
		return 0, store.sumError
	}
	var sum int64
	for _, record := range store.usageRecords {
		sum += record.CreditsConsumed
	}
	return sum, nil
}

func mustNewService(test *testing.T, store Store) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return stubNowUnixUTC })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	value, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return value
}

func mustEventID(test *testing.T, raw string) EventID {
	test.Helper()
	value, err := NewEventID(raw)
	if err != nil {
		test.Fatalf("event id: %v", err)
	}
	return value
}

func mustAmount(test *testing.T, raw int64) CreditAmount {
	test.Helper()
	value, err := NewCreditAmount(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return value
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	value, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return value
}

func mustReference(test *testing.T, kind string, id string) Reference {
	test.Helper()
	value, err := NewReference(kind, id)
	if err != nil {
		test.Fatalf("reference: %v", err)
	}
	return value
}
