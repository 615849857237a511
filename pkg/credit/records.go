package credit

// Account is the per-user credit account. PurchasedBalance persists across
// billing cycles; the subscription counters describe the current cycle only
// and are replaced wholesale by subscription grants and resets.
// PurchasedConsumed and LifetimePurchased are monotonic audit counters and
// never feed the spendable balance. Version is the optimistic concurrency
// token managed by stores; services carry it through untouched.
type Account struct {
	AccountID             string
	UserID                string
	PurchasedBalance      int64
	PurchasedConsumed     int64
	LifetimePurchased     int64
	SubscriptionAllowance int64
	SubscriptionConsumed  int64
	CycleResetUnixUTC     int64
	Version               int64
	CreatedUnixUTC        int64
	UpdatedUnixUTC        int64
}

// LedgerEntry is a single immutable line in the credit ledger. Amount is
// signed: usage entries are negative, every grant kind is positive.
// PurchasedBalanceAfter snapshots the purchased pool only; subscription
// state is reconstructed from the grant and reset entries themselves.
type LedgerEntry struct {
	EntryID               string
	AccountID             string
	Kind                  LedgerKind
	Amount                int64
	PurchasedBalanceAfter int64
	Description           string
	ReferenceKind         string
	ReferenceID           string
	MetadataJSON          string
	CreatedUnixUTC        int64
}

// LedgerEntryInput is a ledger entry before the store assigns its id.
type LedgerEntryInput struct {
	AccountID             string
	Kind                  LedgerKind
	Amount                int64
	PurchasedBalanceAfter int64
	Description           string
	ReferenceKind         string
	ReferenceID           string
	MetadataJSON          string
	CreatedUnixUTC        int64
}

// UsageRecord marks one billable event as consumed. The unique
// (account, event) pair is what makes consumption at-most-once; the stored
// pool split lets a replayed event report exactly what it was billed.
type UsageRecord struct {
	RecordID          string
	AccountID         string
	EventID           string
	CreditsConsumed   int64
	FromSubscription  int64
	FromPurchased     int64
	CostBreakdownJSON string
	ProcessingJSON    string
	CreatedUnixUTC    int64
}

// UsageRecordInput is a usage record before the store assigns its id.
type UsageRecordInput struct {
	AccountID         string
	EventID           string
	CreditsConsumed   int64
	FromSubscription  int64
	FromPurchased     int64
	CostBreakdownJSON string
	ProcessingJSON    string
	CreatedUnixUTC    int64
}

// BalanceSummary is the read model for an account: the stored counters plus
// the derived pools callers actually budget against. LifetimeConsumed is
// computed from usage records at read time, the other lifetime counter is
// stored on the account.
type BalanceSummary struct {
	PurchasedBalance      int64
	SubscriptionAllowance int64
	SubscriptionConsumed  int64
	SubscriptionRemaining int64
	TotalAvailable        int64
	LifetimePurchased     int64
	LifetimeConsumed      int64
	CycleResetUnixUTC     int64
}

// ConsumeOutcome tags the result of a consumption attempt. All three values
// are expected business outcomes, not failures.
type ConsumeOutcome string

const (
	OutcomeConsumed            ConsumeOutcome = "consumed"
	OutcomeAlreadyConsumed     ConsumeOutcome = "already_consumed"
	OutcomeInsufficientCredits ConsumeOutcome = "insufficient_credits"
)

// ConsumeResult reports a consumption attempt. Record is populated for
// consumed and already_consumed outcomes; Summary is always populated so an
// insufficient outcome can tell the caller what is actually available.
type ConsumeResult struct {
	Outcome          ConsumeOutcome
	FromSubscription int64
	FromPurchased    int64
	Record           UsageRecord
	Summary          BalanceSummary
}
