package credit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Service contains the domain logic over a Store.
type Service struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// GetOrCreateAccount returns the account for a user, creating an empty one
// on first touch.
func (service *Service) GetOrCreateAccount(ctx context.Context, userID UserID) (Account, error) {
	return service.store.GetOrCreateAccount(ctx, userID)
}

// Balance returns the stored counters plus the derived pools and lifetime
// consumption.
func (service *Service) Balance(ctx context.Context, userID UserID) (BalanceSummary, error) {
	account, err := service.store.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return BalanceSummary{}, err
	}
	return summarize(ctx, service.store, account)
}

// Grant appends a credit-adding ledger entry and updates the account
// counters in one transaction. Subscription kinds replace the cycle
// allowance and restart the cycle clock; every other kind tops up the
// purchased pool. Grants are not deduplicated: callers own any replay
// protection, typically keyed on the payment reference.
func (service *Service) Grant(ctx context.Context, userID UserID, amount CreditAmount, kind LedgerKind, description string, reference *Reference, cycleLength time.Duration, metadata MetadataJSON) (LedgerEntry, error) {
	var granted LedgerEntry
	operationError := validateGrantInput(kind, cycleLength)
	if operationError == nil {
		operationError = service.withContentionRetry(ctx, func() error {
			return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
				created, err := transactionStore.GetOrCreateAccount(ctx, userID)
				if err != nil {
					return err
				}
				account, err := transactionStore.GetAccountForUpdate(ctx, created.AccountID)
				if err != nil {
					return err
				}
				nowUnixUTC := service.nowFn()
				entryMetadata := metadata.String()
				if kind.IsSubscription() {
					forfeited := SubscriptionRemaining(account.SubscriptionAllowance, account.SubscriptionConsumed)
					resetUnixUTC := nowUnixUTC + int64(cycleLength/time.Second)
					entryMetadata, err = subscriptionEntryMetadata(metadata, forfeited, resetUnixUTC)
					if err != nil {
						return err
					}
					account.SubscriptionAllowance = amount.Int64()
					account.SubscriptionConsumed = 0
					account.CycleResetUnixUTC = resetUnixUTC
				} else {
					account.PurchasedBalance += amount.Int64()
					if kind == KindPurchase {
						account.LifetimePurchased += amount.Int64()
					}
				}
				account.UpdatedUnixUTC = nowUnixUTC
				if err := transactionStore.UpdateAccountCounters(ctx, account); err != nil {
					return err
				}
				entryInput := LedgerEntryInput{
					AccountID:             account.AccountID,
					Kind:                  kind,
					Amount:                amount.Int64(),
					PurchasedBalanceAfter: account.PurchasedBalance,
					Description:           description,
					MetadataJSON:          entryMetadata,
					CreatedUnixUTC:        nowUnixUTC,
				}
				if reference != nil {
					entryInput.ReferenceKind = reference.Kind()
					entryInput.ReferenceID = reference.ID()
				}
				granted, err = transactionStore.InsertLedgerEntry(ctx, entryInput)
				return err
			})
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationGrant,
		UserID:    userID,
		Kind:      kind,
		Amount:    amount.Int64(),
		Metadata:  metadata,
		Error:     operationError,
	})
	if operationError != nil {
		return LedgerEntry{}, operationError
	}
	return granted, nil
}

// Consume bills one event at most once. The account row stays locked for the
// whole transaction, the replay check runs before the funds check so a
// repeated event reports already_consumed even after the balance dropped,
// and the subscription pool drains before the purchased pool.
func (service *Service) Consume(ctx context.Context, userID UserID, eventID EventID, amount CreditAmount, costBreakdown MetadataJSON, processingDetails MetadataJSON) (ConsumeResult, error) {
	var result ConsumeResult
	operationError := service.withContentionRetry(ctx, func() error {
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			created, err := transactionStore.GetOrCreateAccount(ctx, userID)
			if err != nil {
				return err
			}
			account, err := transactionStore.GetAccountForUpdate(ctx, created.AccountID)
			if err != nil {
				return err
			}
			prior, found, err := transactionStore.GetUsageRecord(ctx, account.AccountID, eventID)
			if err != nil {
				return err
			}
			if found {
				summary, err := summarize(ctx, transactionStore, account)
				if err != nil {
					return err
				}
				result = ConsumeResult{
					Outcome:          OutcomeAlreadyConsumed,
					FromSubscription: prior.FromSubscription,
					FromPurchased:    prior.FromPurchased,
					Record:           prior,
					Summary:          summary,
				}
				return nil
			}
			remaining := SubscriptionRemaining(account.SubscriptionAllowance, account.SubscriptionConsumed)
			if remaining+account.PurchasedBalance < amount.Int64() {
				summary, err := summarize(ctx, transactionStore, account)
				if err != nil {
					return err
				}
				result = ConsumeResult{Outcome: OutcomeInsufficientCredits, Summary: summary}
				return nil
			}
			fromSubscription, fromPurchased := SplitConsumption(remaining, amount.Int64())
			account.SubscriptionConsumed += fromSubscription
			account.PurchasedBalance -= fromPurchased
			account.PurchasedConsumed += fromPurchased
			if account.PurchasedBalance < 0 || account.SubscriptionConsumed > account.SubscriptionAllowance {
				return WrapError(operationConsume, "account", "balance_invariant", ErrInvalidBalance)
			}
			nowUnixUTC := service.nowFn()
			account.UpdatedUnixUTC = nowUnixUTC
			if err := transactionStore.UpdateAccountCounters(ctx, account); err != nil {
				return err
			}
			entryMetadata, err := usageEntryMetadata(eventID, fromSubscription, fromPurchased)
			if err != nil {
				return err
			}
			entryInput := LedgerEntryInput{
				AccountID:             account.AccountID,
				Kind:                  KindUsage,
				Amount:                -amount.Int64(),
				PurchasedBalanceAfter: account.PurchasedBalance,
				Description:           "interview session " + eventID.String(),
				MetadataJSON:          entryMetadata,
				CreatedUnixUTC:        nowUnixUTC,
			}
			if _, err := transactionStore.InsertLedgerEntry(ctx, entryInput); err != nil {
				return err
			}
			record, err := transactionStore.InsertUsageRecord(ctx, UsageRecordInput{
				AccountID:         account.AccountID,
				EventID:           eventID.String(),
				CreditsConsumed:   amount.Int64(),
				FromSubscription:  fromSubscription,
				FromPurchased:     fromPurchased,
				CostBreakdownJSON: costBreakdown.String(),
				ProcessingJSON:    processingDetails.String(),
				CreatedUnixUTC:    nowUnixUTC,
			})
			if err != nil {
				return err
			}
			summary, err := summarize(ctx, transactionStore, account)
			if err != nil {
				return err
			}
			result = ConsumeResult{
				Outcome:          OutcomeConsumed,
				FromSubscription: fromSubscription,
				FromPurchased:    fromPurchased,
				Record:           record,
				Summary:          summary,
			}
			return nil
		})
	})
	logEntry := OperationLog{
		Operation: operationConsume,
		UserID:    userID,
		EventID:   eventID,
		Kind:      KindUsage,
		Amount:    amount.Int64(),
		Error:     operationError,
	}
	if operationError == nil {
		logEntry.Status = string(result.Outcome)
	}
	service.logOperation(ctx, logEntry)
	if operationError != nil {
		return ConsumeResult{}, operationError
	}
	return result, nil
}

// UsageHistory lists usage records, newest first.
func (service *Service) UsageHistory(ctx context.Context, userID UserID, limit int) ([]UsageRecord, error) {
	normalizedLimit, err := normalizeHistoryLimit(limit)
	if err != nil {
		return nil, err
	}
	account, err := service.store.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return service.store.ListUsageRecords(ctx, account.AccountID, normalizedLimit)
}

// LedgerHistory lists ledger entries created before the given unix time,
// newest first. beforeUnixUTC zero means no upper bound.
func (service *Service) LedgerHistory(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]LedgerEntry, error) {
	normalizedLimit, err := normalizeHistoryLimit(limit)
	if err != nil {
		return nil, err
	}
	account, err := service.store.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return service.store.ListLedgerEntries(ctx, account.AccountID, beforeUnixUTC, normalizedLimit)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func (service *Service) withContentionRetry(ctx context.Context, attempt func() error) error {
	var lastErr error
	for tries := 0; tries <= contentionRetryLimit; tries++ {
		if tries > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(contentionRetryBackoff * time.Duration(tries)):
			}
		}
		lastErr = attempt()
		if lastErr == nil || !errors.Is(lastErr, ErrStoreContention) {
			return lastErr
		}
	}
	return fmt.Errorf("%w: %s", ErrTemporarilyUnavailable, lastErr)
}

func validateGrantInput(kind LedgerKind, cycleLength time.Duration) error {
	switch kind {
	case KindPurchase, KindRefund, KindAdminAdjustment:
		if cycleLength != 0 {
			return fmt.Errorf("%w: cycle length only applies to subscription kinds", ErrInvalidCycleLength)
		}
		return nil
	case KindSubscriptionGrant, KindSubscriptionReset:
		if cycleLength <= 0 {
			return fmt.Errorf("%w: subscription kinds require a positive cycle length", ErrInvalidCycleLength)
		}
		return nil
	case KindUsage:
		return fmt.Errorf("%w: usage entries are written by Consume", ErrInvalidLedgerKind)
	}
	return fmt.Errorf("%w: %q", ErrInvalidLedgerKind, kind)
}

func normalizeHistoryLimit(limit int) (int, error) {
	if limit == 0 {
		return DefaultHistoryLimit, nil
	}
	if limit < 0 || limit > MaxHistoryLimit {
		return 0, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidHistoryLimit, MaxHistoryLimit)
	}
	return limit, nil
}

func summarize(ctx context.Context, store Store, account Account) (BalanceSummary, error) {
	lifetimeConsumed, err := store.SumConsumedCredits(ctx, account.AccountID)
	if err != nil {
		return BalanceSummary{}, err
	}
	return NewBalanceSummary(account, lifetimeConsumed), nil
}

// subscriptionEntryMetadata merges the cycle bookkeeping into the caller's
// metadata so subscription state stays reconstructable from the ledger alone.
func subscriptionEntryMetadata(metadata MetadataJSON, forfeited int64, resetUnixUTC int64) (string, error) {
	decoded := map[string]any{}
	if err := json.Unmarshal([]byte(metadata.String()), &decoded); err != nil {
		return "", fmt.Errorf("%w: must be a json object", ErrInvalidMetadataJSON)
	}
	decoded[metadataKeyForfeited] = forfeited
	decoded[metadataKeyCycleReset] = resetUnixUTC
	encoded, err := json.Marshal(decoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMetadataJSON, err)
	}
	return string(encoded), nil
}

func usageEntryMetadata(eventID EventID, fromSubscription int64, fromPurchased int64) (string, error) {
	encoded, err := json.Marshal(struct {
		EventID          string `json:"event_id"`
		SourcePool       string `json:"source_pool"`
		FromSubscription int64  `json:"from_subscription"`
		FromPurchased    int64  `json:"from_purchased"`
	}{
		EventID:          eventID.String(),
		SourcePool:       sourcePoolLabel(fromSubscription, fromPurchased),
		FromSubscription: fromSubscription,
		FromPurchased:    fromPurchased,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMetadataJSON, err)
	}
	return string(encoded), nil
}

func sourcePoolLabel(fromSubscription int64, fromPurchased int64) string {
	switch {
	case fromSubscription > 0 && fromPurchased > 0:
		return sourcePoolMixed
	case fromPurchased > 0:
		return sourcePoolPurchased
	default:
		return sourcePoolSubscription
	}
}
