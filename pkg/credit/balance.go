package credit

// Balance arithmetic lives here and nowhere else. The transaction machinery
// in service.go decides when to read and write; these functions decide what
// the numbers mean.

// SubscriptionRemaining returns the unconsumed part of the cycle allowance,
// clamped at zero.
func SubscriptionRemaining(allowance int64, consumed int64) int64 {
	remaining := allowance - consumed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TotalAvailable returns the credits an account can spend right now.
func TotalAvailable(purchased int64, allowance int64, consumed int64) int64 {
	return purchased + SubscriptionRemaining(allowance, consumed)
}

// SplitConsumption drains the subscription pool before the purchased pool.
// Callers check sufficiency first; the split assumes amount is coverable.
func SplitConsumption(subscriptionRemaining int64, amount int64) (fromSubscription int64, fromPurchased int64) {
	if amount <= subscriptionRemaining {
		return amount, 0
	}
	return subscriptionRemaining, amount - subscriptionRemaining
}

// NewBalanceSummary projects an account and its lifetime consumption into
// the read model.
func NewBalanceSummary(account Account, lifetimeConsumed int64) BalanceSummary {
	return BalanceSummary{
		PurchasedBalance:      account.PurchasedBalance,
		SubscriptionAllowance: account.SubscriptionAllowance,
		SubscriptionConsumed:  account.SubscriptionConsumed,
		SubscriptionRemaining: SubscriptionRemaining(account.SubscriptionAllowance, account.SubscriptionConsumed),
		TotalAvailable:        TotalAvailable(account.PurchasedBalance, account.SubscriptionAllowance, account.SubscriptionConsumed),
		LifetimePurchased:     account.LifetimePurchased,
		LifetimeConsumed:      lifetimeConsumed,
		CycleResetUnixUTC:     account.CycleResetUnixUTC,
	}
}
