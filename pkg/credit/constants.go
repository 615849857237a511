package credit

import "time"

const (
	operationGrant   = "grant"
	operationConsume = "consume"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// DefaultHistoryLimit applies when a caller passes limit zero.
	DefaultHistoryLimit = 50
	// MaxHistoryLimit bounds a single history page.
	MaxHistoryLimit = 200

	contentionRetryLimit   = 3
	contentionRetryBackoff = 25 * time.Millisecond

	sourcePoolSubscription = "subscription"
	sourcePoolPurchased    = "purchased"
	sourcePoolMixed        = "mixed"

	metadataKeyForfeited  = "previous_cycle_forfeited"
	metadataKeyCycleReset = "cycle_reset_at"
)
