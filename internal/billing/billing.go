// Package billing is the in-process face of the billing collaborator: it
// resolves catalog products into credit grants. Payment-provider truth
// (checkout, webhooks, signatures) lives outside; callers hand this package
// the already-confirmed payment or subscription reference, which doubles as
// their deduplication key for retried provider events.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Cyber1009/Interview-backend/pkg/credit"
)

const (
	referenceKindPayment      = "payment"
	referenceKindSubscription = "subscription"
)

var (
	ErrUnknownPlan             = errors.New("unknown subscription plan")
	ErrUnknownPack             = errors.New("unknown credit pack")
	ErrMissingPaymentReference = errors.New("missing payment reference")
	ErrNilEngine               = errors.New("credit engine is required")
)

// Granter is the credit-engine surface billing needs.
type Granter interface {
	Grant(ctx context.Context, userID credit.UserID, amount credit.CreditAmount, kind credit.LedgerKind, description string, reference *credit.Reference, cycleLength time.Duration, metadata credit.MetadataJSON) (credit.LedgerEntry, error)
}

// Service turns catalog lookups into engine grants.
type Service struct {
	engine Granter
}

// NewService wires a billing Service.
func NewService(engine Granter) (*Service, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	return &Service{engine: engine}, nil
}

// ActivateSubscription starts a plan's first cycle: the allowance is set to
// the plan's credits and the cycle clock starts now.
func (service *Service) ActivateSubscription(ctx context.Context, userID credit.UserID, planID string, subscriptionReference string) (credit.LedgerEntry, error) {
	return service.grantCycle(ctx, userID, planID, subscriptionReference, credit.KindSubscriptionGrant, "activation")
}

// RenewSubscription re-bases the cycle on renewal: unused allowance from the
// previous cycle is forfeited, not carried over.
func (service *Service) RenewSubscription(ctx context.Context, userID credit.UserID, planID string, subscriptionReference string) (credit.LedgerEntry, error) {
	return service.grantCycle(ctx, userID, planID, subscriptionReference, credit.KindSubscriptionReset, "renewal")
}

// PurchasePack tops up the purchased pool with a one-time pack. The payment
// reference is required: it ties the ledger entry to the provider charge and
// is the caller's idempotency key against double-granting.
func (service *Service) PurchasePack(ctx context.Context, userID credit.UserID, packID string, paymentReference string) (credit.LedgerEntry, error) {
	pack, found := PackByID(packID)
	if !found {
		return credit.LedgerEntry{}, fmt.Errorf("%w: %q", ErrUnknownPack, packID)
	}
	if paymentReference == "" {
		return credit.LedgerEntry{}, fmt.Errorf("%w: pack %q", ErrMissingPaymentReference, packID)
	}
	amount, err := credit.NewCreditAmount(pack.Credits)
	if err != nil {
		return credit.LedgerEntry{}, err
	}
	reference, err := credit.NewReference(referenceKindPayment, paymentReference)
	if err != nil {
		return credit.LedgerEntry{}, err
	}
	metadata, err := packMetadata(pack)
	if err != nil {
		return credit.LedgerEntry{}, err
	}
	description := fmt.Sprintf("%s (%d credits)", pack.Name, pack.Credits)
	return service.engine.Grant(ctx, userID, amount, credit.KindPurchase, description, &reference, 0, metadata)
}

func (service *Service) grantCycle(ctx context.Context, userID credit.UserID, planID string, subscriptionReference string, kind credit.LedgerKind, action string) (credit.LedgerEntry, error) {
	plan, found := PlanByID(planID)
	if !found {
		return credit.LedgerEntry{}, fmt.Errorf("%w: %q", ErrUnknownPlan, planID)
	}
	amount, err := credit.NewCreditAmount(plan.CreditsPerCycle)
	if err != nil {
		return credit.LedgerEntry{}, err
	}
	var reference *credit.Reference
	if subscriptionReference != "" {
		value, err := credit.NewReference(referenceKindSubscription, subscriptionReference)
		if err != nil {
			return credit.LedgerEntry{}, err
		}
		reference = &value
	}
	metadata, err := planMetadata(plan)
	if err != nil {
		return credit.LedgerEntry{}, err
	}
	description := plan.Name + " " + action
	return service.engine.Grant(ctx, userID, amount, kind, description, reference, plan.CycleLength, metadata)
}

func planMetadata(plan Plan) (credit.MetadataJSON, error) {
	encoded, err := json.Marshal(struct {
		Plan            string `json:"plan"`
		Interval        string `json:"interval"`
		CreditsPerCycle int64  `json:"credits_per_cycle"`
		PriceReference  string `json:"price_reference"`
	}{
		Plan:            plan.ID,
		Interval:        plan.Interval,
		CreditsPerCycle: plan.CreditsPerCycle,
		PriceReference:  plan.PriceReference,
	})
	if err != nil {
		return credit.MetadataJSON{}, err
	}
	return credit.NewMetadataJSON(string(encoded))
}

func packMetadata(pack CreditPack) (credit.MetadataJSON, error) {
	encoded, err := json.Marshal(struct {
		Pack           string `json:"pack"`
		Credits        int64  `json:"credits"`
		PriceReference string `json:"price_reference"`
	}{
		Pack:           pack.ID,
		Credits:        pack.Credits,
		PriceReference: pack.PriceReference,
	})
	if err != nil {
		return credit.MetadataJSON{}, err
	}
	return credit.NewMetadataJSON(string(encoded))
}
