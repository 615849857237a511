// Package apiserver is the HTTP facade over the credit engine. The engine
// itself is transport-free; this layer owns routing, auth, and the wire
// mapping of consume outcomes (402 for insufficient credits, 200 with an
// already_processed flag for replays).
package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Cyber1009/Interview-backend/internal/billing"
	"github.com/Cyber1009/Interview-backend/pkg/credit"
)

// CreditEngine is the engine surface the facade consumes.
type CreditEngine interface {
	GetOrCreateAccount(ctx context.Context, userID credit.UserID) (credit.Account, error)
	Balance(ctx context.Context, userID credit.UserID) (credit.BalanceSummary, error)
	Consume(ctx context.Context, userID credit.UserID, eventID credit.EventID, amount credit.CreditAmount, costBreakdown credit.MetadataJSON, processingDetails credit.MetadataJSON) (credit.ConsumeResult, error)
	Grant(ctx context.Context, userID credit.UserID, amount credit.CreditAmount, kind credit.LedgerKind, description string, reference *credit.Reference, cycleLength time.Duration, metadata credit.MetadataJSON) (credit.LedgerEntry, error)
	UsageHistory(ctx context.Context, userID credit.UserID, limit int) ([]credit.UsageRecord, error)
	LedgerHistory(ctx context.Context, userID credit.UserID, beforeUnixUTC int64, limit int) ([]credit.LedgerEntry, error)
}

// Biller resolves catalog products into grants.
type Biller interface {
	ActivateSubscription(ctx context.Context, userID credit.UserID, planID string, subscriptionReference string) (credit.LedgerEntry, error)
	RenewSubscription(ctx context.Context, userID credit.UserID, planID string, subscriptionReference string) (credit.LedgerEntry, error)
	PurchasePack(ctx context.Context, userID credit.UserID, packID string, paymentReference string) (credit.LedgerEntry, error)
}

// Server holds the facade dependencies.
type Server struct {
	cfg    Config
	logger *zap.Logger
	engine CreditEngine
	biller Biller
}

// NewServer validates the configuration and wires a Server.
func NewServer(cfg Config, logger *zap.Logger, engine CreditEngine, biller Biller) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("credit engine is required")
	}
	if biller == nil {
		return nil, fmt.Errorf("billing service is required")
	}
	return &Server{cfg: cfg, logger: logger, engine: engine, biller: biller}, nil
}

// Run serves HTTP until the context is cancelled.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Router builds the gin engine with all routes attached.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.GET("/plans", server.handlePlans)

	authed := v1.Group("")
	authed.Use(server.authenticate())

	authed.GET("/credits/balance", server.handleBalance)
	authed.GET("/credits/usage", server.handleUsageHistory)
	authed.GET("/credits/ledger", server.handleLedgerHistory)
	authed.POST("/credits/consume", server.requireRole(RoleService), server.handleConsume)
	authed.POST("/billing/purchases", server.requireRole(RoleBilling), server.handlePurchase)
	authed.POST("/billing/subscription/activate", server.requireRole(RoleBilling), server.handleSubscriptionActivate)
	authed.POST("/billing/subscription/renew", server.requireRole(RoleBilling), server.handleSubscriptionRenew)
	authed.POST("/billing/grants", server.requireRole(RoleAdmin), server.handleAdminGrant)

	return router
}

func (server *Server) handlePlans(ctx *gin.Context) {
	plans := billing.Plans()
	planPayloads := make([]planPayload, 0, len(plans))
	for _, plan := range plans {
		planPayloads = append(planPayloads, planPayload{
			ID:              plan.ID,
			Name:            plan.Name,
			Interval:        plan.Interval,
			CreditsPerCycle: plan.CreditsPerCycle,
			Features:        plan.Features,
		})
	}
	packs := billing.Packs()
	packPayloads := make([]packPayload, 0, len(packs))
	for _, pack := range packs {
		packPayloads = append(packPayloads, packPayload{
			ID:      pack.ID,
			Name:    pack.Name,
			Credits: pack.Credits,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"plans": planPayloads, "packs": packPayloads})
}

func (server *Server) handleBalance(ctx *gin.Context) {
	userID, ok := server.subjectUserID(ctx)
	if !ok {
		return
	}
	summary, err := server.engine.Balance(ctx.Request.Context(), userID)
	if err != nil {
		server.respondError(ctx, "balance", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance": balancePayloadFrom(summary)})
}

func (server *Server) handleUsageHistory(ctx *gin.Context) {
	userID, ok := server.subjectUserID(ctx)
	if !ok {
		return
	}
	limit, ok := queryInt(ctx, "limit")
	if !ok {
		return
	}
	records, err := server.engine.UsageHistory(ctx.Request.Context(), userID, limit)
	if err != nil {
		server.respondError(ctx, "usage_history", err)
		return
	}
	payloads := make([]usagePayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, usagePayloadFrom(record))
	}
	ctx.JSON(http.StatusOK, gin.H{"usage": payloads})
}

func (server *Server) handleLedgerHistory(ctx *gin.Context) {
	userID, ok := server.subjectUserID(ctx)
	if !ok {
		return
	}
	limit, ok := queryInt(ctx, "limit")
	if !ok {
		return
	}
	before, ok := queryInt64(ctx, "before")
	if !ok {
		return
	}
	entries, err := server.engine.LedgerHistory(ctx.Request.Context(), userID, before, limit)
	if err != nil {
		server.respondError(ctx, "ledger_history", err)
		return
	}
	payloads := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, entryPayloadFrom(entry))
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": payloads})
}

func (server *Server) handleConsume(ctx *gin.Context) {
	var request consumeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := credit.NewUserID(request.UserID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user_id", err.Error()))
		return
	}
	eventID, err := credit.NewEventID(request.EventID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_event_id", err.Error()))
		return
	}
	amountValue := request.Amount
	if amountValue == 0 {
		amountValue = 1
	}
	amount, err := credit.NewCreditAmount(amountValue)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_amount", err.Error()))
		return
	}
	costBreakdown, err := credit.NewMetadataJSON(string(request.CostBreakdown))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_cost_breakdown", err.Error()))
		return
	}
	processingDetails, err := credit.NewMetadataJSON(string(request.ProcessingDetails))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_processing_details", err.Error()))
		return
	}

	result, err := server.engine.Consume(ctx.Request.Context(), userID, eventID, amount, costBreakdown, processingDetails)
	if err != nil {
		server.respondError(ctx, "consume", err)
		return
	}

	payload := consumePayloadFrom(result)
	switch result.Outcome {
	case credit.OutcomeInsufficientCredits:
		ctx.JSON(http.StatusPaymentRequired, payload)
	default:
		ctx.JSON(http.StatusOK, payload)
	}
}

func (server *Server) handlePurchase(ctx *gin.Context) {
	var request purchaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := credit.NewUserID(request.UserID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user_id", err.Error()))
		return
	}
	entry, err := server.biller.PurchasePack(ctx.Request.Context(), userID, request.PackID, request.PaymentReference)
	if err != nil {
		server.respondBillingError(ctx, "purchase", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entry": entryPayloadFrom(entry)})
}

func (server *Server) handleSubscriptionActivate(ctx *gin.Context) {
	server.handleSubscriptionGrant(ctx, server.biller.ActivateSubscription)
}

func (server *Server) handleSubscriptionRenew(ctx *gin.Context) {
	server.handleSubscriptionGrant(ctx, server.biller.RenewSubscription)
}

func (server *Server) handleSubscriptionGrant(ctx *gin.Context, grant func(ctx context.Context, userID credit.UserID, planID string, subscriptionReference string) (credit.LedgerEntry, error)) {
	var request subscriptionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := credit.NewUserID(request.UserID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user_id", err.Error()))
		return
	}
	entry, err := grant(ctx.Request.Context(), userID, request.PlanID, request.SubscriptionReference)
	if err != nil {
		server.respondBillingError(ctx, "subscription", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entry": entryPayloadFrom(entry)})
}

// handleAdminGrant covers the manual adjustment and refund kinds; purchases
// and subscription cycles go through the billing routes so they carry
// catalog metadata.
func (server *Server) handleAdminGrant(ctx *gin.Context) {
	var request adminGrantRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := credit.NewUserID(request.UserID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user_id", err.Error()))
		return
	}
	kind, err := credit.ParseLedgerKind(request.Kind)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_kind", err.Error()))
		return
	}
	if kind != credit.KindAdminAdjustment && kind != credit.KindRefund {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_kind", "grants endpoint accepts admin_adjustment and refund"))
		return
	}
	amount, err := credit.NewCreditAmount(request.Amount)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_amount", err.Error()))
		return
	}
	metadata, err := credit.NewMetadataJSON(string(request.Metadata))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_metadata", err.Error()))
		return
	}
	var reference *credit.Reference
	if request.ReferenceKind != "" || request.ReferenceID != "" {
		value, err := credit.NewReference(request.ReferenceKind, request.ReferenceID)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_reference", err.Error()))
			return
		}
		reference = &value
	}
	entry, err := server.engine.Grant(ctx.Request.Context(), userID, amount, kind, request.Description, reference, 0, metadata)
	if err != nil {
		server.respondError(ctx, "grant", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entry": entryPayloadFrom(entry)})
}

func (server *Server) subjectUserID(ctx *gin.Context) (credit.UserID, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing token claims"))
		return credit.UserID{}, false
	}
	userID, err := credit.NewUserID(claims.Subject)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid token subject"))
		return credit.UserID{}, false
	}
	return userID, true
}

func (server *Server) respondError(ctx *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, credit.ErrTemporarilyUnavailable):
		server.logger.Warn("credit store contention exhausted", zap.String("operation", operation), zap.Error(err))
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("temporarily_unavailable", "please retry"))
	case isValidationError(err):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", err.Error()))
	default:
		server.logger.Error("credit operation failed", zap.String("operation", operation), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "credit operation failed"))
	}
}

func (server *Server) respondBillingError(ctx *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, billing.ErrUnknownPlan), errors.Is(err, billing.ErrUnknownPack):
		ctx.JSON(http.StatusNotFound, errorResponse("unknown_product", err.Error()))
	case errors.Is(err, billing.ErrMissingPaymentReference):
		ctx.JSON(http.StatusBadRequest, errorResponse("missing_payment_reference", err.Error()))
	default:
		server.respondError(ctx, operation, err)
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		credit.ErrInvalidUserID,
		credit.ErrInvalidEventID,
		credit.ErrInvalidCreditAmount,
		credit.ErrInvalidLedgerKind,
		credit.ErrInvalidMetadataJSON,
		credit.ErrInvalidReference,
		credit.ErrInvalidCycleLength,
		credit.ErrInvalidHistoryLimit,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func queryInt(ctx *gin.Context, name string) (int, bool) {
	raw := ctx.Query(name)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_query", name+" must be an integer"))
		return 0, false
	}
	return value, true
}

func queryInt64(ctx *gin.Context, name string) (int64, bool) {
	raw := ctx.Query(name)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_query", name+" must be an integer"))
		return 0, false
	}
	return value, true
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

type consumeRequest struct {
	UserID            string          `json:"user_id"`
	EventID           string          `json:"event_id"`
	Amount            int64           `json:"amount"`
	CostBreakdown     json.RawMessage `json:"cost_breakdown"`
	ProcessingDetails json.RawMessage `json:"processing_details"`
}

type purchaseRequest struct {
	UserID           string `json:"user_id"`
	PackID           string `json:"pack_id"`
	PaymentReference string `json:"payment_reference"`
}

type subscriptionRequest struct {
	UserID                string `json:"user_id"`
	PlanID                string `json:"plan_id"`
	SubscriptionReference string `json:"subscription_reference"`
}

type adminGrantRequest struct {
	UserID        string          `json:"user_id"`
	Amount        int64           `json:"amount"`
	Kind          string          `json:"kind"`
	Description   string          `json:"description"`
	ReferenceKind string          `json:"reference_kind"`
	ReferenceID   string          `json:"reference_id"`
	Metadata      json.RawMessage `json:"metadata"`
}

type planPayload struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Interval        string   `json:"interval"`
	CreditsPerCycle int64    `json:"credits_per_cycle"`
	Features        []string `json:"features"`
}

type packPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Credits int64  `json:"credits"`
}

type balancePayload struct {
	PurchasedBalance      int64 `json:"purchased_balance"`
	SubscriptionAllowance int64 `json:"subscription_allowance"`
	SubscriptionConsumed  int64 `json:"subscription_consumed"`
	SubscriptionRemaining int64 `json:"subscription_remaining"`
	TotalAvailable        int64 `json:"total_available"`
	LifetimePurchased     int64 `json:"lifetime_purchased"`
	LifetimeConsumed      int64 `json:"lifetime_consumed"`
	CycleResetUnixUTC     int64 `json:"cycle_reset_unix_utc"`
}

type usagePayload struct {
	RecordID         string          `json:"record_id"`
	EventID          string          `json:"event_id"`
	CreditsConsumed  int64           `json:"credits_consumed"`
	FromSubscription int64           `json:"from_subscription"`
	FromPurchased    int64           `json:"from_purchased"`
	CostBreakdown    json.RawMessage `json:"cost_breakdown"`
	CreatedUnixUTC   int64           `json:"created_unix_utc"`
}

type entryPayload struct {
	EntryID               string          `json:"entry_id"`
	Kind                  string          `json:"kind"`
	Amount                int64           `json:"amount"`
	PurchasedBalanceAfter int64           `json:"purchased_balance_after"`
	Description           string          `json:"description"`
	ReferenceKind         string          `json:"reference_kind,omitempty"`
	ReferenceID           string          `json:"reference_id,omitempty"`
	Metadata              json.RawMessage `json:"metadata"`
	CreatedUnixUTC        int64           `json:"created_unix_utc"`
}

type consumePayload struct {
	Status           string         `json:"status"`
	AlreadyProcessed bool           `json:"already_processed"`
	FromSubscription int64          `json:"from_subscription"`
	FromPurchased    int64          `json:"from_purchased"`
	Balance          balancePayload `json:"balance"`
}

func balancePayloadFrom(summary credit.BalanceSummary) balancePayload {
	return balancePayload{
		PurchasedBalance:      summary.PurchasedBalance,
		SubscriptionAllowance: summary.SubscriptionAllowance,
		SubscriptionConsumed:  summary.SubscriptionConsumed,
		SubscriptionRemaining: summary.SubscriptionRemaining,
		TotalAvailable:        summary.TotalAvailable,
		LifetimePurchased:     summary.LifetimePurchased,
		LifetimeConsumed:      summary.LifetimeConsumed,
		CycleResetUnixUTC:     summary.CycleResetUnixUTC,
	}
}

func usagePayloadFrom(record credit.UsageRecord) usagePayload {
	return usagePayload{
		RecordID:         record.RecordID,
		EventID:          record.EventID,
		CreditsConsumed:  record.CreditsConsumed,
		FromSubscription: record.FromSubscription,
		FromPurchased:    record.FromPurchased,
		CostBreakdown:    json.RawMessage(record.CostBreakdownJSON),
		CreatedUnixUTC:   record.CreatedUnixUTC,
	}
}

func entryPayloadFrom(entry credit.LedgerEntry) entryPayload {
	return entryPayload{
		EntryID:               entry.EntryID,
		Kind:                  string(entry.Kind),
		Amount:                entry.Amount,
		PurchasedBalanceAfter: entry.PurchasedBalanceAfter,
		Description:           entry.Description,
		ReferenceKind:         entry.ReferenceKind,
		ReferenceID:           entry.ReferenceID,
		Metadata:              json.RawMessage(entry.MetadataJSON),
		CreatedUnixUTC:        entry.CreatedUnixUTC,
	}
}

func consumePayloadFrom(result credit.ConsumeResult) consumePayload {
	return consumePayload{
		Status:           string(result.Outcome),
		AlreadyProcessed: result.Outcome == credit.OutcomeAlreadyConsumed,
		FromSubscription: result.FromSubscription,
		FromPurchased:    result.FromPurchased,
		Balance:          balancePayloadFrom(result.Summary),
	}
}
