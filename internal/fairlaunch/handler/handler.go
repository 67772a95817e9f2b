// Package handler is the thin HTTP layer over the sale service. It parses
// and validates transport input, resolves the authenticated caller, and
// translates domain errors to status codes; all sale rules live in the
// service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fairlaunch/internal/fairlaunch/keys"
	"fairlaunch/internal/fairlaunch/lottery"
	"fairlaunch/internal/fairlaunch/models"
	"fairlaunch/internal/fairlaunch/service"
	"fairlaunch/internal/platform/metrics"
	"fairlaunch/internal/platform/middleware"
	id "fairlaunch/pkg/domain"
	dErrors "fairlaunch/pkg/domainerrors"
)

// Service defines the sale operations the handler exposes.
type Service interface {
	Initialize(ctx context.Context, params service.InitializeParams) (*models.Auction, error)
	UpdateConfig(ctx context.Context, auction keys.Key, authority id.AuthorityID, update service.ConfigUpdate) (*models.Auction, error)
	StartPhaseThree(ctx context.Context, auction keys.Key, authority id.AuthorityID, start, end time.Time) (*models.Auction, error)
	CreateLotteryBitmap(ctx context.Context, auction keys.Key, authority id.AuthorityID) (*models.LotteryBitmap, error)
	ExtendLotteryBitmap(ctx context.Context, auction keys.Key, authority id.AuthorityID, offset uint64, strip []byte) (*models.LotteryBitmap, error)
	PlanLottery(ctx context.Context, auction keys.Key, authority id.AuthorityID, seed []byte) ([]lottery.Strip, error)
	Purchase(ctx context.Context, auction keys.Key, buyer id.BuyerID, amount uint64) (*models.Ticket, error)
	Adjust(ctx context.Context, auction keys.Key, buyer id.BuyerID, amount uint64) (*models.Ticket, error)
	Punch(ctx context.Context, auction keys.Key, buyer id.BuyerID) (*models.Ticket, error)
	GetAuction(ctx context.Context, auction keys.Key) (*models.Auction, error)
	GetTicket(ctx context.Context, auction keys.Key, buyer id.BuyerID) (*models.Ticket, error)
	GetLottery(ctx context.Context, auction keys.Key) (*models.LotteryBitmap, error)
}

// Handler handles the sale endpoints.
type Handler struct {
	logger       *slog.Logger
	sale         Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a sale Handler.
func New(
	sale Service,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		sale:         sale,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the sale routes with their middleware chain.
func (h *Handler) Register(r chi.Router) {
	saleRouter := chi.NewRouter()
	saleRouter.Use(middleware.Recovery(h.logger))
	saleRouter.Use(middleware.RequestID)
	saleRouter.Use(middleware.Logger(h.logger))
	saleRouter.Use(middleware.Timeout(30 * time.Second))
	saleRouter.Use(middleware.ContentTypeJSON)
	saleRouter.Use(middleware.LatencyMiddleware(h.metrics))
	saleRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	saleRouter.Post("/auctions", h.handleInitialize)
	saleRouter.Get("/auctions/{auction}", h.handleGetAuction)
	saleRouter.Patch("/auctions/{auction}/config", h.handleUpdateConfig)
	saleRouter.Post("/auctions/{auction}/phase-three", h.handleStartPhaseThree)

	saleRouter.Post("/auctions/{auction}/lottery", h.handleCreateLottery)
	saleRouter.Patch("/auctions/{auction}/lottery", h.handleExtendLottery)
	saleRouter.Post("/auctions/{auction}/lottery/plan", h.handlePlanLottery)
	saleRouter.Get("/auctions/{auction}/lottery", h.handleGetLottery)

	saleRouter.Post("/auctions/{auction}/tickets", h.handlePurchase)
	saleRouter.Get("/auctions/{auction}/tickets/{buyer}", h.handleGetTicket)
	saleRouter.Patch("/auctions/{auction}/tickets/{buyer}", h.handleAdjust)
	saleRouter.Post("/auctions/{auction}/tickets/{buyer}/punch", h.handlePunch)

	r.Mount("/", saleRouter)
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authority, ok := h.callerAuthority(w, r)
	if !ok {
		return
	}

	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	params, err := req.toParams(authority)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	auction, err := h.sale.Initialize(ctx, params)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusCreated, auction)
}

func (h *Handler) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	auctionKey, ok := h.auctionKey(w, r)
	if !ok {
		return
	}
	auction, err := h.sale.GetAuction(ctx, auctionKey)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, auction)
}

func (h *Handler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authority, ok := h.callerAuthority(w, r)
	if !ok {
		return
	}
	auctionKey, ok := h.auctionKey(w, r)
	if !ok {
		return
	}

	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	auction, err := h.sale.UpdateConfig(ctx, auctionKey, authority, req.toUpdate())
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, auction)
}

func (h *Handler) handleStartPhaseThree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authority, ok := h.callerAuthority(w, r)
	if !ok {
		return
	}
	auctionKey, ok := h.auctionKey(w, r)
	if !ok {
		return
	}

	var req StartPhaseThreeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	auction, err := h.sale.StartPhaseThree(ctx, auctionKey, authority, req.Start, req.End)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, auction)
}

func (h *Handler) handleCreateLottery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authority, ok := h.callerAuthority(w, r)
	if !ok {
		return
	}
	auctionKey, ok := h.auctionKey(w, r)
	if !ok {
		return
	}

	bitmap, err := h.sale.CreateLotteryBitmap(ctx, auctionKey, authority)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusCreated, bitmap)
}

func (h *Handler) handleExtendLottery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authority, ok := h.callerAuthority(w, r)
	if !ok {
		return
	}
	auctionKey, ok := h.auctionKey(w, r)
	if !ok {
		return
	}

	var req ExtendLotteryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if len(req.Bits) == 0 {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "strip bits are required"))
		return
	}

	bitmap, err := h.sale.ExtendLotteryBitmap(ctx, auctionKey, authority, req.Offset, req.Bits)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, bitmap)
}

func (h *Handler) handlePlanLottery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authority, ok := h.callerAuthority(w, r)
	if !ok {
		return
	}
	auctionKey, ok := h.auctionKey(w, r)
	if !ok {
		return
	}

	var req PlanLotteryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if len(req.Seed) == 0 {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "draw seed is required"))
		return
	}

	strips, err := h.sale.PlanLottery(ctx, auctionKey, authority, req.Seed)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, PlanLotteryResponse{Strips: strips})
}

func (h *Handler) handleGetLottery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	auctionKey, ok := h.auctionKey(w, r)
	if !ok {
		return
	}
	bitmap, err := h.sale.GetLottery(ctx, auctionKey)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, bitmap)
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	buyer, ok := h.callerBuyer(w, r)
	if !ok {
		return
	}
	auctionKey, ok := h.auctionKey(w, r)
	if !ok {
		return
	}

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	ticket, err := h.sale.Purchase(ctx, auctionKey, buyer, req.Amount)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusCreated, ticket)
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	auctionKey, ok := h.auctionKey(w, r)
	if !ok {
		return
	}
	buyer, err := id.ParseBuyerID(chi.URLParam(r, "buyer"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	ticket, err := h.sale.GetTicket(ctx, auctionKey, buyer)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, ticket)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	buyer, ok := h.callerBuyer(w, r)
	if !ok {
		return
	}
	auctionKey, ok := h.auctionKey(w, r)
	if !ok {
		return
	}
	// Buyers adjust their own tickets only.
	if chi.URLParam(r, "buyer") != buyer.String() {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeForbidden, "ticket belongs to another buyer"))
		return
	}

	var req AdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	ticket, err := h.sale.Adjust(ctx, auctionKey, buyer, req.Amount)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, ticket)
}

// handlePunch settles the ticket named in the path. Any authenticated caller
// may crank a settlement; value only ever moves to the ticket's buyer.
func (h *Handler) handlePunch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	auctionKey, ok := h.auctionKey(w, r)
	if !ok {
		return
	}
	buyer, err := id.ParseBuyerID(chi.URLParam(r, "buyer"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	ticket, err := h.sale.Punch(ctx, auctionKey, buyer)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, ticket)
}

func (h *Handler) auctionKey(w http.ResponseWriter, r *http.Request) (keys.Key, bool) {
	key, err := keys.Parse(chi.URLParam(r, "auction"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return keys.Key{}, false
	}
	return key, true
}

func (h *Handler) callerAuthority(w http.ResponseWriter, r *http.Request) (id.AuthorityID, bool) {
	ctx := r.Context()
	caller := middleware.GetCallerID(ctx)
	if caller == "" {
		// This should never happen if RequireAuth middleware is configured correctly
		h.logger.ErrorContext(ctx, "caller missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		h.writeError(ctx, w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return id.AuthorityID{}, false
	}
	authority, err := id.ParseAuthorityID(caller)
	if err != nil {
		h.writeError(ctx, w, err)
		return id.AuthorityID{}, false
	}
	return authority, true
}

func (h *Handler) callerBuyer(w http.ResponseWriter, r *http.Request) (id.BuyerID, bool) {
	ctx := r.Context()
	caller := middleware.GetCallerID(ctx)
	if caller == "" {
		h.logger.ErrorContext(ctx, "caller missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		h.writeError(ctx, w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return id.BuyerID{}, false
	}
	buyer, err := id.ParseBuyerID(caller)
	if err != nil {
		h.writeError(ctx, w, err)
		return id.BuyerID{}, false
	}
	return buyer, true
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.ErrorContext(ctx, "failed to encode response",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
	}
}

// writeError translates domain error codes to HTTP statuses with a JSON
// envelope of {"error": code, "error_description": message}.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             string(code),
		"error_description": err.Error(),
	})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodePhaseViolation:
		return http.StatusConflict
	case dErrors.CodeNumericOverflow, dErrors.CodeIntegrity:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
