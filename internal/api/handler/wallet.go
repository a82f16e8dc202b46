// internal/api/handler/wallet.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"closedloop-wallet/internal/api/types"
	"closedloop-wallet/internal/domain"
	"closedloop-wallet/internal/service"
	"closedloop-wallet/internal/util" // For custom errors
)

// DefaultTimeout bounds every request handled by the router.
const DefaultTimeout = 30 * time.Second

// IdempotencyKeyHeader may carry the idempotency key instead of the request body.
const IdempotencyKeyHeader = "Idempotency-Key"

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// WalletHandler handles HTTP requests related to wallet operations.
type WalletHandler struct {
	service service.WalletService
	logger  *slog.Logger
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(svc service.WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		service: svc,
		logger:  logger,
	}
}

// Helper function to send JSON responses.
func (h *WalletHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// Helper function to send error responses.
func (h *WalletHandler) respondWithError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	body := map[string]interface{}{"error": "Internal server error"}

	var insufficient *util.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		statusCode = http.StatusPaymentRequired // 402 Payment Required
		body["error"] = "Insufficient balance"
		body["balance"] = insufficient.Balance
		body["requested"] = insufficient.Requested
		body["shortfall"] = insufficient.Shortfall()
	case util.IsError(err, util.ErrInsufficientBalance):
		statusCode = http.StatusPaymentRequired
		body["error"] = "Insufficient balance"
	case util.IsError(err, util.ErrInvalidAmount), util.IsError(err, util.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		body["error"] = err.Error() // Use the error message directly for invalid input
	case util.IsError(err, util.ErrAccountNotFound):
		statusCode = http.StatusNotFound
		body["error"] = "Account not found"
	case util.IsError(err, util.ErrAssetTypeNotFound):
		statusCode = http.StatusNotFound
		body["error"] = "Asset type not found"
	case util.IsError(err, util.ErrTransactionNotFound), util.IsError(err, util.ErrNotFound):
		statusCode = http.StatusNotFound
		body["error"] = "Resource not found"
	case util.IsError(err, util.ErrDuplicateEntry):
		statusCode = http.StatusConflict
		body["error"] = "Resource already exists"
	case util.IsError(err, util.ErrIdempotencyInProgress):
		statusCode = http.StatusConflict
		body["error"] = "A request with this idempotency key is in progress"
	case util.IsError(err, util.ErrLockTimeout):
		statusCode = http.StatusServiceUnavailable
		body["error"] = "Account is busy, retry later"
	case util.IsError(err, util.ErrTreasuryNotFound), util.IsError(err, util.ErrTreasuryOverdraft):
		h.logger.Error("Treasury failure", "error", err)
	default:
		h.logger.Error("Unhandled service error", "error", err)
	}

	h.respondWithJSON(w, statusCode, body)
}

// resolveUser maps the externalUserID path parameter to a USER account.
func (h *WalletHandler) resolveUser(r *http.Request) (*domain.Account, error) {
	externalUserID := strings.TrimSpace(chi.URLParam(r, "externalUserID"))
	if externalUserID == "" {
		return nil, util.ErrInvalidInput
	}
	return h.service.GetUserAccount(r.Context(), externalUserID)
}

// MovementRequest represents the request body for top-up, bonus and spend.
type MovementRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	AssetTypeID    int64           `json:"asset_type_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type movementFunc func(ctx context.Context, accountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*service.MovementResult, error)

func (h *WalletHandler) movement(w http.ResponseWriter, r *http.Request, run movementFunc) {
	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	if req.AssetTypeID <= 0 {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	}
	if err := domain.ValidateIdempotencyKey(req.IdempotencyKey); err != nil {
		h.respondWithError(w, err)
		return
	}

	account, err := h.resolveUser(r)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	result, err := run(r.Context(), account.ID, req.AssetTypeID, req.Amount, req.IdempotencyKey)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	h.respondWithJSON(w, status, result)
}

// TopUp credits a user after an external purchase.
// POST /api/v1/users/{externalUserID}/top-up
func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.service.TopUp)
}

// Bonus grants free credits to a user.
// POST /api/v1/users/{externalUserID}/bonus
func (h *WalletHandler) Bonus(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.service.Bonus)
}

// Spend debits a user in favour of the treasury.
// POST /api/v1/users/{externalUserID}/spend
func (h *WalletHandler) Spend(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.service.Spend)
}

// GetBalance handles the get balance request.
// GET /api/v1/users/{externalUserID}/balance?asset_type_id=N
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	assetTypeID, err := strconv.ParseInt(r.URL.Query().Get("asset_type_id"), 10, 64)
	if err != nil || assetTypeID <= 0 {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	account, err := h.resolveUser(r)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), account.ID, assetTypeID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":    account.ID,
		"asset_type_id": assetTypeID,
		"balance":       balance,
	})
}

// GetEntryHistory handles the ledger entry history request.
// GET /api/v1/users/{externalUserID}/entries?asset_type_id=&limit=&offset=
func (h *WalletHandler) GetEntryHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var assetTypeID *int64
	if raw := query.Get("asset_type_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.respondWithError(w, util.ErrInvalidInput)
			return
		}
		assetTypeID = &id
	}

	limit, err := strconv.Atoi(query.Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset, err := strconv.Atoi(query.Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	account, err := h.resolveUser(r)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	entries, total, err := h.service.GetEntryHistory(r.Context(), account.ID, assetTypeID, limit, offset)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.NewPaginatedResponse(entries, limit, offset, total))
}

// CreateUserRequest represents the request body for provisioning a user account.
type CreateUserRequest struct {
	ExternalUserID string `json:"external_user_id"`
	Name           string `json:"name"`
}

// CreateUser provisions a USER account.
// POST /api/v1/users
func (h *WalletHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	account, err := h.service.CreateUserAccount(r.Context(), strings.TrimSpace(req.ExternalUserID), strings.TrimSpace(req.Name))
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, account)
}

// ListAssetTypes returns the asset type registry.
// GET /api/v1/asset-types
func (h *WalletHandler) ListAssetTypes(w http.ResponseWriter, r *http.Request) {
	assetTypes, err := h.service.ListAssetTypes(r.Context())
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if assetTypes == nil {
		assetTypes = []domain.AssetType{}
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"data": assetTypes})
}

// GetTransaction returns a ledger transaction with its entries.
// GET /api/v1/transactions/{transactionID}
func (h *WalletHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID, err := strconv.ParseInt(chi.URLParam(r, "transactionID"), 10, 64)
	if err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	transaction, err := h.service.GetTransaction(r.Context(), transactionID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"id":              transaction.ID,
		"kind":            transaction.Kind,
		"idempotency_key": transaction.IdempotencyKey,
		"created_at":      transaction.CreatedAt,
		"entries":         transaction.Entries,
	})
}
