/*
handlers.go - Admin REST API handlers

PURPOSE:
  Exposes the credit ledger to operator tooling over REST. Handles HTTP
  request/response and JSON serialization, and delegates to the ledger,
  which owns validation and locking. Chat users never reach these routes.

ENDPOINTS:
  Accounts:
    GET    /api/accounts/{id}            Balance and blacklist flag
    POST   /api/accounts/{id}/credits    Add credits
    PUT    /api/accounts/{id}/blacklist  Blacklist
    DELETE /api/accounts/{id}/blacklist  Remove from blacklist
    GET    /api/accounts/{id}/purchases  Recent purchases (?limit=)

  Codes:
    GET    /api/codes                    List codes (?include_used=true)
    POST   /api/codes                    Issue one named or N random codes

  Products:
    GET    /api/products                 List products with stock
    POST   /api/products                 Create product
    DELETE /api/products/{name}          Remove product
    GET    /api/products/{name}/stock    List stock entries
    POST   /api/products/{name}/stock    Add stock entries
    DELETE /api/products/{name}/stock    Remove stock entries by number

  Discounts:
    GET    /api/discounts                Active discount codes
    POST   /api/discounts                Create discount code
    DELETE /api/discounts/{code}         Remove discount code

  Purchases:
    GET    /api/purchases/{id}           Purchase record with items

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate code, product or discount)
  - 500: Internal errors (details logged, not returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/warp/credit-bot/bot"
	"github.com/warp/credit-bot/ledger"
)

const (
	defaultPurchaseLimit = 10
	maxPurchaseLimit     = 100
	defaultDaysValid     = 30
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for admin HTTP handlers.
type Handler struct {
	Ledger  *ledger.Ledger
	Metrics *bot.Metrics
	Log     logrus.FieldLogger
}

// NewHandler creates a new handler over the given ledger.
func NewHandler(l *ledger.Ledger, metrics *bot.Metrics, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Ledger: l, Metrics: metrics, Log: log}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// GetAccount returns an account. Unknown ids read as a zero balance.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := ledger.Identity(chi.URLParam(r, "id"))

	acct, err := h.Ledger.Account(r.Context(), id)
	if err != nil {
		h.internalError(w, r, "Failed to get account", err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

// AddCredits adds a positive amount to an account.
func (h *Handler) AddCredits(w http.ResponseWriter, r *http.Request) {
	id := ledger.Identity(chi.URLParam(r, "id"))

	var req AddCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if _, err := h.Ledger.AdjustBalance(r.Context(), id, req.Amount); err != nil {
		h.ledgerError(w, r, "Failed to add credits", err)
		return
	}
	h.Metrics.Granted(bot.SourceAPI, req.Amount)

	h.Log.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"target":     string(id),
		"amount":     req.Amount,
	}).Info("credits added via API")

	h.GetAccount(w, r)
}

// Blacklist sets the blacklist flag.
func (h *Handler) Blacklist(w http.ResponseWriter, r *http.Request) {
	h.setBlacklisted(w, r, true)
}

// Unblacklist clears the blacklist flag.
func (h *Handler) Unblacklist(w http.ResponseWriter, r *http.Request) {
	h.setBlacklisted(w, r, false)
}

func (h *Handler) setBlacklisted(w http.ResponseWriter, r *http.Request, flag bool) {
	id := ledger.Identity(chi.URLParam(r, "id"))

	if _, err := h.Ledger.SetBlacklisted(r.Context(), id, flag); err != nil {
		h.internalError(w, r, "Failed to update blacklist", err)
		return
	}

	h.GetAccount(w, r)
}

// ListAccountPurchases returns an account's most recent purchases.
func (h *Handler) ListAccountPurchases(w http.ResponseWriter, r *http.Request) {
	id := ledger.Identity(chi.URLParam(r, "id"))

	limit := defaultPurchaseLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxPurchaseLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100", err)
			return
		}
		limit = n
	}

	purchases, err := h.Ledger.PurchaseHistory(r.Context(), id, limit)
	if err != nil {
		h.internalError(w, r, "Failed to list purchases", err)
		return
	}

	dtos := make([]PurchaseDTO, len(purchases))
	for i, p := range purchases {
		dtos[i] = toPurchaseDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CODE HANDLERS
// =============================================================================

// ListCodes returns redemption codes, unused only unless include_used=true.
func (h *Handler) ListCodes(w http.ResponseWriter, r *http.Request) {
	includeUsed, _ := strconv.ParseBool(r.URL.Query().Get("include_used"))

	codes, err := h.Ledger.Codes(r.Context(), includeUsed)
	if err != nil {
		h.internalError(w, r, "Failed to list codes", err)
		return
	}

	dtos := make([]CodeDTO, len(codes))
	for i, c := range codes {
		dtos[i] = toCodeDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCodes issues redemption codes.
func (h *Handler) CreateCodes(w http.ResponseWriter, r *http.Request) {
	var req CreateCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		codes []string
		err   error
	)
	if req.Code != "" {
		var rc ledger.RedemptionCode
		rc, err = h.Ledger.CreateCode(r.Context(), req.Code, req.Credits)
		codes = []string{rc.Code}
	} else {
		if req.Count == 0 {
			req.Count = 1
		}
		codes, err = h.Ledger.GenerateCodes(r.Context(), req.Credits, req.Count)
	}
	if err != nil {
		h.ledgerError(w, r, "Failed to create codes", err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateCodesResponse{Codes: codes, Credits: req.Credits})
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns all products with stock counts.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Ledger.Products(r.Context())
	if err != nil {
		h.internalError(w, r, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProduct creates a product, optionally seeding stock.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	p, err := h.Ledger.AddProduct(r.Context(), req.Name, req.Price, req.FilePath)
	if err != nil {
		h.ledgerError(w, r, "Failed to create product", err)
		return
	}

	if len(req.Items) > 0 {
		stock, err := h.Ledger.Restock(r.Context(), p.Name, req.Items)
		if err != nil && !errors.Is(err, ledger.ErrEmptyStock) {
			h.ledgerError(w, r, "Failed to add stock", err)
			return
		}
		if err == nil {
			p.Stock = stock
		}
	}

	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

// DeleteProduct removes a product and its unsold stock.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.Ledger.RemoveProduct(r.Context(), name); err != nil {
		h.ledgerError(w, r, "Failed to remove product", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddStock appends stock entries to a product.
func (h *Handler) AddStock(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req AddStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	added := len(ledger.CleanStockItems(req.Items))
	stock, err := h.Ledger.Restock(r.Context(), name, req.Items)
	if err != nil {
		h.ledgerError(w, r, "Failed to add stock", err)
		return
	}

	writeJSON(w, http.StatusOK, AddStockResponse{
		Product: strings.TrimSpace(name),
		Added:   added,
		Stock:   stock,
	})
}

// ListStock returns a product's unsold stock entries.
func (h *Handler) ListStock(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))

	items, err := h.Ledger.StockItems(r.Context(), name)
	if err != nil {
		h.ledgerError(w, r, "Failed to list stock", err)
		return
	}
	if items == nil {
		items = []string{}
	}

	writeJSON(w, http.StatusOK, StockListResponse{Product: name, Items: items})
}

// RemoveStock deletes stock entries by number.
func (h *Handler) RemoveStock(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))

	var req RemoveStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entries, err := ledger.ParseStockEntries(req.Entries)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entries", err)
		return
	}

	removed, remaining, err := h.Ledger.RemoveStock(r.Context(), name, entries)
	if err != nil {
		h.ledgerError(w, r, "Failed to remove stock", err)
		return
	}

	writeJSON(w, http.StatusOK, RemoveStockResponse{Product: name, Removed: removed, Stock: remaining})
}

// =============================================================================
// DISCOUNT HANDLERS
// =============================================================================

// ListDiscounts returns active discount codes.
func (h *Handler) ListDiscounts(w http.ResponseWriter, r *http.Request) {
	discounts, err := h.Ledger.ActiveDiscounts(r.Context())
	if err != nil {
		h.internalError(w, r, "Failed to list discounts", err)
		return
	}

	dtos := make([]DiscountDTO, len(discounts))
	for i, d := range discounts {
		dtos[i] = toDiscountDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDiscount creates a discount code.
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	var req CreateDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.MaxUses == 0 {
		req.MaxUses = 1
	}
	if req.DaysValid == 0 {
		req.DaysValid = defaultDaysValid
	}

	d, err := h.Ledger.CreateDiscount(r.Context(), req.Code, req.Amount, ledger.DiscountType(req.Type),
		req.MaxUses, time.Duration(req.DaysValid)*24*time.Hour)
	if err != nil {
		h.ledgerError(w, r, "Failed to create discount", err)
		return
	}

	writeJSON(w, http.StatusCreated, toDiscountDTO(d))
}

// DeleteDiscount removes a discount code.
func (h *Handler) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	removed, err := h.Ledger.RemoveDiscount(r.Context(), code)
	if err != nil {
		h.internalError(w, r, "Failed to remove discount", err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Discount code not found", nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

// GetPurchase returns one purchase record, including delivered items.
func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.Ledger.PurchaseByID(r.Context(), id)
	if err != nil {
		h.ledgerError(w, r, "Failed to get purchase", err)
		return
	}

	writeJSON(w, http.StatusOK, toPurchaseDTO(p))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// ledgerError maps ledger business errors to 4xx and everything else to 500.
func (h *Handler) ledgerError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrDuplicateCode),
		errors.Is(err, ledger.ErrDuplicateProduct),
		errors.Is(err, ledger.ErrDuplicateDiscount):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsBusinessError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.internalError(w, r, message, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, message string, err error) {
	h.Log.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"path":       r.URL.Path,
	}).WithError(err).Error(message)
	writeError(w, http.StatusInternalServerError, message, nil)
}
