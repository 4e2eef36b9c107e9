/*
dto.go - Data Transfer Objects for the admin API

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Accounts:  AccountDTO, AddCreditsRequest
  Codes:     CodeDTO, CreateCodesRequest, CreateCodesResponse
  Products:  ProductDTO, CreateProductRequest, AddStockRequest, AddStockResponse,
             StockListResponse, RemoveStockRequest, RemoveStockResponse
  Discounts: DiscountDTO, CreateDiscountRequest
  Purchases: PurchaseDTO

VALIDATION:
  Validation is done in handlers and the ledger, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/credit-bot/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID          string `json:"id"`
	Balance     int64  `json:"balance"`
	Blacklisted bool   `json:"blacklisted"`
}

// AddCreditsRequest is the body for adding credits to an account.
type AddCreditsRequest struct {
	Amount int64 `json:"amount"`
}

// CodeDTO represents a redemption code in API responses.
type CodeDTO struct {
	Code      string  `json:"code"`
	Credits   int64   `json:"credits"`
	Used      bool    `json:"used"`
	UsedBy    string  `json:"used_by,omitempty"`
	UsedAt    *string `json:"used_at,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// CreateCodesRequest issues either one named code (Code set) or Count
// random codes.
type CreateCodesRequest struct {
	Code    string `json:"code,omitempty"`
	Credits int64  `json:"credits"`
	Count   int    `json:"count,omitempty"`
}

// CreateCodesResponse lists the issued codes.
type CreateCodesResponse struct {
	Codes   []string `json:"codes"`
	Credits int64    `json:"credits"`
}

// ProductDTO represents a product in API responses.
type ProductDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Stock    int    `json:"stock"`
	FilePath string `json:"file_path,omitempty"`
}

// CreateProductRequest is the body for creating a product. FilePath points
// at a server-side file whose lines become the initial stock.
type CreateProductRequest struct {
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	FilePath string   `json:"file_path,omitempty"`
	Items    []string `json:"items,omitempty"`
}

// AddStockRequest is the body for restocking a product.
type AddStockRequest struct {
	Items []string `json:"items"`
}

// AddStockResponse reports a restock.
type AddStockResponse struct {
	Product string `json:"product"`
	Added   int    `json:"added"`
	Stock   int    `json:"stock"`
}

// StockListResponse lists unsold stock in sale order. Entry n is Items[n-1].
type StockListResponse struct {
	Product string   `json:"product"`
	Items   []string `json:"items"`
}

// RemoveStockRequest selects stock entries by number, e.g. "1,2,4-6".
type RemoveStockRequest struct {
	Entries string `json:"entries"`
}

// RemoveStockResponse reports a stock removal.
type RemoveStockResponse struct {
	Product string `json:"product"`
	Removed int    `json:"removed"`
	Stock   int    `json:"stock"`
}

// DiscountDTO represents a discount code in API responses.
type DiscountDTO struct {
	Code      string `json:"code"`
	Amount    int64  `json:"amount"`
	Type      string `json:"type"`
	MaxUses   int    `json:"max_uses"`
	UsesLeft  int    `json:"uses_left"`
	ExpiresAt string `json:"expires_at"`
}

// CreateDiscountRequest is the body for creating a discount code.
type CreateDiscountRequest struct {
	Code      string `json:"code"`
	Amount    int64  `json:"amount"`
	Type      string `json:"type"`
	MaxUses   int    `json:"max_uses,omitempty"`
	DaysValid int    `json:"days_valid,omitempty"`
}

// PurchaseDTO represents a purchase record in API responses.
type PurchaseDTO struct {
	PurchaseID     string   `json:"purchase_id"`
	UserID         string   `json:"user_id"`
	Product        string   `json:"product"`
	Price          int64    `json:"price"`
	Quantity       int      `json:"quantity"`
	OriginalCost   int64    `json:"original_cost"`
	DiscountAmount int64    `json:"discount_amount"`
	DiscountCode   string   `json:"discount_code,omitempty"`
	Cost           int64    `json:"cost"`
	Items          []string `json:"items"`
	Timestamp      string   `json:"timestamp"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toAccountDTO(a ledger.Account) AccountDTO {
	return AccountDTO{ID: string(a.Identity), Balance: a.Balance, Blacklisted: a.Blacklisted}
}

func toCodeDTO(c ledger.RedemptionCode) CodeDTO {
	dto := CodeDTO{
		Code:      c.Code,
		Credits:   c.Value,
		Used:      c.Used,
		UsedBy:    string(c.UsedBy),
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
	if c.UsedAt != nil {
		s := c.UsedAt.Format(time.RFC3339)
		dto.UsedAt = &s
	}
	return dto
}

func toProductDTO(p ledger.Product) ProductDTO {
	return ProductDTO{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock, FilePath: p.FilePath}
}

func toDiscountDTO(d ledger.DiscountCode) DiscountDTO {
	return DiscountDTO{
		Code:      d.Code,
		Amount:    d.Amount,
		Type:      string(d.Type),
		MaxUses:   d.MaxUses,
		UsesLeft:  d.UsesLeft,
		ExpiresAt: d.ExpiresAt.Format(time.RFC3339),
	}
}

func toPurchaseDTO(p ledger.Purchase) PurchaseDTO {
	items := p.Items
	if items == nil {
		items = []string{}
	}
	return PurchaseDTO{
		PurchaseID:     p.PurchaseID,
		UserID:         string(p.Identity),
		Product:        p.ProductName,
		Price:          p.Price,
		Quantity:       p.Quantity,
		OriginalCost:   p.OriginalCost,
		DiscountAmount: p.DiscountAmount,
		DiscountCode:   p.DiscountCode,
		Cost:           p.Cost,
		Items:          items,
		Timestamp:      p.Timestamp.Format(time.RFC3339),
	}
}
