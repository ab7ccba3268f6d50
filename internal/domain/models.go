package domain

import "time"

// Product kinds. The kind drives semantics, not storage: an INGREDIENT is
// never sold directly, a COMPOSITE is expected to carry recipe components.
const (
	KindSimple     = "SIMPLE"
	KindIngredient = "INGREDIENT"
	KindComposite  = "COMPOSITE"
)

type Product struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Kind       string `json:"kind"`
	Unit       string `json:"unit"`
	PriceCents int64  `json:"price_cents"`
	// Stock is a signed count in the product's own unit. Negative stock is a
	// tolerated oversold state, not an error.
	Stock int64 `json:"stock"`
}

// Oversold reports whether the product has been deducted below zero.
func (p Product) Oversold() bool {
	return p.Stock < 0
}

type ProductCreateRequest struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	Kind         string `json:"kind"`
	Unit         string `json:"unit"`
	PriceCents   int64  `json:"price_cents"`
	InitialStock int64  `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Category   *string `json:"category,omitempty"`
	Kind       *string `json:"kind,omitempty"`
	Unit       *string `json:"unit,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Stock      *int64  `json:"stock,omitempty"`
}

type StockAdjustRequest struct {
	Delta float64 `json:"delta"`
}

// RecipeComponent is one edge of the recipe graph: selling one unit of the
// owning product consumes Qty units of the component. Qty is decimal because
// components are often measured in ml or gr.
type RecipeComponent struct {
	ComponentID   int64   `json:"component_id"`
	ComponentName string  `json:"component_name,omitempty"`
	Qty           float64 `json:"qty"`
}

type RecipeSetRequest struct {
	Components []RecipeComponent `json:"components"`
}

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	// BalanceCents is the running wallet balance; negative means the user
	// owes money. Maintained incrementally by the ledger write paths.
	BalanceCents int64 `json:"balance_cents"`
}

type UserCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Sale struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	UserID    *int64 `json:"user_id,omitempty"`
	Quantity  int64  `json:"quantity"`
	// TotalCents is fixed at sale time (unit price x quantity) and recorded
	// verbatim; it is never recomputed from later price changes.
	TotalCents int64     `json:"total_cents"`
	CreatedAt  time.Time `json:"created_at"`
}

type SaleCreateRequest struct {
	ProductID int64  `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UserID    *int64 `json:"user_id,omitempty"`
	// TotalCents, when positive, is recorded verbatim (caller-priced, matching
	// the reference flow). When zero the engine computes price x quantity.
	TotalCents int64 `json:"total_cents,omitempty"`
}

// SaleRecord is a sale joined with display names for history listings.
type SaleRecord struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	UserName    string    `json:"user_name,omitempty"`
	Quantity    int64     `json:"quantity"`
	TotalCents  int64     `json:"total_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

type Payment struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaymentCreateRequest struct {
	UserID      int64  `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
}

type Purchase struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
	// CostCents is the total batch cost for INGREDIENT purchases and
	// unit cost x quantity for sellable kinds; recorded as given.
	CostCents int64     `json:"cost_cents"`
	CreatedAt time.Time `json:"created_at"`
}

type PurchaseCreateRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
	CostCents int64 `json:"cost_cents"`
}

type PurchaseRecord struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int64     `json:"quantity"`
	CostCents   int64     `json:"cost_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	HistoryKindSale    = "sale"
	HistoryKindPayment = "payment"
)

// HistoryEntry is one row of the merged sales/payments feed. Detail carries
// the product name for sales and the payer name for payments; Info carries
// the quantity or the payment method.
type HistoryEntry struct {
	ID          int64     `json:"id"`
	Kind        string    `json:"kind"`
	Detail      string    `json:"detail"`
	Info        string    `json:"info"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

type UserStatement struct {
	UserID             int64          `json:"user_id"`
	UserName           string         `json:"user_name"`
	BalanceCents       int64          `json:"balance_cents"`
	TotalSalesCents    int64          `json:"total_sales_cents"`
	TotalPaymentsCents int64          `json:"total_payments_cents"`
	Entries            []HistoryEntry `json:"entries"`
}

type UserSalesSummary struct {
	UserID       int64  `json:"user_id"`
	Name         string `json:"name"`
	SalesCents   int64  `json:"sales_cents"`
	BalanceCents int64  `json:"balance_cents"`
}

type FinancialSummary struct {
	TotalSalesCents     int64              `json:"total_sales_cents"`
	TotalPurchasesCents int64              `json:"total_purchases_cents"`
	ByUser              []UserSalesSummary `json:"by_user"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// StaffAccount is an internal persistence model for auth credentials.
type StaffAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
