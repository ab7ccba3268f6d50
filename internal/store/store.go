package store

import (
	"context"
	"errors"

	"gymstock/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCycleDetected     = errors.New("recipe cycle detected")
)

// Repository is the persistence boundary of the engine. The three Record*
// operations are atomic units: either every sub-step (stock deduction, row
// insert, balance update) is applied, or none is.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	// AdjustStock is the only stock-mutating primitive: stock += round(delta),
	// unconditionally. No lower bound; negative stock signals oversell.
	AdjustStock(ctx context.Context, id int64, delta float64) error

	// SetRecipe replaces the full component set of a product atomically and
	// rejects edge sets that would make the recipe graph cyclic.
	SetRecipe(ctx context.Context, productID int64, components []domain.RecipeComponent) error
	GetRecipe(ctx context.Context, productID int64) ([]domain.RecipeComponent, error)
	ClearRecipe(ctx context.Context, productID int64) error

	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error

	RecordSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	RecordPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	RecordPurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)

	ListSales(ctx context.Context, limit int) ([]domain.SaleRecord, error)
	ListPurchases(ctx context.Context, limit int) ([]domain.PurchaseRecord, error)
	GetFinancialSummary(ctx context.Context) (domain.FinancialSummary, error)
	GetCombinedHistory(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
	GetUserStatement(ctx context.Context, userID int64) (domain.UserStatement, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	CreateAccount(ctx context.Context, account domain.StaffAccount) error
	ListAccounts(ctx context.Context) ([]domain.StaffAccount, error)
	UpdateAccountPassword(ctx context.Context, username string, password string) error
}
