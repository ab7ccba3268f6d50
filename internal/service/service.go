package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"gymstock/backend/internal/cache"
	"gymstock/backend/internal/domain"
	"gymstock/backend/internal/store"
	"gymstock/backend/internal/xid"
)

// ErrForbidden marks an operation the acting role is not allowed to perform.
var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	catalog    cache.CatalogCache
	catalogTTL time.Duration
}

func New(repo store.Repository, catalog cache.CatalogCache, catalogTTL time.Duration) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	if catalogTTL < time.Second {
		catalogTTL = 60 * time.Second
	}

	return &Service{
		repo:       repo,
		catalog:    catalog,
		catalogTTL: catalogTTL,
	}
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}

func (s *Service) requireStaff(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != "admin" && actor.Role != "cashier") {
		return fmt.Errorf("%w: staff role required", ErrForbidden)
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if cached, hit, err := s.catalog.GetProducts(ctx); err == nil && hit {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: catalog cache read failed: %v", err)
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.catalog.SetProducts(ctx, products, s.catalogTTL); err != nil {
		log.Printf("[service] WARN: catalog cache write failed: %v", err)
	}

	return products, nil
}

// ListSellableProducts filters out INGREDIENT rows; bulk ingredients live in
// the catalog for stock tracking but are never offered for direct sale.
func (s *Service) ListSellableProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	sellable := make([]domain.Product, 0, len(products))
	for _, product := range products {
		if product.Kind == domain.KindIngredient {
			continue
		}
		sellable = append(sellable, product)
	}
	return sellable, nil
}

// ListOversoldProducts reports every product whose stock has gone negative,
// the operational signal that composite sales outran ingredient restocking.
func (s *Service) ListOversoldProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	oversold := make([]domain.Product, 0, 8)
	for _, product := range products {
		if product.Oversold() {
			oversold = append(oversold, product)
		}
	}
	return oversold, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if id < 1 {
		return domain.Product{}, store.ErrInvalidInput
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Kind = strings.ToUpper(strings.TrimSpace(req.Kind))
	req.Unit = strings.TrimSpace(req.Unit)

	if req.Kind == "" {
		req.Kind = domain.KindSimple
	}
	if req.Unit == "" {
		req.Unit = "unid"
	}
	if req.Name == "" || req.PriceCents < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if !isValidKind(req.Kind) {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:       req.Name,
		Category:   req.Category,
		Kind:       req.Kind,
		Unit:       req.Unit,
		PriceCents: req.PriceCents,
		Stock:      req.InitialStock,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_create", "product", fmt.Sprint(created.ID), fmt.Sprintf("name=%s,kind=%s,price=%d,stock=%d", created.Name, created.Kind, created.PriceCents, created.Stock))

	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if id < 1 {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Kind != nil {
		kind := strings.ToUpper(strings.TrimSpace(*req.Kind))
		if !isValidKind(kind) {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Kind = kind
	}
	if req.Unit != nil {
		unit := strings.TrimSpace(*req.Unit)
		if unit == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Unit = unit
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_update", "product", fmt.Sprint(saved.ID), fmt.Sprintf("name=%s,price=%d,stock=%d", saved.Name, saved.PriceCents, saved.Stock))

	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if id < 1 {
		return store.ErrInvalidInput
	}

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	// The product's own recipe goes with it. Edges pointing AT the deleted
	// product from other recipes stay and are skipped during explosion.
	if err := s.repo.ClearRecipe(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("[service] WARN: failed to clear recipe for deleted product %d: %v", id, err)
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_delete", "product", fmt.Sprint(id), "")

	return nil
}

func (s *Service) AdjustStock(ctx context.Context, id int64, req domain.StockAdjustRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if id < 1 || req.Delta == 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	if err := s.repo.AdjustStock(ctx, id, req.Delta); err != nil {
		return domain.Product{}, err
	}

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "stock_adjust", "product", fmt.Sprint(id), fmt.Sprintf("delta=%v,stock=%d", req.Delta, product.Stock))

	return *product, nil
}

func (s *Service) SetRecipe(ctx context.Context, productID int64, req domain.RecipeSetRequest) ([]domain.RecipeComponent, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if productID < 1 || len(req.Components) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, c := range req.Components {
		if c.ComponentID == productID {
			return nil, fmt.Errorf("%w: product cannot be its own component", store.ErrCycleDetected)
		}
	}

	if err := s.repo.SetRecipe(ctx, productID, req.Components); err != nil {
		return nil, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "recipe_set", "product", fmt.Sprint(productID), fmt.Sprintf("components=%d", len(req.Components)))

	return s.repo.GetRecipe(ctx, productID)
}

func (s *Service) GetRecipe(ctx context.Context, productID int64) ([]domain.RecipeComponent, error) {
	if productID < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.GetRecipe(ctx, productID)
}

func (s *Service) ClearRecipe(ctx context.Context, productID int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if productID < 1 {
		return store.ErrInvalidInput
	}

	if err := s.repo.ClearRecipe(ctx, productID); err != nil {
		return err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "recipe_clear", "product", fmt.Sprint(productID), "")

	return nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	if err := s.requireStaff(ctx); err != nil {
		return domain.User{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" {
		return domain.User{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateUser(ctx, domain.User{Name: req.Name, Phone: req.Phone})
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user_create", "user", fmt.Sprint(created.ID), fmt.Sprintf("name=%s", created.Name))

	return *created, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.repo.ListUsers(ctx)
}

func (s *Service) GetUser(ctx context.Context, id int64) (domain.User, error) {
	if id < 1 {
		return domain.User{}, store.ErrInvalidInput
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if id < 1 {
		return store.ErrInvalidInput
	}

	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "user_delete", "user", fmt.Sprint(id), "")
	return nil
}

// RecordSale prices the request, then hands the atomic unit (top-level stock
// check, recursive deduction, sale row, wallet debit) to the store. The
// caller-supplied total wins when positive so the front desk can honor a
// negotiated price; otherwise list price times quantity is charged.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if err := s.requireStaff(ctx); err != nil {
		return domain.Sale{}, err
	}
	if req.ProductID < 1 || req.Quantity < 1 || req.TotalCents < 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if req.UserID != nil && *req.UserID < 1 {
		return domain.Sale{}, store.ErrInvalidInput
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.Sale{}, err
	}
	if product.Kind == domain.KindIngredient {
		return domain.Sale{}, fmt.Errorf("%w: ingredient %q cannot be sold directly", store.ErrInvalidInput, product.Name)
	}

	total := req.TotalCents
	if total == 0 {
		total = product.PriceCents * req.Quantity
	}

	created, err := s.repo.RecordSale(ctx, domain.Sale{
		ProductID:  req.ProductID,
		UserID:     req.UserID,
		Quantity:   req.Quantity,
		TotalCents: total,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "sale_record", "sale", fmt.Sprint(created.ID), fmt.Sprintf("product=%d,qty=%d,total=%d", created.ProductID, created.Quantity, created.TotalCents))

	return *created, nil
}

func (s *Service) RecordPayment(ctx context.Context, req domain.PaymentCreateRequest) (domain.Payment, error) {
	if err := s.requireStaff(ctx); err != nil {
		return domain.Payment{}, err
	}

	req.Method = strings.TrimSpace(req.Method)
	if req.Method == "" {
		req.Method = "efectivo"
	}
	if req.UserID < 1 || req.AmountCents < 1 {
		return domain.Payment{}, store.ErrInvalidInput
	}

	created, err := s.repo.RecordPayment(ctx, domain.Payment{
		UserID:      req.UserID,
		AmountCents: req.AmountCents,
		Method:      req.Method,
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.logAudit(ctx, "payment_record", "payment", fmt.Sprint(created.ID), fmt.Sprintf("user=%d,amount=%d,method=%s", created.UserID, created.AmountCents, created.Method))

	return *created, nil
}

func (s *Service) RecordPurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Purchase{}, err
	}
	if req.ProductID < 1 || req.Quantity < 1 || req.CostCents < 0 {
		return domain.Purchase{}, store.ErrInvalidInput
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.Purchase{}, err
	}

	created, err := s.repo.RecordPurchase(ctx, domain.Purchase{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		CostCents: req.CostCents,
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	if product.Kind == domain.KindIngredient {
		s.propagateIngredientCost(ctx, *product, created)
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "purchase_record", "purchase", fmt.Sprint(created.ID), fmt.Sprintf("product=%d,qty=%d,cost=%d", created.ProductID, created.Quantity, created.CostCents))

	return *created, nil
}

// propagateIngredientCost refreshes a bulk ingredient's per-unit price from
// the latest batch: cost divided by quantity. Quantities below one make the
// division meaningless and skip the update.
func (s *Service) propagateIngredientCost(ctx context.Context, product domain.Product, purchase *domain.Purchase) {
	if purchase.Quantity < 1 {
		return
	}

	unitCost := int64(math.Round(float64(purchase.CostCents) / float64(purchase.Quantity)))
	if unitCost == product.PriceCents {
		return
	}

	fresh, err := s.repo.GetProduct(ctx, product.ID)
	if err != nil {
		log.Printf("[service] WARN: failed to reload ingredient %d for cost update: %v", product.ID, err)
		return
	}
	fresh.PriceCents = unitCost
	if _, err := s.repo.UpdateProduct(ctx, *fresh); err != nil {
		log.Printf("[service] WARN: failed to propagate unit cost for ingredient %d: %v", product.ID, err)
	}
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.SaleRecord, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListSales(ctx, limit)
}

func (s *Service) ListPurchases(ctx context.Context, limit int) ([]domain.PurchaseRecord, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListPurchases(ctx, limit)
}

func (s *Service) GetFinancialSummary(ctx context.Context) (domain.FinancialSummary, error) {
	return s.repo.GetFinancialSummary(ctx)
}

func (s *Service) GetCombinedHistory(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.GetCombinedHistory(ctx, limit)
}

func (s *Service) GetUserStatement(ctx context.Context, userID int64) (domain.UserStatement, error) {
	if userID < 1 {
		return domain.UserStatement{}, store.ErrInvalidInput
	}
	return s.repo.GetUserStatement(ctx, userID)
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalog.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: catalog cache invalidation failed: %v", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func isValidKind(kind string) bool {
	switch kind {
	case domain.KindSimple, domain.KindIngredient, domain.KindComposite:
		return true
	}
	return false
}
