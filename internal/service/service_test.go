package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"gymstock/backend/internal/cache"
	"gymstock/backend/internal/domain"
	"gymstock/backend/internal/store"
	"gymstock/backend/internal/store/memory"
)

// Seeded catalog ids used throughout: 1 whey, 3 shaker, 4 bulk protein (gr),
// 5 milk (ml), 6 protein shake (30 gr + 250 ml), 7 combo (1 whey + 1 shaker).
const (
	wheyID    = int64(1)
	shakerID  = int64(3)
	powderID  = int64(4)
	milkID    = int64(5)
	shakeID   = int64(6)
	comboID   = int64(7)
	carlosID  = int64(1)
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopCatalogCache{}, time.Minute), repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func mustProduct(t *testing.T, svc *Service, id int64) domain.Product {
	t.Helper()
	product, err := svc.GetProduct(adminCtx(), id)
	if err != nil {
		t.Fatalf("get product %d: %v", id, err)
	}
	return product
}

func TestRecordSaleDeductsStockAndComputesTotal(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{ProductID: wheyID, Quantity: 2})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if sale.TotalCents != 37000 {
		t.Fatalf("expected total 37000 (2 x 18500), got %d", sale.TotalCents)
	}

	if got := mustProduct(t, svc, wheyID); got.Stock != 8 {
		t.Fatalf("expected whey stock 8 after selling 2 of 10, got %d", got.Stock)
	}
}

func TestRecordSaleHonorsCallerPrice(t *testing.T) {
	svc, _ := newTestService()

	sale, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: wheyID, Quantity: 1, TotalCents: 15000})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if sale.TotalCents != 15000 {
		t.Fatalf("expected negotiated total 15000 recorded verbatim, got %d", sale.TotalCents)
	}
}

func TestRecordSaleCompositeDeductsComponentsNotItself(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: comboID, Quantity: 1}); err != nil {
		t.Fatalf("record combo sale: %v", err)
	}

	if got := mustProduct(t, svc, wheyID); got.Stock != 9 {
		t.Fatalf("expected whey stock 9, got %d", got.Stock)
	}
	if got := mustProduct(t, svc, shakerID); got.Stock != 19 {
		t.Fatalf("expected shaker stock 19, got %d", got.Stock)
	}
	// Only the leaves move; the combo's own counter is untouched.
	if got := mustProduct(t, svc, comboID); got.Stock != 10 {
		t.Fatalf("expected combo stock 10, got %d", got.Stock)
	}
}

func TestRecordSaleShakeDeductsDecimalRecipe(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: shakeID, Quantity: 2}); err != nil {
		t.Fatalf("record shake sale: %v", err)
	}

	if got := mustProduct(t, svc, powderID); got.Stock != 4940 {
		t.Fatalf("expected powder stock 4940 (5000 - 2x30), got %d", got.Stock)
	}
	if got := mustProduct(t, svc, milkID); got.Stock != 9500 {
		t.Fatalf("expected milk stock 9500 (10000 - 2x250), got %d", got.Stock)
	}
}

func TestRecordSaleCashDoesNotTouchBalances(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: wheyID, Quantity: 1}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	users, err := svc.ListUsers(cashierCtx())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, user := range users {
		if user.BalanceCents != 0 {
			t.Fatalf("expected untouched balance for %s, got %d", user.Name, user.BalanceCents)
		}
	}
}

func TestRecordSaleOnCreditDebitsWallet(t *testing.T) {
	svc, _ := newTestService()
	userID := carlosID

	if _, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: wheyID, Quantity: 1, UserID: &userID}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	user, err := svc.GetUser(cashierCtx(), userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.BalanceCents != -18500 {
		t.Fatalf("expected balance -18500 after credit sale, got %d", user.BalanceCents)
	}

	statement, err := svc.GetUserStatement(cashierCtx(), userID)
	if err != nil {
		t.Fatalf("get statement: %v", err)
	}
	if statement.TotalSalesCents != 18500 {
		t.Fatalf("expected statement sales 18500, got %d", statement.TotalSalesCents)
	}
	if len(statement.Entries) != 1 || statement.Entries[0].Kind != domain.HistoryKindSale {
		t.Fatalf("expected one sale entry, got %+v", statement.Entries)
	}
}

func TestRecordSaleExactStockThenOneMore(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: wheyID, Quantity: 10}); err != nil {
		t.Fatalf("selling exact stock should succeed: %v", err)
	}
	if got := mustProduct(t, svc, wheyID); got.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", got.Stock)
	}

	_, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: wheyID, Quantity: 1})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// The rejected sale must leave no trace.
	if got := mustProduct(t, svc, wheyID); got.Stock != 0 {
		t.Fatalf("expected stock still 0 after rejected sale, got %d", got.Stock)
	}
	sales, err := svc.ListSales(cashierCtx(), 10)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("expected exactly 1 recorded sale, got %d", len(sales))
	}
}

func TestRecordSaleRejectsIngredient(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: powderID, Quantity: 1})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput selling a bulk ingredient, got %v", err)
	}
}

func TestRecordSaleUnknownUserRejected(t *testing.T) {
	svc, _ := newTestService()
	userID := int64(999)

	_, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: wheyID, Quantity: 1, UserID: &userID})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
	if got := mustProduct(t, svc, wheyID); got.Stock != 10 {
		t.Fatalf("expected stock unchanged after rejected sale, got %d", got.Stock)
	}
}

func TestOversoldReportAfterCompositeRun(t *testing.T) {
	svc, _ := newTestService()

	// 41 shakes need 10250 ml of milk but only 10000 ml exist. The top-level
	// check passes (shake stock is 50), so the milk leaf goes negative.
	if _, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: shakeID, Quantity: 41}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	if got := mustProduct(t, svc, milkID); got.Stock != -250 {
		t.Fatalf("expected milk stock -250, got %d", got.Stock)
	}

	oversold, err := svc.ListOversoldProducts(adminCtx())
	if err != nil {
		t.Fatalf("list oversold: %v", err)
	}
	if len(oversold) != 1 || oversold[0].ID != milkID {
		t.Fatalf("expected milk as the only oversold product, got %+v", oversold)
	}
}

func TestPaymentIncreasesBalance(t *testing.T) {
	svc, _ := newTestService()
	userID := carlosID

	if _, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: wheyID, Quantity: 1, UserID: &userID}); err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if _, err := svc.RecordPayment(cashierCtx(), domain.PaymentCreateRequest{UserID: userID, AmountCents: 10000, Method: "efectivo"}); err != nil {
		t.Fatalf("record payment: %v", err)
	}

	user, err := svc.GetUser(cashierCtx(), userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.BalanceCents != -8500 {
		t.Fatalf("expected balance -8500 (-18500 + 10000), got %d", user.BalanceCents)
	}
}

func TestSetRecipeRoundTrip(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	created, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Malteada doble", Kind: domain.KindComposite, PriceCents: 2000, InitialStock: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	want := []domain.RecipeComponent{
		{ComponentID: powderID, Qty: 60},
		{ComponentID: milkID, Qty: 300},
	}
	if _, err := svc.SetRecipe(ctx, created.ID, domain.RecipeSetRequest{Components: want}); err != nil {
		t.Fatalf("set recipe: %v", err)
	}

	got, err := svc.GetRecipe(ctx, created.ID)
	if err != nil {
		t.Fatalf("get recipe: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 components, got %d", len(got))
	}
	byID := map[int64]float64{}
	for _, c := range got {
		byID[c.ComponentID] = c.Qty
	}
	if byID[powderID] != 60 || byID[milkID] != 300 {
		t.Fatalf("unexpected recipe components: %+v", got)
	}
}

func TestSetRecipeRejectsCycle(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	// The shake already contains bulk protein; making bulk protein contain
	// the shake would close a loop.
	_, err := svc.SetRecipe(ctx, powderID, domain.RecipeSetRequest{
		Components: []domain.RecipeComponent{{ComponentID: shakeID, Qty: 1}},
	})
	if !errors.Is(err, store.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}

	_, err = svc.SetRecipe(ctx, shakeID, domain.RecipeSetRequest{
		Components: []domain.RecipeComponent{{ComponentID: shakeID, Qty: 1}},
	})
	if !errors.Is(err, store.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected for self reference, got %v", err)
	}
}

func TestRecordPurchaseRestocksNamedProductOnly(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.RecordPurchase(adminCtx(), domain.PurchaseCreateRequest{ProductID: comboID, Quantity: 5, CostCents: 80000}); err != nil {
		t.Fatalf("record purchase: %v", err)
	}

	if got := mustProduct(t, svc, comboID); got.Stock != 15 {
		t.Fatalf("expected combo stock 15 after restock, got %d", got.Stock)
	}
	// Restocking never walks the recipe graph.
	if got := mustProduct(t, svc, wheyID); got.Stock != 10 {
		t.Fatalf("expected whey stock unchanged, got %d", got.Stock)
	}
}

func TestRecordPurchasePropagatesIngredientUnitCost(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.RecordPurchase(adminCtx(), domain.PurchaseCreateRequest{ProductID: powderID, Quantity: 1000, CostCents: 9000}); err != nil {
		t.Fatalf("record purchase: %v", err)
	}

	got := mustProduct(t, svc, powderID)
	if got.PriceCents != 9 {
		t.Fatalf("expected per-gram price 9 (9000/1000), got %d", got.PriceCents)
	}
	if got.Stock != 6000 {
		t.Fatalf("expected powder stock 6000, got %d", got.Stock)
	}
}

func TestCombinedHistoryNewestFirst(t *testing.T) {
	svc, _ := newTestService()
	userID := carlosID

	if _, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: wheyID, Quantity: 1}); err != nil {
		t.Fatalf("record sale: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := svc.RecordPayment(cashierCtx(), domain.PaymentCreateRequest{UserID: userID, AmountCents: 5000, Method: "nequi"}); err != nil {
		t.Fatalf("record payment: %v", err)
	}

	entries, err := svc.GetCombinedHistory(cashierCtx(), 10)
	if err != nil {
		t.Fatalf("combined history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != domain.HistoryKindPayment {
		t.Fatalf("expected newest entry first (payment), got %+v", entries[0])
	}
	if entries[0].Detail != "Carlos Pérez" || entries[0].Info != "nequi" {
		t.Fatalf("unexpected payment projection: %+v", entries[0])
	}
	if entries[1].Detail != "Proteína Whey 5lb" || entries[1].Info != "1" {
		t.Fatalf("unexpected sale projection: %+v", entries[1])
	}
}

func TestFinancialSummaryTotals(t *testing.T) {
	svc, _ := newTestService()
	userID := carlosID

	if _, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: wheyID, Quantity: 1, UserID: &userID}); err != nil {
		t.Fatalf("record credit sale: %v", err)
	}
	if _, err := svc.RecordSale(cashierCtx(), domain.SaleCreateRequest{ProductID: shakerID, Quantity: 2}); err != nil {
		t.Fatalf("record cash sale: %v", err)
	}
	if _, err := svc.RecordPurchase(adminCtx(), domain.PurchaseCreateRequest{ProductID: milkID, Quantity: 1000, CostCents: 4000}); err != nil {
		t.Fatalf("record purchase: %v", err)
	}

	summary, err := svc.GetFinancialSummary(adminCtx())
	if err != nil {
		t.Fatalf("financial summary: %v", err)
	}
	if summary.TotalSalesCents != 25500 {
		t.Fatalf("expected total sales 25500 (18500 + 7000), got %d", summary.TotalSalesCents)
	}
	if summary.TotalPurchasesCents != 4000 {
		t.Fatalf("expected total purchases 4000, got %d", summary.TotalPurchasesCents)
	}
	if len(summary.ByUser) != 1 || summary.ByUser[0].UserID != userID {
		t.Fatalf("expected per-user row for the credit buyer only, got %+v", summary.ByUser)
	}
	if summary.ByUser[0].SalesCents != 18500 || summary.ByUser[0].BalanceCents != -18500 {
		t.Fatalf("unexpected per-user summary: %+v", summary.ByUser[0])
	}
}

func TestListSellableProductsHidesIngredients(t *testing.T) {
	svc, _ := newTestService()

	products, err := svc.ListSellableProducts(cashierCtx())
	if err != nil {
		t.Fatalf("list sellable: %v", err)
	}
	for _, product := range products {
		if product.Kind == domain.KindIngredient {
			t.Fatalf("ingredient %s leaked into sellable list", product.Name)
		}
	}
	if len(products) != 5 {
		t.Fatalf("expected 5 sellable products in the seed, got %d", len(products))
	}
}

func TestDeleteMissingProductReturnsNotFound(t *testing.T) {
	svc, _ := newTestService()

	if err := svc.DeleteProduct(adminCtx(), 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMutationsRequireAdmin(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	if _, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "X", PriceCents: 100}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier product create, got %v", err)
	}
	if _, err := svc.RecordPurchase(ctx, domain.PurchaseCreateRequest{ProductID: wheyID, Quantity: 1, CostCents: 100}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier purchase, got %v", err)
	}
	if _, err := svc.SetRecipe(ctx, shakeID, domain.RecipeSetRequest{Components: []domain.RecipeComponent{{ComponentID: milkID, Qty: 1}}}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier recipe write, got %v", err)
	}
	if err := svc.DeleteUser(ctx, carlosID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier user delete, got %v", err)
	}
}

func TestReadsAreIdempotent(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.ListProducts(cashierCtx())
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	second, err := svc.ListProducts(cashierCtx())
	if err != nil {
		t.Fatalf("list products again: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected identical listings, got %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("listing changed between reads: %+v vs %+v", first[i], second[i])
		}
	}
}
