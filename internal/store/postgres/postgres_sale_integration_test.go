package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"gymstock/backend/internal/domain"
)

func TestRecordSaleDeductsRecipeLeaves(t *testing.T) {
	databaseURL := os.Getenv("GYMSTOCK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set GYMSTOCK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()

	powder, err := s.CreateProduct(ctx, domain.Product{
		Name:       fmt.Sprintf("Proteina granel IT %d", stamp),
		Category:   "Insumos",
		Kind:       domain.KindIngredient,
		Unit:       "gr",
		PriceCents: 120,
		Stock:      1000,
	})
	if err != nil {
		t.Fatalf("create powder: %v", err)
	}
	milk, err := s.CreateProduct(ctx, domain.Product{
		Name:       fmt.Sprintf("Leche IT %d", stamp),
		Category:   "Insumos",
		Kind:       domain.KindIngredient,
		Unit:       "ml",
		PriceCents: 3,
		Stock:      2000,
	})
	if err != nil {
		t.Fatalf("create milk: %v", err)
	}
	shake, err := s.CreateProduct(ctx, domain.Product{
		Name:       fmt.Sprintf("Malteada IT %d", stamp),
		Category:   "Preparados",
		Kind:       domain.KindComposite,
		Unit:       "unid",
		PriceCents: 7500,
		Stock:      100,
	})
	if err != nil {
		t.Fatalf("create shake: %v", err)
	}

	user, err := s.CreateUser(ctx, domain.User{Name: fmt.Sprintf("Cliente IT %d", stamp)})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE product_id = $1`, shake.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM recipes WHERE product_id = $1`, shake.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, user.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id IN ($1,$2,$3)`, powder.ID, milk.ID, shake.ID)
	})

	if err := s.SetRecipe(ctx, shake.ID, []domain.RecipeComponent{
		{ComponentID: powder.ID, Qty: 30},
		{ComponentID: milk.ID, Qty: 250},
	}); err != nil {
		t.Fatalf("set recipe: %v", err)
	}

	sale, err := s.RecordSale(ctx, domain.Sale{
		ProductID:  shake.ID,
		UserID:     &user.ID,
		Quantity:   2,
		TotalCents: 15000,
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if sale.ID == 0 {
		t.Fatal("expected sale to receive an id")
	}

	gotPowder, err := s.GetProduct(ctx, powder.ID)
	if err != nil {
		t.Fatalf("get powder: %v", err)
	}
	if gotPowder.Stock != 940 {
		t.Fatalf("expected powder stock 940, got %d", gotPowder.Stock)
	}

	gotMilk, err := s.GetProduct(ctx, milk.ID)
	if err != nil {
		t.Fatalf("get milk: %v", err)
	}
	if gotMilk.Stock != 1500 {
		t.Fatalf("expected milk stock 1500, got %d", gotMilk.Stock)
	}

	// The composite row keeps its own stock untouched; only leaves move.
	gotShake, err := s.GetProduct(ctx, shake.ID)
	if err != nil {
		t.Fatalf("get shake: %v", err)
	}
	if gotShake.Stock != 100 {
		t.Fatalf("expected shake stock 100, got %d", gotShake.Stock)
	}

	gotUser, err := s.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if gotUser.BalanceCents != -15000 {
		t.Fatalf("expected balance -15000 after credit sale, got %d", gotUser.BalanceCents)
	}

	statement, err := s.GetUserStatement(ctx, user.ID)
	if err != nil {
		t.Fatalf("get statement: %v", err)
	}
	if statement.TotalSalesCents != 15000 {
		t.Fatalf("expected statement sales total 15000, got %d", statement.TotalSalesCents)
	}
}
