package bom

import (
	"errors"
	"testing"

	"gymstock/backend/internal/domain"
	"gymstock/backend/internal/store"
)

func edge(componentID int64, qty float64) domain.RecipeComponent {
	return domain.RecipeComponent{ComponentID: componentID, Qty: qty}
}

func TestExplodeLeafProduct(t *testing.T) {
	leaves, err := Explode(Graph{}, 7, 3)
	if err != nil {
		t.Fatalf("explode failed: %v", err)
	}
	if len(leaves) != 1 || leaves[7] != 3 {
		t.Fatalf("expected direct deduction of 3 on product 7, got %v", leaves)
	}
}

func TestExplodeChainMultiplies(t *testing.T) {
	// A(1) = 2xB, B(2) = 3xC: selling 1 A deducts 6 C.
	g := Graph{
		1: {edge(2, 2)},
		2: {edge(3, 3)},
	}

	leaves, err := Explode(g, 1, 1)
	if err != nil {
		t.Fatalf("explode failed: %v", err)
	}
	if leaves[3] != 6 {
		t.Fatalf("expected 6 units of product 3, got %v", leaves)
	}
	if len(leaves) != 1 {
		t.Fatalf("expected only the leaf to be deducted, got %v", leaves)
	}
}

func TestExplodeDiamondSumsOverPaths(t *testing.T) {
	// A = 1xB + 1xC, B = 2xD, C = 3xD: selling 2 A deducts 10 D.
	g := Graph{
		1: {edge(2, 1), edge(3, 1)},
		2: {edge(4, 2)},
		3: {edge(4, 3)},
	}

	leaves, err := Explode(g, 1, 2)
	if err != nil {
		t.Fatalf("explode failed: %v", err)
	}
	if leaves[4] != 10 {
		t.Fatalf("expected 10 units of product 4, got %v", leaves)
	}
}

func TestExplodeMixedLeavesAndComposites(t *testing.T) {
	// Combo = 1xProtein + 2xShaker, Protein and Shaker are leaves.
	g := Graph{
		10: {edge(11, 1), edge(12, 2)},
	}

	leaves, err := Explode(g, 10, 1)
	if err != nil {
		t.Fatalf("explode failed: %v", err)
	}
	if leaves[11] != 1 || leaves[12] != 2 {
		t.Fatalf("expected protein 1 and shaker 2, got %v", leaves)
	}
}

func TestExplodeDecimalQuantities(t *testing.T) {
	// Shake = 30.5 gr of powder + 200 ml of milk.
	g := Graph{
		1: {edge(2, 30.5), edge(3, 200)},
	}

	leaves, err := Explode(g, 1, 2)
	if err != nil {
		t.Fatalf("explode failed: %v", err)
	}
	if leaves[2] != 61 || leaves[3] != 400 {
		t.Fatalf("unexpected leaf quantities: %v", leaves)
	}
}

func TestExplodeSelfLoopDetected(t *testing.T) {
	g := Graph{1: {edge(1, 1)}}

	_, err := Explode(g, 1, 1)
	if !errors.Is(err, store.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestExplodeIndirectCycleDetected(t *testing.T) {
	g := Graph{
		1: {edge(2, 1)},
		2: {edge(3, 1)},
		3: {edge(1, 1)},
	}

	_, err := Explode(g, 1, 1)
	if !errors.Is(err, store.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestValidateAcceptsSharedComponent(t *testing.T) {
	// A diamond is not a cycle: the same leaf on two paths is legal.
	g := Graph{
		1: {edge(2, 1), edge(3, 1)},
		2: {edge(4, 1)},
		3: {edge(4, 1)},
	}

	if err := Validate(g, 1); err != nil {
		t.Fatalf("expected diamond graph to validate, got %v", err)
	}
}

func TestRoundDelta(t *testing.T) {
	cases := map[float64]int64{
		2:    2,
		2.4:  2,
		2.5:  3,
		-2.5: -3,
		0:    0,
	}
	for qty, want := range cases {
		if got := RoundDelta(qty); got != want {
			t.Fatalf("RoundDelta(%v) = %d, want %d", qty, got, want)
		}
	}
}
