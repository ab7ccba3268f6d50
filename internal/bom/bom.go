// Package bom explodes a (product, quantity) request into leaf-level stock
// deductions by walking the recipe graph depth-first. It is a pure function
// over an edge snapshot so both store implementations can run it inside
// their own transaction boundary.
package bom

import (
	"fmt"
	"math"

	"gymstock/backend/internal/domain"
	"gymstock/backend/internal/store"
)

// Graph maps a product id to its recipe components. Products absent from the
// map (or mapped to an empty slice) are leaves.
type Graph map[int64][]domain.RecipeComponent

// Explode returns the accumulated leaf deduction per product id for selling
// qty units of productID. A leaf reachable over several paths receives the
// sum over all paths of qty multiplied along each path. A cycle yields
// store.ErrCycleDetected instead of unbounded recursion.
//
// The base case is "no recipe components", not "kind == INGREDIENT": a
// product of any kind with components explodes, and a COMPOSITE without
// components is deducted directly.
func Explode(g Graph, productID int64, qty float64) (map[int64]float64, error) {
	leaves := make(map[int64]float64)
	path := make(map[int64]bool)
	if err := walk(g, productID, qty, path, leaves); err != nil {
		return nil, err
	}
	return leaves, nil
}

func walk(g Graph, id int64, qty float64, path map[int64]bool, leaves map[int64]float64) error {
	if path[id] {
		return fmt.Errorf("%w: product %d is its own ancestor", store.ErrCycleDetected, id)
	}

	components := g[id]
	if len(components) == 0 {
		leaves[id] += qty
		return nil
	}

	path[id] = true
	for _, component := range components {
		if err := walk(g, component.ComponentID, component.Qty*qty, path, leaves); err != nil {
			return err
		}
	}
	delete(path, id)

	return nil
}

// Validate checks that the graph reachable from productID is acyclic. It is
// used at recipe-save time so a cycle can never reach the sale path.
func Validate(g Graph, productID int64) error {
	_, err := Explode(g, productID, 1)
	return err
}

// RoundDelta converts a decimal deduction quantity to the integer delta
// applied to a product's stock counter. Stock is counted in whole units of
// the product's own unit (unid, ml, gr); recipes are normally whole
// multiples, fractional remainders round half away from zero.
func RoundDelta(qty float64) int64 {
	return int64(math.Round(qty))
}
