//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestCart_Flow(t *testing.T) {
	c := as(t, uniqueUser(t))

	empty := expect[cartResponse](t, c.get("/api/cart"), http.StatusOK)
	if len(empty.Items) != 0 || empty.ItemsSubtotal != "0.00" {
		t.Fatalf("new cart not empty: %+v", empty)
	}

	expect[cartResponse](t, c.post("/api/cart/items", map[string]any{"cupcakeId": redVelvet, "quantity": 2}), http.StatusCreated)
	merged := expect[cartResponse](t, c.post("/api/cart/items", map[string]any{"cupcakeId": redVelvet, "quantity": 1}), http.StatusCreated)
	if len(merged.Items) != 1 || merged.Items[0].Quantity != 3 {
		t.Fatalf("lines not merged: %+v", merged.Items)
	}
	if merged.ItemsSubtotal != "25.80" {
		t.Errorf("subtotal: got %s, want 25.80", merged.ItemsSubtotal)
	}

	updated := expect[cartResponse](t, c.do(http.MethodPatch, "/api/cart/items/"+redVelvet, map[string]any{"quantity": 1}), http.StatusOK)
	if updated.Items[0].Quantity != 1 || updated.ItemsSubtotal != "8.60" {
		t.Errorf("update not applied: %+v", updated)
	}

	expect[cartResponse](t, c.do(http.MethodDelete, "/api/cart/items/"+redVelvet, nil), http.StatusOK)
	expect[errorResponse](t, c.do(http.MethodDelete, "/api/cart/items/"+redVelvet, nil), http.StatusNotFound)

	fillCart(t, c, map[string]int{vanillaBean: 1})
	expect[struct{}](t, c.do(http.MethodDelete, "/api/cart", nil), http.StatusNoContent)
	cleared := expect[cartResponse](t, c.get("/api/cart"), http.StatusOK)
	if len(cleared.Items) != 0 {
		t.Errorf("cart not cleared: %+v", cleared.Items)
	}
}

func TestCart_Rejections(t *testing.T) {
	c := as(t, uniqueUser(t))

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"not a uuid", map[string]any{"cupcakeId": "1", "quantity": 1}, http.StatusBadRequest},
		{"zero quantity", map[string]any{"cupcakeId": redVelvet, "quantity": 0}, http.StatusBadRequest},
		{"above stock", map[string]any{"cupcakeId": pistachioRose, "quantity": 99}, http.StatusBadRequest},
		{"unknown cupcake", map[string]any{"cupcakeId": "00000000-0000-4000-8000-000000000000", "quantity": 1}, http.StatusNotFound},
		{"inactive cupcake", map[string]any{"cupcakeId": pumpkinSpice, "quantity": 1}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expect[errorResponse](t, c.post("/api/cart/items", tt.body), tt.status)
		})
	}
}
