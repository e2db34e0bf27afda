package domain

import (
	"slices"
	"testing"
)

var allOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func TestNextStates(t *testing.T) {
	cases := map[OrderStatus][]OrderStatus{
		OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
		OrderStatusConfirmed: {OrderStatusShipped},
		OrderStatusShipped:   {OrderStatusDelivered},
		OrderStatusDelivered: {},
		OrderStatusCancelled: {},
		OrderStatus("bogus"): {},
	}
	for current, want := range cases {
		got := NextStates(current)
		if len(got) != len(want) {
			t.Fatalf("NextStates(%q) = %v, want %v", current, got, want)
		}
		for _, status := range want {
			if !slices.Contains(got, status) {
				t.Fatalf("NextStates(%q) missing %q", current, status)
			}
		}
	}
}

func TestNextStatesReturnsCopy(t *testing.T) {
	next := NextStates(OrderStatusPending)
	next[0] = OrderStatusDelivered
	if CanTransition(OrderStatusPending, OrderStatusDelivered) {
		t.Fatalf("mutating NextStates result altered the transition graph")
	}
}

func TestCanTransitionMatchesNextStates(t *testing.T) {
	for _, from := range allOrderStatuses {
		for _, to := range allOrderStatuses {
			want := slices.Contains(NextStates(from), to)
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%q, %q) = %v, want %v", from, to, got, want)
			}
		}
	}
	if CanTransition(OrderStatusPending, OrderStatusShipped) {
		t.Fatalf("pending must not skip to shipped")
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range allOrderStatuses {
		want := status == OrderStatusDelivered || status == OrderStatusCancelled
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%q.IsTerminal() = %v, want %v", status, got, want)
		}
	}
	if OrderStatus("bogus").IsTerminal() {
		t.Fatalf("unknown status reported terminal")
	}
}

func TestNormalizeOrderStatus(t *testing.T) {
	if got := NormalizeOrderStatus("  Confirmed "); got != OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %q", got)
	}
	refunded := NormalizeOrderStatus("Refunded")
	if refunded.Valid() || CanTransition(OrderStatusPending, refunded) {
		t.Fatalf("expected unknown status %q to be rejected by the graph", refunded)
	}
}
