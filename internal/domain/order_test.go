package domain

import "testing"

func TestOrderItem_LineTotal(t *testing.T) {
	i := OrderItem{PriceSnapshot: 1500, Quantity: 3}
	if got := i.LineTotal(); got != 4500 {
		t.Fatalf("LineTotal() = %d, want 4500", got)
	}
}

func TestOrder_Transition_PendingToCompleted(t *testing.T) {
	o := &Order{Status: OrderPending}
	if !o.Transition(OrderCompleted) {
		t.Fatal("expected PENDING -> COMPLETED to be allowed")
	}
	if o.Status != OrderCompleted {
		t.Fatalf("status = %v, want COMPLETED", o.Status)
	}
}

func TestOrder_Transition_PendingToCanceled(t *testing.T) {
	o := &Order{Status: OrderPending}
	if !o.Transition(OrderCanceled) {
		t.Fatal("expected PENDING -> CANCELED to be allowed")
	}
}

func TestOrder_Transition_RejectsFromTerminalState(t *testing.T) {
	o := &Order{Status: OrderCompleted}
	if o.Transition(OrderCanceled) {
		t.Fatal("a terminal order must reject further transitions")
	}
	if o.Status != OrderCompleted {
		t.Fatal("status must not change on a rejected transition")
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	cases := map[OrderStatus]bool{
		OrderPending:   false,
		OrderCompleted: true,
		OrderCanceled:  true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%v.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}
