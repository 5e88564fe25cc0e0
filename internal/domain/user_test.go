package domain

import (
	"errors"
	"testing"

	"github.com/loopers/commerce-core/internal/apperr"
)

func TestUser_DebitPoints_Succeeds(t *testing.T) {
	u := &User{PointBalance: 100}
	if err := u.DebitPoints(40); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.PointBalance != 60 {
		t.Fatalf("PointBalance = %d, want 60", u.PointBalance)
	}
}

func TestUser_DebitPoints_RejectsNegativeAmount(t *testing.T) {
	u := &User{PointBalance: 100}
	err := u.DebitPoints(-1)
	if !errors.Is(err, apperr.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if u.PointBalance != 100 {
		t.Fatal("balance must be unchanged on a rejected debit")
	}
}

func TestUser_DebitPoints_RejectsInsufficientBalance(t *testing.T) {
	u := &User{PointBalance: 10}
	err := u.DebitPoints(11)
	if !errors.Is(err, apperr.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if u.PointBalance != 10 {
		t.Fatal("balance must be unchanged on a rejected debit")
	}
}

func TestUser_CreditPoints(t *testing.T) {
	u := &User{PointBalance: 10}
	u.CreditPoints(5)
	if u.PointBalance != 15 {
		t.Fatalf("PointBalance = %d, want 15", u.PointBalance)
	}
}
