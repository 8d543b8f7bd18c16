// Copyright © 2024 Vortex Studio.

package vortex

import "testing"

func TestRationalNormalize(t *testing.T) {
	r := NewRational(60000, 2000)
	if r.Num != 30 || r.Den != 1 {
		t.Errorf("expected 30/1, got %d/%d", r.Num, r.Den)
	}

	r = NewRational(30000, 1001)
	if r.Num != 30000 || r.Den != 1001 {
		t.Errorf("expected already-reduced 30000/1001, got %d/%d", r.Num, r.Den)
	}

	r = NewRational(-6, -4)
	if r.Num != 3 || r.Den != 2 {
		t.Errorf("expected sign carried on numerator, got %d/%d", r.Num, r.Den)
	}

	r = NewRational(0, 5)
	if r.Num != 0 || r.Den != 1 {
		t.Errorf("expected zero to normalize to 0/1, got %d/%d", r.Num, r.Den)
	}
}

func TestRationalZeroDenominatorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic constructing a zero-denominator rational")
		}
	}()
	NewRational(1, 0)
}

func TestRationalArithmetic(t *testing.T) {
	a := NewRational(1, 3)
	b := NewRational(1, 6)

	if sum := a.Add(b); sum.Num != 1 || sum.Den != 2 {
		t.Errorf("expected 1/3 + 1/6 == 1/2, got %s", sum)
	}
	if diff := a.Sub(b); diff.Num != 1 || diff.Den != 6 {
		t.Errorf("expected 1/3 - 1/6 == 1/6, got %s", diff)
	}
	if prod := a.Mul(b); prod.Num != 1 || prod.Den != 18 {
		t.Errorf("expected 1/3 * 1/6 == 1/18, got %s", prod)
	}

	quot, err := a.Div(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quot.Num != 2 || quot.Den != 1 {
		t.Errorf("expected (1/3) / (1/6) == 2, got %s", quot)
	}

	if _, err := a.Div(Rational{Num: 0, Den: 1}); err == nil {
		t.Errorf("expected division by a zero-valued rational to error")
	}
}

func TestRationalFloat64AndString(t *testing.T) {
	r := NewRational(1, 4)
	if r.Float64() != 0.25 {
		t.Errorf("expected 0.25, got %f", r.Float64())
	}
	if r.String() != "1/4" {
		t.Errorf("expected %q, got %q", "1/4", r.String())
	}
}
