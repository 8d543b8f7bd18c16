// Copyright © 2024 Vortex Studio.

package vortex

import (
	"fmt"
)

// Rational is a normalized signed-integer fraction used for frame rates
// (e.g. 30000/1001 for 29.97 fps). Numerator and denominator are reduced by
// their GCD at construction, with the sign carried on the numerator, so two
// Rationals naming the same ratio always compare equal by value.
type Rational struct {
	Num int64
	Den int64
}

// NewRational builds a normalized Rational. den == 0 panics since a
// frame-rate rational with a zero denominator cannot be constructed safely;
// runtime divisions by a Rational use Div, which reports the zero case as
// an error instead.
func NewRational(num, den int64) Rational {
	if den == 0 {
		panic("vortex: rational with zero denominator")
	}
	return Rational{Num: num, Den: den}.normalize()
}

func (r Rational) normalize() Rational {
	if r.Den < 0 {
		r.Num, r.Den = -r.Num, -r.Den
	}
	if r.Num == 0 {
		return Rational{Num: 0, Den: 1}
	}
	g := gcd(abs64(r.Num), r.Den)
	if g > 1 {
		r.Num /= g
		r.Den /= g
	}
	return r
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Add returns r + o, reduced.
func (r Rational) Add(o Rational) Rational {
	return NewRational(r.Num*o.Den+o.Num*r.Den, r.Den*o.Den)
}

// Sub returns r - o, reduced.
func (r Rational) Sub(o Rational) Rational {
	return NewRational(r.Num*o.Den-o.Num*r.Den, r.Den*o.Den)
}

// Mul returns r * o, pre-reducing cross terms by their GCD before
// multiplying to reduce overflow risk on large rates.
func (r Rational) Mul(o Rational) Rational {
	g1 := gcd(abs64(r.Num), o.Den)
	g2 := gcd(abs64(o.Num), r.Den)
	return NewRational((r.Num/g1)*(o.Num/g2), (r.Den/g2)*(o.Den/g1))
}

// Div returns r / o. Dividing by a zero-valued Rational (o.Num == 0) is an
// error, not a panic, since the divisor is runtime data (e.g. a
// caller-supplied frame rate) rather than a construction-time constant.
func (r Rational) Div(o Rational) (Rational, error) {
	if o.Num == 0 {
		return Rational{}, fmt.Errorf("vortex: division by zero rational")
	}
	return r.Mul(Rational{Num: o.Den, Den: o.Num}), nil
}

// Float64 returns the rational as a floating-point approximation.
func (r Rational) Float64() float64 {
	return float64(r.Num) / float64(r.Den)
}

// String implements fmt.Stringer.
func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}
