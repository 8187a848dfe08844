package codec

import "fmt"

// Rational is an exact fraction used for time bases and aspect ratios.
type Rational struct {
	Num int // Numerator
	Den int // Denominator
}

// IsZero returns true if the rational has no value set.
func (r Rational) IsZero() bool { return r.Num == 0 }

// IsValid returns true if the rational describes a positive fraction.
func (r Rational) IsValid() bool { return r.Num > 0 && r.Den > 0 }

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// TimeBase90kHz is the conventional high-resolution time base assumed for
// packets entering a filter chain before the real input time base is known.
var TimeBase90kHz = Rational{Num: 1, Den: 90000}
