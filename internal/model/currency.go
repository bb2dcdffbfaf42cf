package model

// Domestic is an amount in the home-listing currency.
type Domestic float64

// Foreign is an amount in the secondary-listing currency.
type Foreign float64

// FXRate is quoted as foreign currency units per one domestic unit
// (e.g. USD per CAD).
type FXRate float64

// Tradeable reports whether the rate can be used for conversion.
func (r FXRate) Tradeable() bool {
	return r > 0
}

// DomesticPerForeign is the inverse rate: the domestic cost of one foreign unit.
func (r FXRate) DomesticPerForeign() float64 {
	return 1.0 / float64(r)
}

// ToDomestic converts a foreign amount by multiplying with the inverse rate.
// Callers must check Tradeable first.
func (r FXRate) ToDomestic(f Foreign) Domestic {
	return Domestic(float64(f) * r.DomesticPerForeign())
}

// Implied returns the domestic price implied by a foreign quote, foreign / rate.
func (r FXRate) Implied(f Foreign) Domestic {
	return Domestic(float64(f) / float64(r))
}
