// Package pricing derives the financial fields of a shift record from its
// worked interval. Every hour is priced the same regardless of shift kind.
// The synchronization layer never computes these itself; it only forwards
// the raw interval fields.
package pricing

// Derived holds the read-only outputs of the pricing rule.
type Derived struct {
	Hours      int
	GrossValue float64
	NetValue   float64
}

// Rule computes the derived financials for a shift interval.
type Rule interface {
	Derive(hours int) Derived
}

// HourlyRate is the default rule: a flat hourly rate with a fixed deduction
// factor applied to the gross value.
type HourlyRate struct {
	Rate      float64 // value per worked hour
	NetFactor float64 // fraction of gross kept after deductions
}

// Default returns the standard rate table.
func Default() HourlyRate {
	return HourlyRate{Rate: 50, NetFactor: 0.725}
}

// Derive implements Rule.
func (r HourlyRate) Derive(hours int) Derived {
	gross := float64(hours) * r.Rate
	return Derived{
		Hours:      hours,
		GrossValue: gross,
		NetValue:   gross * r.NetFactor,
	}
}
