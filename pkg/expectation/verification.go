package expectation

import "fmt"

// VerificationTimes is the closed set of call-count constraints accepted by
// the verify endpoint. Use the constructors below; every variant normalizes
// to a VerificationTimesDefinition.
type VerificationTimes interface {
	// Definition returns the normalized (atMost, atLeast) bounds.
	Definition() VerificationTimesDefinition
	// Validate rejects negative counts.
	Validate() error
	fmt.Stringer

	sealed()
}

// VerificationTimesDefinition is the wire form of VerificationTimes. A nil
// bound leaves that side unconstrained.
type VerificationTimesDefinition struct {
	AtMost  *int `json:"atMost,omitempty"`
	AtLeast *int `json:"atLeast,omitempty"`
}

// Allows reports whether count satisfies both bounds.
func (d VerificationTimesDefinition) Allows(count int) bool {
	if d.AtMost != nil && count > *d.AtMost {
		return false
	}
	if d.AtLeast != nil && count < *d.AtLeast {
		return false
	}
	return true
}

func (d VerificationTimesDefinition) String() string {
	switch {
	case d.AtMost != nil && d.AtLeast != nil && *d.AtMost == *d.AtLeast:
		return fmt.Sprintf("exactly %d times", *d.AtMost)
	case d.AtMost != nil && d.AtLeast != nil:
		return fmt.Sprintf("between %d and %d times", *d.AtLeast, *d.AtMost)
	case d.AtMost != nil:
		return fmt.Sprintf("at most %d times", *d.AtMost)
	case d.AtLeast != nil:
		return fmt.Sprintf("at least %d times", *d.AtLeast)
	default:
		return "any number of times"
	}
}

// NeverTimes expects no matching request.
type NeverTimes struct{}

// ExactlyTimes expects exactly N matching requests.
type ExactlyTimes struct{ N int }

// AtMostTimes expects no more than N matching requests.
type AtMostTimes struct{ N int }

// AtLeastTimes expects N or more matching requests.
type AtLeastTimes struct{ N int }

// Never expects the request not to have been received.
func Never() VerificationTimes { return NeverTimes{} }

// ExactlyOnce is Exactly(1).
func ExactlyOnce() VerificationTimes { return ExactlyTimes{N: 1} }

// AtMostOnce is AtMost(1).
func AtMostOnce() VerificationTimes { return AtMostTimes{N: 1} }

// AtLeastOnce is AtLeast(1).
func AtLeastOnce() VerificationTimes { return AtLeastTimes{N: 1} }

// Exactly expects exactly n requests.
func Exactly(n int) VerificationTimes { return ExactlyTimes{N: n} }

// AtMost expects at most n requests.
func AtMost(n int) VerificationTimes { return AtMostTimes{N: n} }

// AtLeast expects at least n requests.
func AtLeast(n int) VerificationTimes { return AtLeastTimes{N: n} }

func (NeverTimes) Definition() VerificationTimesDefinition {
	return VerificationTimesDefinition{AtMost: intPtr(0)}
}

func (t ExactlyTimes) Definition() VerificationTimesDefinition {
	return VerificationTimesDefinition{AtMost: intPtr(t.N), AtLeast: intPtr(t.N)}
}

func (t AtMostTimes) Definition() VerificationTimesDefinition {
	return VerificationTimesDefinition{AtMost: intPtr(t.N)}
}

func (t AtLeastTimes) Definition() VerificationTimesDefinition {
	return VerificationTimesDefinition{AtLeast: intPtr(t.N)}
}

func (NeverTimes) sealed()   {}
func (ExactlyTimes) sealed() {}
func (AtMostTimes) sealed()  {}
func (AtLeastTimes) sealed() {}

func (NeverTimes) Validate() error     { return nil }
func (t ExactlyTimes) Validate() error { return validateCount("exactly", t.N) }
func (t AtMostTimes) Validate() error  { return validateCount("atMost", t.N) }
func (t AtLeastTimes) Validate() error { return validateCount("atLeast", t.N) }

func (NeverTimes) String() string     { return "never" }
func (t ExactlyTimes) String() string { return fmt.Sprintf("exactly %d times", t.N) }
func (t AtMostTimes) String() string  { return fmt.Sprintf("at most %d times", t.N) }
func (t AtLeastTimes) String() string { return fmt.Sprintf("at least %d times", t.N) }

func validateCount(field string, n int) error {
	if n < 0 {
		return &ValidationError{Field: "times." + field, Message: fmt.Sprintf("must not be negative, got %d", n)}
	}
	return nil
}

func intPtr(n int) *int { return &n }
