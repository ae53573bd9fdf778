package domain

import "fmt"

// Step is one stage of the checkout sequence.
type Step string

const (
	StepContactInfo     Step = "CONTACT_INFO"
	StepShippingAddress Step = "SHIPPING_ADDRESS"
	StepShippingMethod  Step = "SHIPPING_METHOD"
	StepPayment         Step = "PAYMENT"
	StepReview          Step = "REVIEW"
)

var stepOrder = []Step{
	StepContactInfo,
	StepShippingAddress,
	StepShippingMethod,
	StepPayment,
	StepReview,
}

// Steps returns the checkout steps in order.
func Steps() []Step {
	out := make([]Step, len(stepOrder))
	copy(out, stepOrder)
	return out
}

// ParseStep converts a wire value into a Step.
func ParseStep(s string) (Step, error) {
	step := Step(s)
	if !step.Valid() {
		return "", fmt.Errorf("unknown checkout step %q", s)
	}
	return step, nil
}

// Index returns the position of s in the sequence, or -1.
func (s Step) Index() int {
	for i, step := range stepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	return s.Index() >= 0
}

// Next returns the step following s. ok is false for REVIEW.
func (s Step) Next() (next Step, ok bool) {
	i := s.Index()
	if i < 0 || i == len(stepOrder)-1 {
		return "", false
	}
	return stepOrder[i+1], true
}

// Before reports whether s comes earlier in the sequence than other.
func (s Step) Before(other Step) bool {
	return s.Index() < other.Index()
}

func (s Step) String() string {
	return string(s)
}
