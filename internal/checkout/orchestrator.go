// Package checkout sequences the checkout steps and applies shopper
// actions to a persisted checkout flow.
package checkout

import (
	"errors"
	"fmt"

	"github.com/utafrali/storefront-checkout/internal/domain"
	apperrors "github.com/utafrali/storefront-checkout/pkg/errors"
)

// ErrNoNextStep is returned by GoToNextStep on the last step. Completing
// review places the order, which happens elsewhere.
var ErrNoNextStep = errors.New("no checkout step after review")

// Orchestrator holds the active step. Exactly one step is active at a
// time, and every transition starts a new epoch.
type Orchestrator struct {
	step  domain.Step
	epoch int64
}

// NewOrchestrator starts at the first step.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{step: domain.StepContactInfo}
}

// RestoreOrchestrator resumes a persisted position. An unknown step resets
// to the first one.
func RestoreOrchestrator(step domain.Step, epoch int64) *Orchestrator {
	if !step.Valid() {
		step = domain.StepContactInfo
	}
	return &Orchestrator{step: step, epoch: epoch}
}

// Step returns the active step.
func (o *Orchestrator) Step() domain.Step { return o.step }

// Epoch returns the current transition count.
func (o *Orchestrator) Epoch() int64 { return o.epoch }

// GoToStep makes step active. Used to re-edit a completed step.
func (o *Orchestrator) GoToStep(step domain.Step) error {
	if !step.Valid() {
		return apperrors.InvalidInput(fmt.Sprintf("unknown checkout step %q", step))
	}
	o.step = step
	o.epoch++
	return nil
}

// GoToNextStep advances to the step after the active one.
func (o *Orchestrator) GoToNextStep() (domain.Step, error) {
	next, ok := o.step.Next()
	if !ok {
		return o.step, ErrNoNextStep
	}
	o.step = next
	o.epoch++
	return next, nil
}

// IsActive reports whether work started on step during epoch may still
// write its results.
func (o *Orchestrator) IsActive(step domain.Step, epoch int64) bool {
	return o.step == step && o.epoch == epoch
}
