package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-checkout/internal/domain"
	apperrors "github.com/utafrali/storefront-checkout/pkg/errors"
)

func TestOrchestrator_StartsAtContactInfo(t *testing.T) {
	o := NewOrchestrator()
	assert.Equal(t, domain.StepContactInfo, o.Step())
	assert.Zero(t, o.Epoch())
}

func TestOrchestrator_AdvancesThroughEveryStep(t *testing.T) {
	o := NewOrchestrator()

	for _, want := range domain.Steps()[1:] {
		got, err := o.GoToNextStep()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.EqualValues(t, 4, o.Epoch())

	step, err := o.GoToNextStep()
	assert.ErrorIs(t, err, ErrNoNextStep)
	assert.Equal(t, domain.StepReview, step)
	assert.EqualValues(t, 4, o.Epoch())
}

func TestOrchestrator_GoToStep(t *testing.T) {
	o := RestoreOrchestrator(domain.StepPayment, 3)

	require.NoError(t, o.GoToStep(domain.StepShippingAddress))
	assert.Equal(t, domain.StepShippingAddress, o.Step())
	assert.EqualValues(t, 4, o.Epoch())

	err := o.GoToStep("CONFIRMATION")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, domain.StepShippingAddress, o.Step())
}

func TestOrchestrator_IsActive(t *testing.T) {
	o := RestoreOrchestrator(domain.StepContactInfo, 7)
	assert.True(t, o.IsActive(domain.StepContactInfo, 7))

	_, err := o.GoToNextStep()
	require.NoError(t, err)

	// Work started before the transition is stale.
	assert.False(t, o.IsActive(domain.StepContactInfo, 7))
	assert.False(t, o.IsActive(domain.StepShippingAddress, 7))
	assert.True(t, o.IsActive(domain.StepShippingAddress, 8))
}

func TestRestoreOrchestrator_UnknownStep(t *testing.T) {
	o := RestoreOrchestrator("BOGUS", 2)
	assert.Equal(t, domain.StepContactInfo, o.Step())
	assert.EqualValues(t, 2, o.Epoch())
}
