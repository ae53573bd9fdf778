package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contactRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"max=128"`
}

type addressRequest struct {
	FirstName   string `validate:"required,max=64"`
	CountryCode string `validate:"required,iso3166_1_alpha2"`
	Kind        string `validate:"omitempty,oneof=shipping billing"`
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(contactRequest{Email: "shopper@example.com"}))
}

func TestValidate_FieldMessages(t *testing.T) {
	err := Validate(addressRequest{CountryCode: "USA", Kind: "pickup"})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))

	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["FirstName"])
	assert.Equal(t, "must be a two-letter country code", fields["CountryCode"])
	assert.Equal(t, "must be one of: shipping billing", fields["Kind"])
	assert.Contains(t, valErr.Error(), "field 'FirstName' is required")
}

func TestValidate_Email(t *testing.T) {
	err := Validate(contactRequest{Email: "not-an-email"})

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "must be a valid email address", valErr.Fields()["email"])
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("shopper@example.com", "required,email"))

	err := Var("", "required,email")
	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "is required", valErr.Fields()["value"])
}
