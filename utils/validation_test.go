package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signUpPayload struct {
	Name     string `json:"name" validate:"required,min=2,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=guest user admin"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name       string
		input      signUpPayload
		wantFields []string
	}{
		{
			name:  "valid",
			input: signUpPayload{Name: "Ada", Email: "ada@example.com", Password: "secret1"},
		},
		{
			name:       "missing everything",
			input:      signUpPayload{},
			wantFields: []string{"name", "email", "password"},
		},
		{
			name:       "bad email and short password",
			input:      signUpPayload{Name: "Ada", Email: "not-an-email", Password: "123"},
			wantFields: []string{"email", "password"},
		},
		{
			name:       "unknown role",
			input:      signUpPayload{Name: "Ada", Email: "ada@example.com", Password: "secret1", Role: "root"},
			wantFields: []string{"role"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			fields := GetValidationFields(err)
			for _, f := range tt.wantFields {
				assert.Contains(t, fields, f)
			}
		})
	}
}

func TestValidationError_DoesNotEchoValues(t *testing.T) {
	err := ValidateStruct(signUpPayload{Name: "Ada", Email: "ada@example.com", Password: "abc"})
	require.Error(t, err)

	for _, msg := range GetValidationFields(err) {
		assert.NotContains(t, msg, "abc")
	}
	assert.Equal(t, "Validation failed", err.Error())
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(&ValidationError{Message: "x"}))
	assert.False(t, IsValidationError(errors.New("x")))
	assert.Nil(t, GetValidationFields(errors.New("x")))
}

func TestParseUUID(t *testing.T) {
	id, err := ParseUUID("550e8400-e29b-41d4-a716-446655440000")
	require.NoError(t, err)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", id.String())

	_, err = ParseUUID("me")
	assert.Error(t, err)
}
