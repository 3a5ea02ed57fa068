package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignKnownVectors(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		orderID   string
		paymentID string
		expected  string
	}{
		{
			name:      "reference vector",
			secret:    "K",
			orderID:   "O1",
			paymentID: "P1",
			expected:  "95b9febede82a4d8856ea5c0d45ebac0bc8cf1d26cb326ff097ea118eadc76e2",
		},
		{
			name:      "realistic ids",
			secret:    "test-secret",
			orderID:   "order-1",
			paymentID: "pay_123",
			expected:  "3d60584a960eda3082a23a8548e8906caa8fed0354f50a77b44b01c86275f275",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(tt.secret)
			assert.Equal(t, tt.expected, v.Sign(tt.orderID, tt.paymentID))
		})
	}
}

func TestVerifyAcceptsGatewaySignature(t *testing.T) {
	v := NewVerifier("shared-secret")
	signature := v.Sign("order-42", "pay_abc")

	require.NoError(t, v.Verify("order-42", "pay_abc", signature))
}

func TestVerifyRejectsSingleBitMutation(t *testing.T) {
	v := NewVerifier("shared-secret")
	signature := v.Sign("order-42", "pay_abc")

	// Flip one hex digit at every position; every mutation must fail.
	for i := 0; i < len(signature); i++ {
		mutated := []byte(signature)
		if mutated[i] == '0' {
			mutated[i] = '1'
		} else {
			mutated[i] = '0'
		}
		assert.ErrorIs(t, v.Verify("order-42", "pay_abc", string(mutated)), ErrInvalidSignature,
			"mutation at position %d must be rejected", i)
	}
}

func TestVerifyRejectsMismatchedInputs(t *testing.T) {
	v := NewVerifier("shared-secret")
	signature := v.Sign("order-42", "pay_abc")

	assert.ErrorIs(t, v.Verify("order-43", "pay_abc", signature), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify("order-42", "pay_abd", signature), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify("order-42", "pay_abc", ""), ErrInvalidSignature)

	other := NewVerifier("different-secret")
	assert.ErrorIs(t, other.Verify("order-42", "pay_abc", signature), ErrInvalidSignature)
}

func TestSignatureShape(t *testing.T) {
	v := NewVerifier("shared-secret")
	signature := v.Sign("order-42", "pay_abc")

	// Hex-encoded SHA-256 output.
	assert.Len(t, signature, 64)
}
