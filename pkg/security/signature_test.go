package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`<ShipNotice><OrderNumber>ORD-1001</OrderNumber></ShipNotice>`)
	secret := "store-api-secret"

	sig := SignPayload(payload, secret)
	require.NotEmpty(t, sig)
	assert.True(t, VerifySignature(payload, sig, secret))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"tracking_number":"1Z1"}`)
	sig := SignPayload(payload, "secret")

	assert.False(t, VerifySignature([]byte(`{"tracking_number":"1Z2"}`), sig, "secret"))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte("body")
	sig := SignPayload(payload, "secret-a")

	assert.False(t, VerifySignature(payload, sig, "secret-b"))
}

func TestVerifyRejectsEmptyInputs(t *testing.T) {
	payload := []byte("body")
	sig := SignPayload(payload, "secret")

	assert.False(t, VerifySignature(payload, "", "secret"))
	assert.False(t, VerifySignature(payload, sig, ""))
}

func TestSignPayloadDeterministic(t *testing.T) {
	payload := []byte("body")
	assert.Equal(t, SignPayload(payload, "secret"), SignPayload(payload, "secret"))
	assert.NotEqual(t, SignPayload(payload, "secret"), SignPayload(payload, "other"))
}
