package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"reference":"VF-1","status":"success"}`)
	sig := Sign(payload, "topsecret")

	assert.True(t, VerifySignature(payload, sig, "topsecret"))
	assert.True(t, VerifySignature(payload, "sha256="+sig, "topsecret"))
	assert.False(t, VerifySignature(payload, sig, "other"))
	assert.False(t, VerifySignature([]byte(`{"tampered":true}`), sig, "topsecret"))
	assert.False(t, VerifySignature(payload, "", "topsecret"))
	assert.False(t, VerifySignature(payload, sig, ""))
	assert.False(t, VerifySignature(payload, "zz-not-hex", "topsecret"))
}
