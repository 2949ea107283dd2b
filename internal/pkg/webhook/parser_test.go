package webhook

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/VoteFox/internal/pkg/ledger"
)

func TestExtractReference(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"3 votes Ref: (VF-ABCDEF123456)", "VF-ABCDEF123456", true},
		{"Ref:(VF-1A2B3C)", "VF-1A2B3C", true},
		{"Vote for Ama Ref: ( VF-XYZ999 ) thanks", "VF-XYZ999", true},
		{"Reference VF-ABCDEF123456", "", false},
		{"Ref: ()", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractReference(tt.text)
		assert.Equalf(t, tt.ok, ok, "text %q", tt.text)
		assert.Equalf(t, tt.want, got, "text %q", tt.text)
	}
}

func TestParseCallback_StructuredFieldWins(t *testing.T) {
	raw := []byte(`{
		"ResponseCode": "0000",
		"Status": "Success",
		"Data": {
			"ClientReference": "VF-FIELD00001",
			"Description": "3 votes Ref: (VF-TEXT000001)",
			"Status": "Success",
			"Amount": 3.00,
			"Charges": 0.06,
			"CheckoutId": "chk_123"
		}
	}`)

	cb, err := ParseCallback(raw)
	require.NoError(t, err)
	assert.Equal(t, "VF-FIELD00001", cb.Reference)
	assert.Equal(t, SourceField, cb.ReferenceSource)
	assert.Equal(t, "chk_123", cb.ExternalReference)
	assert.Equal(t, "Success", cb.Status)
	assert.True(t, cb.Amount.Equal(decimal.RequireFromString("3")))
	assert.True(t, cb.Charges.Equal(decimal.RequireFromString("0.06")))
}

func TestParseCallback_FallsBackToDescription(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"top level description", `{"status":"success","description":"5 votes Ref: (VF-DESC0000001)"}`},
		{"nested item description", `{"event":"payment.success","data":{"items":[{"name":"Vote","description":"5 votes Ref: (VF-DESC0000001)"}]}}`},
		{"item name", `{"status":"paid","items":[{"name":"5 votes Ref: (VF-DESC0000001)"}]}`},
		{"item description key", `{"Status":"Success","Data":{"itemDescription":"Ref: (VF-DESC0000001)"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, err := ParseCallback([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, "VF-DESC0000001", cb.Reference)
			assert.Equal(t, SourceDescription, cb.ReferenceSource)
			assert.NotEmpty(t, cb.Status)
		})
	}
}

func TestParseCallback_EventSuffixAsStatus(t *testing.T) {
	cb, err := ParseCallback([]byte(`{"event":"payment.failed","data":{"client_reference":"VF-1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "failed", cb.Status)
	assert.Equal(t, "VF-1", cb.Reference)
}

func TestParseCallback_PaidFlag(t *testing.T) {
	cb, err := ParseCallback([]byte(`{"reference":"VF-2","is_paid":true}`))
	require.NoError(t, err)
	assert.True(t, cb.IsPaid)
	assert.Equal(t, "VF-2", cb.Reference)
}

func TestParseCallback_NoReference(t *testing.T) {
	cb, err := ParseCallback([]byte(`{"status":"success","description":"no marker here"}`))
	require.NoError(t, err)
	assert.Empty(t, cb.Reference)
}

func TestParseCallback_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "not json", `["array"]`} {
		_, err := ParseCallback([]byte(raw))
		require.Errorf(t, err, "payload %q", raw)
		assert.True(t, errors.Is(err, ledger.ErrValidation))
	}
}
