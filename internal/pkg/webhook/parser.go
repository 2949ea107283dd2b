package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/VoteFox/internal/pkg/ledger"
)

// Where a callback's reference was found.
const (
	SourceField       = "field"
	SourceDescription = "description"
)

var refPattern = regexp.MustCompile(`Ref:\s*\(\s*([A-Za-z0-9][A-Za-z0-9_-]{2,63})\s*\)`)

var (
	clientReferenceKeys   = []string{"clientReference", "ClientReference", "client_reference"}
	genericReferenceKeys  = []string{"reference", "Reference"}
	externalReferenceKeys = []string{"externalReference", "ExternalReference", "external_reference", "transactionId", "TransactionId", "transaction_id", "CheckoutId", "checkoutId", "checkout_id"}
	statusKeys            = []string{"status", "Status", "paymentStatus", "payment_status"}
	descriptionKeys       = []string{"Description", "description", "itemDescription", "ItemDescription"}
	amountKeys            = []string{"amount", "Amount"}
	chargesKeys           = []string{"charges", "Charges", "fee", "fees"}
	paidKeys              = []string{"is_paid", "isPaid", "IsPaid"}
)

// Callback is what a payment callback tells us, independent of the gateway's layout.
type Callback struct {
	Reference         string
	ReferenceSource   string
	ExternalReference string
	Status            string
	IsPaid            bool
	Amount            decimal.Decimal
	Charges           decimal.Decimal
}

// ExtractReference finds a "Ref: (<reference>)" marker in free text.
func ExtractReference(text string) (string, bool) {
	m := refPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// ParseCallback decodes a callback body. The reference comes from the most
// specific structured field available and falls back to the "Ref: (...)"
// marker in description texts. A body without any reference still parses;
// the caller decides what to do with it.
func ParseCallback(raw []byte) (*Callback, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ledger.ValidationError{Field: "payload", Message: "empty body"}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, &ledger.ValidationError{Field: "payload", Message: fmt.Sprintf("invalid json: %v", err)}
	}

	// nested data first: gateways put the transaction there and the envelope outside
	scopes := make([]map[string]any, 0, 3)
	for _, key := range []string{"Data", "data"} {
		if nested, ok := root[key].(map[string]any); ok {
			scopes = append(scopes, nested)
		}
	}
	scopes = append(scopes, root)

	cb := &Callback{}
	if ref := lookupString(scopes, clientReferenceKeys); ref != "" {
		cb.Reference, cb.ReferenceSource = ref, SourceField
	} else if ref := lookupString(scopes, genericReferenceKeys); ref != "" {
		cb.Reference, cb.ReferenceSource = ref, SourceField
	} else if ref, ok := referenceFromDescriptions(scopes); ok {
		cb.Reference, cb.ReferenceSource = ref, SourceDescription
	}

	cb.ExternalReference = lookupString(scopes, externalReferenceKeys)
	cb.Status = lookupString(scopes, statusKeys)
	cb.IsPaid = lookupBool(scopes, paidKeys)
	if cb.Status == "" {
		if event, ok := root["event"].(string); ok {
			if i := strings.LastIndex(event, "."); i >= 0 {
				cb.Status = event[i+1:]
			}
		}
	}
	cb.Amount = lookupDecimal(scopes, amountKeys)
	cb.Charges = lookupDecimal(scopes, chargesKeys)
	return cb, nil
}

func referenceFromDescriptions(scopes []map[string]any) (string, bool) {
	for _, scope := range scopes {
		for _, key := range descriptionKeys {
			if text, ok := scope[key].(string); ok {
				if ref, found := ExtractReference(text); found {
					return ref, true
				}
			}
		}
		for _, itemsKey := range []string{"items", "Items"} {
			items, ok := scope[itemsKey].([]any)
			if !ok {
				continue
			}
			for _, it := range items {
				item, ok := it.(map[string]any)
				if !ok {
					continue
				}
				for _, key := range []string{"description", "Description", "name", "Name"} {
					if text, ok := item[key].(string); ok {
						if ref, found := ExtractReference(text); found {
							return ref, true
						}
					}
				}
			}
		}
	}
	return "", false
}

func lookupString(scopes []map[string]any, keys []string) string {
	for _, scope := range scopes {
		for _, key := range keys {
			switch v := scope[key].(type) {
			case string:
				if s := strings.TrimSpace(v); s != "" {
					return s
				}
			case json.Number:
				return v.String()
			}
		}
	}
	return ""
}

func lookupBool(scopes []map[string]any, keys []string) bool {
	for _, scope := range scopes {
		for _, key := range keys {
			switch v := scope[key].(type) {
			case bool:
				return v
			case string:
				return strings.EqualFold(v, "true")
			}
		}
	}
	return false
}

func lookupDecimal(scopes []map[string]any, keys []string) decimal.Decimal {
	for _, scope := range scopes {
		for _, key := range keys {
			var raw string
			switch v := scope[key].(type) {
			case json.Number:
				raw = v.String()
			case string:
				raw = strings.TrimSpace(v)
			default:
				continue
			}
			if d, err := decimal.NewFromString(raw); err == nil {
				return d
			}
		}
	}
	return decimal.Zero
}
