package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/VoteFox/internal/pkg/metrics"
)

// Provider is the payment gateway capability used by the orchestrator and the reconciliation job.
type Provider interface {
	InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResponse, error)
	QueryStatus(ctx context.Context, query StatusQuery) (*StatusResponse, error)
}

type InitiateRequest struct {
	Amount          decimal.Decimal
	PayerMSISDN     string
	CallbackURL     string
	ClientReference string
	Description     string
}

type InitiateResponse struct {
	ExternalReference string
	Status            string
	Message           string
}

type StatusQuery struct {
	ClientReference   string
	ExternalReference string
}

// StatusResponse is the normalized answer of a status lookup.
type StatusResponse struct {
	Success           bool
	IsPaid            bool
	Status            string
	Charges           decimal.Decimal
	ExternalReference string
}

// Client talks JSON over HTTP to the payment gateway.
type Client struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	MerchantID string

	HTTPClient *http.Client
}

// NewClient builds a client whose whole request is bounded by cfg.Timeout and
// whose dial is bounded by the shorter cfg.ConnectTimeout.
func NewClient(cfg Config) *Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.Timeout,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:     cfg.APIKey,
		APISecret:  cfg.APISecret,
		MerchantID: cfg.MerchantID,
		HTTPClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

type initiatePayload struct {
	Amount          json.Number `json:"amount"`
	PayerMSISDN     string      `json:"payer_msisdn"`
	CallbackURL     string      `json:"callback_url"`
	ClientReference string      `json:"client_reference"`
	Description     string      `json:"description"`
	MerchantID      string      `json:"merchant_id,omitempty"`
}

type rawInitiateResponse struct {
	Success           *bool  `json:"success"`
	Status            string `json:"status"`
	Message           string `json:"message"`
	ExternalReference string `json:"external_reference"`
	TransactionID     string `json:"transaction_id"`
	Data              *struct {
		ExternalReference string `json:"external_reference"`
		TransactionID     string `json:"transaction_id"`
		Status            string `json:"status"`
	} `json:"data"`
}

// InitiatePayment asks the gateway to charge the payer. A 2xx answer only
// means the charge was accepted; the outcome arrives later.
func (c *Client) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	const op = "initiate"

	payload := initiatePayload{
		Amount:          json.Number(req.Amount.StringFixed(2)),
		PayerMSISDN:     req.PayerMSISDN,
		CallbackURL:     req.CallbackURL,
		ClientReference: req.ClientReference,
		Description:     req.Description,
		MerchantID:      c.MerchantID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ProviderError{Op: op, Kind: KindDecode, Err: err}
	}

	respBody, err := c.do(ctx, op, http.MethodPost, c.BaseURL+"/payments/initiate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var raw rawInitiateResponse
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, &ProviderError{Op: op, Kind: KindDecode, Err: err, Body: truncate(respBody)}
	}
	if raw.Success != nil && !*raw.Success {
		return nil, &ProviderError{Op: op, Kind: KindRejected, StatusCode: http.StatusOK, Body: raw.Message}
	}

	out := &InitiateResponse{
		ExternalReference: firstNonEmpty(raw.ExternalReference, raw.TransactionID),
		Status:            raw.Status,
		Message:           raw.Message,
	}
	if raw.Data != nil {
		out.ExternalReference = firstNonEmpty(out.ExternalReference, raw.Data.ExternalReference, raw.Data.TransactionID)
		out.Status = firstNonEmpty(out.Status, raw.Data.Status)
	}
	return out, nil
}

type rawStatus struct {
	Success           *bool           `json:"success"`
	Message           string          `json:"message"`
	IsPaid            bool            `json:"is_paid"`
	Status            string          `json:"status"`
	Charges           decimal.Decimal `json:"charges"`
	ExternalReference string          `json:"external_reference"`
}

type rawStatusResponse struct {
	rawStatus
	Data *rawStatus `json:"data"`
}

// QueryStatus looks a payment up by client reference, external reference or both.
func (c *Client) QueryStatus(ctx context.Context, query StatusQuery) (*StatusResponse, error) {
	const op = "status"

	if query.ClientReference == "" && query.ExternalReference == "" {
		return nil, errors.New("client or external reference is required")
	}

	u, err := url.Parse(c.BaseURL + "/payments/status")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if query.ClientReference != "" {
		q.Set("client_reference", query.ClientReference)
	}
	if query.ExternalReference != "" {
		q.Set("external_reference", query.ExternalReference)
	}
	u.RawQuery = q.Encode()

	respBody, err := c.do(ctx, op, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	var raw rawStatusResponse
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, &ProviderError{Op: op, Kind: KindDecode, Err: err, Body: truncate(respBody)}
	}

	status := raw.rawStatus
	if raw.Data != nil && status.Status == "" && !status.IsPaid {
		status.IsPaid = raw.Data.IsPaid
		status.Status = raw.Data.Status
		status.Charges = raw.Data.Charges
		status.ExternalReference = raw.Data.ExternalReference
		status.Message = firstNonEmpty(status.Message, raw.Data.Message)
		if status.Success == nil {
			status.Success = raw.Data.Success
		}
	}
	// a lookup the gateway could not answer says nothing about the payment
	if status.Success != nil && !*status.Success {
		return nil, &ProviderError{Op: op, Kind: KindRejected, StatusCode: http.StatusOK, Body: firstNonEmpty(status.Message, truncate(respBody))}
	}

	return &StatusResponse{
		Success:           true,
		IsPaid:            status.IsPaid,
		Status:            status.Status,
		Charges:           status.Charges,
		ExternalReference: status.ExternalReference,
	}, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.APIKey, c.APISecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.MerchantID != "" {
		req.Header.Set("X-Merchant-ID", c.MerchantID)
	}

	started := time.Now()
	resp, err := c.HTTPClient.Do(req)
	metrics.ProviderLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(op, string(KindNetwork)).Inc()
		return nil, &ProviderError{Op: op, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := KindRejected
		if resp.StatusCode >= 500 {
			kind = KindUnavailable
		}
		metrics.ProviderRequests.WithLabelValues(op, string(kind)).Inc()
		return nil, &ProviderError{Op: op, Kind: kind, StatusCode: resp.StatusCode, Body: truncate(respBody)}
	}

	metrics.ProviderRequests.WithLabelValues(op, "ok").Inc()
	return respBody, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func truncate(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}

// ErrorKind classifies outbound call failures.
type ErrorKind string

const (
	KindRejected    ErrorKind = "rejected"
	KindUnavailable ErrorKind = "unavailable"
	KindNetwork     ErrorKind = "network"
	KindDecode      ErrorKind = "decode"
)

// ProviderError is returned for every failed gateway call.
type ProviderError struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("payment provider %s failed (%s)", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status=%d", e.StatusCode)
	}
	if e.Body != "" {
		msg += " body=" + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
