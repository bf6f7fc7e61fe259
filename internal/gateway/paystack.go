package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"shiftpay/internal/money"
)

// PaystackGateway implements PaymentGateway against the Paystack API.
// Amounts are already in minor units (kobo for NGN), so no conversion
// happens here.
type PaystackGateway struct {
	SecretKey string
	BaseURL   string
	Client    *http.Client
}

// NewPaystackGateway creates a Paystack-backed gateway from the environment.
func NewPaystackGateway() *PaystackGateway {
	return &PaystackGateway{
		SecretKey: os.Getenv("PAYSTACK_SECRET_KEY"),
		BaseURL:   "https://api.paystack.co",
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type paystackResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference    string `json:"reference"`
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
		Balance      int64  `json:"balance"`
		Currency     string `json:"currency"`
	} `json:"data"`
}

type paystackBalanceResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    []struct {
		Currency string `json:"currency"`
		Balance  int64  `json:"balance"`
	} `json:"data"`
}

// makeRequest makes an HTTP request to the Paystack API. Mutating calls set
// the idempotency key as a reference so a retried request has at most one
// effect.
func (ps *PaystackGateway) makeRequest(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, ps.BaseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+ps.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ps.Client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Op: endpoint, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Op: endpoint, Message: err.Error()}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &Error{Kind: KindTransient, Op: endpoint, Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &Error{Kind: KindPermanent, Op: endpoint, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, string(data))}
	}

	return data, nil
}

func (ps *PaystackGateway) mutate(ctx context.Context, op, endpoint string, payload map[string]interface{}) (string, error) {
	data, err := ps.makeRequest(ctx, "POST", endpoint, payload)
	if err != nil {
		return "", err
	}

	var result paystackResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", &Error{Kind: KindTransient, Op: op, Message: "failed to decode response: " + err.Error()}
	}
	if !result.Status {
		return "", &Error{Kind: KindPermanent, Op: op, Message: result.Message}
	}
	if result.Data.Reference != "" {
		return result.Data.Reference, nil
	}
	return result.Data.TransferCode, nil
}

// AuthorizeAndCapture charges the business's stored authorization.
func (ps *PaystackGateway) AuthorizeAndCapture(ctx context.Context, amount money.Cents, currency, payerRef, key string) (string, error) {
	return ps.mutate(ctx, "authorize_and_capture", "/transaction/charge_authorization", map[string]interface{}{
		"authorization_code": payerRef,
		"amount":             int64(amount),
		"currency":           currency,
		"reference":          key,
		"email":              payerRef + "@billing.shiftpay.internal",
	})
}

// TransferToEscrowPool moves captured funds to the escrow pool subaccount.
func (ps *PaystackGateway) TransferToEscrowPool(ctx context.Context, amount money.Cents, currency, key string) (string, error) {
	return ps.mutate(ctx, "transfer_to_escrow_pool", "/transfer", map[string]interface{}{
		"source":    "balance",
		"reason":    "escrow pool funding",
		"amount":    int64(amount),
		"currency":  currency,
		"recipient": os.Getenv("PAYSTACK_ESCROW_POOL_RECIPIENT"),
		"reference": key,
	})
}

// TransferToWorker pays out to the worker's transfer recipient.
func (ps *PaystackGateway) TransferToWorker(ctx context.Context, amount money.Cents, currency, payeeRef, key string) (string, error) {
	return ps.mutate(ctx, "transfer_to_worker", "/transfer", map[string]interface{}{
		"source":    "balance",
		"reason":    "shift payout",
		"amount":    int64(amount),
		"currency":  currency,
		"recipient": payeeRef,
		"reference": key,
	})
}

// RefundToBusiness refunds the original charge, fully or partially.
func (ps *PaystackGateway) RefundToBusiness(ctx context.Context, amount money.Cents, currency, payerRef, key string) (string, error) {
	return ps.mutate(ctx, "refund_to_business", "/refund", map[string]interface{}{
		"transaction":   payerRef,
		"amount":        int64(amount),
		"currency":      currency,
		"merchant_note": "escrow refund " + key,
	})
}

// RetrieveAvailableBalance reports the Paystack balance for a currency.
func (ps *PaystackGateway) RetrieveAvailableBalance(ctx context.Context, currency string) (money.Cents, error) {
	data, err := ps.makeRequest(ctx, "GET", "/balance", nil)
	if err != nil {
		return 0, err
	}

	var result paystackBalanceResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return 0, &Error{Kind: KindTransient, Op: "retrieve_balance", Message: "failed to decode response: " + err.Error()}
	}
	if !result.Status {
		return 0, &Error{Kind: KindPermanent, Op: "retrieve_balance", Message: result.Message}
	}
	for _, b := range result.Data {
		if b.Currency == currency {
			return money.Cents(b.Balance), nil
		}
	}
	return 0, &Error{Kind: KindPermanent, Op: "retrieve_balance", Message: "no balance for currency " + currency}
}
