// Package appstore is the HTTP client for the App Store receipt verification
// endpoint. It owns the production/sandbox redirect rule and the mapping from
// numeric status codes to retry dispositions.
package appstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/trainerbase/taskengine/internal/receipts/domain"
)

const (
	// statusSandboxReceipt means a sandbox receipt was sent to the production
	// endpoint; the request must be resubmitted to the sandbox endpoint.
	statusSandboxReceipt = 21007
)

// VerifyRequest is the body posted to the verification endpoint.
type VerifyRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions"`
}

// ReceiptInfo is one line item of a verified receipt. Timestamps arrive as
// millisecond epoch strings.
type ReceiptInfo struct {
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	ProductID             string `json:"product_id"`
	PurchaseDateMS        string `json:"purchase_date_ms"`
	ExpiresDateMS         string `json:"expires_date_ms"`
	IsTrialPeriod         string `json:"is_trial_period"`
	IsInIntroOfferPeriod  string `json:"is_in_intro_offer_period"`
}

// PendingRenewalInfo is the renewal state for one product.
type PendingRenewalInfo struct {
	ProductID          string `json:"product_id"`
	AutoRenewProductID string `json:"auto_renew_product_id"`
	AutoRenewStatus    string `json:"auto_renew_status"`
}

// VerifyResponse is the verification endpoint's response body.
type VerifyResponse struct {
	Status             int                  `json:"status"`
	LatestReceipt      string               `json:"latest_receipt"`
	LatestReceiptInfo  []ReceiptInfo        `json:"latest_receipt_info"`
	PendingRenewalInfo []PendingRenewalInfo `json:"pending_renewal_info"`
}

// Verifier verifies an encoded receipt against the App Store.
type Verifier interface {
	Verify(ctx context.Context, encodedReceipt, sharedSecret string) (*VerifyResponse, error)
}

// Client posts receipts to the production endpoint and falls back to the
// sandbox endpoint on status 21007.
type Client struct {
	logger        *slog.Logger
	httpClient    *http.Client
	productionURL string
	sandboxURL    string
}

func NewClient(logger *slog.Logger, productionURL, sandboxURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		logger:        logger.With("component", "appstore_client"),
		httpClient:    httpClient,
		productionURL: productionURL,
		sandboxURL:    sandboxURL,
	}
}

var _ Verifier = (*Client)(nil)

// Verify posts the receipt to the production endpoint; on status 21007 it
// resubmits to the sandbox endpoint and uses that response instead. A non-zero
// final status is returned as a *domain.VerificationError.
func (c *Client) Verify(ctx context.Context, encodedReceipt, sharedSecret string) (*VerifyResponse, error) {
	resp, err := c.post(ctx, c.productionURL, encodedReceipt, sharedSecret)
	if err != nil {
		return nil, err
	}
	if resp.Status == statusSandboxReceipt {
		c.logger.InfoContext(ctx, "sandbox receipt sent to production, retrying against sandbox")
		resp, err = c.post(ctx, c.sandboxURL, encodedReceipt, sharedSecret)
		if err != nil {
			return nil, err
		}
	}
	if resp.Status != 0 {
		return nil, &domain.VerificationError{
			Disposition: ClassifyStatus(resp.Status),
			StatusCode:  resp.Status,
		}
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, url, encodedReceipt, sharedSecret string) (*VerifyResponse, error) {
	body, err := json.Marshal(VerifyRequest{
		ReceiptData:            encodedReceipt,
		Password:               sharedSecret,
		ExcludeOldTransactions: false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.VerificationError{
			Disposition: domain.DispositionTemporary,
			Cause:       err,
		}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return nil, &domain.VerificationError{
			Disposition: domain.DispositionTemporary,
			StatusCode:  httpResp.StatusCode,
			Cause:       fmt.Errorf("verification endpoint returned HTTP %d", httpResp.StatusCode),
		}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &domain.VerificationError{
			Disposition: domain.DispositionUnexpected,
			StatusCode:  httpResp.StatusCode,
			Cause:       fmt.Errorf("verification endpoint returned HTTP %d", httpResp.StatusCode),
		}
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &domain.VerificationError{
			Disposition: domain.DispositionTemporary,
			Cause:       fmt.Errorf("reading verify response: %w", err),
		}
	}

	var resp VerifyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &domain.VerificationError{
			Disposition: domain.DispositionUnexpected,
			Cause:       fmt.Errorf("decoding verify response: %w", err),
		}
	}
	return &resp, nil
}

// ClassifyStatus maps a verification status code to its retry disposition.
// Unlisted codes are unexpected on purpose: a new code has to be classified
// here before anything retries it.
func ClassifyStatus(status int) domain.StatusDisposition {
	switch status {
	case 0:
		return domain.DispositionOK
	case 21005, 21009:
		// Server not available / internal data access error.
		return domain.DispositionTemporary
	case 21000, 21002, 21003, 21010:
		// Malformed request or receipt data; the same payload cannot succeed.
		return domain.DispositionInvalidParameters
	case 21004, 21006, 21008, statusSandboxReceipt:
		// Shared-secret mismatch, environment mixups and the like.
		return domain.DispositionUnexpected
	default:
		return domain.DispositionUnexpected
	}
}
