package daraja

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

var (
	// ErrGatewayUnavailable covers transport and auth failures; the charge
	// was never attempted and initiation is safe to retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected is a business rejection (bad phone number, amount
	// out of range); no checkout session was created.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")
)

type Client struct {
	cfg    config.GatewayConfig
	client *http.Client
	logger *logger.Logger
}

func NewClient(cfg config.GatewayConfig, log *logger.Logger) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log,
	}
}

// FormatPhone normalizes a subscriber number to 2547XXXXXXXX.
func FormatPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if strings.HasPrefix(phone, "254") {
		return phone
	}
	return "254" + strings.TrimPrefix(phone, "0")
}

func timestamp(now time.Time) string {
	return now.Format("20060102150405")
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	url := c.cfg.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+credentials)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token request returned status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var token models.AccessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", ErrGatewayUnavailable, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrGatewayUnavailable)
	}
	return token.AccessToken, nil
}

// InitiateSTKPush starts a charge against the subscriber's phone and returns
// the gateway response carrying the CheckoutRequestID used to correlate the
// asynchronous result.
func (c *Client) InitiateSTKPush(ctx context.Context, phone string, amount int64, accountRef, description string) (*models.STKPushResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ts := timestamp(now)
	password := base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + ts))
	formattedPhone := FormatPhone(phone)

	if accountRef == "" {
		accountRef = fmt.Sprintf("booking-%d", now.Unix())
	}
	if description == "" {
		description = "Payment for " + formattedPhone
	}

	payload := models.STKPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            formattedPhone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       formattedPhone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  accountRef,
		TransactionDesc:   description,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: stkpush request: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: stkpush returned status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var result models.STKPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding stkpush response: %v", ErrGatewayUnavailable, err)
	}

	if result.ResponseCode != "0" || result.CheckoutRequestID == "" {
		c.logger.Warn("GATEWAY", fmt.Sprintf("stkpush rejected: code=%s desc=%s", result.ResponseCode, result.ResponseDescription))
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, result.ResponseDescription)
	}

	c.logger.LogPayment("STKPUSH", result.CheckoutRequestID, fmt.Sprintf("initiated charge of %d to %s", amount, formattedPhone))
	return &result, nil
}
