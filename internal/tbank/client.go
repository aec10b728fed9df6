package tbank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrInitFailed = errors.New("t-bank init failed")

type InitRequest struct {
	Amount          int64 // minor units
	OrderID         string
	Description     string
	NotificationURL string
	SuccessURL      string
	FailURL         string
}

type InitResponse struct {
	PaymentID  string
	PaymentURL string
	Status     Status
	Raw        json.RawMessage
}

type Client struct {
	HTTP        *http.Client
	TerminalKey string
	Password    string
	InitURL     string
}

func NewClient(terminalKey, password, initURL string) *Client {
	return &Client{
		HTTP:        &http.Client{Timeout: 15 * time.Second},
		TerminalKey: terminalKey,
		Password:    password,
		InitURL:     initURL,
	}
}

func (c *Client) fields(req InitRequest) map[string]any {
	return map[string]any{
		"TerminalKey":     c.TerminalKey,
		"Amount":          req.Amount,
		"OrderId":         req.OrderID,
		"Description":     req.Description,
		"NotificationURL": req.NotificationURL,
		"SuccessURL":      req.SuccessURL,
		"FailURL":         req.FailURL,
	}
}

// Init registers a payment and returns the hosted payment page. On a gateway-level
// failure the returned response still carries Raw so callers can keep it for audit.
func (c *Client) Init(ctx context.Context, req InitRequest) (InitResponse, error) {
	payload := c.fields(req)
	payload[fieldToken] = Token(payload, c.Password)

	body, err := json.Marshal(payload)
	if err != nil {
		return InitResponse{}, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.InitURL, bytes.NewReader(body))
	if err != nil {
		return InitResponse{}, err
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(hreq)
	if err != nil {
		return InitResponse{}, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return InitResponse{}, fmt.Errorf("%w: read body: %v", ErrInitFailed, err)
	}

	data, err := decodeFields(raw)
	if err != nil {
		return InitResponse{Raw: raw}, fmt.Errorf("%w: decode body: %v", ErrInitFailed, err)
	}
	out := InitResponse{Raw: raw}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, fmt.Errorf("%w: http %d", ErrInitFailed, resp.StatusCode)
	}
	if ok, present := data["Success"].(bool); present && !ok {
		return out, fmt.Errorf("%w: %s", ErrInitFailed, errorDetails(data))
	}

	out.PaymentID, _ = stringify(data["PaymentId"])
	out.PaymentURL, _ = data["PaymentURL"].(string)
	if s, _ := data["Status"].(string); s != "" {
		out.Status = Status(s)
	} else {
		out.Status = StatusInit
	}
	return out, nil
}

func errorDetails(data map[string]any) string {
	code, _ := stringify(data["ErrorCode"])
	msg, _ := data["Message"].(string)
	details, _ := data["Details"].(string)
	return fmt.Sprintf("code=%s message=%q details=%q", code, msg, details)
}

func decodeFields(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("empty object")
	}
	return m, nil
}
