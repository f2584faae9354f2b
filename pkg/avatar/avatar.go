package avatar

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the real-time call/avatar provider. The provider has no
// native tool calling, so StartCall injects a per-call context prompt (a
// snapshot of the caller's appointments) and tool invocations come back as
// signed webhooks verified with VerifyWebhook.
type Config struct {
	URL               string        `split_words:"true" required:"true"`
	Token             string        `split_words:"true" required:"true"`
	CurrentSigningKey string        `split_words:"true" required:"true"`
	NextSigningKey    string        `split_words:"true"`
	Timeout           time.Duration `split_words:"true" default:"10s"`
}

type Client struct {
	baseURL           string
	token             string
	currentSigningKey string
	nextSigningKey    string
	httpClient        *http.Client
}

var ErrBadSignature = errors.New("avatar: webhook signature mismatch")

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("avatar provider url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.CurrentSigningKey) == "" {
		return nil, errors.New("avatar signing key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		token:             strings.TrimSpace(cfg.Token),
		currentSigningKey: strings.TrimSpace(cfg.CurrentSigningKey),
		nextSigningKey:    strings.TrimSpace(cfg.NextSigningKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Call is the provider's view of one started call.
type Call struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	JoinURL   string `json:"join_url"`
}

type startCallRequest struct {
	SessionID     string `json:"session_id"`
	Phone         string `json:"phone,omitempty"`
	ContextPrompt string `json:"context_prompt,omitempty"`
}

// StartCall opens a call for the session, handing the provider the just-in-
// time context prompt to speak from.
func (c *Client) StartCall(ctx context.Context, sessionID, phone, contextPrompt string) (*Call, error) {
	body, err := json.Marshal(startCallRequest{
		SessionID:     sessionID,
		Phone:         phone,
		ContextPrompt: contextPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("avatar: marshal start call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/calls", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("avatar: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("avatar: start call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("avatar: read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("avatar: http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var call Call
	if err := json.Unmarshal(raw, &call); err != nil {
		return nil, fmt.Errorf("avatar: decode response: %w", err)
	}
	return &call, nil
}

// VerifyWebhook checks the provider's HMAC-SHA256 body signature against the
// current signing key, then the next one (the provider rotates keys, so both
// are valid during a rotation window).
func (c *Client) VerifyWebhook(signature string, body []byte) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrBadSignature
	}
	for _, key := range []string{c.currentSigningKey, c.nextSigningKey} {
		if key == "" {
			continue
		}
		if hmac.Equal([]byte(sign(key, body)), []byte(signature)) {
			return nil
		}
	}
	return ErrBadSignature
}

func sign(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
