// Package sms sends text messages through Naver Cloud SENS.
package sms

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ikkim/tabline-backend/pkg/logger"
)

// Result never carries a Go error: callers must check OK.
type Result struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

type Config struct {
	ServiceID  string
	AccessKey  string
	SecretKey  string
	FromNumber string
	BaseURL    string
	Timeout    time.Duration
}

// Configured reports whether real messages can be sent.
func (c Config) Configured() bool {
	return c.ServiceID != "" && c.AccessKey != "" && c.SecretKey != "" && c.FromNumber != ""
}

type messageRequest struct {
	Type     string    `json:"type"` // SMS or LMS
	From     string    `json:"from"`
	Content  string    `json:"content"`
	Messages []message `json:"messages"`
}

type message struct {
	To string `json:"to"`
}

type messageResponse struct {
	RequestID    string `json:"requestId"`
	StatusCode   string `json:"statusCode"`
	StatusName   string `json:"statusName"`
	ErrorMessage string `json:"errorMessage"`
}

type Client struct {
	config     Config
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://sens.apigw.ntruss.com"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		now:        time.Now,
	}
}

// makeSignature signs "METHOD URI\nTIMESTAMP\nACCESS_KEY" with HMAC-SHA256.
func makeSignature(method, uri, timestamp, accessKey, secretKey string) string {
	msg := method + " " + uri + "\n" + timestamp + "\n" + accessKey
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Send delivers body to the phone number. Without credentials the message
// is only logged, as in local development.
func (c *Client) Send(ctx context.Context, to, body string) Result {
	to = normalizePhone(to)
	if to == "" {
		return Result{Error: "missing recipient"}
	}

	if !c.config.Configured() {
		id := "dev-" + uuid.NewString()
		logger.Info("SMS not configured, message logged only", map[string]interface{}{
			"to":   to,
			"body": body,
			"id":   id,
		})
		return Result{OK: true, ID: id}
	}

	msgType := "SMS"
	if len(body) > 80 {
		msgType = "LMS"
	}
	payload, err := json.Marshal(messageRequest{
		Type:     msgType,
		From:     c.config.FromNumber,
		Content:  body,
		Messages: []message{{To: to}},
	})
	if err != nil {
		return Result{Error: fmt.Sprintf("encode request: %v", err)}
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	uri := fmt.Sprintf("/sms/v2/services/%s/messages", c.config.ServiceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.config.BaseURL, "/")+uri, bytes.NewReader(payload))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("x-ncp-apigw-timestamp", timestamp)
	req.Header.Set("x-ncp-iam-access-key", c.config.AccessKey)
	req.Header.Set("x-ncp-apigw-signature-v2", makeSignature(http.MethodPost, uri, timestamp, c.config.AccessKey, c.config.SecretKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("SMS request failed", err, map[string]interface{}{"to": to})
		return Result{Error: fmt.Sprintf("send request: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Error: fmt.Sprintf("read response: %v", err)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		logger.Warn("SENS API returned error", map[string]interface{}{
			"status": resp.StatusCode,
			"body":   string(raw),
		})
		return Result{Error: fmt.Sprintf("sens status %d", resp.StatusCode)}
	}

	var parsed messageResponse
	_ = json.Unmarshal(raw, &parsed)
	if parsed.StatusName != "" && parsed.StatusName != "success" {
		return Result{Error: fmt.Sprintf("sens status %s: %s", parsed.StatusName, parsed.ErrorMessage)}
	}

	logger.Info("SMS sent", map[string]interface{}{"to": to, "request_id": parsed.RequestID})
	return Result{OK: true, ID: parsed.RequestID}
}

// normalizePhone strips formatting characters, keeping a leading '+'.
func normalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
