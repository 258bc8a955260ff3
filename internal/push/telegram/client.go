package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	token      string
	chatID     string
	baseURL    string
	httpClient *http.Client
}

type Response struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func NewClient(token, chatID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) SendMessage(ctx context.Context, text string) (*Response, error) {
	if c.token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: c.chatID, Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &out, nil
}

// SendText is the delivery entry point the digest runner uses: any failure
// mode, transport or API level, comes back as a single error for the caller
// to log.
func (c *Client) SendText(ctx context.Context, text string) error {
	resp, err := c.SendMessage(ctx, text)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("telegram error_code=%d description=%s", resp.ErrorCode, resp.Description)
	}
	return nil
}
