// Package chat implements the outbound ChatClient adapter: a thin wrapper
// over a Telegram-Bot-API-shaped send_message endpoint that classifies
// every response into success, throttle, unknown-thread, or terminal
// failure instead of raising exceptions.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the outbound chat adapter used by the dispatcher. It sends
// each post exactly once and never retries internally; the unknown-thread
// fallback, retry-after obedience and per-channel ordering belong to the
// caller.
type Client struct {
	httpClient *http.Client
	baseURL    string // override point for tests; defaults to the live API host
}

// New builds a Client. baseURL is the API host, e.g. "https://api.telegram.org".
func New(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Client{httpClient: httpClient, baseURL: baseURL}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	MessageThreadID       int64  `json:"message_thread_id,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiErrorResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Post sends one message to chatID, optionally inside threadID, using
// parseMode ("HTML" or "" for plain text). It returns nil on success and
// one of *ThrottledError, *UnknownThreadError, *TerminalChatError
// otherwise.
func (c *Client) Post(ctx context.Context, botToken, chatID string, threadID *int64, text, parseMode string) error {
	body := sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
	}
	if threadID != nil {
		body.MessageThreadID = *threadID
	}
	return c.send(ctx, botToken, body)
}

func (c *Client) send(ctx context.Context, botToken string, body sendMessageRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &TerminalChatError{Reason: fmt.Sprintf("marshal request: %v", err)}
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &TerminalChatError{Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TerminalChatError{Reason: fmt.Sprintf("request failed: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr apiErrorResponse
	_ = json.Unmarshal(respBody, &apiErr)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := apiErr.Parameters.RetryAfter
		if retryAfter <= 0 {
			retryAfter = 10
		}
		return &ThrottledError{RetryAfter: time.Duration(retryAfter) * time.Second}
	}

	if strings.Contains(strings.ToLower(apiErr.Description), "message thread not found") {
		return &UnknownThreadError{ChatID: body.ChatID}
	}

	reason := apiErr.Description
	if reason == "" {
		reason = fmt.Sprintf("status %d: %s", resp.StatusCode, string(respBody))
	}
	return &TerminalChatError{Reason: reason}
}
