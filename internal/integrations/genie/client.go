package genie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"genie-bridge/internal/integrations/paramstore"
)

// HTTPStatusError captures non-2xx upstream responses with status-aware
// context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("genie: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// IsTransport reports whether err is a transport-level failure (HTTP error
// status or a failed round trip) that a poll loop may retry. Decode and
// contract errors are not transport failures.
func IsTransport(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Client is a focused Databricks Genie client scoped to a single space.
type Client struct {
	host        string
	spaceID     string
	httpClient  *http.Client
	getter      paramstore.Getter
	paramPrefix string

	tokenOnce sync.Once
	token     string
	tokenErr  error
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the given workspace host and Genie space.
// The bearer token is fetched from SSM under paramPrefix on the first API
// call and reused for the lifetime of the process.
func NewClient(ps paramstore.Getter, paramPrefix, host, spaceID string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("genie: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("genie: parameter prefix must not be empty")
	}
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return nil, errors.New("genie: host must not be empty")
	}
	spaceID = strings.TrimSpace(spaceID)
	if spaceID == "" {
		return nil, errors.New("genie: space ID must not be empty")
	}
	c := &Client{
		host:        host,
		spaceID:     spaceID,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveToken fetches the API token from SSM on the first call and returns
// the cached result on every subsequent call within the same process
// lifetime.
func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenOnce.Do(func() {
		c.token, c.tokenErr = paramstore.Token(ctx, c.getter, c.paramPrefix+"/databricks-token")
	})
	return c.token, c.tokenErr
}

func (c *Client) spaceURL(parts ...string) string {
	segs := append([]string{c.host, "api/2.0/genie/spaces", c.spaceID}, parts...)
	return strings.Join(segs, "/")
}

// startConversationResponse is the wire shape returned by start-conversation.
type startConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// addMessageResponse is the wire shape returned when appending to a
// conversation.
type addMessageResponse struct {
	MessageID string `json:"message_id"`
}

type questionRequest struct {
	Content string `json:"content"`
}

// messageResponse is the wire shape of a conversation message.
type messageResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Attachments  []struct {
		Text *struct {
			Content string `json:"content"`
		} `json:"text"`
		Query *struct {
			Description string `json:"description"`
			Query       string `json:"query"`
		} `json:"query"`
	} `json:"attachments"`
}

// queryResultResponse is the wire shape of a query-result payload.
type queryResultResponse struct {
	StatementResponse struct {
		Status struct {
			State string `json:"state"`
		} `json:"status"`
		Manifest *struct {
			Schema struct {
				Columns []struct {
					Name string `json:"name"`
				} `json:"columns"`
			} `json:"schema"`
		} `json:"manifest"`
		Result *struct {
			DataTypedArray []struct {
				Values []struct {
					Str *string `json:"str"`
				} `json:"values"`
			} `json:"data_typed_array"`
		} `json:"result"`
	} `json:"statement_response"`
}

// StartConversation opens a new conversation with the given question and
// returns the conversation and message identifiers.
func (c *Client) StartConversation(ctx context.Context, question string) (string, string, error) {
	url := c.spaceURL("start-conversation")
	raw, err := c.postJSON(ctx, url, questionRequest{Content: question})
	if err != nil {
		return "", "", fmt.Errorf("genie: start conversation: %w", err)
	}

	var payload startConversationResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", "", fmt.Errorf("genie: decode start-conversation response: %w", decErr)
	}
	if payload.ConversationID == "" || payload.MessageID == "" {
		return "", "", errors.New("genie: start-conversation response missing identifiers")
	}
	return payload.ConversationID, payload.MessageID, nil
}

// AddMessage appends a question to an existing conversation and returns the
// new message identifier.
func (c *Client) AddMessage(ctx context.Context, conversationID, question string) (string, error) {
	url := c.spaceURL("conversations", conversationID, "messages")
	raw, err := c.postJSON(ctx, url, questionRequest{Content: question})
	if err != nil {
		return "", fmt.Errorf("genie: add message: %w", err)
	}

	var payload addMessageResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("genie: decode add-message response: %w", decErr)
	}
	if payload.MessageID == "" {
		return "", errors.New("genie: add-message response missing message_id")
	}
	return payload.MessageID, nil
}

// GetMessage fetches the current state of a conversation message.
func (c *Client) GetMessage(ctx context.Context, conversationID, messageID string) (Message, error) {
	url := c.spaceURL("conversations", conversationID, "messages", messageID)
	raw, err := c.getJSON(ctx, url)
	if err != nil {
		return Message{}, fmt.Errorf("genie: get message: %w", err)
	}

	var payload messageResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return Message{}, fmt.Errorf("genie: decode message response: %w", decErr)
	}

	msg := Message{
		Status:       ParseStatus(payload.Status),
		RawStatus:    payload.Status,
		ErrorMessage: payload.ErrorMessage,
	}
	for _, att := range payload.Attachments {
		decoded := Attachment{}
		if att.Text != nil {
			decoded.Text = &TextAttachment{Content: att.Text.Content}
		}
		if att.Query != nil {
			decoded.Query = &QueryAttachment{
				Description: att.Query.Description,
				Query:       att.Query.Query,
			}
		}
		msg.Attachments = append(msg.Attachments, decoded)
	}
	return msg, nil
}

// GetQueryResult fetches and decodes the query-result payload for a message.
func (c *Client) GetQueryResult(ctx context.Context, conversationID, messageID string) (StatementResponse, error) {
	url := c.spaceURL("conversations", conversationID, "messages", messageID, "query-result")
	raw, err := c.getJSON(ctx, url)
	if err != nil {
		return StatementResponse{}, fmt.Errorf("genie: get query result: %w", err)
	}

	var payload queryResultResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return StatementResponse{}, fmt.Errorf("genie: decode query-result response: %w", decErr)
	}

	stmt := StatementResponse{State: payload.StatementResponse.Status.State}
	if m := payload.StatementResponse.Manifest; m != nil {
		manifest := &Manifest{}
		for _, col := range m.Schema.Columns {
			manifest.Columns = append(manifest.Columns, col.Name)
		}
		stmt.Manifest = manifest
	}
	if r := payload.StatementResponse.Result; r != nil {
		result := &ResultData{}
		for _, row := range r.DataTypedArray {
			cells := make([]*string, 0, len(row.Values))
			for _, v := range row.Values {
				cells = append(cells, v.Str)
			}
			result.Rows = append(result.Rows, cells)
		}
		stmt.Result = result
	}
	return stmt, nil
}

func (c *Client) postJSON(ctx context.Context, url string, reqBody any) ([]byte, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.doJSONRequest(ctx, req, url)
}

func (c *Client) getJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.doJSONRequest(ctx, req, url)
}

func (c *Client) doJSONRequest(ctx context.Context, req *http.Request, url string) ([]byte, error) {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

// resolvedHTTPClient returns the configured HTTP client, or a default with a
// 30s timeout if none was set (e.g. in tests that nil out the field).
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}
