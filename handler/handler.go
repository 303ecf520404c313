package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"genie-bridge/internal/domain"
	"genie-bridge/internal/usecase"
)

// askUseCase is the orchestration entry point consumed by the handler.
type askUseCase interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
}

// eventWebhook processes Slack Events API requests.
type eventWebhook interface {
	HandleEvent(ctx context.Context, headers map[string]string, body []byte) (int, string)
}

// Handler routes API Gateway proxy requests to the Slack webhook, the test
// query endpoint, and the operational endpoints.
type Handler struct {
	ask   askUseCase
	slack eventWebhook
	debug map[string]any
	log   *slog.Logger
}

// NewHandler validates dependencies and creates a Handler. debug is the
// static configuration-presence report served on /debug.
func NewHandler(ask askUseCase, slack eventWebhook, debug map[string]any, log *slog.Logger) (*Handler, error) {
	if ask == nil {
		return nil, errors.New("handler: ask usecase must not be nil")
	}
	if slack == nil {
		return nil, errors.New("handler: slack webhook must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{ask: ask, slack: slack, debug: debug, log: log}, nil
}

type queryRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_id"`
}

type queryResponse struct {
	ConversationID string             `json:"conversation_id"`
	MessageID      string             `json:"message_id"`
	Result         domain.QueryResult `json:"result"`
	Note           string             `json:"note,omitempty"`
}

type errorResponse struct {
	Error          string `json:"error"`
	Reason         string `json:"reason,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Handle is the Lambda entry point.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, "X-Correlation-Id")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.log.With("correlation_id", correlationID, "method", req.HTTPMethod, "path", req.Path)

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			log.Error("undecodable base64 body", "err", err)
			return respondJSON(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body_encoding"}, correlationID), nil
		}
		body = decoded
	}

	switch {
	case req.HTTPMethod == http.MethodPost && req.Path == "/slack/events":
		status, respBody := h.slack.HandleEvent(ctx, req.Headers, body)
		log.Info("slack event handled", "status", status)
		return respondRaw(status, respBody, "application/json", correlationID), nil

	case req.HTTPMethod == http.MethodPost && req.Path == "/api/query":
		return h.handleQuery(ctx, log, body, correlationID), nil

	case req.HTTPMethod == http.MethodGet && req.Path == "/health":
		return respondJSON(http.StatusOK, map[string]string{"status": "ok"}, correlationID), nil

	case req.HTTPMethod == http.MethodGet && req.Path == "/debug":
		return respondJSON(http.StatusOK, h.debug, correlationID), nil

	case req.HTTPMethod == http.MethodGet && req.Path == "/":
		return respondRaw(http.StatusOK, homePage, "text/html; charset=utf-8", correlationID), nil
	}

	return respondJSON(http.StatusNotFound, errorResponse{Error: "NOT_FOUND"}, correlationID), nil
}

// handleQuery serves the direct test endpoint: a question in, the full
// orchestration outcome out.
func (h *Handler) handleQuery(ctx context.Context, log *slog.Logger, body []byte, correlationID string) events.APIGatewayProxyResponse {
	var in queryRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return respondJSON(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"}, correlationID)
	}
	if strings.TrimSpace(in.UserID) == "" {
		in.UserID = "api_user"
	}

	out, err := h.ask.Ask(ctx, usecase.AskInput{UserID: in.UserID, Question: in.Question})
	if err != nil {
		log.Error("query failed", "user_id", in.UserID, "err", err)
		var turnErr *usecase.Error
		if errors.As(err, &turnErr) {
			return respondJSON(statusForCode(turnErr.Code), errorResponse{
				Error:          string(turnErr.Code),
				Reason:         turnErr.Reason,
				ConversationID: turnErr.ConversationID,
			}, correlationID)
		}
		return respondJSON(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}, correlationID)
	}

	log.Info("query answered", "user_id", in.UserID, "conversation_id", out.ConversationID)
	return respondJSON(http.StatusOK, queryResponse{
		ConversationID: out.ConversationID,
		MessageID:      out.MessageID,
		Result:         out.Result,
		Note:           out.Note,
	}, correlationID)
}

func statusForCode(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorTransient, usecase.ErrorRemoteJob, usecase.ErrorUpstream:
		return http.StatusBadGateway
	case usecase.ErrorPollTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(status int, payload any, correlationID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		return respondRaw(http.StatusInternalServerError, `{"error":"INTERNAL_ERROR"}`, "application/json", correlationID)
	}
	return respondRaw(status, string(body), "application/json", correlationID)
}

func respondRaw(status int, body, contentType, correlationID string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     contentType,
			"X-Correlation-Id": correlationID,
		},
		Body: body,
	}
}

// headerValue looks up a header case-insensitively; API Gateway does not
// normalize header casing.
func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

const homePage = `<html>
  <head><title>Genie Bridge</title></head>
  <body>
    <h1>Genie Bridge</h1>
    <p>Slack bot bridging natural-language questions to the Databricks Genie API.</p>
    <p>Listening for Slack events at <code>/slack/events</code>.</p>
  </body>
</html>`
