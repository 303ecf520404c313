package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"genie-bridge/internal/domain"
	"genie-bridge/internal/integrations/genie"
)

const (
	defaultMaxRetries    = 10
	defaultRetryInterval = 5 * time.Second
)

// GenieAPI is the remote analytics contract consumed by the poller.
type GenieAPI interface {
	StartConversation(ctx context.Context, question string) (conversationID, messageID string, err error)
	AddMessage(ctx context.Context, conversationID, question string) (string, error)
	GetMessage(ctx context.Context, conversationID, messageID string) (genie.Message, error)
	GetQueryResult(ctx context.Context, conversationID, messageID string) (genie.StatementResponse, error)
}

// SessionStore is the per-user session mapping consumed by the orchestrator.
type SessionStore interface {
	Resolve(userID string) domain.Session
	Update(userID, conversationID string)
	Reset(userID string)
}

// Config tunes the poll loop. EarlyFetchAfter is the attempt index after
// which a result fetch is attempted while the message still reports an
// in-flight status; zero disables that fallback.
type Config struct {
	MaxRetries      int
	RetryInterval   time.Duration
	EarlyFetchAfter int
}

// QueryService drives a question through the remote analytics service and
// is the single entry point transports call.
type QueryService struct {
	api      GenieAPI
	sessions SessionStore
	cfg      Config
}

type AskInput struct {
	UserID   string
	Question string
}

// AskOutput is the successful outcome of a turn. Note carries a diagnostic
// annotation when the result was retrieved through the degraded-polling
// fallback.
type AskOutput struct {
	ConversationID string
	MessageID      string
	Result         domain.QueryResult
	Note           string
}

// NewQueryService validates dependencies and applies poll defaults.
func NewQueryService(api GenieAPI, sessions SessionStore, cfg Config) (*QueryService, error) {
	if api == nil {
		return nil, errors.New("usecase: genie api must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.EarlyFetchAfter < 0 {
		cfg.EarlyFetchAfter = 0
	}
	return &QueryService{api: api, sessions: sessions, cfg: cfg}, nil
}

// Ask resolves the user's session, runs one turn to completion, and records
// the conversation handle learned from a first successful turn. Session
// state is never mutated on failure; every failure comes back as a typed
// *Error carrying the best-known conversation ID.
func (s *QueryService) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return AskOutput{}, newError(ErrorInvalidInput, "empty_question", nil)
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return AskOutput{}, newError(ErrorInvalidInput, "empty_user_id", nil)
	}

	sess := s.sessions.Resolve(userID)
	out, err := s.runTurn(ctx, sess, question)
	if err != nil {
		return AskOutput{}, err
	}

	if sess.ConversationID == "" {
		s.sessions.Update(userID, out.ConversationID)
	}
	return out, nil
}

// Reset drops the user's retained session so the next question starts a
// fresh conversation.
func (s *QueryService) Reset(userID string) {
	s.sessions.Reset(userID)
}
