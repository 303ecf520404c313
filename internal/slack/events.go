package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"genie-bridge/internal/integrations/paramstore"
	"genie-bridge/internal/usecase"
)

// Orchestrator is the core entry point the transport delegates questions to.
type Orchestrator interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
	Reset(userID string)
}

// DedupStore filters redelivered events. Slack retries any event the
// webhook does not acknowledge within a few seconds, and this webhook polls
// on the request path, so redeliveries are routine rather than exceptional.
type DedupStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

// Poster sends chat messages back to Slack.
type Poster interface {
	PostMessage(ctx context.Context, msg Message) error
}

// BotConfig scopes the bot to one channel and controls table rendering.
type BotConfig struct {
	ChannelID    string
	FormatTables bool
}

var mentionPattern = regexp.MustCompile(`<@[^>]+>\s*`)

// resetCommand starts a fresh conversation for the sender.
const resetCommand = "reset"

// eventEnvelope is the Events API request body.
type eventEnvelope struct {
	Type      string       `json:"type"`
	Challenge string       `json:"challenge"`
	EventID   string       `json:"event_id"`
	Event     messageEvent `json:"event"`
}

type messageEvent struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype"`
	Text        string `json:"text"`
	User        string `json:"user"`
	BotID       string `json:"bot_id"`
	Channel     string `json:"channel"`
	ChannelType string `json:"channel_type"`
	TS          string `json:"ts"`
}

// Bot handles Slack Events API webhooks: URL verification, signature
// checks, deduplication, and dispatching questions to the orchestrator.
type Bot struct {
	orch        Orchestrator
	poster      Poster
	dedup       DedupStore
	getter      paramstore.Getter
	paramPrefix string
	cfg         BotConfig
	log         *slog.Logger
	now         func() time.Time

	secretOnce    sync.Once
	signingSecret string
	secretErr     error
}

// NewBot validates dependencies and creates a Bot. The signing secret is
// fetched from SSM under paramPrefix on the first event and cached.
func NewBot(orch Orchestrator, poster Poster, dedup DedupStore, ps paramstore.Getter, paramPrefix string, cfg BotConfig, log *slog.Logger) (*Bot, error) {
	if orch == nil {
		return nil, errors.New("slack: orchestrator must not be nil")
	}
	if poster == nil {
		return nil, errors.New("slack: poster must not be nil")
	}
	if dedup == nil {
		return nil, errors.New("slack: dedup store must not be nil")
	}
	if ps == nil {
		return nil, errors.New("slack: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("slack: parameter prefix must not be empty")
	}
	if strings.TrimSpace(cfg.ChannelID) == "" {
		return nil, errors.New("slack: channel ID must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		orch:        orch,
		poster:      poster,
		dedup:       dedup,
		getter:      ps,
		paramPrefix: paramPrefix,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}, nil
}

func (b *Bot) resolveSigningSecret(ctx context.Context) (string, error) {
	b.secretOnce.Do(func() {
		b.signingSecret, b.secretErr = paramstore.Token(ctx, b.getter, b.paramPrefix+"/slack-signing-secret")
	})
	return b.signingSecret, b.secretErr
}

// HandleEvent processes one Events API request and returns the HTTP status
// and response body the webhook should answer with.
func (b *Bot) HandleEvent(ctx context.Context, headers map[string]string, body []byte) (int, string) {
	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		b.log.Error("undecodable slack event", "err", err)
		return http.StatusBadRequest, `{"error":"invalid body"}`
	}

	// URL verification happens before the app is fully installed; Slack
	// expects the challenge echoed back without a signature check.
	if envelope.Challenge != "" {
		resp, _ := json.Marshal(map[string]string{"challenge": envelope.Challenge})
		return http.StatusOK, string(resp)
	}

	secret, err := b.resolveSigningSecret(ctx)
	if err != nil {
		b.log.Error("signing secret unavailable", "err", err)
		return http.StatusInternalServerError, `{"error":"configuration error"}`
	}
	timestamp := headerValue(headers, "X-Slack-Request-Timestamp")
	signature := headerValue(headers, "X-Slack-Signature")
	if !VerifySignature(secret, timestamp, signature, body, b.now()) {
		b.log.Error("slack signature verification failed")
		return http.StatusUnauthorized, `{"error":"invalid signature"}`
	}

	if envelope.EventID != "" {
		seen, err := b.dedup.Seen(ctx, envelope.EventID)
		if err != nil {
			// Fail open: double-answering beats dropping a question.
			b.log.Error("event dedup check failed", "event_id", envelope.EventID, "err", err)
		} else if seen {
			b.log.Info("ignoring redelivered event", "event_id", envelope.EventID)
			return http.StatusOK, "ok"
		}
	}

	b.dispatch(ctx, envelope.Event)
	return http.StatusOK, "ok"
}

// dispatch filters and routes a single event. Replies are best-effort; a
// failed post is logged, never surfaced to Slack's retry machinery.
func (b *Bot) dispatch(ctx context.Context, event messageEvent) {
	text := strings.TrimSpace(event.Text)
	switch event.Type {
	case "app_mention":
		text = strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
		if text == "" {
			b.reply(ctx, event, "Hi! How can I help you analyze your data?")
			return
		}
	case "message":
		if event.Subtype != "" || event.BotID != "" {
			return
		}
		if text == "" {
			return
		}
		if event.Channel != b.cfg.ChannelID && event.ChannelType != "im" {
			b.log.Info("ignoring message from unconfigured channel", "channel", event.Channel)
			return
		}
	default:
		b.log.Info("ignoring event", "type", event.Type)
		return
	}

	userID := event.User
	if userID == "" {
		userID = "unknown_user"
	}

	if strings.EqualFold(text, resetCommand) {
		b.orch.Reset(userID)
		b.reply(ctx, event, "Started a new conversation. Ask away!")
		return
	}

	b.reply(ctx, event, fmt.Sprintf("Processing your query: '%s'...", text))

	out, err := b.orch.Ask(ctx, usecase.AskInput{UserID: userID, Question: text})
	if err != nil {
		b.log.Error("query failed", "user", userID, "err", err)
		b.reply(ctx, event, "Sorry, I encountered an error: "+errorDescription(err))
		return
	}

	b.log.Info("query answered",
		"user", userID,
		"conversation_id", out.ConversationID,
		"message_id", out.MessageID,
		"rows", len(out.Result.Rows),
	)

	fallback := out.Result.Text
	if strings.TrimSpace(fallback) == "" {
		fallback = "Here are the results:"
	}
	msg := Message{
		Channel:  event.Channel,
		Text:     fallback,
		ThreadTS: event.TS,
		Blocks:   FormatResult(out.Result, out.Note, b.cfg.FormatTables),
	}
	if err := b.poster.PostMessage(ctx, msg); err != nil {
		b.log.Error("failed to post results", "user", userID, "err", err)
	}
}

func (b *Bot) reply(ctx context.Context, event messageEvent, text string) {
	err := b.poster.PostMessage(ctx, Message{
		Channel:  event.Channel,
		Text:     text,
		ThreadTS: event.TS,
	})
	if err != nil {
		b.log.Error("failed to post reply", "err", err)
	}
}

func errorDescription(err error) string {
	var turnErr *usecase.Error
	if errors.As(err, &turnErr) {
		return turnErr.Description()
	}
	return err.Error()
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
