package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genie-bridge/internal/domain"
	"genie-bridge/internal/usecase"
)

type mockOrch struct {
	askIn     []usecase.AskInput
	out       usecase.AskOutput
	err       error
	resetUser string
}

func (m *mockOrch) Ask(_ context.Context, in usecase.AskInput) (usecase.AskOutput, error) {
	m.askIn = append(m.askIn, in)
	return m.out, m.err
}

func (m *mockOrch) Reset(userID string) { m.resetUser = userID }

type mockPoster struct {
	messages []Message
	err      error
}

func (m *mockPoster) PostMessage(_ context.Context, msg Message) error {
	m.messages = append(m.messages, msg)
	return m.err
}

type mockDedup struct {
	ids  []string
	seen bool
	err  error
}

func (m *mockDedup) Seen(_ context.Context, eventID string) (bool, error) {
	m.ids = append(m.ids, eventID)
	return m.seen, m.err
}

type secretGetter struct {
	payload string
	err     error
}

func (g *secretGetter) GetParameter(_ context.Context, _ string) (string, error) {
	return g.payload, g.err
}

const testSigningSecret = "signing-secret-1"

type botFixture struct {
	bot    *Bot
	orch   *mockOrch
	poster *mockPoster
	dedup  *mockDedup
	now    time.Time
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	f := &botFixture{
		orch:   &mockOrch{},
		poster: &mockPoster{},
		dedup:  &mockDedup{},
		now:    time.Unix(1700000000, 0),
	}
	getter := &secretGetter{payload: fmt.Sprintf(`{"token":%q}`, testSigningSecret)}
	bot, err := NewBot(f.orch, f.poster, f.dedup, getter, "/genie-bridge", BotConfig{ChannelID: "C123", FormatTables: true}, nil)
	require.NoError(t, err)
	bot.now = func() time.Time { return f.now }
	f.bot = bot
	return f
}

// signedEvent marshals the envelope and produces headers Slack would send.
func (f *botFixture) signedEvent(t *testing.T, envelope map[string]any) (map[string]string, []byte) {
	t.Helper()
	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	ts := strconv.FormatInt(f.now.Unix(), 10)
	headers := map[string]string{
		"X-Slack-Request-Timestamp": ts,
		"X-Slack-Signature":         signBody(testSigningSecret, ts, body),
	}
	return headers, body
}

func mentionEnvelope(text string) map[string]any {
	return map[string]any{
		"type":     "event_callback",
		"event_id": "Ev001",
		"event": map[string]any{
			"type":    "app_mention",
			"text":    text,
			"user":    "U42",
			"channel": "C123",
			"ts":      "1700000000.000100",
		},
	}
}

func TestNewBot_ValidatesDependencies(t *testing.T) {
	getter := &secretGetter{}
	poster := &mockPoster{}
	dedup := &mockDedup{}
	orch := &mockOrch{}
	cfg := BotConfig{ChannelID: "C123"}

	_, err := NewBot(nil, poster, dedup, getter, "/p", cfg, nil)
	require.Error(t, err)
	_, err = NewBot(orch, nil, dedup, getter, "/p", cfg, nil)
	require.Error(t, err)
	_, err = NewBot(orch, poster, nil, getter, "/p", cfg, nil)
	require.Error(t, err)
	_, err = NewBot(orch, poster, dedup, nil, "/p", cfg, nil)
	require.Error(t, err)
	_, err = NewBot(orch, poster, dedup, getter, "  ", cfg, nil)
	require.Error(t, err)
	_, err = NewBot(orch, poster, dedup, getter, "/p", BotConfig{}, nil)
	require.Error(t, err)
}

func TestHandleEvent_URLVerificationSkipsSignature(t *testing.T) {
	f := newBotFixture(t)
	body := []byte(`{"type":"url_verification","challenge":"chal-123"}`)

	status, resp := f.bot.HandleEvent(context.Background(), nil, body)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"challenge":"chal-123"}`, resp)
}

func TestHandleEvent_RejectsInvalidBody(t *testing.T) {
	f := newBotFixture(t)
	status, _ := f.bot.HandleEvent(context.Background(), nil, []byte("not json"))
	require.Equal(t, http.StatusBadRequest, status)
}

func TestHandleEvent_RejectsBadSignature(t *testing.T) {
	f := newBotFixture(t)
	headers, body := f.signedEvent(t, mentionEnvelope("<@BOT> hello"))
	headers["X-Slack-Signature"] = "v0=deadbeef"

	status, _ := f.bot.HandleEvent(context.Background(), headers, body)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Empty(t, f.orch.askIn)
}

func TestHandleEvent_SecretFetchFailure(t *testing.T) {
	orch := &mockOrch{}
	getter := &secretGetter{err: errors.New("ssm unavailable")}
	bot, err := NewBot(orch, &mockPoster{}, &mockDedup{}, getter, "/genie-bridge", BotConfig{ChannelID: "C123"}, nil)
	require.NoError(t, err)

	status, _ := bot.HandleEvent(context.Background(), nil, []byte(`{"type":"event_callback"}`))
	require.Equal(t, http.StatusInternalServerError, status)
}

func TestHandleEvent_RedeliveredEventIgnored(t *testing.T) {
	f := newBotFixture(t)
	f.dedup.seen = true
	headers, body := f.signedEvent(t, mentionEnvelope("<@BOT> how much?"))

	status, resp := f.bot.HandleEvent(context.Background(), headers, body)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", resp)
	require.Equal(t, []string{"Ev001"}, f.dedup.ids)
	require.Empty(t, f.orch.askIn)
	require.Empty(t, f.poster.messages)
}

func TestHandleEvent_DedupFailureFailsOpen(t *testing.T) {
	f := newBotFixture(t)
	f.dedup.err = errors.New("dynamodb throttled")
	f.orch.out = usecase.AskOutput{Result: domain.QueryResult{Text: "fine"}}
	headers, body := f.signedEvent(t, mentionEnvelope("<@BOT> how much?"))

	status, _ := f.bot.HandleEvent(context.Background(), headers, body)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, f.orch.askIn, 1, "a dedup outage must not drop the question")
}

func TestHandleEvent_MentionStripsBotTagAndAnswersInThread(t *testing.T) {
	f := newBotFixture(t)
	f.orch.out = usecase.AskOutput{
		ConversationID: "conv-1",
		MessageID:      "msg-1",
		Result: domain.QueryResult{
			Text:    "Result: total = 42",
			Columns: []string{"total"},
			Rows:    [][]*string{{cell("42")}},
		},
	}
	headers, body := f.signedEvent(t, mentionEnvelope("<@U0BOT> how much did we spend?"))

	status, _ := f.bot.HandleEvent(context.Background(), headers, body)
	require.Equal(t, http.StatusOK, status)

	require.Len(t, f.orch.askIn, 1)
	require.Equal(t, usecase.AskInput{UserID: "U42", Question: "how much did we spend?"}, f.orch.askIn[0])

	require.Len(t, f.poster.messages, 2)
	ack, answer := f.poster.messages[0], f.poster.messages[1]
	require.Equal(t, "Processing your query: 'how much did we spend?'...", ack.Text)
	require.Equal(t, "C123", answer.Channel)
	require.Equal(t, "1700000000.000100", answer.ThreadTS)
	require.Equal(t, "Result: total = 42", answer.Text)
	require.NotEmpty(t, answer.Blocks)
}

func TestHandleEvent_MentionWithoutQuestionGreets(t *testing.T) {
	f := newBotFixture(t)
	headers, body := f.signedEvent(t, mentionEnvelope("<@U0BOT>"))

	f.bot.HandleEvent(context.Background(), headers, body)
	require.Empty(t, f.orch.askIn)
	require.Len(t, f.poster.messages, 1)
	require.Equal(t, "Hi! How can I help you analyze your data?", f.poster.messages[0].Text)
}

func TestHandleEvent_ResetCommand(t *testing.T) {
	f := newBotFixture(t)
	headers, body := f.signedEvent(t, mentionEnvelope("<@U0BOT> reset"))

	f.bot.HandleEvent(context.Background(), headers, body)
	require.Equal(t, "U42", f.orch.resetUser)
	require.Empty(t, f.orch.askIn)
	require.Len(t, f.poster.messages, 1)
	require.Equal(t, "Started a new conversation. Ask away!", f.poster.messages[0].Text)
}

func TestHandleEvent_AskErrorSurfacesDescription(t *testing.T) {
	f := newBotFixture(t)
	f.orch.err = &usecase.Error{Code: usecase.ErrorRemoteJob, Reason: "quota exceeded"}
	headers, body := f.signedEvent(t, mentionEnvelope("<@U0BOT> how much?"))

	f.bot.HandleEvent(context.Background(), headers, body)
	require.Len(t, f.poster.messages, 2)
	require.Equal(t, "Sorry, I encountered an error: quota exceeded", f.poster.messages[1].Text)
}

func TestHandleEvent_FallbackTextWhenResultHasNoText(t *testing.T) {
	f := newBotFixture(t)
	f.orch.out = usecase.AskOutput{Result: domain.QueryResult{
		Columns: []string{"a"},
		Rows:    [][]*string{{cell("1")}},
	}}
	headers, body := f.signedEvent(t, mentionEnvelope("<@U0BOT> show data"))

	f.bot.HandleEvent(context.Background(), headers, body)
	require.Len(t, f.poster.messages, 2)
	require.Equal(t, "Here are the results:", f.poster.messages[1].Text)
}

func TestDispatch_ChannelMessages(t *testing.T) {
	cases := []struct {
		name      string
		event     map[string]any
		delivered bool
	}{
		{
			name: "configured channel",
			event: map[string]any{
				"type": "message", "text": "how much?", "user": "U42", "channel": "C123", "ts": "1.0",
			},
			delivered: true,
		},
		{
			name: "direct message",
			event: map[string]any{
				"type": "message", "text": "how much?", "user": "U42", "channel": "D999", "channel_type": "im", "ts": "1.0",
			},
			delivered: true,
		},
		{
			name: "other channel",
			event: map[string]any{
				"type": "message", "text": "how much?", "user": "U42", "channel": "C999", "ts": "1.0",
			},
			delivered: false,
		},
		{
			name: "bot echo",
			event: map[string]any{
				"type": "message", "text": "how much?", "bot_id": "B1", "channel": "C123", "ts": "1.0",
			},
			delivered: false,
		},
		{
			name: "edited message",
			event: map[string]any{
				"type": "message", "subtype": "message_changed", "text": "how much?", "user": "U42", "channel": "C123", "ts": "1.0",
			},
			delivered: false,
		},
		{
			name: "unhandled event type",
			event: map[string]any{
				"type": "reaction_added", "user": "U42", "channel": "C123", "ts": "1.0",
			},
			delivered: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newBotFixture(t)
			f.orch.out = usecase.AskOutput{Result: domain.QueryResult{Text: "fine"}}
			headers, body := f.signedEvent(t, map[string]any{
				"type":     "event_callback",
				"event_id": "Ev001",
				"event":    tc.event,
			})

			status, _ := f.bot.HandleEvent(context.Background(), headers, body)
			require.Equal(t, http.StatusOK, status)
			if tc.delivered {
				require.Len(t, f.orch.askIn, 1)
			} else {
				require.Empty(t, f.orch.askIn)
			}
		})
	}
}

func TestHeaderValue_CaseInsensitive(t *testing.T) {
	headers := map[string]string{"x-slack-signature": "v0=abc"}
	require.Equal(t, "v0=abc", headerValue(headers, "X-Slack-Signature"))
	require.Empty(t, headerValue(headers, "X-Slack-Request-Timestamp"))
}
