package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"genie-bridge/internal/domain"
	"genie-bridge/internal/integrations/genie"
)

// sleepFn waits between poll attempts; overridable in tests.
var sleepFn = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// runTurn submits one question and polls its message to a terminal state.
// Each attempt sleeps first, then checks status: there is no immediate
// check, so a turn costs at least one retry interval.
func (s *QueryService) runTurn(ctx context.Context, sess domain.Session, question string) (AskOutput, error) {
	conversationID := sess.ConversationID
	var messageID string
	var err error
	if conversationID == "" {
		conversationID, messageID, err = s.api.StartConversation(ctx, question)
		if err != nil {
			return AskOutput{}, newTurnError(ErrorUpstream, "start_conversation_error", "", err)
		}
	} else {
		messageID, err = s.api.AddMessage(ctx, conversationID, question)
		if err != nil {
			return AskOutput{}, newTurnError(ErrorUpstream, "add_message_error", conversationID, err)
		}
	}

	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if err := sleepFn(ctx, s.cfg.RetryInterval); err != nil {
			return AskOutput{}, newTurnError(ErrorInternal, "poll_interrupted", conversationID, err)
		}

		out, done, err := s.checkTurn(ctx, conversationID, messageID, attempt)
		if err != nil {
			var turnErr *Error
			if errors.As(err, &turnErr) {
				return AskOutput{}, turnErr
			}
			if genie.IsTransport(err) {
				if attempt < s.cfg.MaxRetries {
					continue
				}
				return AskOutput{}, newTurnError(ErrorTransient, "status_check_error", conversationID, err)
			}
			return AskOutput{}, newTurnError(ErrorUpstream, "status_check_error", conversationID, err)
		}
		if done {
			return out, nil
		}
	}

	return AskOutput{}, newTurnError(ErrorPollTimeout,
		fmt.Sprintf("Query timed out after %d attempts", s.cfg.MaxRetries), conversationID, nil)
}

// checkTurn performs one status check. done is false while the message is
// still in flight.
func (s *QueryService) checkTurn(ctx context.Context, conversationID, messageID string, attempt int) (AskOutput, bool, error) {
	msg, err := s.api.GetMessage(ctx, conversationID, messageID)
	if err != nil {
		return AskOutput{}, false, err
	}

	switch msg.Status {
	case genie.StatusCompleted:
		return s.completedTurn(ctx, conversationID, messageID, msg)
	case genie.StatusFailed:
		reason := msg.ErrorMessage
		if reason == "" {
			reason = "Unknown error occurred"
		}
		return AskOutput{}, false, newTurnError(ErrorRemoteJob, reason, conversationID, nil)
	}

	// Still pending or running. Past the early-fetch threshold the result
	// endpoint sometimes has data before the status flips; try it, swallow
	// failures, keep polling.
	if s.cfg.EarlyFetchAfter > 0 && attempt > s.cfg.EarlyFetchAfter {
		if stmt, fetchErr := s.api.GetQueryResult(ctx, conversationID, messageID); fetchErr == nil {
			return AskOutput{
				ConversationID: conversationID,
				MessageID:      messageID,
				Result:         normalizeStatement(stmt),
				Note:           fmt.Sprintf("Results retrieved while status was %q", msg.RawStatus),
			}, true, nil
		}
	}
	return AskOutput{}, false, nil
}

// completedTurn inspects a completed message's attachments. A text
// attachment answers the turn directly and never triggers a result fetch;
// a query attachment with an unresolved workspace placeholder
// short-circuits to a clarification request, also without a fetch.
func (s *QueryService) completedTurn(ctx context.Context, conversationID, messageID string, msg genie.Message) (AskOutput, bool, error) {
	for _, att := range msg.Attachments {
		if att.Text != nil {
			return AskOutput{
				ConversationID: conversationID,
				MessageID:      messageID,
				Result:         domain.QueryResult{Text: att.Text.Content},
			}, true, nil
		}
		if att.Query == nil {
			continue
		}

		if strings.Contains(att.Query.Query, workspacePlaceholder) {
			return AskOutput{
				ConversationID: conversationID,
				MessageID:      messageID,
				Result: domain.QueryResult{
					Text:             workspaceClarificationText,
					QueryDescription: att.Query.Description,
					SQLQuery:         att.Query.Query,
				},
			}, true, nil
		}

		stmt, err := s.api.GetQueryResult(ctx, conversationID, messageID)
		if err != nil {
			return AskOutput{}, false, err
		}
		result := normalizeStatement(stmt)
		result.QueryDescription = att.Query.Description
		result.SQLQuery = att.Query.Query
		return AskOutput{
			ConversationID: conversationID,
			MessageID:      messageID,
			Result:         result,
		}, true, nil
	}

	// Completed without a consumable attachment: the API has been seen
	// flipping status before attachments are populated, so keep polling.
	return AskOutput{}, false, nil
}
