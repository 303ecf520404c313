package domain

// Session is the per-user conversation state retained across questions.
// ConversationID is empty until the user's first turn completes; once set
// it stays fixed for the session's lifetime.
type Session struct {
	UserID         string
	ConversationID string
}
