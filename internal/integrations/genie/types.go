package genie

// MessageStatus is the decoded lifecycle state of a Genie message. Remote
// status strings are mapped here once, at the API boundary, so callers never
// compare raw strings.
type MessageStatus int

const (
	StatusUnknown MessageStatus = iota
	StatusPending
	StatusRunning
	StatusCompleted
	StatusFailed
)

// ParseStatus maps a remote status string to a MessageStatus. The API has
// reported both COMPLETE and COMPLETED for finished messages; anything
// unrecognized decodes to StatusUnknown and is treated by callers as still
// in flight.
func ParseStatus(s string) MessageStatus {
	switch s {
	case "COMPLETE", "COMPLETED":
		return StatusCompleted
	case "ERROR", "FAILED":
		return StatusFailed
	case "PENDING", "SUBMITTED":
		return StatusPending
	case "RUNNING", "IN_PROGRESS", "EXECUTING_QUERY":
		return StatusRunning
	default:
		return StatusUnknown
	}
}

// Terminal reports whether the status will not change with further polling.
func (s MessageStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TextAttachment is a plain-text answer attached to a completed message.
type TextAttachment struct {
	Content string
}

// QueryAttachment is a generated-SQL answer attached to a completed message.
type QueryAttachment struct {
	Description string
	Query       string
}

// Attachment carries exactly one of the attachment kinds; absent kinds are
// nil.
type Attachment struct {
	Text  *TextAttachment
	Query *QueryAttachment
}

// Message is the decoded state of one conversation turn.
type Message struct {
	Status       MessageStatus
	RawStatus    string
	ErrorMessage string
	Attachments  []Attachment
}

// Statement states reported inside a query-result payload.
const StateSucceeded = "SUCCEEDED"

// Manifest describes the result schema; column names are in schema order.
type Manifest struct {
	Columns []string
}

// ResultData holds the typed data rows. Each cell is nil when the remote
// value was missing.
type ResultData struct {
	Rows [][]*string
}

// StatementResponse is the decoded query-result payload for a message.
// Manifest and Result are nil when the corresponding section was absent.
type StatementResponse struct {
	State    string
	Manifest *Manifest
	Result   *ResultData
}
