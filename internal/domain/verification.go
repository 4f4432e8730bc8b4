package domain

// Role tags a transcript message with its speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry in a verification dialogue.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the ordered dialogue for one task instance. Messages are
// appended as the dialogue progresses and never mutated afterwards.
type Transcript struct {
	messages []Message
}

// Append adds a message to the end of the transcript.
func (t *Transcript) Append(role Role, content string) {
	t.messages = append(t.messages, Message{Role: role, Content: content})
}

// Messages returns a copy of the transcript so far.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages in the transcript.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// VerificationResult accumulates the graded outcome of the verification
// dialogue for one task instance.
type VerificationResult struct {
	UnderspecifiedNotes string `json:"underspecified_notes"`
	Underspecified      int    `json:"underspecified"`
	FalseNegativeNotes  string `json:"false_negative_notes"`
	FalseNegative       int    `json:"false_negative"`
	OtherNotes          string `json:"other_notes"`
	OtherMajorIssues    int    `json:"other_major_issues"`
	FilterOut           bool   `json:"filter_out"`
}

// Recompute derives FilterOut from the accumulated ranks. The instance is
// filtered out when either rank exceeds 1 or any other major issue was
// flagged. FilterOut is never set directly.
func (v *VerificationResult) Recompute() {
	v.FilterOut = v.FalseNegative > 1 || v.Underspecified > 1 || v.OtherMajorIssues == 1
}

// VerificationRecord is one persisted line in a repository's results log.
type VerificationRecord struct {
	TaskInstance       TaskInstance       `json:"task_instance"`
	VerificationResult VerificationResult `json:"verification_result"`
	Messages           []Message          `json:"messages"`
}
