package domain

import "time"

// Commit is a single commit on a pull request.
type Commit struct {
	SHA        string    `json:"sha"`
	Message    string    `json:"message"`
	AuthoredAt time.Time `json:"authored_at"`
}

// Comment is a single entry in an issue or pull request conversation.
type Comment struct {
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PullRequest is the harvested record for a single pull request.
// It is immutable once fetched from the hosting service; ResolvedIssues is
// derived from its text at harvest time and stored alongside it.
type PullRequest struct {
	Number         int        `json:"number"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	State          string     `json:"state"`
	DiffURL        string     `json:"diff_url"`
	BaseSHA        string     `json:"base_sha"`
	MergedAt       *time.Time `json:"merged_at,omitempty"`
	Commits        []Commit   `json:"commits"`
	Comments       []Comment  `json:"comments"`
	ResolvedIssues []string   `json:"resolved_issues"`
}

// CommitMessages returns the messages of all commits in order.
func (p *PullRequest) CommitMessages() []string {
	msgs := make([]string, len(p.Commits))
	for i, c := range p.Commits {
		msgs[i] = c.Message
	}
	return msgs
}

// FirstCommitTime returns the author timestamp of the first commit.
// ok is false when the pull request has no commits.
func (p *PullRequest) FirstCommitTime() (t time.Time, ok bool) {
	if len(p.Commits) == 0 {
		return time.Time{}, false
	}
	return p.Commits[0].AuthoredAt, true
}
