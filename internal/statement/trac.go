package statement

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/openevals/benchforge/internal/domain"
)

const (
	defaultTracBaseURL = "https://code.djangoproject.com"
	timelinePrefix     = "see timeline at "
	tracTimeLayout     = "01/02/0615:04:05"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	blankLineRun  = regexp.MustCompile(`\n+`)
	spaceRun      = regexp.MustCompile(`[ ]{2,}`)
)

// TracScraper assembles problem statements from a legacy Trac ticket
// tracker's web UI instead of the hosting service's issue API.
type TracScraper struct {
	baseURL string
	httpc   *http.Client
}

// NewTracScraper creates a scraper for the default legacy tracker.
func NewTracScraper() *TracScraper {
	return &TracScraper{
		baseURL: defaultTracBaseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Assemble scrapes each resolved ticket's page. Tickets whose page does not
// load are skipped silently. Unlike the generic path, the change-log scan
// collects every qualifying comment rather than stopping at the first late
// one; the asymmetry is inherited behavior, kept until confirmed either way.
func (s *TracScraper) Assemble(ctx context.Context, pr domain.PullRequest) (problem, hints string, err error) {
	var sb strings.Builder
	var allHints []string

	for _, ref := range pr.ResolvedIssues {
		doc, ok, fetchErr := s.fetchTicket(ctx, ref)
		if fetchErr != nil {
			return "", "", fetchErr
		}
		if !ok {
			continue
		}

		title, body := parseTicket(doc)
		sb.WriteString(title)
		sb.WriteString("\n")
		sb.WriteString(body)
		sb.WriteString("\n")

		cutoff, hasCommits := pr.FirstCommitTime()
		if !hasCommits {
			continue
		}

		comments, parseErr := parseChangelog(doc)
		if parseErr != nil {
			return "", "", fmt.Errorf("ticket %s: %w", ref, parseErr)
		}
		for _, c := range comments {
			if c.at.Before(cutoff) {
				allHints = append(allHints, c.text)
			}
		}
	}

	return sb.String(), strings.Join(allHints, "\n"), nil
}

// fetchTicket loads a ticket page. ok is false when the tracker does not
// serve the page with a success status.
func (s *TracScraper) fetchTicket(ctx context.Context, ref string) (*goquery.Document, bool, error) {
	url := fmt.Sprintf("%s/ticket/%s", s.baseURL, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("parsing %s: %w", url, err)
	}
	return doc, true, nil
}

// parseTicket extracts the normalized title and body from a ticket page.
func parseTicket(doc *goquery.Document) (title, body string) {
	ticket := doc.Find("div#ticket")

	title = ticket.Find("h1.searchable").First().Text()
	title = strings.TrimSpace(whitespaceRun.ReplaceAllString(title, " "))

	body = ticket.Find("div.description").First().Text()
	body = blankLineRun.ReplaceAllString(body, "\n")
	body = strings.ReplaceAll(body, "    ", "\t")
	body = strings.TrimSpace(spaceRun.ReplaceAllString(body, " "))

	return title, body
}

type tracComment struct {
	text string
	at   time.Time
}

// parseChangelog walks the change-log block for discrete change entries,
// keeping those that carry both a comment and a timeline timestamp.
func parseChangelog(doc *goquery.Document) ([]tracComment, error) {
	var comments []tracComment
	var parseErr error

	doc.Find("div#changelog div.change").EachWithBreak(func(_ int, change *goquery.Selection) bool {
		comment := change.Find("div.comment").First()
		timeline := change.Find("a.timeline").First()
		if comment.Length() == 0 || timeline.Length() == 0 {
			return true
		}

		stamp, ok := timeline.Attr("title")
		if !ok {
			return true
		}
		stamp = strings.TrimPrefix(stamp, timelinePrefix)

		at, err := time.Parse(tracTimeLayout, stamp)
		if err != nil {
			parseErr = fmt.Errorf("parsing change timestamp %q: %w", stamp, err)
			return false
		}

		text := strings.TrimSpace(whitespaceRun.ReplaceAllString(comment.Text(), " "))
		comments = append(comments, tracComment{text: text, at: at})
		return true
	})

	return comments, parseErr
}
