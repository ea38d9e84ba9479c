// Package privacy applies a PrivacyPolicy to raw event fields before any
// network I/O occurs: title hashing, URL domain reduction, app exclusion,
// and best-effort page-category inference.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/betterqa-sync/agent-core/pkg/synctypes"
)

// PageCategory is the inferred category of a browsed page.
type PageCategory string

const (
	CategoryCode          PageCategory = "code"
	CategoryReview        PageCategory = "review"
	CategoryDocumentation PageCategory = "documentation"
	CategoryCommunication PageCategory = "communication"
	CategoryPlanning      PageCategory = "planning"
	CategoryDesign        PageCategory = "design"
	CategoryOther         PageCategory = "other"
)

// keywordTable maps each category to the substrings (matched against the
// lowercased url+title) that identify it. Earlier entries take priority.
var keywordTable = []struct {
	category PageCategory
	keywords []string
}{
	{CategoryReview, []string{"pull request", "/pull/", "merge request", "code review", "/pr/"}},
	{CategoryCode, []string{"github.com", "gitlab.com", "stackoverflow.com", "bitbucket.org", "localhost"}},
	{CategoryDocumentation, []string{"docs.", "/docs/", "readthedocs", "devdocs", "documentation"}},
	{CategoryCommunication, []string{"slack.com", "mail.", "gmail.com", "outlook.", "zoom.us", "teams.microsoft.com"}},
	{CategoryPlanning, []string{"jira.", "linear.app", "trello.com", "asana.com", "notion.so/board"}},
	{CategoryDesign, []string{"figma.com", "sketch.com", "invisionapp.com", "canva.com"}},
}

// Filter applies a PrivacyPolicy to event data.
type Filter struct {
	policy synctypes.PrivacyPolicy
}

// New constructs a Filter bound to policy. The policy may be swapped by
// constructing a new Filter after a server config refresh.
func New(policy synctypes.PrivacyPolicy) *Filter {
	return &Filter{policy: policy}
}

// ShouldExclude reports whether events from app must be dropped entirely.
func (f *Filter) ShouldExclude(app string) bool {
	_, excluded := f.policy.ExcludeApps[app]
	return excluded
}

// ProcessTitle returns title unchanged if app is allowlisted, else the
// first 16 hex characters of its SHA-256 digest when HashTitles is set,
// else title unchanged.
func (f *Filter) ProcessTitle(app, title string) string {
	if _, allowed := f.policy.TitleAllowlist[app]; allowed {
		return title
	}
	if !f.policy.HashTitles {
		return title
	}
	return hash16(title)
}

func hash16(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// ProcessURL returns rawURL unchanged if CollectFullURLs is set, else its
// domain (network authority) when DomainOnlyURLs is set, else rawURL
// unchanged. An unparseable URL is dropped (empty string, ok=false) when
// domain reduction was requested.
func (f *Filter) ProcessURL(rawURL string) (processed string, ok bool) {
	if f.policy.CollectFullURLs {
		return rawURL, true
	}
	if !f.policy.DomainOnlyURLs {
		return rawURL, true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	return parsed.Hostname(), true
}

// InferPageCategory matches rawURL and title against a fixed keyword table.
// Returns CategoryOther when nothing matches, or when page-category
// collection is disabled by policy.
func (f *Filter) InferPageCategory(rawURL, title string) PageCategory {
	if !f.policy.CollectPageCategory {
		return CategoryOther
	}
	haystack := strings.ToLower(rawURL + " " + title)
	for _, entry := range keywordTable {
		for _, kw := range entry.keywords {
			if strings.Contains(haystack, kw) {
				return entry.category
			}
		}
	}
	return CategoryOther
}
