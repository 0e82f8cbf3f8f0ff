package intent

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// Reasons reported as the Identifier of a guard rejection.
const (
	ReasonOtherTenant = "other_tenant"
	ReasonMetadata    = "metadata"
	ReasonGeneral     = "general_knowledge"
	ReasonHelp        = "help"
)

// TenantNames lists how each known tenant may be named in a question.
// *catalog.Registry implements it.
type TenantNames interface {
	TenantNames() map[string][]string
}

var (
	helpPhrases = []string{
		"what questions", "what can i ask", "what can you do",
		"give me examples", "show examples", "sample questions",
		"help me", "what to ask", "how to use",
	}
	metadataPhrases = []string{
		"table", "tables", "column", "columns", "schema", "schemas",
		"database", "databases", "metadata",
		"what data", "what fields", "available fields",
	}
	generalPhrases = []string{
		"who is", "who was", "who are", "what is a",
		"when was", "where is", "where was", "how to", "how do i",
		"weather", "news", "stock market", "sports", "politics", "science",
		"president", "prime minister", "actor", "actress", "celebrity",
		"movie", "film", "song", "music", "cricket", "football",
	}
	// A general phrase inside one of these is still a business question.
	analyticsPhrases = []string{
		"what is the", "what are my", "who are my", "how much", "how many",
		"how is", "where is my", "when is my",
	}

	helpExact = map[string]bool{"help": true, "examples": true, "suggestions": true}

	helpRe      = phraseRegexp(helpPhrases)
	metadataRe  = phraseRegexp(metadataPhrases)
	generalRe   = phraseRegexp(generalPhrases)
	analyticsRe = phraseRegexp(analyticsPhrases)
)

// ExampleQuestions are offered when a caller asks what they can ask.
var ExampleQuestions = []string{
	"Show top 5 brands by sales value",
	"Weekly sales trend for last 6 weeks",
	"Compare sales by channel",
	"Total sales this month",
	"Why did sales drop?",
}

// Guard refuses questions the pipeline must not forward to the extractor:
// questions about another tenant, about the database itself, or about
// anything other than the tenant's sales data.
type Guard struct {
	names TenantNames
}

// NewGuard creates a guard. names may be nil, in which case questions are
// not checked for other tenants.
func NewGuard(names TenantNames) *Guard {
	return &Guard{names: names}
}

// Check returns nil when question may be sent to the extractor on behalf of
// tenant. A mention of another tenant is access_denied; every other refusal
// is out_of_scope.
func (g *Guard) Check(question, tenant string) error {
	q := normalizeQuestion(question)
	if q == "" {
		return apperrors.New(apperrors.KindInvalidIntent, "question", "", "question is empty")
	}

	if other := g.otherTenant(q, tenant); other != "" {
		return apperrors.New(apperrors.KindAccessDenied, "question", ReasonOtherTenant,
			"question refers to data of another client; this account can only access %s data", tenant)
	}
	if helpExact[strings.TrimRight(q, "?!. ")] || helpRe.MatchString(q) {
		return apperrors.New(apperrors.KindOutOfScope, "question", ReasonHelp,
			"ask about your sales data, for example: %s", strings.Join(ExampleQuestions, "; "))
	}
	if metadataRe.MatchString(q) {
		return apperrors.New(apperrors.KindOutOfScope, "question", ReasonMetadata,
			"questions about database structure are not answered; ask about metrics instead")
	}
	if generalRe.MatchString(q) && !analyticsRe.MatchString(q) {
		return apperrors.New(apperrors.KindOutOfScope, "question", ReasonGeneral,
			"only questions about sales, brands, distribution and trends are answered")
	}
	return nil
}

// otherTenant returns the first tenant other than own that q names.
func (g *Guard) otherTenant(q, own string) string {
	if g.names == nil {
		return ""
	}
	known := g.names.TenantNames()
	ownNames := make(map[string]bool, len(known[own]))
	for _, n := range known[own] {
		ownNames[n] = true
	}

	tenants := make([]string, 0, len(known))
	for t := range known {
		if t != own {
			tenants = append(tenants, t)
		}
	}
	sort.Strings(tenants)

	for _, t := range tenants {
		for _, name := range known[t] {
			// A name shared with the caller's own tenant says nothing.
			if !ownNames[name] && containsPhrase(q, name) {
				return t
			}
		}
	}
	return ""
}

func normalizeQuestion(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Word edges that also hold next to non-ASCII letters such as the é in
// "nestlé", where \b does not.
const (
	boundaryStart = `(?:^|[^\p{L}\p{N}_])`
	boundaryEnd   = `(?:$|[^\p{L}\p{N}_])`
)

func phraseRegexp(phrases []string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(boundaryStart + `(?:` + strings.Join(quoted, "|") + `)` + boundaryEnd)
}

func containsPhrase(q, phrase string) bool {
	phrase = normalizeQuestion(phrase)
	return phrase != "" && phraseRegexp([]string{phrase}).MatchString(q)
}
