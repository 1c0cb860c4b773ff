// Package translate turns natural-language questions into SQL against the
// single registered dataset relation.
//
// Two paths produce query text: the deterministic rule-based translator in
// this file, and the model-assisted translator in model.go. Neither output is
// trusted: everything goes through the safety validator before execution.
package translate

import (
	"strings"

	"github.com/datasage-io/datasage/internal/errs"
	"github.com/datasage-io/datasage/internal/profile"
)

// Origin tags which path produced a translation.
type Origin string

const (
	OriginRule  Origin = "rule"
	OriginModel Origin = "model"
)

// Result is a translation produced for one question against one schema.
// Results are never cached across schemas.
type Result struct {
	SQL         string   `json:"sql"`
	Origin      Origin   `json:"origin"`
	Assumptions []string `json:"assumptions,omitempty"`
}

// Translator is the deterministic rule-based translator. It is pure:
// identical question and schema always yield byte-identical SQL.
type Translator struct {
	relation     string
	defaultLimit int
}

// NewTranslator builds a rule-based translator for the given relation name.
func NewTranslator(relation string, defaultLimit int) *Translator {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &Translator{relation: relation, defaultLimit: defaultLimit}
}

// Translate maps a question to SQL by folding the ordered intent matchers
// over the tokenized question. Matchers are independent; each contributes a
// clause or abstains, and their clauses compose into one plan. When nothing
// matches, the fallback is a preview query over all columns rather than a
// failure. A blank question is the only hard error.
func (t *Translator) Translate(question string, schema *profile.Schema) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, errs.New(errs.ErrKindEmptyQuestion, "question text is empty")
	}

	q := newTokenizedQuestion(question)
	plan := newPlan(t.defaultLimit)

	for _, m := range intentMatchers {
		if clause := m.match(q, schema); clause != nil {
			clause.apply(plan)
		}
	}

	plan.finalize(schema)

	return Result{
		SQL:         plan.render(t.relation),
		Origin:      OriginRule,
		Assumptions: plan.assumptions,
	}, nil
}

// tokenizedQuestion is the normalized view of a question shared by all
// matchers: the folded text plus its word tokens.
type tokenizedQuestion struct {
	lower  string
	tokens []string
}

func newTokenizedQuestion(question string) *tokenizedQuestion {
	lower := strings.ToLower(strings.TrimSpace(question))
	return &tokenizedQuestion{
		lower:  lower,
		tokens: tokenize(lower),
	}
}

// tokenize splits on runs of non-alphanumeric characters, keeping digits so
// "top 10" and "last 30 days" survive.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
}

// containsPhrase reports whether the words appear consecutively.
func (q *tokenizedQuestion) containsPhrase(words ...string) bool {
	return q.phraseIndex(words...) >= 0
}

// phraseIndex returns the token index where the consecutive words start,
// or -1.
func (q *tokenizedQuestion) phraseIndex(words ...string) int {
	if len(words) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(words) <= len(q.tokens); i++ {
		for j, w := range words {
			if q.tokens[i+j] != w {
				continue outer
			}
		}
		return i
	}
	return -1
}

// ngrams yields phrases of n consecutive tokens starting at each position.
func (q *tokenizedQuestion) ngrams(n int) []string {
	if n <= 0 || len(q.tokens) < n {
		return nil
	}
	out := make([]string, 0, len(q.tokens)-n+1)
	for i := 0; i+n <= len(q.tokens); i++ {
		out = append(out, strings.Join(q.tokens[i:i+n], " "))
	}
	return out
}

// stopwords are single tokens never treated as entity or column mentions.
var stopwords = map[string]struct{}{
	"show": {}, "me": {}, "list": {}, "give": {}, "the": {}, "of": {}, "in": {},
	"by": {}, "for": {}, "with": {}, "a": {}, "an": {}, "is": {}, "are": {},
	"what": {}, "how": {}, "many": {}, "which": {}, "all": {}, "per": {},
	"and": {}, "or": {}, "to": {}, "from": {}, "was": {}, "were": {},
}

func isStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}
