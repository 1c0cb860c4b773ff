// Package safety gates every piece of generated SQL before execution. The
// validator is lexical and conservative: it scans tokens outside string
// literals and rejects anything it cannot positively recognise as a
// single read-only SELECT over the registered relation. False rejections
// are acceptable; false acceptances are not.
package safety

import (
	"fmt"
	"strconv"
	"strings"
)

// Reason is the machine-readable rejection tag. Verdicts never echo the
// query text itself.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonEmptyStatement     Reason = "empty_statement"
	ReasonMultipleStatements Reason = "multiple_statements"
	ReasonNotReadOnly        Reason = "not_read_only"
	ReasonForbiddenKeyword   Reason = "forbidden_keyword"
	ReasonUnknownRelation    Reason = "unknown_relation"
	ReasonBadLimit           Reason = "bad_limit"
)

// Verdict is the validator's decision. When OK, SQL carries the possibly
// rewritten statement (row limit injected or clamped); when not, Reason and
// Detail say why without reproducing the input.
type Verdict struct {
	OK     bool
	Reason Reason
	Detail string
	SQL    string
}

// forbiddenKeywords are statement verbs and pragmas that can never appear in
// a read-only query, matched as whole tokens outside string literals.
var forbiddenKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "drop": {}, "alter": {},
	"create": {}, "truncate": {}, "grant": {}, "revoke": {}, "attach": {},
	"detach": {}, "copy": {}, "pragma": {}, "vacuum": {}, "reindex": {},
	"replace": {}, "merge": {}, "call": {}, "exec": {}, "load": {},
}

// Validator checks one statement at a time against a fixed relation name
// and row-limit policy.
type Validator struct {
	relation     string
	defaultLimit int
	maxLimit     int
}

// NewValidator builds a validator for the given relation. defaultLimit is
// injected when a statement has no LIMIT; maxLimit clamps any explicit one.
func NewValidator(relation string, defaultLimit, maxLimit int) *Validator {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	if maxLimit <= 0 {
		maxLimit = 200
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Validator{relation: strings.ToLower(relation), defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Validate runs every rule in order and returns the first failure, or an
// accepting verdict whose SQL always carries a LIMIT within policy.
func (v *Validator) Validate(sql string) Verdict {
	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimSuffix(trimmed, ";")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return reject(ReasonEmptyStatement, "statement is empty")
	}

	tokens, ok := lex(trimmed)
	if !ok {
		return reject(ReasonMultipleStatements, "unterminated string literal")
	}
	if len(tokens) == 0 {
		return reject(ReasonEmptyStatement, "statement has no tokens")
	}

	for _, t := range tokens {
		if t.text == ";" {
			return reject(ReasonMultipleStatements, "more than one statement")
		}
	}

	first := strings.ToLower(tokens[0].text)
	if first != "select" && first != "with" {
		return reject(ReasonNotReadOnly, "statement is not a select")
	}

	for _, t := range tokens {
		if !t.word {
			continue
		}
		if _, bad := forbiddenKeywords[strings.ToLower(t.text)]; bad {
			return reject(ReasonForbiddenKeyword, "forbidden keyword: "+strings.ToLower(t.text))
		}
	}

	if r, detail := v.checkRelations(tokens); r != ReasonNone {
		return reject(r, detail)
	}

	rewritten, r, detail := v.applyLimit(trimmed, tokens)
	if r != ReasonNone {
		return reject(r, detail)
	}

	return Verdict{OK: true, SQL: rewritten}
}

func reject(r Reason, detail string) Verdict {
	return Verdict{Reason: r, Detail: detail}
}

// token is one lexical unit outside string literals: a word (identifier,
// keyword, or number) or a single punctuation character. pos is the byte
// offset in the statement.
type token struct {
	text string
	word bool
	pos  int
}

// lex splits a statement into word and punctuation tokens, skipping the
// contents of single- and double-quoted literals (with doubled-quote
// escapes). It reports false on an unterminated literal.
func lex(s string) ([]token, bool) {
	var tokens []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			end, ok := skipQuoted(s, i, c)
			if !ok {
				return nil, false
			}
			if c == '"' {
				// Quoted identifiers still matter for relation checks.
				inner := strings.ReplaceAll(s[i+1:end-1], `""`, `"`)
				tokens = append(tokens, token{text: inner, word: false, pos: i})
			}
			i = end
		case isWordChar(c):
			start := i
			for i < len(s) && isWordChar(s[i]) {
				i++
			}
			tokens = append(tokens, token{text: s[start:i], word: true, pos: start})
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		default:
			tokens = append(tokens, token{text: string(c), word: false, pos: i})
			i++
		}
	}
	return tokens, true
}

// skipQuoted returns the byte offset just past the closing quote.
func skipQuoted(s string, start int, quote byte) (int, bool) {
	i := start + 1
	for i < len(s) {
		if s[i] == quote {
			if i+1 < len(s) && s[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, true
		}
		i++
	}
	return 0, false
}

func isWordChar(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// fromClauseEnders are keywords that terminate a FROM clause's list of
// relation targets.
var fromClauseEnders = map[string]struct{}{
	"where": {}, "group": {}, "order": {}, "limit": {}, "having": {},
	"window": {}, "union": {}, "intersect": {}, "except": {}, "on": {},
	"using": {}, "join": {}, "left": {}, "right": {}, "inner": {},
	"outer": {}, "cross": {}, "natural": {},
}

// checkRelations verifies every FROM and JOIN target is the registered
// relation, a CTE declared in this statement, or a parenthesised subquery.
// Comma-joins count: each `, name` inside a FROM clause is another target.
func (v *Validator) checkRelations(tokens []token) (Reason, string) {
	ctes := cteNames(tokens)

	okTarget := func(t token) bool {
		if t.text == "(" {
			return true
		}
		name := strings.ToLower(t.text)
		if name == v.relation {
			return true
		}
		_, ok := ctes[name]
		return ok
	}

	for i, t := range tokens {
		if !t.word {
			continue
		}
		kw := strings.ToLower(t.text)
		if kw != "from" && kw != "join" {
			continue
		}
		if i+1 >= len(tokens) {
			return ReasonUnknownRelation, "dangling " + kw
		}
		if !okTarget(tokens[i+1]) {
			return ReasonUnknownRelation, "query references a relation other than the dataset"
		}
		if kw != "from" {
			continue
		}

		depth := 0
	scan:
		for j := i + 1; j < len(tokens); j++ {
			tj := tokens[j]
			if tj.word {
				if depth == 0 {
					if _, end := fromClauseEnders[strings.ToLower(tj.text)]; end {
						break scan
					}
				}
				continue
			}
			switch tj.text {
			case "(":
				depth++
			case ")":
				if depth == 0 {
					// Closing the subquery this FROM lives in.
					break scan
				}
				depth--
			case ",":
				if depth == 0 {
					if j+1 >= len(tokens) || !okTarget(tokens[j+1]) {
						return ReasonUnknownRelation, "query references a relation other than the dataset"
					}
				}
			}
		}
	}
	return ReasonNone, ""
}

// cteNames collects names declared as `WITH name AS (` so later FROM clauses
// may reference them.
func cteNames(tokens []token) map[string]struct{} {
	names := make(map[string]struct{})
	if len(tokens) == 0 || !strings.EqualFold(tokens[0].text, "with") {
		return names
	}
	for i := 1; i+1 < len(tokens); i++ {
		if tokens[i].word && strings.EqualFold(tokens[i+1].text, "as") {
			names[strings.ToLower(tokens[i].text)] = struct{}{}
		}
	}
	return names
}

// applyLimit enforces the row-limit policy on the statement's own LIMIT:
// inject the default when there is none, clamp the row count to the maximum,
// and reject operands that are not integers. Only a LIMIT outside
// parentheses counts; one buried in a subquery does not bound the outer
// statement. In the two-operand form (LIMIT offset, rows) the row count is
// the second operand.
func (v *Validator) applyLimit(sql string, tokens []token) (string, Reason, string) {
	idx := -1
	depth := 0
	for i, t := range tokens {
		if !t.word {
			switch t.text {
			case "(":
				depth++
			case ")":
				depth--
			}
			continue
		}
		if depth == 0 && strings.EqualFold(t.text, "limit") {
			idx = i
		}
	}

	if idx < 0 {
		return sql + fmt.Sprintf(" LIMIT %d", v.defaultLimit), ReasonNone, ""
	}
	if idx+1 >= len(tokens) {
		return "", ReasonBadLimit, "limit clause has no value"
	}

	rows := tokens[idx+1]
	if idx+2 < len(tokens) && !tokens[idx+2].word && tokens[idx+2].text == "," {
		if idx+3 >= len(tokens) {
			return "", ReasonBadLimit, "limit clause has no row count"
		}
		if off, err := strconv.Atoi(rows.text); err != nil || off < 0 {
			return "", ReasonBadLimit, "limit offset is not a non-negative integer"
		}
		rows = tokens[idx+3]
	}

	n, err := strconv.Atoi(rows.text)
	if err != nil || n <= 0 {
		return "", ReasonBadLimit, "limit value is not a positive integer"
	}
	if n <= v.maxLimit {
		return sql, ReasonNone, ""
	}

	end := rows.pos + len(rows.text)
	return sql[:rows.pos] + strconv.Itoa(v.maxLimit) + sql[end:], ReasonNone, ""
}
