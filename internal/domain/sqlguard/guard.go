// Package sqlguard accepts text only when it holds exactly one read-only
// SELECT statement. Guard is the only way to obtain a Statement, and the
// database port only executes Statements.
package sqlguard

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/xwb1989/sqlparser"
)

// A fence language starting with sql (sql, sqlite, ...) followed by
// whitespace opens a SQL block.
var (
	sqlFence  = regexp.MustCompile("(?is)```sql\\w*\\s(.*?)```")
	openFence = regexp.MustCompile("(?i)```sql\\w*\\s")
)

// writeWords may not appear anywhere in an accepted statement, including
// inside parenthesised CTE bodies. INTO covers SELECT ... INTO.
var writeWords = map[string]bool{
	"INSERT": true,
	"UPDATE": true,
	"DELETE": true,
	"MERGE":  true,
	"INTO":   true,
}

var word = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_$]*`)

// Statement is a single SELECT statement, kept exactly as written.
type Statement struct {
	sql string
}

func (s Statement) SQL() string {
	return s.sql
}

func (s Statement) String() string {
	return s.sql
}

func (s Statement) IsZero() bool {
	return s.sql == ""
}

// Guard extracts the SQL embedded in raw (a ```sql fenced block if present,
// otherwise the whole text) and accepts it only if it is one SELECT.
func Guard(raw string) (Statement, error) {
	candidate := Extract(raw)
	if candidate == "" {
		return Statement{}, &GuardError{Kind: KindEmpty}
	}

	pieces, err := sqlparser.SplitStatementToPieces(candidate)
	if err != nil {
		// The tokenizer gave up; fall back to treating the text as one piece
		// and let the classifier decide.
		pieces = []string{candidate}
	}
	statements := pieces[:0]
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			statements = append(statements, p)
		}
	}

	switch len(statements) {
	case 0:
		return Statement{}, &GuardError{Kind: KindEmpty}
	case 1:
	default:
		return Statement{}, &GuardError{Kind: KindMultipleStatements, Count: len(statements)}
	}

	if kind := Classify(statements[0]); kind != "SELECT" {
		return Statement{}, &GuardError{Kind: KindNonSelect, Statement: kind}
	}
	return Statement{sql: candidate}, nil
}

// Extract returns the contents of the first ```sql fenced block in raw, or
// raw itself when there is none. The result is trimmed.
func Extract(raw string) string {
	if m := sqlFence.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	// Unterminated fence: take everything after the opening marker.
	if loc := openFence.FindStringIndex(raw); loc != nil {
		return strings.TrimSpace(raw[loc[1]:])
	}
	return strings.TrimSpace(raw)
}

// Classify names the kind of a single statement by its leading verb:
// SELECT, INSERT, DROP, ... A WITH clause is classified by the statement
// the common table expressions feed into. A SELECT that writes anywhere
// (a data-modifying CTE, SELECT ... INTO) is named by its write keyword.
func Classify(stmt string) string {
	kind := leadingKind(stmt)
	if kind != "SELECT" {
		return kind
	}
	if w := writeClause(stmt); w != "" {
		return w
	}
	return kind
}

func leadingKind(stmt string) string {
	if sqlparser.Preview(stmt) == sqlparser.StmtSelect {
		return "SELECT"
	}
	verb := leadingVerb(stmt)
	if verb == "WITH" {
		return cteTarget(stmt)
	}
	return verb
}

// writeClause returns the first write keyword in stmt at any depth, or "".
// String literals are skipped. When the tokenizer stops on syntax it does
// not know (Postgres casts, dollar quoting) the rest of the text is scanned
// word by word with literals and quoted identifiers blanked out.
func writeClause(stmt string) string {
	tokenizer := sqlparser.NewStringTokenizer(stmt)
	for {
		typ, val := tokenizer.Scan()
		switch typ {
		case 0:
			return ""
		case sqlparser.LEX_ERROR:
			return scanWords(stmt)
		case sqlparser.STRING, sqlparser.COMMENT:
		default:
			if w := writeKeyword(string(val)); w != "" {
				return w
			}
		}
	}
}

func scanWords(stmt string) string {
	for _, w := range word.FindAllString(blankQuoted(stmt), -1) {
		if kw := writeKeyword(w); kw != "" {
			return kw
		}
	}
	return ""
}

func writeKeyword(w string) string {
	upper := strings.ToUpper(w)
	if !writeWords[upper] {
		return ""
	}
	if upper == "INTO" {
		return "SELECT INTO"
	}
	return upper
}

// blankQuoted replaces quoted strings, quoted identifiers and comments with
// spaces.
func blankQuoted(stmt string) string {
	out := []byte(stmt)
	for i := 0; i < len(out); i++ {
		switch {
		case out[i] == '\'' || out[i] == '"' || out[i] == '`':
			quote := out[i]
			j := i + 1
			for j < len(out) {
				if out[j] == quote {
					if j+1 < len(out) && out[j+1] == quote {
						j += 2
						continue
					}
					break
				}
				j++
			}
			i = blank(out, i, j)
		case out[i] == '-' && i+1 < len(out) && out[i+1] == '-':
			j := i
			for j < len(out) && out[j] != '\n' {
				j++
			}
			i = blank(out, i, j)
		case out[i] == '/' && i+1 < len(out) && out[i+1] == '*':
			j := strings.Index(string(out[i+2:]), "*/")
			if j < 0 {
				j = len(out)
			} else {
				j += i + 3
			}
			i = blank(out, i, j)
		}
	}
	return string(out)
}

// blank clears out[from..to] and returns the index to resume after.
func blank(out []byte, from, to int) int {
	if to >= len(out) {
		to = len(out) - 1
	}
	for k := from; k <= to; k++ {
		out[k] = ' '
	}
	return to
}

func leadingVerb(stmt string) string {
	trimmed := strings.TrimLeftFunc(sqlparser.StripLeadingComments(stmt), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	end := strings.IndexFunc(trimmed, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end == -1 {
		end = len(trimmed)
	}
	if end == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed[:end])
}

func cteTarget(stmt string) string {
	tokenizer := sqlparser.NewStringTokenizer(stmt)
	depth := 0
	for {
		typ, val := tokenizer.Scan()
		switch typ {
		case 0, sqlparser.LEX_ERROR:
			return "WITH"
		case '(':
			depth++
		case ')':
			depth--
		case sqlparser.STRING:
		default:
			if depth != 0 {
				continue
			}
			switch word := strings.ToUpper(string(val)); word {
			case "SELECT", "INSERT", "UPDATE", "DELETE", "REPLACE":
				return word
			}
		}
	}
}
