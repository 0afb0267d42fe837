package cql

import (
	"strings"
)

// ParseRelation maps "all", "any" or "=" to a Relation.
func ParseRelation(s string) (Relation, bool) {
	switch strings.ToLower(s) {
	case "all":
		return RelationAll, true
	case "any":
		return RelationAny, true
	case "=":
		return RelationEqual, true
	default:
		return 0, false
	}
}

// ParseBoolean maps "and", "or" or "not" to a Boolean.
func ParseBoolean(s string) (Boolean, bool) {
	switch strings.ToLower(s) {
	case "and":
		return BooleanAnd, true
	case "or":
		return BooleanOr, true
	case "not":
		return BooleanNot, true
	default:
		return 0, false
	}
}

// ParseClause reads a single search clause of the form
// "index relation term...", e.g. `question any 本 "村上 春樹"`.
// Double-quoted terms are kept as one phrase, quotes included.
func ParseClause(s string) (Expression, error) {
	fields, err := splitTerms(s)
	if err != nil {
		return nil, err
	}
	if len(fields) < 2 {
		return nil, &ConstructionError{Reason: "clause needs an index, a relation and at least one term: " + s}
	}
	rel, ok := ParseRelation(fields[1])
	if !ok {
		return nil, &ConstructionError{Index: fields[0], Reason: "unknown relation " + fields[1]}
	}
	return Leaf(fields[0], rel, fields[2:]...)
}

// Fold joins exprs left to right with b. It returns nil for no expressions.
func Fold(b Boolean, exprs ...Expression) Expression {
	var out Expression
	for _, e := range exprs {
		if out == nil {
			out = e
			continue
		}
		out = Join(out, b, e)
	}
	return out
}

func splitTerms(s string) ([]string, error) {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			if !inQuote {
				flush()
			}
			cur.WriteRune(r)
			if inQuote {
				flush()
			}
			inQuote = !inQuote
		case !inQuote && (r == ' ' || r == '\t' || r == '　'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, &ConstructionError{Reason: "unterminated phrase in " + s}
	}
	flush()
	return out, nil
}
