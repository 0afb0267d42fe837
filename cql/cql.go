// Package cql builds CQL search expressions for the CRD search API.
//
// An Expression is an immutable tree of search clauses joined by boolean
// operators. Trees are built with Leaf (or the All/Any/Equal shorthands) and
// the And/Or/Not combinators, and rendered with Serialize:
//
//	q := cql.MustAny("question", "本", "音楽").
//		And(cql.MustEqual("solution", "resolved")).
//		Or(cql.MustEqual("ptn-type", "学生"))
//	cql.Serialize(q) // question any 本 音楽 and solution = resolved or ptn-type = 学生
//
// Only the right operand of a combination is parenthesized, and only when it
// is itself a combination. Term text is emitted verbatim; use Phrase to quote
// multi-word terms.
package cql

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/crd/internal/domain"
)

// Relation is the comparison between an index and its search terms.
type Relation int

const (
	// RelationAll matches records containing every term.
	RelationAll Relation = iota
	// RelationAny matches records containing at least one term.
	RelationAny
	// RelationEqual matches the terms as given.
	RelationEqual
)

func (r Relation) String() string {
	switch r {
	case RelationAll:
		return "all"
	case RelationAny:
		return "any"
	case RelationEqual:
		return "="
	default:
		return fmt.Sprintf("Relation(%d)", int(r))
	}
}

// Boolean joins two expressions.
type Boolean int

const (
	// BooleanAnd requires both operands.
	BooleanAnd Boolean = iota
	// BooleanOr requires either operand.
	BooleanOr
	// BooleanNot excludes matches of the right operand from the left one.
	BooleanNot
)

func (b Boolean) String() string {
	switch b {
	case BooleanAnd:
		return "and"
	case BooleanOr:
		return "or"
	case BooleanNot:
		return "not"
	default:
		return fmt.Sprintf("Boolean(%d)", int(b))
	}
}

// Expression is a CQL search expression: a *SearchClause or a *ScopedClause.
type Expression interface {
	fmt.Stringer

	And(right Expression) Expression
	Or(right Expression) Expression
	Not(right Expression) Expression

	isExpression()
}

// ConstructionError reports an expression that cannot be built.
type ConstructionError struct {
	Index  string
	Reason string
}

func (e *ConstructionError) Error() string {
	if e.Index == "" {
		return fmt.Sprintf("%s: %s", domain.ErrConstruction.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: index %q: %s", domain.ErrConstruction.Error(), e.Index, e.Reason)
}

func (e *ConstructionError) Unwrap() error { return domain.ErrConstruction }

// SearchClause is a single index/relation/terms condition.
type SearchClause struct {
	index    string
	relation Relation
	terms    []string
}

// Leaf creates a search clause. At least one term is required.
func Leaf(index string, relation Relation, terms ...string) (Expression, error) {
	if len(terms) == 0 {
		return nil, &ConstructionError{Index: index, Reason: "at least one search term is required"}
	}
	return &SearchClause{
		index:    index,
		relation: relation,
		terms:    append([]string(nil), terms...),
	}, nil
}

// All creates a clause matching every term.
func All(index string, terms ...string) (Expression, error) { return Leaf(index, RelationAll, terms...) }

// Any creates a clause matching at least one term.
func Any(index string, terms ...string) (Expression, error) { return Leaf(index, RelationAny, terms...) }

// Equal creates an exact-match clause.
func Equal(index string, terms ...string) (Expression, error) { return Leaf(index, RelationEqual, terms...) }

// Simple creates the equivalent of the service's simple search: anywhere = terms.
func Simple(terms ...string) (Expression, error) { return Leaf(IndexAnywhere, RelationEqual, terms...) }

// MustLeaf is like Leaf but panics on error.
func MustLeaf(index string, relation Relation, terms ...string) Expression {
	e, err := Leaf(index, relation, terms...)
	if err != nil {
		panic(err)
	}
	return e
}

// MustAll is like All but panics on error.
func MustAll(index string, terms ...string) Expression { return MustLeaf(index, RelationAll, terms...) }

// MustAny is like Any but panics on error.
func MustAny(index string, terms ...string) Expression { return MustLeaf(index, RelationAny, terms...) }

// MustEqual is like Equal but panics on error.
func MustEqual(index string, terms ...string) Expression { return MustLeaf(index, RelationEqual, terms...) }

// Index returns the searched index.
func (c *SearchClause) Index() string { return c.index }

// Relation returns the clause relation.
func (c *SearchClause) Relation() Relation { return c.relation }

// Terms returns a copy of the search terms.
func (c *SearchClause) Terms() []string { return append([]string(nil), c.terms...) }

func (c *SearchClause) String() string { return Serialize(c) }

// And joins c and right with "and".
func (c *SearchClause) And(right Expression) Expression { return Join(c, BooleanAnd, right) }

// Or joins c and right with "or".
func (c *SearchClause) Or(right Expression) Expression { return Join(c, BooleanOr, right) }

// Not excludes right from c.
func (c *SearchClause) Not(right Expression) Expression { return Join(c, BooleanNot, right) }

func (*SearchClause) isExpression() {}

// ScopedClause joins two expressions with a boolean operator.
type ScopedClause struct {
	left    Expression
	boolean Boolean
	right   Expression
}

// Join creates a new combination node. Operands are never modified.
// A nil operand (including a typed nil clause) is absorbed: Join returns
// the other operand, or nil when both are nil.
func Join(left Expression, boolean Boolean, right Expression) Expression {
	switch {
	case isNil(left) && isNil(right):
		return nil
	case isNil(left):
		return right
	case isNil(right):
		return left
	}
	return &ScopedClause{left: left, boolean: boolean, right: right}
}

func isNil(e Expression) bool {
	switch n := e.(type) {
	case nil:
		return true
	case *SearchClause:
		return n == nil
	case *ScopedClause:
		return n == nil
	}
	return false
}

// And joins left and right with "and".
func And(left, right Expression) Expression { return Join(left, BooleanAnd, right) }

// Or joins left and right with "or".
func Or(left, right Expression) Expression { return Join(left, BooleanOr, right) }

// Not excludes matches of right from left.
func Not(left, right Expression) Expression { return Join(left, BooleanNot, right) }

// Left returns the left operand.
func (c *ScopedClause) Left() Expression { return c.left }

// Boolean returns the joining operator.
func (c *ScopedClause) Boolean() Boolean { return c.boolean }

// Right returns the right operand.
func (c *ScopedClause) Right() Expression { return c.right }

func (c *ScopedClause) String() string { return Serialize(c) }

// And joins c and right with "and".
func (c *ScopedClause) And(right Expression) Expression { return Join(c, BooleanAnd, right) }

// Or joins c and right with "or".
func (c *ScopedClause) Or(right Expression) Expression { return Join(c, BooleanOr, right) }

// Not excludes right from c.
func (c *ScopedClause) Not(right Expression) Expression { return Join(c, BooleanNot, right) }

func (*ScopedClause) isExpression() {}

// Serialize renders e as CQL text. A nil expression renders as "".
func Serialize(e Expression) string {
	var b strings.Builder
	write(&b, e)
	return b.String()
}

func write(b *strings.Builder, e Expression) {
	if isNil(e) {
		return
	}
	switch n := e.(type) {
	case *SearchClause:
		b.WriteString(n.index)
		b.WriteByte(' ')
		b.WriteString(n.relation.String())
		b.WriteByte(' ')
		b.WriteString(strings.Join(n.terms, " "))
	case *ScopedClause:
		write(b, n.left)
		b.WriteByte(' ')
		b.WriteString(n.boolean.String())
		b.WriteByte(' ')
		// The service groups left operands by chaining; only a compound
		// right operand needs explicit grouping.
		if _, ok := n.right.(*ScopedClause); ok {
			b.WriteString("( ")
			write(b, n.right)
			b.WriteString(" )")
			return
		}
		write(b, n.right)
	}
}

// Phrase wraps a multi-word term in double quotes so the service treats it
// as one phrase.
func Phrase(term string) string {
	return `"` + term + `"`
}
