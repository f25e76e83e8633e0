package query

import (
	"sort"
	"strings"
)

// Node is one element of a condition tree.
//
// The set of node types is closed: Equals, Like, Or, And, OrderBy, Limit and
// Offset. Leaves always carry their value as a bound parameter.
type Node interface {
	node()
}

// EqualsNode matches rows where Column equals Value. A nil Value matches NULL.
type EqualsNode struct {
	Column string
	Value  any
}

// LikeNode matches rows where Column matches a LIKE pattern.
// When Escaped is set the pattern uses '\' to escape % and _.
type LikeNode struct {
	Column  string
	Pattern string
	Escaped bool
}

// OrNode joins its children with OR.
type OrNode struct {
	Nodes []Node
}

// AndNode joins its children with AND. Top-level nodes are already
// conjunctive; AndNode is needed only inside an OrNode.
type AndNode struct {
	Nodes []Node
}

// OrderByNode sorts the result by one column.
type OrderByNode struct {
	Column     string
	Descending bool
}

// LimitNode caps the number of rows returned.
type LimitNode struct {
	N int
}

// OffsetNode skips rows before returning results.
type OffsetNode struct {
	N int
}

func (EqualsNode) node()  {}
func (LikeNode) node()    {}
func (OrNode) node()      {}
func (AndNode) node()     {}
func (OrderByNode) node() {}
func (LimitNode) node()   {}
func (OffsetNode) node()  {}

// Equals matches column = value.
func Equals(column string, value any) Node {
	return EqualsNode{Column: column, Value: value}
}

// Like matches column LIKE pattern, with the pattern passed through unchanged.
func Like(column, pattern string) Node {
	return LikeNode{Column: column, Pattern: pattern}
}

// Contains matches rows whose column contains s as a substring.
// Wildcards inside s are escaped so they match literally.
func Contains(column, s string) Node {
	return LikeNode{Column: column, Pattern: "%" + escapeLike(s) + "%", Escaped: true}
}

// Or joins nodes with OR.
func Or(nodes ...Node) Node {
	return OrNode{Nodes: nodes}
}

// And joins nodes with AND.
func And(nodes ...Node) Node {
	return AndNode{Nodes: nodes}
}

// OrderBy sorts by column, descending when desc is true.
func OrderBy(column string, desc bool) Node {
	return OrderByNode{Column: column, Descending: desc}
}

// Limit caps the result at n rows.
func Limit(n int) Node {
	return LimitNode{N: n}
}

// Offset skips the first n rows.
func Offset(n int) Node {
	return OffsetNode{N: n}
}

// AnyOf matches column against any of values, as an OR of equalities.
func AnyOf(column string, values ...any) Node {
	nodes := make([]Node, len(values))
	for i, v := range values {
		nodes[i] = Equals(column, v)
	}
	return Or(nodes...)
}

// Where turns a flat column→value map into equality nodes.
// Columns are sorted so the same map always yields the same statement.
func Where(fields map[string]any) []Node {
	columns := make([]string, 0, len(fields))
	for c := range fields {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	nodes := make([]Node, len(columns))
	for i, c := range columns {
		nodes[i] = Equals(c, fields[c])
	}
	return nodes
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
