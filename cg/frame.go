package cg

import (
	"fmt"
	"github.com/dianpeng/plan2sql/plan"
	"github.com/dianpeng/plan2sql/sql"
	"strings"
	"unicode"
)

// frame is the statement being built for the output of one operator. The
// statement is only rendered when a boundary requires it, ie a materialized
// shuffle, a derived table or the final sink. Every column reachable by the
// frame lives in columns, keyed by the SQL text producing that column, and is
// aliased by every operator exposing it.
type frame struct {
	node    *plan.Operator // operator whose output the frame currently describes
	output  []string       // node local output column names, in order
	columns *plan.ColumnTypeMap

	from    string
	aliases []string // table alias bound inside of from
	where   []string
	groupBy []string
	having  []string

	grouped bool
	limit   int64 // -1 means no limit
}

func newFrame(node *plan.Operator) *frame {
	return &frame{
		node:    node,
		columns: plan.NewColumnTypeMap(),
		limit:   -1,
	}
}

func (self *frame) hasLimit() bool { return self.limit >= 0 }

// key of the column exposed by the current node under name
func (self *frame) key(name string) (string, bool) {
	return lookupColumn(self.columns, self.node.ID, name)
}

func (self *frame) outputKeys() ([]string, error) {
	out := []string{}
	for _, name := range self.output {
		k, ok := self.key(name)
		if !ok {
			return nil, plan.NewError(
				plan.ErrUnresolvableAlias,
				"render",
				self.node.ID,
				"output column %s cannot be traced to any upstream column",
				name,
			)
		}
		out = append(out, k)
	}
	return out, nil
}

func (self *frame) clone() *frame {
	out := *self
	out.columns = self.columns.Clone()
	out.output = append([]string(nil), self.output...)
	out.aliases = append([]string(nil), self.aliases...)
	out.where = append([]string(nil), self.where...)
	out.groupBy = append([]string(nil), self.groupBy...)
	out.having = append([]string(nil), self.having...)
	return &out
}

func (self *frame) sharesAlias(that *frame) bool {
	for _, a := range self.aliases {
		for _, b := range that.aliases {
			if a == b {
				return true
			}
		}
	}
	return false
}

// merge pulls every column of that into the frame
func (self *frame) merge(that *frame) {
	for i := 0; i < that.columns.Len(); i++ {
		key, ty := that.columns.At(i)
		self.columns.Add(key, ty)
		for _, a := range that.columns.Aliases(key) {
			self.columns.Alias(key, a.Operator, a.Name)
		}
	}
	self.aliases = append(self.aliases, that.aliases...)
	self.where = append(self.where, that.where...)
}

// render the frame as a SELECT statement. When named is set every column is
// rendered with its output name, which is required when the statement body
// becomes a table, materialized or derived.
func (self *queryCodeGen) render(f *frame, named bool) (string, error) {
	keys, err := f.outputKeys()
	if err != nil {
		return "", err
	}

	names := columnNames(f.output)
	list := []string{}
	for i, k := range keys {
		if named && k != names[i] && !strings.HasSuffix(k, "."+names[i]) {
			list = append(list, fmt.Sprintf("%s AS %s", k, names[i]))
		} else {
			list = append(list, k)
		}
	}
	if len(list) == 0 {
		list = append(list, "*")
	}

	buf := &strings.Builder{}
	buf.WriteString("SELECT ")
	buf.WriteString(strings.Join(list, ", "))
	buf.WriteString(" FROM ")
	buf.WriteString(f.from)

	if len(f.where) != 0 {
		buf.WriteString(" WHERE ")
		buf.WriteString(conjunction(f.where))
	}
	if len(f.groupBy) != 0 {
		buf.WriteString(" GROUP BY ")
		buf.WriteString(strings.Join(f.groupBy, ", "))
	}
	if len(f.having) != 0 {
		buf.WriteString(" HAVING ")
		buf.WriteString(conjunction(f.having))
	}

	if f.hasLimit() {
		return fmt.Sprintf("(%s) LIMIT %d", buf.String(), f.limit), nil
	}
	return buf.String(), nil
}

func conjunction(l []string) string {
	if len(l) == 1 {
		return l[0]
	}
	out := []string{}
	for _, x := range l {
		out = append(out, fmt.Sprintf("(%s)", x))
	}
	return strings.Join(out, " AND ")
}

// reopen starts a new frame reading from source, a table or a derived table
// named alias, whose columns are the named output of f.
func (self *queryCodeGen) reopen(f *frame, source string, alias string) (*frame, error) {
	keys, err := f.outputKeys()
	if err != nil {
		return nil, err
	}

	nf := newFrame(f.node)
	nf.from = source
	nf.aliases = []string{alias}
	nf.output = f.output

	names := columnNames(f.output)
	for i, name := range f.output {
		key := fmt.Sprintf("%s.%s", alias, names[i])
		nf.columns.Add(key, f.columns.Type(keys[i]))
		nf.columns.Alias(key, f.node.ID, name)
	}
	return nf, nil
}

// wrap turns f into a derived table when the next clause cannot be added to
// the statement in place, ie a filter after a limit.
func (self *queryCodeGen) wrap(f *frame) (*frame, error) {
	body, err := self.render(f, true)
	if err != nil {
		return nil, err
	}
	return self.reopen(f, fmt.Sprintf("(%s) %s", body, f.node.ID), f.node.ID)
}

// materialize emits f as a table named after id and returns the frame
// reading from it.
func (self *queryCodeGen) materialize(f *frame, id string) (*frame, error) {
	body, err := self.render(f, true)
	if err != nil {
		return nil, err
	}
	self.emit(fmt.Sprintf("CREATE TABLE %s AS (%s)", id, body))
	return self.reopen(f, id, id)
}

// column name usable as a SQL identifier, ie KEY._col0 becomes KEY__col0
func columnName(x string) string {
	buf := &strings.Builder{}
	for _, r := range sql.Unquote(x) {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			buf.WriteRune(r)
		} else {
			buf.WriteRune('_')
		}
	}
	return buf.String()
}

func columnNames(l []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for i, x := range l {
		n := columnName(x)
		if n == "" {
			n = fmt.Sprintf("c%d", i)
		}
		if seen[n] {
			n = fmt.Sprintf("%s_%d", n, i)
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
