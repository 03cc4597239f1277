package cg

import (
	"github.com/dianpeng/plan2sql/plan"
	"github.com/dianpeng/plan2sql/sql"
	"github.com/go-kit/log/level"
)

func lookupColumn(m *plan.ColumnTypeMap, owner string, name string) (string, bool) {
	if k, ok := m.Lookup(owner, name); ok {
		return k, true
	}
	if u := sql.Unquote(name); u != name {
		return m.Lookup(owner, u)
	}
	return "", false
}

// exprScope resolves an expression written against the local column names
// of one or more operators into SQL text over the frame's source.
type exprScope struct {
	gen     *queryCodeGen
	columns *plan.ColumnTypeMap
	owners  []string // operators the names are resolved against, in order
	op      *plan.Operator
	rule    string

	// rewrite partial aggregations into their merge form, ie count into sum
	merge bool

	// when not empty only those identifiers are column references, the rest
	// is left as is
	known []string

	// an unresolvable column reference is recorded as a source column of
	// unknown type instead of failing
	discover bool
}

func (self *queryCodeGen) scope(f *frame, child, op *plan.Operator) *exprScope {
	return &exprScope{
		gen:     self,
		columns: f.columns,
		owners:  []string{f.node.ID},
		op:      op,
		rule:    rule(child, op),
	}
}

func (self *exprScope) lookup(name string) (string, bool) {
	for _, owner := range self.owners {
		if k, ok := lookupColumn(self.columns, owner, name); ok {
			return k, true
		}
	}
	return "", false
}

func (self *exprScope) ident(id sql.Ident) (string, bool, error) {
	if id.Call {
		if self.merge {
			if n := sql.MergeAggFunc(id.Name); n != id.Name {
				return n, true, nil
			}
		}
		return "", false, nil
	}

	if k, ok := self.lookup(id.Name); ok {
		return k, true, nil
	}

	if len(self.known) != 0 && !contain(self.known, id.Name) {
		return "", false, nil
	}

	if self.discover {
		self.columns.Add(id.Name, plan.UnknownType)
		for _, owner := range self.owners {
			self.columns.Alias(id.Name, owner, id.Name)
		}
		level.Warn(self.gen.config.Logger).Log(
			"msg", "column discovered through expression map",
			"column", id.Name,
			"node", self.op.ID,
		)
		return id.Name, true, nil
	}

	return "", false, plan.NewError(
		plan.ErrUnresolvableAlias,
		self.rule,
		self.op.ID,
		"column %s cannot be traced to any column of %v",
		id.Name,
		self.owners,
	)
}

// operand is ident for a column spliced into a larger expression, a computed
// column keeps its own precedence.
func (self *exprScope) operand(id sql.Ident) (string, bool, error) {
	k, ok, err := self.ident(id)
	if err != nil || !ok || id.Call {
		return k, ok, err
	}
	return sql.Paren(k), true, nil
}

// rename returns expr with every column reference replaced by its SQL text
func (self *exprScope) rename(expr string) (string, error) {
	out, err := sql.Rename(expr, self.operand)
	if err != nil {
		if _, ok := plan.AsError(err); ok {
			return "", err
		}
		return "", plan.NewError(
			plan.ErrMalformedPlanGraph,
			self.rule,
			self.op.ID,
			"invalid expression: %s",
			err,
		)
	}
	return out, nil
}

// expr resolves expr into a column of the map and returns its key, ty is the
// type the operator reports for it, if any.
func (self *exprScope) expr(expr string, ty string) (string, error) {
	if name, ok := sql.IsColumnRef(expr); ok {
		k, found, err := self.ident(sql.Ident{Name: name})
		if err != nil {
			return "", err
		}
		if !found {
			k = name
		}
		self.columns.Add(k, ty)
		return k, nil
	}

	text, err := self.rename(expr)
	if err != nil {
		return "", err
	}
	self.columns.Add(text, ty)
	return text, nil
}

// reconcile makes the output columns of op visible in f. A column is traced,
// in order, through the column expression map of op, the same name in the
// parent and finally the same position in the parent.
func (self *queryCodeGen) reconcile(child, op *plan.Operator, f *frame) error {
	names := op.OutputNames()
	if op.Schema == nil {
		names = f.output
	}

	s := self.scope(f, child, op)
	s.discover = true

	keys := []string{}
	for i, name := range names {
		ty := ""
		if op.Schema != nil {
			ty = op.Schema[i].Type
		}

		if expr, ok := op.Expr(name); ok {
			k, err := s.expr(expr, ty)
			if err != nil {
				return err
			}
			keys = append(keys, k)
			continue
		}

		if k, ok := f.key(name); ok {
			f.columns.Add(k, ty)
			keys = append(keys, k)
			continue
		}

		if len(names) == len(f.output) {
			if k, ok := f.key(f.output[i]); ok {
				f.columns.Add(k, ty)
				keys = append(keys, k)
				continue
			}
		}

		return plan.NewError(
			plan.ErrUnresolvableAlias,
			s.rule,
			op.ID,
			"column %s cannot be traced to any column of %s",
			name,
			f.node.ID,
		)
	}

	for i, name := range names {
		f.columns.Alias(keys[i], op.ID, name)
	}
	f.node = op
	f.output = names
	return nil
}

func contain(l []string, x string) bool {
	for _, v := range l {
		if v == x {
			return true
		}
	}
	return false
}
