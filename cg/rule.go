package cg

import (
	"github.com/dianpeng/plan2sql/plan"
	"github.com/go-kit/log/level"
	"strings"
)

// ----------------------------------------------------------------------------
// Rewrite rules. frameOf(child, op) returns the frame describing the output
// of op, as read by child. Each rule first resolves the frame of its own
// parent, so a rule runs after every rule upstream of it.

func (self *queryCodeGen) frameOf(child, op *plan.Operator) (*frame, error) {
	if self.path[op.ID] {
		return nil, plan.NewError(
			plan.ErrMalformedPlanGraph,
			rule(child, op),
			op.ID,
			"cycle detected while walking upstream of %s",
			child.ID,
		)
	}
	self.path[op.ID] = true
	defer delete(self.path, op.ID)

	switch op.Kind {
	case plan.KindTableScan:
		return self.tableScan(child, op)
	case plan.KindFilter:
		return self.filter(child, op)
	case plan.KindSelect:
		return self.project(child, op)
	case plan.KindGroupBy:
		return self.groupBy(child, op)
	case plan.KindLimit:
		return self.limit(child, op)
	case plan.KindReduceSink:
		return self.reduceSink(child, op)
	case plan.KindFileSink:
		return self.fileSink(child, op)
	case plan.KindForward, plan.KindExtract, plan.KindHashTableSink:
		return self.passThrough(child, op)
	case plan.KindJoin, plan.KindMapJoin:
		return self.join(child, op)
	default:
		return nil, plan.NewError(
			plan.ErrUnsupportedOperatorCombination,
			rule(child, op),
			op.ID,
			"%s cannot be translated into sql",
			op.Kind,
		)
	}
}

// the only parent of op
func (self *queryCodeGen) upstream(op *plan.Operator) (*plan.Operator, error) {
	parents := self.g.Parents(op)
	switch len(parents) {
	case 1:
		return parents[0], nil
	case 0:
		return nil, plan.NewError(
			plan.ErrMalformedPlanGraph,
			"upstream",
			op.ID,
			"%s has no parent and is not a table scan",
			op.Kind,
		)
	default:
		return nil, plan.NewError(
			plan.ErrMalformedPlanGraph,
			"upstream",
			op.ID,
			"%s has %d parents, expect exactly one",
			op.Kind,
			len(parents),
		)
	}
}

func (self *queryCodeGen) input(op *plan.Operator) (*frame, error) {
	p, err := self.upstream(op)
	if err != nil {
		return nil, err
	}
	return self.frameOf(op, p)
}

func (self *queryCodeGen) tableScan(child, op *plan.Operator) (*frame, error) {
	parents := []*plan.Operator{}
	for _, p := range self.g.Parents(op) {
		// the hash table sink of a map join local work is stitched to the
		// probe side scan, the scan still reads its own table
		if op.Table != nil && p.Kind == plan.KindHashTableSink {
			continue
		}
		parents = append(parents, p)
	}

	switch len(parents) {
	case 0:
		return self.scan(child, op)
	case 1:
		f, err := self.frameOf(op, parents[0])
		if err != nil {
			return nil, err
		}
		if err := self.reconcile(child, op, f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, plan.NewError(
			plan.ErrMalformedPlanGraph,
			rule(child, op),
			op.ID,
			"table scan reads from %d upstream operators",
			len(parents),
		)
	}
}

func tableSource(t *plan.Table) string {
	name := t.QualifiedName()
	if name == t.Alias {
		return name
	}
	return name + " " + t.Alias
}

func (self *queryCodeGen) scan(child, op *plan.Operator) (*frame, error) {
	t := op.Table
	if t == nil {
		return nil, plan.NewError(
			plan.ErrMalformedPlanGraph,
			rule(child, op),
			op.ID,
			"root table scan has no table",
		)
	}
	if !self.g.Alias.BoundBy(t.Alias, op.ID) {
		if _, err := self.g.Alias.Bind(op.ID, t); err != nil {
			return nil, err
		}
	}

	f := newFrame(op)
	f.from = tableSource(t)
	f.aliases = []string{t.Alias}

	add := func(c plan.Column) {
		key := t.Alias + "." + c.Name
		ty := c.Type
		if ty == "" {
			ty = self.g.Sources.Type(key)
		}
		f.columns.Add(key, ty)
		f.columns.Alias(key, op.ID, c.Name)
		f.columns.Alias(key, op.ID, key)
	}
	for _, c := range t.Columns {
		add(c)
	}
	for _, c := range op.Schema {
		if _, ok := f.key(c.Name); !ok {
			add(c)
		}
	}

	if op.Schema != nil {
		f.output = op.OutputNames()
	} else {
		f.output = t.Columns.Names()
	}
	return f, nil
}

func (self *queryCodeGen) filter(child, op *plan.Operator) (*frame, error) {
	f, err := self.input(op)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(op.Predicate) == "" {
		return nil, plan.NewError(
			plan.ErrMalformedPlanGraph,
			rule(child, op),
			op.ID,
			"filter has no predicate",
		)
	}
	if f.hasLimit() {
		if f, err = self.wrap(f); err != nil {
			return nil, err
		}
	}

	s := self.scope(f, child, op)
	s.known = op.PredicateColumns
	pred, err := s.rename(op.Predicate)
	if err != nil {
		return nil, err
	}

	if f.grouped {
		f.having = append(f.having, pred)
	} else {
		f.where = append(f.where, pred)
	}

	if err := self.reconcile(child, op, f); err != nil {
		return nil, err
	}
	return f, nil
}

func schemaType(op *plan.Operator, i int) string {
	if i < len(op.Schema) {
		return op.Schema[i].Type
	}
	return ""
}

// bind exprs, resolved in f, as the output columns of op
func (self *queryCodeGen) bind(
	f *frame,
	s *exprScope,
	op *plan.Operator,
	exprs []string,
) error {
	names := op.OutputNames()
	if op.Schema == nil {
		names = exprs
	}
	if len(names) != len(exprs) {
		return plan.NewError(
			plan.ErrSchemaMismatch,
			s.rule,
			op.ID,
			"%d output expressions for schema %s",
			len(exprs),
			op.SchemaString(),
		)
	}

	keys := []string{}
	for i, e := range exprs {
		k, err := s.expr(e, schemaType(op, i))
		if err != nil {
			return err
		}
		keys = append(keys, k)
	}
	for i, name := range names {
		f.columns.Alias(keys[i], op.ID, name)
	}
	f.node = op
	f.output = names
	return nil
}

func (self *queryCodeGen) project(child, op *plan.Operator) (*frame, error) {
	f, err := self.input(op)
	if err != nil {
		return nil, err
	}
	if f.hasLimit() {
		if f, err = self.wrap(f); err != nil {
			return nil, err
		}
	}

	exprs := op.Columns
	if len(exprs) == 0 {
		if op.Schema == nil {
			// nothing is projected
			if err := self.reconcile(child, op, f); err != nil {
				return nil, err
			}
			return f, nil
		}
		for _, name := range op.OutputNames() {
			if e, ok := op.Expr(name); ok {
				exprs = append(exprs, e)
			} else {
				exprs = append(exprs, name)
			}
		}
	}

	if err := self.bind(f, self.scope(f, child, op), op, exprs); err != nil {
		return nil, err
	}
	return f, nil
}

func (self *queryCodeGen) groupBy(child, op *plan.Operator) (*frame, error) {
	f, err := self.input(op)
	if err != nil {
		return nil, err
	}
	if f.hasLimit() || f.grouped {
		if f, err = self.wrap(f); err != nil {
			return nil, err
		}
	}

	s := self.scope(f, child, op)
	s.merge = op.IsMergeGroupBy()

	keys := []string{}
	for i, k := range op.Keys {
		x, err := s.expr(k, schemaType(op, i))
		if err != nil {
			return nil, err
		}
		keys = append(keys, x)
	}

	exprs := append(append([]string{}, op.Keys...), op.Aggregations...)
	if err := self.bind(f, s, op, exprs); err != nil {
		return nil, err
	}
	f.groupBy = keys
	f.grouped = true

	level.Debug(self.config.Logger).Log(
		"msg", "group by translated",
		"node", op.ID,
		"mode", op.Mode,
		"keys", len(keys),
		"aggregations", len(op.Aggregations),
	)
	return f, nil
}

func (self *queryCodeGen) limit(child, op *plan.Operator) (*frame, error) {
	if op.Limit < 0 {
		return nil, plan.NewError(
			plan.ErrMalformedPlanGraph,
			rule(child, op),
			op.ID,
			"negative limit %d",
			op.Limit,
		)
	}
	f, err := self.input(op)
	if err != nil {
		return nil, err
	}
	if f.hasLimit() {
		if f, err = self.wrap(f); err != nil {
			return nil, err
		}
	}
	if err := self.reconcile(child, op, f); err != nil {
		return nil, err
	}
	f.limit = op.Limit
	return f, nil
}

func (self *queryCodeGen) passThrough(child, op *plan.Operator) (*frame, error) {
	f, err := self.input(op)
	if err != nil {
		return nil, err
	}
	if err := self.reconcile(child, op, f); err != nil {
		return nil, err
	}
	return f, nil
}

// A shuffle boundary, the statement up to the reduce sink is materialized
// into a table named after it. A reduce sink directly reading a materialized
// result only renames the columns.
func (self *queryCodeGen) reduceSink(child, op *plan.Operator) (*frame, error) {
	if f, ok := self.tables[op.ID]; ok {
		return f.clone(), nil
	}

	p, err := self.upstream(op)
	if err != nil {
		return nil, err
	}
	f, err := self.frameOf(op, p)
	if err != nil {
		return nil, err
	}
	if err := self.reconcile(child, op, f); err != nil {
		return nil, err
	}
	if p.Kind == plan.KindFileSink || p.Kind == plan.KindReduceSink {
		return f, nil
	}
	return self.table(f, op)
}

// A file sink in the middle of the plan writes an intermediate result read
// by a later stage.
func (self *queryCodeGen) fileSink(child, op *plan.Operator) (*frame, error) {
	if f, ok := self.tables[op.ID]; ok {
		return f.clone(), nil
	}

	f, err := self.input(op)
	if err != nil {
		return nil, err
	}
	if err := self.reconcile(child, op, f); err != nil {
		return nil, err
	}
	return self.table(f, op)
}

func (self *queryCodeGen) table(f *frame, op *plan.Operator) (*frame, error) {
	nf, err := self.materialize(f, op.ID)
	if err != nil {
		return nil, err
	}
	self.tables[op.ID] = nf.clone()
	return nf, nil
}
