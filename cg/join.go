package cg

import (
	"fmt"
	"github.com/dianpeng/plan2sql/plan"
	"github.com/dianpeng/plan2sql/sql"
	"strconv"
	"strings"
)

// ----------------------------------------------------------------------------
// Join and MapJoin. Every input side becomes one table of a FROM ... JOIN ...
// ON chain. A side that cannot be merged in place, ie already aggregated or
// limited, is turned into a derived table first.

// input sides of the join, in order. The probe side placeholder of a map join
// is replaced by the hash table sink building it.
func (self *queryCodeGen) joinSides(op *plan.Operator) ([]*plan.Operator, error) {
	parents := self.g.Parents(op)

	built := make(map[string]bool)
	for _, p := range parents {
		if p.Kind != plan.KindHashTableDummy {
			continue
		}
		if id, ok := plan.BuildOperatorID(p.ID); ok {
			built[id] = true
		}
	}

	out := []*plan.Operator{}
	for _, p := range parents {
		switch {
		case p.Kind == plan.KindHashTableDummy:
			id, ok := plan.BuildOperatorID(p.ID)
			if !ok {
				return nil, plan.NewError(
					plan.ErrMalformedPlanGraph,
					rule(op, p),
					p.ID,
					"invalid map join placeholder id",
				)
			}
			b, ok := self.g.Node(id)
			if !ok {
				return nil, plan.NewError(
					plan.ErrMalformedPlanGraph,
					rule(op, p),
					p.ID,
					"map join placeholder has no build side %s",
					id,
				)
			}
			out = append(out, b)

		case built[p.ID]:
			// placed by its placeholder
			break

		default:
			out = append(out, p)
		}
	}
	return out, nil
}

func normalizeJoinType(x string) string {
	x = strings.ToLower(strings.ReplaceAll(x, "_", " "))
	l := []string{}
	for _, w := range strings.Fields(x) {
		if w == "join" || w == "outer" {
			continue
		}
		l = append(l, w)
	}
	return strings.Join(l, " ")
}

func joinKeyword(x string, keyed bool) (string, bool) {
	switch normalizeJoinType(x) {
	case "", "inner":
		if !keyed {
			return "CROSS JOIN", true
		}
		return "JOIN", true
	case "left":
		return "LEFT OUTER JOIN", true
	case "right":
		return "RIGHT OUTER JOIN", true
	case "full":
		return "FULL OUTER JOIN", true
	case "left semi", "semi":
		return "LEFT SEMI JOIN", true
	case "cross":
		return "CROSS JOIN", true
	default:
		return "", false
	}
}

func isOuterJoin(x string) bool {
	switch normalizeJoinType(x) {
	case "left", "right", "full":
		return true
	default:
		return false
	}
}

func (self *queryCodeGen) join(child, op *plan.Operator) (*frame, error) {
	r := rule(child, op)

	sides, err := self.joinSides(op)
	if err != nil {
		return nil, err
	}
	if len(sides) < 2 {
		return nil, plan.NewError(
			plan.ErrMalformedPlanGraph,
			r,
			op.ID,
			"join has %d input, expect at least 2",
			len(sides),
		)
	}
	if len(op.JoinKeys) != 0 && len(op.JoinKeys) != len(sides) {
		return nil, plan.NewError(
			plan.ErrMalformedPlanGraph,
			r,
			op.ID,
			"join has %d input but %d key list",
			len(sides),
			len(op.JoinKeys),
		)
	}

	keyword, ok := joinKeyword(op.JoinType, len(op.JoinKeys) != 0)
	if !ok {
		return nil, plan.NewError(
			plan.ErrUnsupportedOperatorCombination,
			r,
			op.ID,
			"join type %s is not supported",
			op.JoinType,
		)
	}
	outer := isOuterJoin(op.JoinType)

	var out *frame
	concat := []string{} // output column key of every side, in order
	keys := [][]string{}

	for i, side := range sides {
		sf, err := self.frameOf(op, side)
		if err != nil {
			return nil, err
		}
		if sf.grouped || sf.hasLimit() || (outer && len(sf.where) != 0) ||
			(out != nil && out.sharesAlias(sf)) {
			if sf, err = self.wrap(sf); err != nil {
				return nil, err
			}
		}

		sideKeys := []string{}
		if len(op.JoinKeys) != 0 {
			s := self.scope(sf, child, op)
			for _, k := range op.JoinKeys[i] {
				x, err := s.expr(k, "")
				if err != nil {
					return nil, err
				}
				sideKeys = append(sideKeys, x)
			}
			if i != 0 && len(sideKeys) != len(keys[0]) {
				return nil, plan.NewError(
					plan.ErrMalformedPlanGraph,
					r,
					op.ID,
					"join side %s has %d keys, expect %d",
					side.ID,
					len(sideKeys),
					len(keys[0]),
				)
			}
		}
		keys = append(keys, sideKeys)

		outKeys, err := sf.outputKeys()
		if err != nil {
			return nil, err
		}
		concat = append(concat, outKeys...)

		if i == 0 {
			out = sf
			continue
		}

		buf := &strings.Builder{}
		buf.WriteString(fmt.Sprintf("%s %s %s", out.from, keyword, sf.from))
		on := []string{}
		for j, k := range sideKeys {
			on = append(on, fmt.Sprintf("%s = %s", sql.Paren(keys[0][j]), sql.Paren(k)))
		}
		if len(on) != 0 {
			buf.WriteString(" ON ")
			buf.WriteString(strings.Join(on, " AND "))
		}
		out.from = buf.String()
		out.merge(sf)
	}

	if err := self.joinOutput(r, op, sides, out, concat); err != nil {
		return nil, err
	}
	return out, nil
}

// output columns of the join, either through the column expression map or
// by concatenating the output of every side
func (self *queryCodeGen) joinOutput(
	r string,
	op *plan.Operator,
	sides []*plan.Operator,
	out *frame,
	concat []string,
) error {
	names := op.OutputNames()
	if op.Schema == nil {
		names = concat
	}

	owners := []string{}
	for _, s := range sides {
		owners = append(owners, s.ID)
	}

	keys := []string{}
	for i, name := range names {
		if expr, ok := op.Expr(name); ok {
			s := &exprScope{
				gen:     self,
				columns: out.columns,
				owners:  owners,
				op:      op,
				rule:    r,
			}
			if idx, col, ok := sideColumn(expr); ok {
				if idx >= len(sides) {
					return plan.NewError(
						plan.ErrMalformedPlanGraph,
						r,
						op.ID,
						"column %s reads join side %d out of %d",
						name,
						idx,
						len(sides),
					)
				}
				s.owners = []string{sides[idx].ID}
				expr = col
			}
			k, err := s.expr(expr, schemaType(op, i))
			if err != nil {
				return err
			}
			keys = append(keys, k)
			continue
		}

		if len(names) != len(concat) {
			return plan.NewError(
				plan.ErrSchemaMismatch,
				r,
				op.ID,
				"join output %s does not line up with the %d columns of its inputs",
				op.SchemaString(),
				len(concat),
			)
		}
		out.columns.Add(concat[i], schemaType(op, i))
		keys = append(keys, concat[i])
	}

	for i, name := range names {
		out.columns.Alias(keys[i], op.ID, name)
	}
	out.node = op
	out.output = names
	return nil
}

// side qualified column, ie 1:_col3 is column _col3 of the second side
func sideColumn(x string) (int, string, bool) {
	idx := strings.Index(x, ":")
	if idx <= 0 || strings.HasPrefix(x[idx:], "::") {
		return 0, "", false
	}
	n, err := strconv.Atoi(strings.TrimSpace(x[:idx]))
	if err != nil || n < 0 {
		return 0, "", false
	}
	return n, strings.TrimSpace(x[idx+1:]), true
}
