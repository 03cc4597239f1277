package plan

// Edge labels
const (
	EdgeStage              = "stage"
	EdgeBoundary           = "stage-boundary"
	EdgeBoundaryPositional = "stage-boundary-positional"
	EdgeMapJoin            = "map-join"
)

type Edge struct {
	From  string
	To    string
	Label string // provenance, not part of the edge identity
}

type edgeKey struct {
	from string
	to   string
}

// Graph is the global operator DAG, owning every operator of the plan. Roots
// and leaves are always derived from the current nodes/edges, never cached.
type Graph struct {
	nodes     map[string]*Operator
	nodeOrder []string
	edges     map[edgeKey]int
	edgeList  []Edge

	// registry of table alias bound by the table scan of the graph
	Alias *TableAliasRegistry

	// every base table column exposed by a table scan, keyed by alias.col
	Sources *ColumnTypeMap
}

func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Operator),
		edges:   make(map[edgeKey]int),
		Alias:   NewTableAliasRegistry(),
		Sources: NewColumnTypeMap(),
	}
}

// AddNode inserts the operator if its id is unknown, otherwise does nothing.
// Returns the operator stored in the graph.
func (self *Graph) AddNode(op *Operator) *Operator {
	if old, ok := self.nodes[op.ID]; ok {
		return old
	}
	self.nodes[op.ID] = op
	self.nodeOrder = append(self.nodeOrder, op.ID)
	return op
}

// AddEdge inserts the edge if no edge with the same endpoints exists. Both
// endpoints must be nodes of the graph.
func (self *Graph) AddEdge(e Edge) (bool, error) {
	if _, ok := self.nodes[e.From]; !ok {
		return false, NewError(ErrMalformedPlanGraph, "add-edge", e.From, "edge source is not part of the graph")
	}
	if _, ok := self.nodes[e.To]; !ok {
		return false, NewError(ErrMalformedPlanGraph, "add-edge", e.To, "edge target is not part of the graph")
	}
	k := edgeKey{from: e.From, to: e.To}
	if _, ok := self.edges[k]; ok {
		return false, nil
	}
	self.edges[k] = len(self.edgeList)
	self.edgeList = append(self.edgeList, e)
	return true, nil
}

// Link adds the edge parent -> child and keeps the operators' parent/child
// list in sync with it.
func (self *Graph) Link(parent, child *Operator, label string) error {
	if _, err := self.AddEdge(Edge{
		From:  parent.ID,
		To:    child.ID,
		Label: label,
	}); err != nil {
		return err
	}
	parent.addChild(child.ID)
	child.addParent(parent.ID)
	return nil
}

func (self *Graph) Node(id string) (*Operator, bool) {
	op, ok := self.nodes[id]
	return op, ok
}

func (self *Graph) HasEdge(from, to string) bool {
	_, ok := self.edges[edgeKey{from: from, to: to}]
	return ok
}

func (self *Graph) EdgeOf(from, to string) (Edge, bool) {
	idx, ok := self.edges[edgeKey{from: from, to: to}]
	if !ok {
		return Edge{}, false
	}
	return self.edgeList[idx], true
}

// Nodes returns every operator in insertion order.
func (self *Graph) Nodes() []*Operator {
	out := make([]*Operator, 0, len(self.nodeOrder))
	for _, id := range self.nodeOrder {
		out = append(out, self.nodes[id])
	}
	return out
}

func (self *Graph) Edges() []Edge {
	return append([]Edge(nil), self.edgeList...)
}

func (self *Graph) NodeSize() int { return len(self.nodeOrder) }
func (self *Graph) EdgeSize() int { return len(self.edgeList) }

// Roots returns every node without incoming edge, in insertion order.
func (self *Graph) Roots() []*Operator {
	out := []*Operator{}
	for _, id := range self.nodeOrder {
		incoming := false
		for _, e := range self.edgeList {
			if e.To == id {
				incoming = true
				break
			}
		}
		if !incoming {
			out = append(out, self.nodes[id])
		}
	}
	return out
}

// Leaves returns every node without outgoing edge, in insertion order.
func (self *Graph) Leaves() []*Operator {
	out := []*Operator{}
	for _, id := range self.nodeOrder {
		outgoing := false
		for _, e := range self.edgeList {
			if e.From == id {
				outgoing = true
				break
			}
		}
		if !outgoing {
			out = append(out, self.nodes[id])
		}
	}
	return out
}

// Parents returns the parent operators of op that are part of the graph.
func (self *Graph) Parents(op *Operator) []*Operator {
	out := []*Operator{}
	for _, id := range op.Parents {
		if p, ok := self.nodes[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (self *Graph) Children(op *Operator) []*Operator {
	out := []*Operator{}
	for _, id := range op.Children {
		if c, ok := self.nodes[id]; ok {
			out = append(out, c)
		}
	}
	return out
}
