package plan

// Stage is one unit of scheduled execution, holding a tree of operator. A
// conditional stage holds several mutually exclusive candidate branches, each
// itself a stage, exactly one of which survives simplification.
type Stage struct {
	ID          string
	Tops        []string // id of the root operator of the stage's operator tree
	Dependents  []*Stage // children, in execution order
	Parents     []*Stage
	Conditional bool
	Branches    []*Stage

	operators map[string]*Operator
	order     []string
}

func NewStage(id string) *Stage {
	return &Stage{
		ID:        id,
		operators: make(map[string]*Operator),
	}
}

func NewConditionalStage(id string, branches ...*Stage) *Stage {
	s := NewStage(id)
	s.Conditional = true
	s.Branches = branches
	return s
}

// AddOperator registers the operator into the stage, op.StageID is set to the
// stage. Adding the same id twice keeps the first one.
func (self *Stage) AddOperator(op *Operator) *Operator {
	if old, ok := self.operators[op.ID]; ok {
		return old
	}
	op.StageID = self.ID
	self.operators[op.ID] = op
	self.order = append(self.order, op.ID)
	return op
}

// AddTop registers the operator and marks it as a top operator.
func (self *Stage) AddTop(op *Operator) *Operator {
	op = self.AddOperator(op)
	addUnique(&self.Tops, op.ID)
	return op
}

func (self *Stage) Operator(id string) (*Operator, bool) {
	op, ok := self.operators[id]
	return op, ok
}

// Operators returns every operator of the stage in registration order.
func (self *Stage) Operators() []*Operator {
	out := make([]*Operator, 0, len(self.order))
	for _, id := range self.order {
		out = append(out, self.operators[id])
	}
	return out
}

// Connect wires parent -> child inside of the stage. Both must already be
// registered.
func (self *Stage) Connect(parent, child string) bool {
	p, ok1 := self.operators[parent]
	c, ok2 := self.operators[child]
	if !ok1 || !ok2 {
		return false
	}
	p.addChild(child)
	c.addParent(parent)
	return true
}

// AddDependent makes that run after self.
func (self *Stage) AddDependent(that *Stage) {
	if !containStage(self.Dependents, that) {
		self.Dependents = append(self.Dependents, that)
	}
	if !containStage(that.Parents, self) {
		that.Parents = append(that.Parents, self)
	}
}

// replace dependent old by new, keeping its position in execution order
func (self *Stage) replaceDependent(old, new *Stage) {
	out := make([]*Stage, 0, len(self.Dependents))
	for _, x := range self.Dependents {
		if x == old {
			x = new
		}
		if !containStage(out, x) {
			out = append(out, x)
		}
	}
	self.Dependents = out
	if !containStage(new.Parents, self) {
		new.Parents = append(new.Parents, self)
	}
}

func (self *Stage) removeDependent(that *Stage) {
	self.Dependents = removeStage(self.Dependents, that)
}

func (self *Stage) removeParent(that *Stage) {
	self.Parents = removeStage(self.Parents, that)
}

func (self *Stage) IsRoot() bool { return len(self.Parents) == 0 }

func containStage(l []*Stage, s *Stage) bool {
	for _, x := range l {
		if x == s {
			return true
		}
	}
	return false
}

func removeStage(l []*Stage, s *Stage) []*Stage {
	out := make([]*Stage, 0, len(l))
	for _, x := range l {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}
