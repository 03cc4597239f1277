package plan

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"strings"
)

// ----------------------------------------------------------------------------
// Stage simplification.
//
// A conditional stage represents N mutually exclusive physical strategy of
// the same logical step, ie local vs distributed hash join. Exactly one of
// them must survive, otherwise we cannot produce one unambiguous statement.
//
// 1) each conditional stage picks the branch with the smallest number of top
//    operators, ties broken by first encountered order. That is the strategy
//    which does not duplicate upstream operator subtree
//
// 2) every other branch, and every stage reachable only through them, is
//    banned
//
// 3) parents of the conditional stage become parents of the chosen branch,
//    the conditional stage itself is removed from the stage DAG
//
// 4) roots are recomputed, then the dependent edges are walked to generate
//    the final stage list, parents always before children
// ----------------------------------------------------------------------------

type simplifier struct {
	logger  log.Logger
	all     []*Stage
	seen    map[*Stage]bool
	banned  map[*Stage]bool
	removed map[*Stage]bool
}

// Simplify resolves every conditional stage reachable from roots and returns
// the linear stage list consumed by assembly.
func Simplify(roots []*Stage, logger log.Logger) ([]*Stage, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &simplifier{
		logger:  logger,
		seen:    make(map[*Stage]bool),
		banned:  make(map[*Stage]bool),
		removed: make(map[*Stage]bool),
	}
	return s.simplify(roots)
}

func (self *simplifier) collect(s *Stage) {
	if self.seen[s] {
		return
	}
	self.seen[s] = true
	self.all = append(self.all, s)
	for _, b := range s.Branches {
		self.collect(b)
	}
	for _, d := range s.Dependents {
		self.collect(d)
	}
}

func (self *simplifier) isLive(s *Stage) bool {
	return !self.banned[s] && !self.removed[s]
}

// pick the branch with minimal number of top operators, first one wins on tie
func chooseBranch(c *Stage) (*Stage, error) {
	if len(c.Branches) == 0 {
		return nil, newStageError(
			ErrMalformedPlanGraph,
			"choose-branch",
			c.ID,
			"conditional stage has no candidate branch",
		)
	}

	var chosen *Stage
	for _, b := range c.Branches {
		if b == nil {
			return nil, newStageError(
				ErrMalformedPlanGraph,
				"choose-branch",
				c.ID,
				"conditional stage has a nil candidate branch",
			)
		}
		if chosen == nil || len(b.Tops) < len(chosen.Tops) {
			chosen = b
		}
	}

	if len(chosen.Tops) == 0 {
		return nil, newStageError(
			ErrMalformedPlanGraph,
			"choose-branch",
			chosen.ID,
			"chosen branch of conditional stage %s has no top operator",
			c.ID,
		)
	}
	return chosen, nil
}

func (self *simplifier) resolve(c *Stage) error {
	chosen, err := chooseBranch(c)
	if err != nil {
		return err
	}

	bannedID := []string{}
	for _, b := range c.Branches {
		if b == chosen {
			continue
		}
		b.removeParent(c)
		self.ban(b)
		bannedID = append(bannedID, b.ID)
	}

	// rewire, parents of the conditional stage adopt the chosen branch
	chosen.removeParent(c)
	for _, p := range c.Parents {
		p.replaceDependent(c, chosen)
	}
	for _, d := range c.Dependents {
		d.removeParent(c)
		// a branch may also be listed as a dependent of its conditional stage
		if d == chosen || self.banned[d] {
			continue
		}
		chosen.AddDependent(d)
	}
	c.Parents = nil
	c.Dependents = nil
	self.removed[c] = true

	level.Debug(self.logger).Log(
		"msg", "conditional stage resolved",
		"stage", c.ID,
		"chosen", chosen.ID,
		"banned", strings.Join(bannedID, ","),
	)
	return nil
}

// ban the stage, and propagate to every dependent left without any parent
func (self *simplifier) ban(b *Stage) {
	queue := []*Stage{b}
	self.banned[b] = true

	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]
		for _, d := range x.Dependents {
			d.removeParent(x)
			if len(d.Parents) == 0 && !self.banned[d] {
				self.banned[d] = true
				queue = append(queue, d)
			}
		}
		x.Dependents = nil
	}
}

func (self *simplifier) roots() []*Stage {
	out := []*Stage{}
	for _, s := range self.all {
		if self.isLive(s) && !s.Conditional && s.IsRoot() {
			out = append(out, s)
		}
	}
	return out
}

func (self *simplifier) reachable(roots []*Stage) map[*Stage]bool {
	out := make(map[*Stage]bool)
	stack := append([]*Stage(nil), roots...)
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out[s] {
			continue
		}
		out[s] = true
		for _, d := range s.Dependents {
			if self.isLive(d) {
				stack = append(stack, d)
			}
		}
	}
	return out
}

// linearize the DAG, a stage is emitted once all its live parents are
func (self *simplifier) linearize(roots []*Stage) ([]*Stage, error) {
	live := self.reachable(roots)
	pending := make(map[*Stage]int)
	for s := range live {
		for _, p := range s.Parents {
			if live[p] {
				pending[s]++
			}
		}
	}

	out := []*Stage{}
	visited := make(map[*Stage]bool)
	queue := append([]*Stage(nil), roots...)

	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if visited[s] {
			continue
		}
		visited[s] = true
		out = append(out, s)

		for _, d := range s.Dependents {
			if !live[d] || visited[d] {
				continue
			}
			pending[d]--
			if pending[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	for _, s := range self.all {
		if live[s] && !visited[s] {
			return nil, newStageError(
				ErrMalformedPlanGraph,
				"linearize",
				s.ID,
				"stage is part of a dependency cycle",
			)
		}
	}
	return out, nil
}

func (self *simplifier) simplify(roots []*Stage) ([]*Stage, error) {
	for _, r := range roots {
		self.collect(r)
	}

	// resolve until no conditional stage is left, a chosen branch may itself
	// be conditional
	for {
		changed := false
		for _, s := range self.all {
			if s.Conditional && self.isLive(s) {
				if err := self.resolve(s); err != nil {
					return nil, err
				}
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	newRoots := self.roots()
	if len(newRoots) == 0 {
		return nil, newStageError(
			ErrMalformedPlanGraph,
			"simplify",
			"",
			"no root stage left after simplification",
		)
	}

	out, err := self.linearize(newRoots)
	if err != nil {
		return nil, err
	}

	for _, s := range out {
		if len(s.Tops) == 0 {
			return nil, newStageError(
				ErrMalformedPlanGraph,
				"simplify",
				s.ID,
				"stage has no top operator",
			)
		}
	}

	level.Debug(self.logger).Log("msg", "stage simplified", "stages", len(out))
	return out, nil
}
