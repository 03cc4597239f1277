package plan

import (
	"fmt"
	"github.com/cockroachdb/errors"
	"strings"
)

// Error kind of a translation. All of them are fatal, the plan is a
// deterministic artifact so nothing is ever retried.
var (
	// structural invariant violation, ie unresolvable conditional stage,
	// operator with unexpected number of parents, missing top operators
	ErrMalformedPlanGraph = errors.New("malformed plan graph")

	// two operators expected to share a schema do not
	ErrSchemaMismatch = errors.New("schema mismatch")

	// (child, parent) operator pair not covered by the rewrite rules, or
	// more than one terminal sink
	ErrUnsupportedOperatorCombination = errors.New("unsupported operator combination")

	// column cannot be traced to any upstream column
	ErrUnresolvableAlias = errors.New("unresolvable alias")
)

// Error is the structured error surfaced to the caller of a translation. It
// matches its Kind with errors.Is.
type Error struct {
	Kind  error  // one of the Err* sentinel
	Rule  string // rule being evaluated when the error happened
	Node  string // offending operator id, if any
	Stage string // offending stage id, if any
	cause error
}

func (self *Error) Error() string {
	buf := &strings.Builder{}
	buf.WriteString(fmt.Sprintf("%s: rule(%s)", self.Kind, self.Rule))
	if self.Stage != "" {
		buf.WriteString(fmt.Sprintf(" stage(%s)", self.Stage))
	}
	if self.Node != "" {
		buf.WriteString(fmt.Sprintf(" node(%s)", self.Node))
	}
	if self.cause != nil {
		buf.WriteString(": ")
		buf.WriteString(self.cause.Error())
	}
	return buf.String()
}

func (self *Error) Is(target error) bool { return target == self.Kind }
func (self *Error) Unwrap() error        { return self.cause }

func NewError(
	kind error,
	rule string,
	node string,
	f string,
	args ...interface{},
) *Error {
	return &Error{
		Kind:  kind,
		Rule:  rule,
		Node:  node,
		cause: errors.Newf(f, args...),
	}
}

func newStageError(
	kind error,
	rule string,
	stage string,
	f string,
	args ...interface{},
) *Error {
	return &Error{
		Kind:  kind,
		Rule:  rule,
		Stage: stage,
		cause: errors.Newf(f, args...),
	}
}

// AsError extracts the structured error out of err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func errorf(f string, args ...interface{}) error {
	return errors.Newf(f, args...)
}
