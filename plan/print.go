package plan

import (
	"fmt"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"io"
	"strings"
)

// Printing the plan out, for testing, debugging, visualization purpose etc ...

func (self *Plan) Print() string {
	buf := &strings.Builder{}
	buf.WriteString(fmt.Sprintf("##> Stages: %s\n", strings.Join(self.StageID(), " -> ")))
	if self.Graph != nil {
		self.Graph.Dump(buf)
	}
	return buf.String()
}

func newTable(w io.Writer, column int) *tablewriter.Table {
	alignment := make([]tw.Align, column)
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	return tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
}

// Dump renders the nodes and the edges of the graph as two markdown tables.
func (self *Graph) Dump(w io.Writer) error {
	io.WriteString(w, "##> Nodes\n")
	nodes := newTable(w, 6)
	nodes.Header([]string{"ID", "Kind", "Stage", "Schema", "Parents", "Children"})
	for _, op := range self.Nodes() {
		if err := nodes.Append([]string{
			op.ID,
			op.Kind.String(),
			op.StageID,
			op.SchemaString(),
			strings.Join(op.Parents, ","),
			strings.Join(op.Children, ","),
		}); err != nil {
			return err
		}
	}
	if err := nodes.Render(); err != nil {
		return err
	}

	io.WriteString(w, "\n##> Edges\n")
	edges := newTable(w, 3)
	edges.Header([]string{"From", "To", "Label"})
	for _, e := range self.Edges() {
		if err := edges.Append([]string{e.From, e.To, e.Label}); err != nil {
			return err
		}
	}
	if err := edges.Render(); err != nil {
		return err
	}

	roots := []string{}
	for _, op := range self.Roots() {
		roots = append(roots, op.ID)
	}
	leaves := []string{}
	for _, op := range self.Leaves() {
		leaves = append(leaves, op.ID)
	}
	io.WriteString(w, fmt.Sprintf("\nRoots: %s\n", strings.Join(roots, ",")))
	io.WriteString(w, fmt.Sprintf("Leaves: %s\n", strings.Join(leaves, ",")))
	return nil
}
