package display

import (
	"fmt"
	"strings"

	"github.com/quietbeacon/epi/internal/types"
)

// TreeFormatter renders a procedure hierarchy as an ASCII tree
type TreeFormatter struct {
	options TreeOptions
}

// TreeOptions controls tree rendering
type TreeOptions struct {
	MaxDepth  int  // Deepest level to render; 0 renders everything
	ShowSteps bool // Append step counts to procedures that have steps
}

// NewTreeFormatter creates a new tree formatter
func NewTreeFormatter(options TreeOptions) *TreeFormatter {
	return &TreeFormatter{options: options}
}

type treeNode struct {
	proc     *types.Procedure
	children []*treeNode
}

// Format renders procs as one tree per category. procs must be in
// authored order with every parent preceding its children; a record
// whose parent is absent from the slice is rendered as a root, so a
// filtered view still shows everything it was given.
func (tf *TreeFormatter) Format(procs []*types.Procedure) string {
	if len(procs) == 0 {
		return "No procedures loaded\n"
	}

	nodes := make(map[types.ProcedureID]*treeNode, len(procs))
	var roots []*treeNode
	for _, p := range procs {
		n := &treeNode{proc: p}
		nodes[p.ID] = n
		if parent, ok := nodes[p.ParentID]; ok {
			parent.children = append(parent.children, n)
		} else {
			roots = append(roots, n)
		}
	}

	var sb strings.Builder
	for _, root := range roots {
		tf.formatNode(&sb, root, "", true, true, 1)
	}
	return sb.String()
}

// formatNode recursively renders one node and its subtree
func (tf *TreeFormatter) formatNode(sb *strings.Builder, n *treeNode, prefix string, isLast, isRoot bool, depth int) {
	if tf.options.MaxDepth > 0 && depth > tf.options.MaxDepth {
		return
	}

	var branch string
	switch {
	case isRoot:
		branch = "→ "
	case isLast:
		branch = "└─→ "
	default:
		branch = "├─→ "
	}

	sb.WriteString(prefix)
	sb.WriteString(branch)
	sb.WriteString(n.proc.Title)

	var attrs []string
	if n.proc.Severity != "" {
		attrs = append(attrs, string(n.proc.Severity))
	}
	if tf.options.ShowSteps && len(n.proc.Steps) > 0 {
		attrs = append(attrs, fmt.Sprintf("%d steps", len(n.proc.Steps)))
	}
	if len(attrs) > 0 {
		sb.WriteString(" (" + strings.Join(attrs, ", ") + ")")
	}
	sb.WriteString("  [" + n.proc.ID.String() + "]")
	sb.WriteString("\n")

	for i, child := range n.children {
		var childPrefix string
		if isRoot || isLast {
			childPrefix = prefix + "  "
		} else {
			childPrefix = prefix + "│ "
		}
		tf.formatNode(sb, child, childPrefix, i == len(n.children)-1, false, depth+1)
	}
}
