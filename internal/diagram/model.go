package diagram

// NodeKind classifies a diagram node by its workflow step kind.
type NodeKind string

const (
	NodeKindStart     NodeKind = "start"
	NodeKindEnd       NodeKind = "end"
	NodeKindCondition NodeKind = "condition"
	NodeKindCommand   NodeKind = "command"
	NodeKindMissing   NodeKind = "missing" // referenced but not declared
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents a single step in the diagram.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// Overlay statuses.
const (
	StatusVisited = "visited"
	StatusHalted  = "halted"
)

// StatusOverlay carries the recorded outcome of a step in one run.
type StatusOverlay struct {
	Status string
	Visits int
	Error  string
}

// Edge is a possible transfer of control between two steps.
type Edge struct {
	From  string
	To    string
	Label string
}
