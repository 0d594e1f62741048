package diagram

import (
	"fmt"
	"sort"

	"github.com/rendis/stepwise/internal/store"
	"github.com/rendis/stepwise/pkg/schema"
)

// Build constructs a DiagramModel from a workflow and, optionally, the step
// summaries of a recorded run. Nodes keep the declaration order of the
// workflow. References to undeclared steps become NodeKindMissing nodes.
func Build(wf *schema.Workflow, steps []*store.StepSummary) (*DiagramModel, error) {
	if wf == nil {
		return nil, fmt.Errorf("diagram: workflow is nil")
	}

	summaries := make(map[string]*store.StepSummary, len(steps))
	for _, s := range steps {
		summaries[s.Step] = s
	}

	nodeIndex := make(map[string]*Node, len(wf.Steps))
	nodes := make([]*Node, 0, len(wf.Steps))
	for _, ref := range wf.StepRefs() {
		step, _ := wf.Step(ref)
		node := stepToNode(ref, step)
		overlayStatus(node, summaries)
		nodes = append(nodes, node)
		nodeIndex[ref] = node
	}

	edges := buildEdges(wf)
	for _, e := range edges {
		if _, ok := nodeIndex[e.To]; ok {
			continue
		}
		missing := &Node{ID: e.To, Label: e.To + " (missing)", Kind: NodeKindMissing}
		nodes = append(nodes, missing)
		nodeIndex[e.To] = missing
	}

	return &DiagramModel{
		Title:  wf.Name,
		Nodes:  nodes,
		Edges:  edges,
		Levels: buildLevels(wf, nodes, edges),
	}, nil
}

func stepToNode(ref string, step schema.Step) *Node {
	node := &Node{ID: ref, Label: ref}
	switch s := step.(type) {
	case schema.StartStep:
		node.Kind = NodeKindStart
	case schema.EndStep:
		node.Kind = NodeKindEnd
	case schema.ConditionStep:
		node.Kind = NodeKindCondition
	case schema.CommandStep:
		node.Kind = NodeKindCommand
		node.Label = ref + "\n" + s.Command
	}
	return node
}

// overlayStatus attaches the run outcome to a node when one was recorded.
func overlayStatus(node *Node, summaries map[string]*store.StepSummary) {
	s, ok := summaries[node.ID]
	if !ok {
		return
	}
	status := StatusVisited
	if s.Error != "" {
		status = StatusHalted
	}
	node.Status = &StatusOverlay{Status: status, Visits: s.Visits, Error: s.Error}
}

// buildEdges lists every successor reference. Condition edges carry their
// clause expression as label.
func buildEdges(wf *schema.Workflow) []Edge {
	var edges []Edge
	for _, ref := range wf.StepRefs() {
		step, _ := wf.Step(ref)
		switch s := step.(type) {
		case schema.StartStep:
			if s.Next != "" {
				edges = append(edges, Edge{From: ref, To: s.Next})
			}
		case schema.CommandStep:
			if s.Next != "" {
				edges = append(edges, Edge{From: ref, To: s.Next})
			}
		case schema.ConditionStep:
			for _, c := range s.Clauses {
				if c.Next != "" {
					edges = append(edges, Edge{From: ref, To: c.Next, Label: c.Expression})
				}
			}
		}
	}
	return edges
}

// buildLevels assigns each node the length of its shortest path from a
// Start step. Unreachable nodes form a final level.
func buildLevels(wf *schema.Workflow, nodes []*Node, edges []Edge) [][]string {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
	}

	depth := make(map[string]int)
	queue := wf.StartRefs()
	for _, ref := range queue {
		depth[ref] = 0
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if _, seen := depth[next]; seen {
				continue
			}
			depth[next] = depth[cur] + 1
			queue = append(queue, next)
		}
	}

	maxDepth := -1
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	levels := make([][]string, maxDepth+1)
	var unreachable []string
	for _, n := range nodes {
		d, ok := depth[n.ID]
		if !ok {
			unreachable = append(unreachable, n.ID)
			continue
		}
		levels[d] = append(levels[d], n.ID)
	}
	if len(unreachable) > 0 {
		sort.Strings(unreachable)
		levels = append(levels, unreachable)
	}
	return levels
}
