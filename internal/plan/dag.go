package plan

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// producerIDSegment matches one slash-separated segment of a qualified
// producer id: 3-64 chars, lowercase alphanumeric with internal hyphens.
var producerIDSegment = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{1,62}[a-z0-9])?$`)

// ValidateProducerID checks a single segment against the producer-id
// pattern (spec.md §3 invariants, §4.5 enqueue validation).
func ValidateProducerID(segment string) error {
	if len(segment) < 3 || len(segment) > 64 {
		return fmt.Errorf("producer id segment %q must be 3-64 characters", segment)
	}
	if !producerIDSegment.MatchString(segment) {
		return fmt.Errorf("producer id segment %q must match %s", segment, producerIDSegment.String())
	}
	return nil
}

// AddNode inserts a node into the plan's adjacency structures. It does not
// validate acyclicity; call ValidateDAG after all nodes and edges are
// present.
func (p *Plan) AddNode(n *Node) {
	if p.Nodes == nil {
		p.Nodes = make(map[uuid.UUID]*Node)
	}
	p.Nodes[n.ID] = n
	p.Order = append(p.Order, n.ID)
}

// ValidateDAG checks the invariants from spec.md §3: every edge points to
// a pre-existing id, no self-dependency, and the graph is acyclic.
func (p *Plan) ValidateDAG() error {
	for id, n := range p.Nodes {
		for _, dep := range n.DependsOn {
			if dep == id {
				return fmt.Errorf("node %s: self-dependency forbidden", id)
			}
			if _, ok := p.Nodes[dep]; !ok {
				return fmt.Errorf("node %s: dependency %s does not exist", id, dep)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[uuid.UUID]int, len(p.Nodes))

	var visit func(id uuid.UUID) error
	visit = func(id uuid.UUID) error {
		color[id] = gray
		for _, dep := range p.Nodes[id].DependsOn {
			switch color[dep] {
			case gray:
				return fmt.Errorf("cycle detected: %s -> %s", id, dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for id := range p.Nodes {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Dependencies returns the resolved dependency nodes for n, in n.DependsOn
// order (the order merge-fi must merge them in, spec.md §4.2.4).
func (p *Plan) Dependencies(n *Node) []*Node {
	out := make([]*Node, 0, len(n.DependsOn))
	for _, id := range n.DependsOn {
		out = append(out, p.Nodes[id])
	}
	return out
}

// Leaves returns every Job node with no dependents (spec.md §4.2.5,
// GLOSSARY "Reverse integration").
func (p *Plan) Leaves() []*Node {
	var out []*Node
	for _, id := range p.Order {
		n := p.Nodes[id]
		if n.Kind == KindJob && len(n.DependentOf) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Roots returns every node with no dependencies.
func (p *Plan) Roots() []*Node {
	var out []*Node
	for _, id := range p.Order {
		n := p.Nodes[id]
		if len(n.DependsOn) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// LinkEdge records a dependency edge in both directions.
func (p *Plan) LinkEdge(from, to uuid.UUID) {
	fromNode, toNode := p.Nodes[from], p.Nodes[to]
	fromNode.DependsOn = append(fromNode.DependsOn, to)
	toNode.DependentOf = append(toNode.DependentOf, from)
}
