// Package graph compiles published versions into executable programs and
// validates authoring graphs before they can be published.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

var (
	ErrMissingEdge   = errors.New("missing edge")
	ErrAmbiguousEdge = errors.New("ambiguous edge")
	ErrNodeNotFound  = errors.New("node not found")
)

// NodeBuilder turns an authoring node into its typed handler.
type NodeBuilder interface {
	CreateNode(ctx context.Context, node *models.Node) (protocol.Node, error)
}

// Graph is the structural part shared by flows and versions.
type Graph struct {
	EntryNodeID string
	Nodes       []*models.Node
	Connections []*models.Connection
}

func FromFlow(f *models.Flow) Graph {
	return Graph{EntryNodeID: f.EntryNodeID, Nodes: f.Nodes, Connections: f.Connections}
}

func FromVersion(v *models.Version) Graph {
	return Graph{EntryNodeID: v.EntryNodeID, Nodes: v.Nodes, Connections: v.Connections}
}

// Compiled is one node of a program. Err is set when the node could not be
// built; the interpreter fails executions that reach it.
type Compiled struct {
	Node     *models.Node
	Instance protocol.Node
	Err      error
}

// Program is an immutable, executable view of a version.
type Program struct {
	Version  *models.Version
	nodes    map[string]*Compiled
	edges    map[string]map[string][]*models.Connection
	triggers []*Compiled
}

// Compile builds every node of a version. It never fails as a whole: broken
// nodes are kept with their error.
func Compile(ctx context.Context, v *models.Version, builder NodeBuilder) *Program {
	p := &Program{
		Version: v,
		nodes:   make(map[string]*Compiled, len(v.Nodes)),
		edges:   make(map[string]map[string][]*models.Connection),
	}

	for _, n := range v.Nodes {
		if _, dup := p.nodes[n.ID]; dup {
			continue
		}

		c := &Compiled{Node: n}
		c.Instance, c.Err = builder.CreateNode(ctx, n)
		p.nodes[n.ID] = c

		if c.Err == nil {
			if _, ok := c.Instance.(protocol.Trigger); ok {
				p.triggers = append(p.triggers, c)
			}
		}
	}

	for _, conn := range v.Connections {
		byHandle, ok := p.edges[conn.Source]
		if !ok {
			byHandle = make(map[string][]*models.Connection)
			p.edges[conn.Source] = byHandle
		}

		byHandle[conn.SourceHandle] = append(byHandle[conn.SourceHandle], conn)
	}

	return p
}

// Node returns a compiled node by id.
func (p *Program) Node(id string) (*Compiled, bool) {
	c, ok := p.nodes[id]

	return c, ok
}

// Triggers returns the working trigger nodes in declaration order.
func (p *Program) Triggers() []*Compiled {
	return p.triggers
}

// HasEdge reports whether a handle of a node is connected.
func (p *Program) HasEdge(nodeID, handle string) bool {
	return len(p.edges[nodeID][handle]) > 0
}

// Next resolves the target of an outgoing handle. An unconnected default
// handle returns "" and no error: the node is a leaf. Unconnected named
// handles and handles with several edges are errors.
func (p *Program) Next(nodeID, handle string) (string, error) {
	conns := p.edges[nodeID][handle]

	switch {
	case len(conns) == 1:
		if _, ok := p.nodes[conns[0].Target]; !ok {
			return "", fmt.Errorf("%w: %s -> %s", ErrNodeNotFound, nodeID, conns[0].Target)
		}

		return conns[0].Target, nil
	case len(conns) > 1:
		return "", fmt.Errorf("%w: node %s has %d edges on handle '%s'", ErrAmbiguousEdge, nodeID, len(conns), handle)
	case handle == models.HandleDefault:
		return "", nil
	default:
		return "", fmt.Errorf("%w: node %s has no edge on handle '%s'", ErrMissingEdge, nodeID, handle)
	}
}
