package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

// Severity of a validation problem. Errors block publish, warnings do not.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Problem codes.
const (
	CodeMissingEntry     = "missing_entry"
	CodeNoTrigger        = "no_trigger"
	CodeDuplicateNode    = "duplicate_node"
	CodeInvalidNode      = "invalid_node"
	CodeDanglingEdge     = "dangling_edge"
	CodeMissingHandle    = "missing_handle"
	CodeAmbiguousEdge    = "ambiguous_edge"
	CodeUndeclaredHandle = "undeclared_handle"
	CodeBadReference     = "bad_reference"
	CodeUnreachable      = "unreachable_node"
	CodeTriggerCycle     = "trigger_cycle"
	CodeCycleWithoutWait = "cycle_without_wait"
)

// Problem is one validator finding, tied to a node or a connection.
type Problem struct {
	Severity     Severity `json:"severity"`
	Code         string   `json:"code"`
	NodeID       string   `json:"node_id,omitempty"`
	ConnectionID string   `json:"connection_id,omitempty"`
	Message      string   `json:"message"`
}

// AuthoringError blocks a publish and carries the error-severity problems.
type AuthoringError struct {
	Problems []Problem
}

func (e *AuthoringError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Message)
	}

	return "flow has validation errors: " + strings.Join(msgs, "; ")
}

// HasErrors reports whether any problem blocks publish.
func HasErrors(problems []Problem) bool {
	for _, p := range problems {
		if p.Severity == SeverityError {
			return true
		}
	}

	return false
}

// Errors keeps only error-severity problems.
func Errors(problems []Problem) []Problem {
	var out []Problem

	for _, p := range problems {
		if p.Severity == SeverityError {
			out = append(out, p)
		}
	}

	return out
}

type validator struct {
	g        Graph
	nodes    map[string]*models.Node
	built    map[string]protocol.Node
	adj      map[string][]string
	problems []Problem
}

// Validate checks a graph structurally. It only reads its input and is safe
// to run concurrently with executions.
func Validate(ctx context.Context, g Graph, builder NodeBuilder) []Problem {
	v := &validator{
		g:     g,
		nodes: make(map[string]*models.Node, len(g.Nodes)),
		built: make(map[string]protocol.Node, len(g.Nodes)),
		adj:   make(map[string][]string),
	}

	v.checkNodes(ctx, builder)
	v.checkEntry()
	v.checkConnections()
	v.checkHandles()
	v.checkReferences()
	v.checkReachability()
	v.checkCycles()

	return v.problems
}

func (v *validator) add(sev Severity, code, nodeID, connID, format string, args ...any) {
	v.problems = append(v.problems, Problem{
		Severity:     sev,
		Code:         code,
		NodeID:       nodeID,
		ConnectionID: connID,
		Message:      fmt.Sprintf(format, args...),
	})
}

func (v *validator) checkNodes(ctx context.Context, builder NodeBuilder) {
	for _, n := range v.g.Nodes {
		if _, dup := v.nodes[n.ID]; dup {
			v.add(SeverityError, CodeDuplicateNode, n.ID, "", "node id %s is used more than once", n.ID)

			continue
		}

		v.nodes[n.ID] = n

		instance, err := builder.CreateNode(ctx, n)
		if err != nil {
			v.add(SeverityError, CodeInvalidNode, n.ID, "", "node %s (%s): %v", n.ID, n.Type, err)

			continue
		}

		v.built[n.ID] = instance
	}
}

func (v *validator) checkEntry() {
	switch {
	case v.g.EntryNodeID == "":
		v.add(SeverityError, CodeMissingEntry, "", "", "flow has no entry node")
	case v.nodes[v.g.EntryNodeID] == nil:
		v.add(SeverityError, CodeMissingEntry, v.g.EntryNodeID, "", "entry node %s does not exist", v.g.EntryNodeID)
	}

	for _, n := range v.g.Nodes {
		if n.IsTriggerNode() {
			return
		}
	}

	v.add(SeverityError, CodeNoTrigger, "", "", "flow has no trigger node and can never start")
}

func (v *validator) checkConnections() {
	for _, c := range v.g.Connections {
		ok := true

		if v.nodes[c.Source] == nil {
			v.add(SeverityError, CodeDanglingEdge, c.Source, c.ID, "connection %s starts at unknown node %s", c.ID, c.Source)

			ok = false
		}

		if v.nodes[c.Target] == nil {
			v.add(SeverityError, CodeDanglingEdge, c.Target, c.ID, "connection %s ends at unknown node %s", c.ID, c.Target)

			ok = false
		}

		if ok {
			v.adj[c.Source] = append(v.adj[c.Source], c.Target)
		}
	}
}

func (v *validator) checkHandles() {
	counts := make(map[string]map[string]int)

	for _, c := range v.g.Connections {
		if counts[c.Source] == nil {
			counts[c.Source] = make(map[string]int)
		}

		counts[c.Source][c.SourceHandle]++

		instance, ok := v.built[c.Source]
		if ok && !instance.Handles().Declared(c.SourceHandle) {
			v.add(SeverityWarning, CodeUndeclaredHandle, c.Source, c.ID,
				"connection %s uses handle '%s' which node %s never follows", c.ID, c.SourceHandle, c.Source)
		}
	}

	for _, n := range v.g.Nodes {
		instance, ok := v.built[n.ID]
		if !ok {
			continue
		}

		for _, h := range instance.Handles().Required {
			if counts[n.ID][h] == 0 {
				v.add(SeverityError, CodeMissingHandle, n.ID, "", "node %s needs a connection on handle '%s'", n.ID, h)
			}
		}

		for h, count := range counts[n.ID] {
			if count > 1 {
				v.add(SeverityError, CodeAmbiguousEdge, n.ID, "", "node %s has %d connections on handle '%s'", n.ID, count, h)
			}
		}
	}
}

func (v *validator) checkReferences() {
	for _, n := range v.g.Nodes {
		ref, ok := v.built[n.ID].(protocol.Referencer)
		if !ok {
			continue
		}

		for _, target := range ref.References() {
			if v.nodes[target] == nil {
				v.add(SeverityError, CodeBadReference, n.ID, "", "node %s points at unknown node %s", n.ID, target)

				continue
			}

			v.adj[n.ID] = append(v.adj[n.ID], target)
		}
	}
}

func (v *validator) checkReachability() {
	seen := make(map[string]bool, len(v.nodes))
	stack := make([]string, 0, len(v.nodes))

	if v.nodes[v.g.EntryNodeID] != nil {
		stack = append(stack, v.g.EntryNodeID)
	}

	for _, n := range v.g.Nodes {
		if n.IsTriggerNode() {
			stack = append(stack, n.ID)
		}
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[id] {
			continue
		}

		seen[id] = true
		stack = append(stack, v.adj[id]...)
	}

	for _, n := range v.g.Nodes {
		if !seen[n.ID] {
			v.add(SeverityWarning, CodeUnreachable, n.ID, "", "node %s is not reachable from the entry node or any trigger", n.ID)
		}
	}
}

// checkCycles runs Tarjan's algorithm over connections and jump references.
func (v *validator) checkCycles() {
	index := 0
	indices := make(map[string]int, len(v.nodes))
	lowlink := make(map[string]int, len(v.nodes))
	onStack := make(map[string]bool, len(v.nodes))
	stack := make([]string, 0, len(v.nodes))

	var strongConnect func(id string)

	strongConnect = func(id string) {
		indices[id] = index
		lowlink[id] = index
		index++

		stack = append(stack, id)
		onStack[id] = true

		for _, next := range v.adj[id] {
			if _, visited := indices[next]; !visited {
				strongConnect(next)
				lowlink[id] = min(lowlink[id], lowlink[next])
			} else if onStack[next] {
				lowlink[id] = min(lowlink[id], indices[next])
			}
		}

		if lowlink[id] != indices[id] {
			return
		}

		var component []string

		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false

			component = append(component, top)
			if top == id {
				break
			}
		}

		v.checkComponent(component)
	}

	for _, n := range v.g.Nodes {
		if _, visited := indices[n.ID]; !visited && v.nodes[n.ID] == n {
			strongConnect(n.ID)
		}
	}
}

func (v *validator) checkComponent(component []string) {
	if len(component) == 1 && !v.selfLoop(component[0]) {
		return
	}

	hasWait := false

	for _, id := range component {
		n := v.nodes[id]
		if n.IsTriggerNode() {
			v.add(SeverityError, CodeTriggerCycle, id, "", "trigger node %s is part of a cycle", id)

			return
		}

		if _, ok := v.built[id].(protocol.Waiter); ok {
			hasWait = true
		}
	}

	if !hasWait {
		v.add(SeverityWarning, CodeCycleWithoutWait, component[0], "",
			"nodes %s form a cycle with no wait node; executions rely on the step limit", strings.Join(component, ", "))
	}
}

func (v *validator) selfLoop(id string) bool {
	for _, next := range v.adj[id] {
		if next == id {
			return true
		}
	}

	return false
}
