package models

import "time"

// FlowStatus represents the editing state of a flow.
type FlowStatus string

const (
	FlowStatusDraft     FlowStatus = "draft"     // Never published
	FlowStatusPublished FlowStatus = "published" // Has an active version
)

// VariableDecl declares a flow-local variable and its initial value.
type VariableDecl struct {
	Type        string `json:"type,omitempty"        yaml:"type,omitempty"`
	Default     any    `json:"default,omitempty"     yaml:"default,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Flow is the authoring-time bot graph. Nodes keep declaration order, which
// decides trigger precedence.
type Flow struct {
	ID          string                  `json:"id"`
	ProjectID   string                  `json:"project_id"             validate:"required"`
	Name        string                  `json:"name"                   validate:"required,min=3"`
	Description string                  `json:"description,omitempty"`
	Status      FlowStatus              `json:"status"`
	EntryNodeID string                  `json:"entry_node_id"`
	Nodes       []*Node                 `json:"nodes"                  validate:"dive"`
	Connections []*Connection           `json:"connections"            validate:"dive"`
	Variables   map[string]VariableDecl `json:"variables,omitempty"`
	Settings    map[string]any          `json:"settings,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Version is an immutable published snapshot of a flow.
type Version struct {
	ID          string                  `json:"id"`
	FlowID      string                  `json:"flow_id"`
	ProjectID   string                  `json:"project_id"`
	Number      int                     `json:"number"`
	EntryNodeID string                  `json:"entry_node_id"`
	Nodes       []*Node                 `json:"nodes"`
	Connections []*Connection           `json:"connections"`
	Variables   map[string]VariableDecl `json:"variables,omitempty"`
	Settings    map[string]any          `json:"settings,omitempty"`
	IsActive    bool                    `json:"is_active"`
	CreatedAt   time.Time               `json:"created_at"`
}

// Snapshot copies the graph of the flow into an inactive, unnumbered version.
// The copy is deep enough that later edits of the flow never leak into it.
func (f *Flow) Snapshot() *Version {
	nodes := make([]*Node, 0, len(f.Nodes))
	for _, n := range f.Nodes {
		nodes = append(nodes, n.Clone())
	}

	conns := make([]*Connection, 0, len(f.Connections))
	for _, c := range f.Connections {
		cp := *c
		conns = append(conns, &cp)
	}

	vars := make(map[string]VariableDecl, len(f.Variables))
	for k, v := range f.Variables {
		vars[k] = v
	}

	settings := make(map[string]any, len(f.Settings))
	for k, v := range f.Settings {
		settings[k] = v
	}

	return &Version{
		FlowID:      f.ID,
		ProjectID:   f.ProjectID,
		EntryNodeID: f.EntryNodeID,
		Nodes:       nodes,
		Connections: conns,
		Variables:   vars,
		Settings:    settings,
	}
}

// Project holds static variables shared by every flow of a tenant.
type Project struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Variables map[string]any `json:"variables,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
