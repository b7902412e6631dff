package models

// NodeTypeInfo describes a registered node type for editors and API clients.
type NodeTypeInfo struct {
	Type            string         `json:"type"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Category        CategoryType   `json:"category"`
	OptionalHandles []string       `json:"optional_handles,omitempty"`
	Schema          map[string]any `json:"schema"`
}
