package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dukex/botflow/pkg/models"
	"github.com/goccy/go-yaml"
)

// DecodeFlowYAML reads a flow authored in YAML. The document is converted to
// JSON first so that both formats share the models' json tags.
func DecodeFlowYAML(data []byte) (*models.Flow, error) {
	raw, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse flow yaml: %w", err)
	}

	return DecodeFlowJSON(raw)
}

// DecodeFlowJSON reads a flow and rejects unknown fields.
func DecodeFlowJSON(data []byte) (*models.Flow, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var flow models.Flow
	if err := dec.Decode(&flow); err != nil {
		return nil, fmt.Errorf("parse flow json: %w", err)
	}

	return &flow, nil
}

// DecodeFlowFile picks the decoder from the file extension.
func DecodeFlowFile(name string, data []byte) (*models.Flow, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return DecodeFlowYAML(data)
	default:
		return DecodeFlowJSON(data)
	}
}
