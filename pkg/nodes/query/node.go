// Package query provides the node that runs a named domain query.
package query

import (
	"context"
	"errors"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

// DatabaseQueryNode invokes the query executor and stores the result.
type DatabaseQueryNode struct {
	protocol.Base
	query  string
	params map[string]any
	saveAs string
}

// DatabaseQueryConfig defines the configuration for database query nodes.
type DatabaseQueryConfig struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params,omitempty"`
	SaveAs string         `json:"save_as,omitempty"`
}

// NewDatabaseQueryNode creates a new database query node.
func NewDatabaseQueryNode(node *models.Node) (*DatabaseQueryNode, error) {
	var cfg DatabaseQueryConfig
	if err := protocol.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	if cfg.Query == "" {
		return nil, errors.New("missing required field 'query'")
	}

	return &DatabaseQueryNode{
		Base:   protocol.NewBase(node),
		query:  cfg.Query,
		params: cfg.Params,
		saveAs: cfg.SaveAs,
	}, nil
}

func (n *DatabaseQueryNode) Handles() protocol.Handles {
	return protocol.Handles{Optional: []string{models.HandleDefault, models.HandleError}}
}

// Execute renders the parameters, runs the query and saves the result under
// save_as when configured.
func (n *DatabaseQueryNode) Execute(ctx context.Context, rt *protocol.Runtime) (protocol.Result, error) {
	rendered, err := rt.RenderAny(n.params)
	if err != nil {
		return protocol.Result{}, err
	}

	params, _ := rendered.(map[string]any)
	if params == nil {
		params = map[string]any{}
	}

	out, err := rt.Queries.Run(ctx, n.query, params)
	if err != nil {
		return protocol.Result{}, err
	}

	res := protocol.Advance(models.HandleDefault).WithData(map[string]any{
		"query":  n.query,
		"params": params,
		"result": out,
	})

	if n.saveAs != "" {
		res = res.WithVariables(map[string]any{n.saveAs: out})
	}

	return res, nil
}
