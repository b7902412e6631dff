package query

import (
	"context"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

// DatabaseQueryNodeFactory creates DatabaseQueryNode instances.
type DatabaseQueryNodeFactory struct{}

// NewDatabaseQueryNodeFactory creates a new factory instance.
func NewDatabaseQueryNodeFactory() protocol.NodeFactory {
	return &DatabaseQueryNodeFactory{}
}

// Create creates a new DatabaseQueryNode instance.
func (f *DatabaseQueryNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewDatabaseQueryNode(node)
}

// ID returns the factory ID.
func (f *DatabaseQueryNodeFactory) ID() string {
	return models.NodeTypeDatabaseQuery
}

// Name returns the factory name.
func (f *DatabaseQueryNodeFactory) Name() string {
	return "Database Query"
}

// Category returns the node capability.
func (f *DatabaseQueryNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeAction
}

// Description returns the factory description.
func (f *DatabaseQueryNodeFactory) Description() string {
	return "Runs a named query such as add_bonus or get_user_balance. Connect the error handle to recover from failures."
}

// Schema returns the JSON schema for Database Query node configuration.
func (f *DatabaseQueryNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type": "string",
				"enum": []string{
					models.QueryCheckUserByChannel,
					models.QueryCreateUser,
					models.QueryUpdateUser,
					models.QueryAddBonus,
					models.QuerySpendBonus,
					models.QueryGetUserBalance,
					models.QueryGetReferralStats,
					models.QuerySendMessage,
				},
			},
			"params": map[string]any{
				"type":        "object",
				"description": "Query parameters; string values may contain placeholders",
			},
			"save_as": map[string]any{
				"type":        "string",
				"description": "Local variable that receives the query result",
				"pattern":     "^[A-Za-z_][A-Za-z0-9_]*$",
			},
		},
		"required": []string{"query"},
	}
}
