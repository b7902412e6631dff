package registry

import (
	"github.com/dukex/botflow/pkg/nodes/conditional"
	"github.com/dukex/botflow/pkg/nodes/control"
	"github.com/dukex/botflow/pkg/nodes/message"
	"github.com/dukex/botflow/pkg/nodes/query"
	switchnode "github.com/dukex/botflow/pkg/nodes/switch"
	"github.com/dukex/botflow/pkg/nodes/transform"
	"github.com/dukex/botflow/pkg/nodes/trigger"
	"github.com/dukex/botflow/pkg/nodes/wait"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes() {
	// Triggers
	r.RegisterNode(trigger.NewCommandTriggerNodeFactory())
	r.RegisterNode(trigger.NewKeywordTriggerNodeFactory())
	r.RegisterNode(trigger.NewCallbackTriggerNodeFactory())
	r.RegisterNode(trigger.NewEntryTriggerNodeFactory())

	// Conditions
	r.RegisterNode(conditional.NewConditionalNodeFactory())
	r.RegisterNode(switchnode.NewSwitchNodeFactory())

	// Actions
	r.RegisterNode(message.NewSendMessageNodeFactory())
	r.RegisterNode(message.NewRequestContactNodeFactory())
	r.RegisterNode(query.NewDatabaseQueryNodeFactory())
	r.RegisterNode(transform.NewSetVariableNodeFactory())

	// Flow control
	r.RegisterNode(wait.NewContactNodeFactory())
	r.RegisterNode(wait.NewTextNodeFactory())
	r.RegisterNode(wait.NewCallbackNodeFactory())
	r.RegisterNode(wait.NewDelayNodeFactory())
	r.RegisterNode(control.NewJumpNodeFactory())
	r.RegisterNode(control.NewSubflowNodeFactory())
	r.RegisterNode(control.NewEndNodeFactory())
}
