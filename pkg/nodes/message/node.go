// Package message provides the outbound message action nodes.
package message

import (
	"context"
	"errors"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

var actionHandles = protocol.Handles{Optional: []string{models.HandleDefault, models.HandleError}}

// SendMessageNode sends a templated text with optional inline buttons.
type SendMessageNode struct {
	protocol.Base
	text    string
	buttons [][]models.Button
}

// SendMessageConfig defines the configuration for send message nodes.
type SendMessageConfig struct {
	Text    string            `json:"text"`
	Buttons [][]models.Button `json:"buttons,omitempty"`
}

// NewSendMessageNode creates a new send message node.
func NewSendMessageNode(node *models.Node) (*SendMessageNode, error) {
	var cfg SendMessageConfig
	if err := protocol.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	if cfg.Text == "" {
		return nil, errors.New("missing required field 'text'")
	}

	return &SendMessageNode{Base: protocol.NewBase(node), text: cfg.Text, buttons: cfg.Buttons}, nil
}

func (n *SendMessageNode) Handles() protocol.Handles { return actionHandles }

// Execute renders the message against the merged variables and hands it to
// the send_message query.
func (n *SendMessageNode) Execute(ctx context.Context, rt *protocol.Runtime) (protocol.Result, error) {
	r := rt.Variables.Renderer()
	text := r.Render(n.text)

	params := map[string]any{"text": text}

	if len(n.buttons) > 0 {
		rows := make([]any, 0, len(n.buttons))

		for _, row := range n.buttons {
			rendered := make([]any, 0, len(row))
			for _, b := range row {
				rendered = append(rendered, map[string]any{
					"text":          r.Render(b.Text),
					"callback_data": r.Render(b.CallbackData),
					"url":           r.Render(b.URL),
				})
			}

			rows = append(rows, rendered)
		}

		params["buttons"] = rows
	}

	if err := r.Err(); err != nil {
		return protocol.Result{}, err
	}

	if _, err := rt.Queries.Run(ctx, models.QuerySendMessage, params); err != nil {
		return protocol.Result{}, err
	}

	return protocol.Advance(models.HandleDefault).WithData(map[string]any{"text": text}), nil
}

// RequestContactNode asks the user to share their phone number.
type RequestContactNode struct {
	protocol.Base
	text       string
	buttonText string
}

// RequestContactConfig defines the configuration for request contact nodes.
type RequestContactConfig struct {
	Text       string `json:"text"`
	ButtonText string `json:"button_text"`
}

// NewRequestContactNode creates a new request contact node.
func NewRequestContactNode(node *models.Node) (*RequestContactNode, error) {
	cfg := RequestContactConfig{ButtonText: "Share phone number"}
	if err := protocol.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	if cfg.Text == "" {
		return nil, errors.New("missing required field 'text'")
	}

	return &RequestContactNode{Base: protocol.NewBase(node), text: cfg.Text, buttonText: cfg.ButtonText}, nil
}

func (n *RequestContactNode) Handles() protocol.Handles { return actionHandles }

func (n *RequestContactNode) Execute(ctx context.Context, rt *protocol.Runtime) (protocol.Result, error) {
	r := rt.Variables.Renderer()
	text := r.Render(n.text)
	button := r.Render(n.buttonText)

	if err := r.Err(); err != nil {
		return protocol.Result{}, err
	}

	_, err := rt.Queries.Run(ctx, models.QuerySendMessage, map[string]any{
		"text":            text,
		"request_contact": true,
		"contact_button":  button,
	})
	if err != nil {
		return protocol.Result{}, err
	}

	return protocol.Advance(models.HandleDefault).WithData(map[string]any{"text": text}), nil
}
