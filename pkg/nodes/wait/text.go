package wait

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
	"github.com/spf13/cast"
)

// TextNode waits for a text reply that satisfies the node's validation bounds.
// When min or max is set the reply must be numeric and is stored as a number.
type TextNode struct {
	protocol.Base
	Options
	bounds  models.Bounds
	pattern *regexp.Regexp
}

// NewTextNode creates a new wait-for-text node.
func NewTextNode(node *models.Node) (*TextNode, error) {
	n := &TextNode{Base: protocol.NewBase(node), Options: Options{SaveAs: "input"}}
	if err := decode(node, &n.Options, &n.Options); err != nil {
		return nil, err
	}

	if node.Data.Validation != nil {
		n.bounds = *node.Data.Validation
	}

	if n.bounds.Pattern != "" {
		re, err := regexp.Compile(n.bounds.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid validation pattern: %w", err)
		}

		n.pattern = re
	}

	return n, nil
}

func (n *TextNode) Handles() protocol.Handles { return n.handles() }

func (n *TextNode) Enter(_ context.Context, rt *protocol.Runtime) (protocol.Result, error) {
	extra := map[string]any{}
	if n.bounds.MinLength != nil {
		extra["min_length"] = *n.bounds.MinLength
	}

	if n.bounds.MaxLength != nil {
		extra["max_length"] = *n.bounds.MaxLength
	}

	if n.bounds.Pattern != "" {
		extra["pattern"] = n.bounds.Pattern
	}

	return protocol.Suspend(models.WaitTypeText, n.payload(extra), n.deadline(rt.Now)), nil
}

func (n *TextNode) Resume(ctx context.Context, rt *protocol.Runtime, event *models.InboundEvent) (protocol.Result, error) {
	if event.Kind != models.EventKindText {
		return n.mismatch(ctx, rt, "expected text, got "+string(event.Kind))
	}

	value, reason := n.check(strings.TrimSpace(event.Text))
	if reason != "" {
		return n.mismatch(ctx, rt, reason)
	}

	return protocol.Advance(models.HandleDefault).WithVariables(map[string]any{n.SaveAs: value}), nil
}

func (n *TextNode) check(text string) (any, string) {
	length := utf8.RuneCountInString(text)

	if n.bounds.MinLength != nil && length < *n.bounds.MinLength {
		return nil, fmt.Sprintf("text shorter than %d", *n.bounds.MinLength)
	}

	if n.bounds.MaxLength != nil && length > *n.bounds.MaxLength {
		return nil, fmt.Sprintf("text longer than %d", *n.bounds.MaxLength)
	}

	if n.pattern != nil && !n.pattern.MatchString(text) {
		return nil, "text does not match pattern"
	}

	if n.bounds.Min == nil && n.bounds.Max == nil {
		return text, ""
	}

	num, err := cast.ToFloat64E(strings.ReplaceAll(text, ",", "."))
	if err != nil {
		return nil, "text is not a number"
	}

	if n.bounds.Min != nil && num < *n.bounds.Min {
		return nil, fmt.Sprintf("number below %v", *n.bounds.Min)
	}

	if n.bounds.Max != nil && num > *n.bounds.Max {
		return nil, fmt.Sprintf("number above %v", *n.bounds.Max)
	}

	return num, ""
}
