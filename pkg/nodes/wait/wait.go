// Package wait provides the flow control nodes that suspend an execution
// until the next inbound event or a deadline.
package wait

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

const (
	MismatchIgnore   = "ignore"
	MismatchFallback = "fallback"
)

// Options are shared by every wait node.
type Options struct {
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	OnMismatch     string `json:"on_mismatch,omitempty"`
	Reprompt       string `json:"reprompt,omitempty"`
	SaveAs         string `json:"save_as,omitempty"`
}

func (o *Options) validate() error {
	if o.TimeoutSeconds < 0 {
		return errors.New("timeout_seconds must not be negative")
	}

	switch o.OnMismatch {
	case "":
		o.OnMismatch = MismatchIgnore
	case MismatchIgnore, MismatchFallback:
	default:
		return errors.New("on_mismatch must be 'ignore' or 'fallback'")
	}

	return nil
}

func (o *Options) handles(extra ...string) protocol.Handles {
	h := protocol.Handles{Optional: append([]string{models.HandleDefault}, extra...)}

	if o.TimeoutSeconds > 0 {
		h.Required = append(h.Required, models.HandleTimeout)
	}

	if o.OnMismatch == MismatchFallback {
		h.Required = append(h.Required, models.HandleFallback)
	}

	return h
}

func (o *Options) deadline(now time.Time) *time.Time {
	if o.TimeoutSeconds <= 0 {
		return nil
	}

	d := now.Add(time.Duration(o.TimeoutSeconds) * time.Second)

	return &d
}

// mismatch handles input that does not satisfy the wait: either re-prompt and
// stay put, or leave along the fallback edge.
func (o *Options) mismatch(ctx context.Context, rt *protocol.Runtime, reason string) (protocol.Result, error) {
	if o.OnMismatch == MismatchFallback {
		return protocol.Advance(models.HandleFallback).WithData(map[string]any{"mismatch": reason}), nil
	}

	if o.Reprompt != "" && rt.Queries != nil {
		text, err := rt.Render(o.Reprompt)
		if err != nil {
			return protocol.Result{}, err
		}

		_, err = rt.Queries.Run(ctx, models.QuerySendMessage, map[string]any{"text": text})
		if err != nil && rt.Logger != nil {
			rt.Logger.WarnContext(ctx, "Failed to send reprompt", "error", err)
		}
	}

	return protocol.Ignore(reason), nil
}

// Expire follows the timeout edge.
func (o *Options) Expire(_ context.Context, _ *protocol.Runtime) (protocol.Result, error) {
	return protocol.Advance(models.HandleTimeout).WithData(map[string]any{"timed_out": true}), nil
}

func (o *Options) payload(extra map[string]any) map[string]any {
	p := map[string]any{"on_mismatch": o.OnMismatch}
	if o.SaveAs != "" {
		p["save_as"] = o.SaveAs
	}

	for k, v := range extra {
		p[k] = v
	}

	return p
}

func decode(node *models.Node, out any, opts *Options) error {
	if err := protocol.DecodeConfig(node, out); err != nil {
		return err
	}

	return opts.validate()
}
