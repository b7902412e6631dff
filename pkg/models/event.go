package models

import (
	"strings"
	"time"
)

// EventKind classifies an inbound chat event.
type EventKind string

const (
	EventKindCommand  EventKind = "command"
	EventKindText     EventKind = "text"
	EventKindCallback EventKind = "callback"
	EventKindContact  EventKind = "contact"
)

// Contact is a shared contact card.
type Contact struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	UserID      string `json:"user_id,omitempty"`
}

// InboundEvent is a transport-agnostic message from a chat partner.
type InboundEvent struct {
	ID           string         `json:"id,omitempty"`
	ProjectID    string         `json:"project_id"              validate:"required"`
	ChatID       string         `json:"chat_id"                 validate:"required"`
	UserID       string         `json:"user_id,omitempty"`
	Username     string         `json:"username,omitempty"`
	FirstName    string         `json:"first_name,omitempty"`
	Kind         EventKind      `json:"kind"                    validate:"required,oneof=command text callback contact"`
	Text         string         `json:"text,omitempty"`
	CallbackData string         `json:"callback_data,omitempty"`
	Contact      *Contact       `json:"contact,omitempty"       validate:"required_if=Kind contact"`
	Payload      map[string]any `json:"payload,omitempty"`
	ReceivedAt   time.Time      `json:"received_at"`
}

// Command splits a command event into its name, without the leading slash and
// any @botname suffix, and its arguments.
func (e *InboundEvent) Command() (string, []string) {
	text := strings.TrimSpace(e.Text)
	if e.Kind != EventKindCommand || !strings.HasPrefix(text, "/") {
		return "", nil
	}

	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")

	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}

	return strings.ToLower(name), fields[1:]
}

// EventVariablePrefix namespaces the variables taken from the current event.
const EventVariablePrefix = "event."

// Variables exposes the event under the "event" namespace.
func (e *InboundEvent) Variables() map[string]any {
	vars := map[string]any{
		"event.kind":    string(e.Kind),
		"event.text":    e.Text,
		"event.chat_id": e.ChatID,
		"event.user_id": e.UserID,
	}

	if e.Username != "" {
		vars["event.username"] = e.Username
	}

	if e.FirstName != "" {
		vars["event.first_name"] = e.FirstName
	}

	if name, args := e.Command(); name != "" {
		vars["event.command"] = name
		vars["event.args"] = strings.Join(args, " ")
	}

	if e.CallbackData != "" {
		vars["event.callback_data"] = e.CallbackData
	}

	if e.Contact != nil {
		vars["event.contact.phone_number"] = e.Contact.PhoneNumber
		vars["event.contact.first_name"] = e.Contact.FirstName
		vars["event.contact.last_name"] = e.Contact.LastName
	}

	return vars
}
