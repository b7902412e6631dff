// Package query implements the catalogue of named domain operations that
// action nodes invoke. It is the single place where business rules on users
// and bonuses are enforced.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/dukex/botflow/pkg/protocol"
	"github.com/jonboulle/clockwork"
)

var (
	ErrUnknownQuery = errors.New("unknown query")
	ErrInvalidParam = errors.New("invalid query parameter")
	ErrNoMessenger  = errors.New("no messenger configured")
)

// ExpiringWindow is how far ahead expiring bonuses are reported.
const ExpiringWindow = 7 * 24 * time.Hour

// welcomeKey makes the welcome grant idempotent per user.
const welcomeKey = "welcome"

// Messenger delivers outbound messages to a chat.
type Messenger interface {
	Send(ctx context.Context, msg *models.OutboundMessage) error
}

// Session identifies the chat a query runs for. Parameters that name a
// project, channel or user default to it.
type Session struct {
	ProjectID string
	ChatID    string
	UserID    string
}

// Error wraps a failure of one named query.
type Error struct {
	Query string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("query %s failed: %v", e.Query, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type handler func(ctx context.Context, s Session, p params) (map[string]any, error)

// Executor dispatches named queries against the user repository and the messenger.
type Executor struct {
	logger    *slog.Logger
	users     persistence.UserRepository
	messenger Messenger
	clock     clockwork.Clock
	handlers  map[string]handler
}

// NewExecutor creates the executor with the built-in catalogue.
func NewExecutor(logger *slog.Logger, users persistence.UserRepository, messenger Messenger, clock clockwork.Clock) *Executor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	e := &Executor{
		logger:    logger.With("module", "query"),
		users:     users,
		messenger: messenger,
		clock:     clock,
	}

	e.handlers = map[string]handler{
		models.QueryCheckUserByChannel: e.checkUserByChannel,
		models.QueryCreateUser:         e.createUser,
		models.QueryUpdateUser:         e.updateUser,
		models.QueryAddBonus:           e.addBonus,
		models.QuerySpendBonus:         e.spendBonus,
		models.QueryGetUserBalance:     e.getUserBalance,
		models.QueryGetReferralStats:   e.getReferralStats,
		models.QuerySendMessage:        e.sendMessage,
	}

	return e
}

// Names lists the catalogue in alphabetical order.
func (e *Executor) Names() []string {
	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Run executes one named query for a session.
func (e *Executor) Run(ctx context.Context, s Session, name string, raw map[string]any) (map[string]any, error) {
	h, ok := e.handlers[name]
	if !ok {
		return nil, &Error{Query: name, Err: ErrUnknownQuery}
	}

	result, err := h(ctx, s, params(raw))
	if err != nil {
		e.logger.DebugContext(ctx, "query failed", "query", name, "chat_id", s.ChatID, "error", err)

		return nil, &Error{Query: name, Err: err}
	}

	return result, nil
}

// Bind returns a runner scoped to the session, as handed to node handlers.
func (e *Executor) Bind(s Session) protocol.QueryRunner {
	return &boundRunner{executor: e, session: s}
}

type boundRunner struct {
	executor *Executor
	session  Session
}

func (b *boundRunner) Run(ctx context.Context, name string, p map[string]any) (map[string]any, error) {
	return b.executor.Run(ctx, b.session, name, p)
}

// UserVariables computes the user.* variables of a session. A chat without a
// registered user yields an empty set.
func (e *Executor) UserVariables(ctx context.Context, s Session) (map[string]any, error) {
	user, err := e.users.GetByChannel(ctx, s.ProjectID, s.ChatID)
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			return map[string]any{}, nil
		}

		return nil, err
	}

	txs, err := e.users.ListBonus(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	referrals, err := e.users.CountReferrals(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()

	vars := userFields(user)
	vars["balance"] = models.Balance(txs, now)
	vars["expiring_bonus"] = models.ExpiringWithin(txs, now, ExpiringWindow)
	vars["referral_count"] = referrals

	return vars, nil
}

func userFields(u *models.User) map[string]any {
	fields := map[string]any{
		"id":         u.ID,
		"name":       strings.TrimSpace(u.FirstName + " " + u.LastName),
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"username":   u.Username,
		"phone":      u.Phone,
		"channel_id": u.ChannelID,
	}

	if u.ReferrerID != "" {
		fields["referrer_id"] = u.ReferrerID
	}

	if len(u.Attributes) > 0 {
		fields["attributes"] = u.Attributes
	}

	return fields
}
