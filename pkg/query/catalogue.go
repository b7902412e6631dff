package query

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
)

func (e *Executor) lookup(ctx context.Context, s Session, p params) (*models.User, error) {
	if p.has("user_id") {
		id, err := p.str("user_id", "")
		if err != nil {
			return nil, err
		}

		return e.users.GetByID(ctx, id)
	}

	channel, err := p.requiredString("channel_id", s.ChatID)
	if err != nil {
		return nil, err
	}

	return e.users.GetByChannel(ctx, s.ProjectID, channel)
}

func (e *Executor) checkUserByChannel(ctx context.Context, s Session, p params) (map[string]any, error) {
	user, err := e.lookup(ctx, s, p)
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			return map[string]any{"exists": false}, nil
		}

		return nil, err
	}

	return map[string]any{"exists": true, "user": userFields(user)}, nil
}

// createUser registers the chat's user. Registering an existing channel
// returns the stored user with created=false.
func (e *Executor) createUser(ctx context.Context, s Session, p params) (map[string]any, error) {
	channel, err := p.requiredString("channel_id", s.ChatID)
	if err != nil {
		return nil, err
	}

	user := &models.User{ProjectID: s.ProjectID, ChannelID: channel}

	for key, dst := range map[string]*string{
		"username":    &user.Username,
		"first_name":  &user.FirstName,
		"last_name":   &user.LastName,
		"phone":       &user.Phone,
		"referrer_id": &user.ReferrerID,
	} {
		*dst, err = p.str(key, "")
		if err != nil {
			return nil, err
		}
	}

	user.Attributes, err = p.attributes("attributes")
	if err != nil {
		return nil, err
	}

	if user.ReferrerID != "" {
		_, err = e.users.GetByID(ctx, user.ReferrerID)
		if errors.Is(err, persistence.ErrUserNotFound) {
			user.ReferrerID = ""
		} else if err != nil {
			return nil, err
		}
	}

	err = e.users.Create(ctx, user)
	if errors.Is(err, persistence.ErrUserAlreadyExists) {
		existing, getErr := e.users.GetByChannel(ctx, s.ProjectID, channel)
		if getErr != nil {
			return nil, getErr
		}

		return map[string]any{"user_id": existing.ID, "created": false, "user": userFields(existing)}, nil
	}

	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "user created", "user_id", user.ID, "channel_id", channel)

	return map[string]any{"user_id": user.ID, "created": true, "user": userFields(user)}, nil
}

// updateUser overwrites the given profile fields and merges attributes.
func (e *Executor) updateUser(ctx context.Context, s Session, p params) (map[string]any, error) {
	user, err := e.lookup(ctx, s, p)
	if err != nil {
		return nil, err
	}

	for key, dst := range map[string]*string{
		"username":   &user.Username,
		"first_name": &user.FirstName,
		"last_name":  &user.LastName,
		"phone":      &user.Phone,
	} {
		if !p.has(key) {
			continue
		}

		*dst, err = p.str(key, "")
		if err != nil {
			return nil, err
		}
	}

	attributes, err := p.attributes("attributes")
	if err != nil {
		return nil, err
	}

	if len(attributes) > 0 {
		if user.Attributes == nil {
			user.Attributes = make(map[string]any, len(attributes))
		}

		maps.Copy(user.Attributes, attributes)
	}

	err = e.users.Update(ctx, user)
	if err != nil {
		return nil, err
	}

	return map[string]any{"user_id": user.ID, "updated": true, "user": userFields(user)}, nil
}

// addBonus grants a positive amount. A welcome grant, or any grant carrying
// an idempotency key, is recorded at most once per user.
func (e *Executor) addBonus(ctx context.Context, s Session, p params) (map[string]any, error) {
	user, err := e.lookup(ctx, s, p)
	if err != nil {
		return nil, err
	}

	amount, err := p.positive("amount")
	if err != nil {
		return nil, err
	}

	reason, err := p.str("reason", "bonus")
	if err != nil {
		return nil, err
	}

	key, err := p.str("idempotency_key", "")
	if err != nil {
		return nil, err
	}

	welcome, err := p.flag("welcome")
	if err != nil {
		return nil, err
	}

	if welcome || reason == welcomeKey {
		key = welcomeKey
		reason = welcomeKey
	}

	days, err := p.integer("expires_in_days", 0)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()

	tx := &models.BonusTransaction{
		ProjectID:      user.ProjectID,
		UserID:         user.ID,
		Amount:         amount,
		Reason:         reason,
		IdempotencyKey: key,
		CreatedAt:      now,
	}

	if days > 0 {
		expires := now.Add(time.Duration(days) * 24 * time.Hour)
		tx.ExpiresAt = &expires
	}

	added, err := e.users.AddBonus(ctx, tx)
	if err != nil {
		return nil, err
	}

	balance, _, err := e.balance(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return map[string]any{"added": added, "amount": amount, "balance": balance}, nil
}

func (e *Executor) spendBonus(ctx context.Context, s Session, p params) (map[string]any, error) {
	user, err := e.lookup(ctx, s, p)
	if err != nil {
		return nil, err
	}

	amount, err := p.positive("amount")
	if err != nil {
		return nil, err
	}

	reason, err := p.str("reason", "spend")
	if err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()

	err = e.users.SpendBonus(ctx, &models.BonusTransaction{
		ProjectID: user.ProjectID,
		UserID:    user.ID,
		Amount:    -amount,
		Reason:    reason,
		CreatedAt: now,
	}, now)
	if err != nil {
		return nil, err
	}

	balance, _, err := e.balance(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return map[string]any{"spent": amount, "balance": balance}, nil
}

func (e *Executor) getUserBalance(ctx context.Context, s Session, p params) (map[string]any, error) {
	user, err := e.lookup(ctx, s, p)
	if err != nil {
		return nil, err
	}

	balance, expiring, err := e.balance(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return map[string]any{"balance": balance, "expiring_bonus": expiring}, nil
}

func (e *Executor) getReferralStats(ctx context.Context, s Session, p params) (map[string]any, error) {
	user, err := e.lookup(ctx, s, p)
	if err != nil {
		return nil, err
	}

	count, err := e.users.CountReferrals(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return map[string]any{"referral_count": count}, nil
}

func (e *Executor) sendMessage(ctx context.Context, s Session, p params) (map[string]any, error) {
	if e.messenger == nil {
		return nil, ErrNoMessenger
	}

	chat, err := p.requiredString("chat_id", s.ChatID)
	if err != nil {
		return nil, err
	}

	msg := &models.OutboundMessage{ProjectID: s.ProjectID, ChatID: chat}

	msg.Text, err = p.requiredString("text", "")
	if err != nil {
		return nil, err
	}

	msg.Buttons, err = p.buttons("buttons")
	if err != nil {
		return nil, err
	}

	msg.RequestContact, err = p.flag("request_contact")
	if err != nil {
		return nil, err
	}

	msg.ContactButton, err = p.str("contact_button", "")
	if err != nil {
		return nil, err
	}

	err = e.messenger.Send(ctx, msg)
	if err != nil {
		return nil, err
	}

	return map[string]any{"sent": true}, nil
}

func (e *Executor) balance(ctx context.Context, userID string) (int64, int64, error) {
	txs, err := e.users.ListBonus(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	now := e.clock.Now()

	return models.Balance(txs, now), models.ExpiringWithin(txs, now, ExpiringWindow), nil
}
