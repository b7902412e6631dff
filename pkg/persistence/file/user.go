package file

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/google/uuid"
)

const (
	projectsDir = "projects"
	usersDir    = "users"
	bonusDir    = "bonus"
)

type ProjectRepository struct {
	store *store
}

func (pr *ProjectRepository) GetByID(_ context.Context, id string) (*models.Project, error) {
	pr.store.mu.RLock()
	defer pr.store.mu.RUnlock()

	var project models.Project

	found, err := pr.store.read(projectsDir, id, &project)
	if err != nil {
		return nil, persistence.NewProjectError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewProjectError("GetByID", id, persistence.ErrProjectNotFound)
	}

	return &project, nil
}

func (pr *ProjectRepository) Save(_ context.Context, project *models.Project) error {
	pr.store.mu.Lock()
	defer pr.store.mu.Unlock()

	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}

	err := pr.store.write(projectsDir, project.ID, project)
	if err != nil {
		return persistence.NewProjectError("Save", project.ID, err)
	}

	return nil
}

// UserRepository keeps one document per user and one ledger document per user.
type UserRepository struct {
	store *store
}

func (ur *UserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	ur.store.mu.RLock()
	defer ur.store.mu.RUnlock()

	var user models.User

	found, err := ur.store.read(usersDir, id, &user)
	if err != nil {
		return nil, persistence.NewUserError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewUserError("GetByID", id, persistence.ErrUserNotFound)
	}

	return &user, nil
}

func (ur *UserRepository) GetByChannel(_ context.Context, projectID, channelID string) (*models.User, error) {
	ur.store.mu.RLock()
	defer ur.store.mu.RUnlock()

	user, err := ur.byChannel(projectID, channelID)
	if err != nil {
		return nil, persistence.NewUserError("GetByChannel", "", err)
	}

	if user == nil {
		return nil, persistence.NewUserError("GetByChannel", "", persistence.ErrUserNotFound)
	}

	return user, nil
}

func (ur *UserRepository) byChannel(projectID, channelID string) (*models.User, error) {
	users, err := readAll[models.User](ur.store, usersDir)
	if err != nil {
		return nil, err
	}

	for _, u := range users {
		if u.ProjectID == projectID && u.ChannelID == channelID {
			return u, nil
		}
	}

	return nil, nil
}

func (ur *UserRepository) Create(_ context.Context, user *models.User) error {
	ur.store.mu.Lock()
	defer ur.store.mu.Unlock()

	existing, err := ur.byChannel(user.ProjectID, user.ChannelID)
	if err != nil {
		return persistence.NewUserError("Create", user.ID, err)
	}

	if existing != nil {
		return persistence.NewUserError("Create", existing.ID, persistence.ErrUserAlreadyExists)
	}

	if user.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate user ID: %w", err)
		}

		user.ID = id.String()
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	user.UpdatedAt = now

	err = ur.store.write(usersDir, user.ID, user)
	if err != nil {
		return persistence.NewUserError("Create", user.ID, err)
	}

	return nil
}

func (ur *UserRepository) Update(_ context.Context, user *models.User) error {
	ur.store.mu.Lock()
	defer ur.store.mu.Unlock()

	var current models.User

	found, err := ur.store.read(usersDir, user.ID, &current)
	if err != nil {
		return persistence.NewUserError("Update", user.ID, err)
	}

	if !found {
		return persistence.NewUserError("Update", user.ID, persistence.ErrUserNotFound)
	}

	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = time.Now().UTC()

	err = ur.store.write(usersDir, user.ID, user)
	if err != nil {
		return persistence.NewUserError("Update", user.ID, err)
	}

	return nil
}

func (ur *UserRepository) ledger(userID string) ([]*models.BonusTransaction, error) {
	var txs []*models.BonusTransaction

	_, err := ur.store.read(bonusDir, userID, &txs)
	if err != nil {
		return nil, err
	}

	return txs, nil
}

func (ur *UserRepository) appendTx(tx *models.BonusTransaction, txs []*models.BonusTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	return ur.store.write(bonusDir, tx.UserID, append(txs, tx))
}

func (ur *UserRepository) AddBonus(_ context.Context, tx *models.BonusTransaction) (bool, error) {
	ur.store.mu.Lock()
	defer ur.store.mu.Unlock()

	txs, err := ur.ledger(tx.UserID)
	if err != nil {
		return false, persistence.NewUserError("AddBonus", tx.UserID, err)
	}

	if tx.IdempotencyKey != "" {
		for _, existing := range txs {
			if existing.IdempotencyKey == tx.IdempotencyKey {
				return false, nil
			}
		}
	}

	err = ur.appendTx(tx, txs)
	if err != nil {
		return false, persistence.NewUserError("AddBonus", tx.UserID, err)
	}

	return true, nil
}

func (ur *UserRepository) SpendBonus(_ context.Context, tx *models.BonusTransaction, now time.Time) error {
	ur.store.mu.Lock()
	defer ur.store.mu.Unlock()

	txs, err := ur.ledger(tx.UserID)
	if err != nil {
		return persistence.NewUserError("SpendBonus", tx.UserID, err)
	}

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}

	if models.Balance(txs, now)+tx.Amount < 0 {
		return persistence.NewUserError("SpendBonus", tx.UserID, persistence.ErrInsufficientBalance)
	}

	err = ur.appendTx(tx, txs)
	if err != nil {
		return persistence.NewUserError("SpendBonus", tx.UserID, err)
	}

	return nil
}

func (ur *UserRepository) ListBonus(_ context.Context, userID string) ([]*models.BonusTransaction, error) {
	ur.store.mu.RLock()
	defer ur.store.mu.RUnlock()

	txs, err := ur.ledger(userID)
	if err != nil {
		return nil, persistence.NewUserError("ListBonus", userID, err)
	}

	if txs == nil {
		txs = make([]*models.BonusTransaction, 0)
	}

	return txs, nil
}

func (ur *UserRepository) CountReferrals(_ context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, nil
	}

	ur.store.mu.RLock()
	defer ur.store.mu.RUnlock()

	users, err := readAll[models.User](ur.store, usersDir)
	if err != nil {
		return 0, persistence.NewUserError("CountReferrals", userID, err)
	}

	var count int64

	for _, u := range users {
		if u.ReferrerID == userID {
			count++
		}
	}

	return count, nil
}
