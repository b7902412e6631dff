package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures.
const uniqueViolation = "23505"

type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	var (
		project   models.Project
		variables []byte
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, variables, created_at FROM projects WHERE id = $1", id,
	).Scan(&project.ID, &project.Name, &variables, &project.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewProjectError("GetByID", id, persistence.ErrProjectNotFound)
		}

		return nil, persistence.NewProjectError("GetByID", id, fmt.Errorf("failed to scan project: %w", err))
	}

	err = unmarshalColumn(variables, &project.Variables, "variables")
	if err != nil {
		return nil, persistence.NewProjectError("GetByID", id, err)
	}

	return &project, nil
}

func (r *ProjectRepository) Save(ctx context.Context, project *models.Project) error {
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}

	variables, err := json.Marshal(models.CopyVariables(project.Variables))
	if err != nil {
		return persistence.NewProjectError("Save", project.ID, fmt.Errorf("failed to marshal variables: %w", err))
	}

	query := `
		INSERT INTO projects (id, name, variables, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			variables = EXCLUDED.variables
	`

	_, err = r.db.ExecContext(ctx, query, project.ID, project.Name, variables, project.CreatedAt)
	if err != nil {
		return persistence.NewProjectError("Save", project.ID, fmt.Errorf("failed to save project: %w", err))
	}

	return nil
}

// UserRepository handles chat users and the bonus ledger.
type UserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewUserRepository(db *sql.DB, logger *slog.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

const userColumns = `
			id
		  , project_id
		  , channel_id
		  , username
		  , first_name
		  , last_name
		  , phone
		  , referrer_id
		  , attributes
		  , created_at
		  , updated_at`

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.get(ctx, "GetByID", id, "SELECT"+userColumns+" FROM users WHERE id = $1", id)
}

func (r *UserRepository) GetByChannel(ctx context.Context, projectID, channelID string) (*models.User, error) {
	return r.get(ctx, "GetByChannel", "",
		"SELECT"+userColumns+" FROM users WHERE project_id = $1 AND channel_id = $2", projectID, channelID)
}

func (r *UserRepository) get(ctx context.Context, op, id, query string, args ...any) (*models.User, error) {
	var (
		user       models.User
		attributes []byte
	)

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.ProjectID,
		&user.ChannelID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.ReferrerID,
		&attributes,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewUserError(op, id, persistence.ErrUserNotFound)
		}

		return nil, persistence.NewUserError(op, id, fmt.Errorf("failed to scan user: %w", err))
	}

	err = unmarshalColumn(attributes, &user.Attributes, "attributes")
	if err != nil {
		return nil, persistence.NewUserError(op, id, err)
	}

	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
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

	attributes, err := json.Marshal(user.Attributes)
	if err != nil {
		return persistence.NewUserError("Create", user.ID, fmt.Errorf("failed to marshal attributes: %w", err))
	}

	query := `
		INSERT INTO users (id, project_id, channel_id, username, first_name, last_name,
			phone, referrer_id, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		user.ID,
		user.ProjectID,
		user.ChannelID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.ReferrerID,
		attributes,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewUserError("Create", user.ID, persistence.ErrUserAlreadyExists)
		}

		return persistence.NewUserError("Create", user.ID, fmt.Errorf("failed to insert user: %w", err))
	}

	return nil
}

func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()

	attributes, err := json.Marshal(user.Attributes)
	if err != nil {
		return persistence.NewUserError("Update", user.ID, fmt.Errorf("failed to marshal attributes: %w", err))
	}

	query := `
		UPDATE users SET
			username = $2,
			first_name = $3,
			last_name = $4,
			phone = $5,
			referrer_id = $6,
			attributes = $7,
			updated_at = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.ReferrerID,
		attributes,
		user.UpdatedAt,
	)
	if err != nil {
		return persistence.NewUserError("Update", user.ID, fmt.Errorf("failed to update user: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewUserError("Update", user.ID, err)
	}

	if affected == 0 {
		return persistence.NewUserError("Update", user.ID, persistence.ErrUserNotFound)
	}

	return nil
}

const insertBonus = `
		INSERT INTO bonus_transactions (id, project_id, user_id, amount, reason,
			idempotency_key, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

func prepareBonus(tx *models.BonusTransaction) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
}

func bonusArgs(tx *models.BonusTransaction) []any {
	return []any{tx.ID, tx.ProjectID, tx.UserID, tx.Amount, tx.Reason, tx.IdempotencyKey, tx.ExpiresAt, tx.CreatedAt}
}

func (r *UserRepository) AddBonus(ctx context.Context, tx *models.BonusTransaction) (bool, error) {
	prepareBonus(tx)

	query := insertBonus + `
		ON CONFLICT (user_id, idempotency_key) WHERE idempotency_key <> '' DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, bonusArgs(tx)...)
	if err != nil {
		return false, persistence.NewUserError("AddBonus", tx.UserID, fmt.Errorf("failed to insert bonus: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewUserError("AddBonus", tx.UserID, err)
	}

	return affected == 1, nil
}

// SpendBonus locks the user row so concurrent spends observe each other.
func (r *UserRepository) SpendBonus(ctx context.Context, bonus *models.BonusTransaction, now time.Time) error {
	if bonus.CreatedAt.IsZero() {
		bonus.CreatedAt = now
	}

	prepareBonus(bonus)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var userID string

	err = tx.QueryRowContext(ctx, "SELECT id FROM users WHERE id = $1 FOR UPDATE", bonus.UserID).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewUserError("SpendBonus", bonus.UserID, persistence.ErrUserNotFound)
		}

		return persistence.NewUserError("SpendBonus", bonus.UserID, fmt.Errorf("failed to lock user: %w", err))
	}

	ledger, err := listBonus(ctx, tx, r.logger, userID)
	if err != nil {
		return persistence.NewUserError("SpendBonus", bonus.UserID, err)
	}

	if models.Balance(ledger, now)+bonus.Amount < 0 {
		err = persistence.ErrInsufficientBalance

		return persistence.NewUserError("SpendBonus", bonus.UserID, err)
	}

	_, err = tx.ExecContext(ctx, insertBonus, bonusArgs(bonus)...)
	if err != nil {
		return persistence.NewUserError("SpendBonus", bonus.UserID, fmt.Errorf("failed to insert bonus: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewUserError("SpendBonus", bonus.UserID, fmt.Errorf("failed to commit: %w", err))
	}

	return nil
}

func (r *UserRepository) ListBonus(ctx context.Context, userID string) ([]*models.BonusTransaction, error) {
	txs, err := listBonus(ctx, r.db, r.logger, userID)
	if err != nil {
		return nil, persistence.NewUserError("ListBonus", userID, err)
	}

	return txs, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listBonus(ctx context.Context, db querier, logger *slog.Logger, userID string) ([]*models.BonusTransaction, error) {
	query := `
		SELECT id, project_id, user_id, amount, reason, idempotency_key, expires_at, created_at
		FROM bonus_transactions
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bonus transactions: %w", err)
	}

	defer closeRows(ctx, logger, rows)

	txs := make([]*models.BonusTransaction, 0)

	for rows.Next() {
		var tx models.BonusTransaction

		err := rows.Scan(&tx.ID, &tx.ProjectID, &tx.UserID, &tx.Amount, &tx.Reason, &tx.IdempotencyKey, &tx.ExpiresAt, &tx.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bonus transaction: %w", err)
		}

		txs = append(txs, &tx)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating bonus transactions: %w", err)
	}

	return txs, nil
}

func (r *UserRepository) CountReferrals(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, nil
	}

	var count int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE referrer_id = $1", userID).Scan(&count)
	if err != nil {
		return 0, persistence.NewUserError("CountReferrals", userID, fmt.Errorf("failed to count referrals: %w", err))
	}

	return count, nil
}
