package repositories

import (
	"context"
	"time"

	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/database"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository reads user credentials from Postgres. The service never
// writes to it aside from the one-time seed bootstrap.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, created_at, updated_at
		FROM users WHERE username = $1
	`

	var user models.User
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.PasswordHash,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

// Create inserts a user. Used only by the seed bootstrap at startup;
// accounts are otherwise provisioned out-of-band.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, username, password_hash, created_at, updated_at
	`

	now := time.Now()
	id := user.ID
	if id == "" {
		id = uuid.New().String()
	}

	var created models.User
	err := r.pool.QueryRow(ctx, query, id, user.Username, user.PasswordHash, now, now).Scan(
		&created.ID, &created.Username, &created.PasswordHash,
		&created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &created, nil
}
