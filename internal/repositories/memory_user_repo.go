package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/models"
	"github.com/google/uuid"
)

// MemoryUserRepository is an in-process credential store for deployments
// without Postgres and for tests. Users are seeded at startup.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[string]*models.User),
	}
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[username]
	if !ok {
		return nil, models.ErrNotFound
	}

	copied := *user
	return &copied, nil
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.Username]; exists {
		return nil, models.ErrConflict
	}

	now := time.Now()
	stored := &models.User{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}

	r.users[user.Username] = stored
	copied := *stored
	return &copied, nil
}
