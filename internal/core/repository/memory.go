package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/duynhne/identity-service/internal/core/domain"
)

// MemoryUserRepository is an in-process domain.UserRepository. Each method
// holds the mutex for its whole duration, which makes every mutation atomic
// in the same way a single SQL statement is.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]domain.User // by ID
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]domain.User)}
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(u domain.User) bool { return u.Email == email }), nil
}

func (r *MemoryUserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(u domain.User) bool { return u.Username == username }), nil
}

func (r *MemoryUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	u, err := r.GetByEmail(ctx, email)
	return u != nil, err
}

func (r *MemoryUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	u, err := r.GetByUsername(ctx, username)
	return u != nil, err
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.find(func(u domain.User) bool { return u.Email == user.Email }) != nil {
		return domain.ErrDuplicateEmail
	}
	if r.find(func(u domain.User) bool { return u.Username == user.Username }) != nil {
		return domain.ErrDuplicateUsername
	}
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, email, passwordHash string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.find(func(u domain.User) bool { return u.Email == email })
	if u == nil {
		return domain.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = updatedAt
	r.users[u.ID] = *u
	return nil
}

func (r *MemoryUserRepository) Ping(context.Context) error { return nil }

// find must be called with r.mu held.
func (r *MemoryUserRepository) find(match func(domain.User) bool) *domain.User {
	for _, u := range r.users {
		if match(u) {
			return &u
		}
	}
	return nil
}

// MemorySessionRepository is an in-process domain.SessionRepository.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]domain.Session // by token hash
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]domain.Session)}
}

func (r *MemorySessionRepository) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.TokenHash]; ok {
		return domain.ErrDuplicate
	}
	r.sessions[s.TokenHash] = *s
	return nil
}

func (r *MemorySessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[tokenHash]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MemorySessionRepository) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, tokenHash)
	return nil
}

func (r *MemorySessionRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, k)
			n++
		}
	}
	return n, nil
}

func (r *MemorySessionRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, s := range r.sessions {
		if s.IsExpiredAt(now) {
			delete(r.sessions, k)
			n++
		}
	}
	return n, nil
}

// CountForUser returns how many sessions the user currently holds.
func (r *MemorySessionRepository) CountForUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

// MemoryResetRepository is an in-process domain.PasswordResetRepository.
type MemoryResetRepository struct {
	mu      sync.Mutex
	records []domain.PasswordResetRecord
}

func NewMemoryResetRepository() *MemoryResetRepository {
	return &MemoryResetRepository{}
}

func (r *MemoryResetRepository) Create(_ context.Context, rec *domain.PasswordResetRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, *rec)
	return nil
}

func (r *MemoryResetRepository) FindLive(_ context.Context, email, code string, now time.Time) (*domain.PasswordResetRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if rec.Email == email && rec.Code == code && rec.IsLiveAt(now) {
			return &rec, nil
		}
	}
	return nil, nil
}

func (r *MemoryResetRepository) ConsumeLive(_ context.Context, email, code string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	consumed := false
	for i := range r.records {
		rec := &r.records[i]
		if rec.Email == email && rec.Code == code && rec.IsLiveAt(now) {
			rec.Used = true
			consumed = true
		}
	}
	return consumed, nil
}

func (r *MemoryResetRepository) ListByEmail(_ context.Context, email string) ([]domain.PasswordResetRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.PasswordResetRecord
	for _, rec := range r.records {
		if rec.Email == email {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryResetRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records[:0]
	var n int64
	for _, rec := range r.records {
		if !now.Before(rec.ExpiresAt) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return n, nil
}
