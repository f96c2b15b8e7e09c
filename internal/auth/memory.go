package auth

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process concurrency safety. It backs the
// API when no database DSN is configured, and the handler tests.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byName  map[string]string // username -> id
	byEmail map[string]string // email -> id
}

// NewInMemory creates an empty user store.
func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[string]*User),
		byName:  make(map[string]string),
		byEmail: make(map[string]string),
	}
}

func (s *InMemory) Users(ctx context.Context) UserStore { return s }

func (s *InMemory) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[u.Username]; exists {
		return ErrConflict
	}
	if _, exists := s.byEmail[u.Email]; exists {
		return ErrConflict
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.byID[u.ID] = &cp
	s.byName[u.Username] = u.ID
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *InMemory) Find(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemory) FindByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *InMemory) FindByLogin(ctx context.Context, identifier string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[identifier]
	if !ok {
		id, ok = s.byEmail[identifier]
	}
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *InMemory) UpdateRefreshToken(ctx context.Context, userID, tokenHash string) error {
	return s.update(userID, func(u *User) {
		u.RefreshTokenHash = tokenHash
	})
}

func (s *InMemory) ClearRefreshToken(ctx context.Context, userID string) error {
	return s.update(userID, func(u *User) {
		u.RefreshTokenHash = ""
	})
}

func (s *InMemory) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return s.update(userID, func(u *User) {
		u.PasswordHash = passwordHash
	})
}

func (s *InMemory) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return ErrNotFound
	}
	if update.Email != nil && *update.Email != u.Email {
		if _, exists := s.byEmail[*update.Email]; exists {
			return ErrConflict
		}
		delete(s.byEmail, u.Email)
		u.Email = *update.Email
		s.byEmail[u.Email] = userID
	}
	if update.FullName != nil {
		u.FullName = *update.FullName
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemory) UpdateAvatar(ctx context.Context, userID, avatarURL string) error {
	return s.update(userID, func(u *User) {
		u.AvatarURL = avatarURL
	})
}

func (s *InMemory) UpdateCoverImage(ctx context.Context, userID, coverURL string) error {
	return s.update(userID, func(u *User) {
		u.CoverImageURL = coverURL
	})
}

func (s *InMemory) update(userID string, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}
