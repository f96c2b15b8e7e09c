package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
}

// UserStore manages user records and their session state.
//
// UpdateRefreshToken and ClearRefreshToken touch only the refresh-token
// column; they must not revalidate or rewrite unrelated fields. The
// implementation must serialize concurrent writes to the same row so a
// rotation racing a superseded token observes the mismatch.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	// FindByLogin resolves a username-or-email identifier.
	FindByLogin(ctx context.Context, identifier string) (*User, error)
	UpdateRefreshToken(ctx context.Context, userID, tokenHash string) error
	ClearRefreshToken(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error
	UpdateAvatar(ctx context.Context, userID, avatarURL string) error
	UpdateCoverImage(ctx context.Context, userID, coverURL string) error
}
