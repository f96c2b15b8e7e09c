package auth

import "time"

// User is an account that owns videos, playlists, and its session state.
// PasswordHash and RefreshTokenHash never leave the service layer.
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	FullName         string    `json:"full_name"`
	AvatarURL        string    `json:"avatar_url,omitempty"`
	CoverImageURL    string    `json:"cover_image_url,omitempty"`
	PasswordHash     string    `json:"-"`
	RefreshTokenHash string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Sanitized returns a copy safe to hand to transport layers.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	u.RefreshTokenHash = ""
	return u
}

// TokenPair carries freshly minted access and refresh tokens.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// RegisterParams are the inputs for account creation.
type RegisterParams struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

// ProfileUpdate carries optional profile field changes.
type ProfileUpdate struct {
	FullName *string
	Email    *string
}

// ChannelProfile is the public view of a user plus channel counters.
type ChannelProfile struct {
	User       User  `json:"user"`
	VideoCount int64 `json:"video_count"`
	ViewCount  int64 `json:"view_count"`
}
