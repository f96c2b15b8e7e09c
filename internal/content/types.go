package content

import (
	"errors"
	"time"
)

// Visibility controls who can fetch a video.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
)

// Valid reports whether v is one of the known visibility levels.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityUnlisted:
		return true
	}
	return false
}

// Video is an uploaded clip with its hosted media references.
type Video struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	VideoURL     string     `json:"video_url"`
	ThumbnailURL string     `json:"thumbnail_url"`
	Duration     float64    `json:"duration"`
	Views        int64      `json:"views"`
	Visibility   Visibility `json:"visibility"`
	Tags         []string   `json:"tags,omitempty"`
	LikeCount    int64      `json:"like_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewVideo carries the inputs for video creation. Media URLs are already
// resolved by the upload layer.
type NewVideo struct {
	OwnerID      string
	Title        string
	Description  string
	VideoURL     string
	ThumbnailURL string
	Duration     float64
	Visibility   Visibility
	Tags         []string
}

// VideoUpdate carries owner edits to an existing video. Nil fields are left
// unchanged.
type VideoUpdate struct {
	Title       *string
	Description *string
	Visibility  *Visibility
	Tags        *[]string
}

// PlaylistUpdate carries owner edits to a playlist. Nil fields are left
// unchanged.
type PlaylistUpdate struct {
	Name        *string
	Description *string
}

// Comment belongs to exactly one video.
type Comment struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"video_id"`
	OwnerID   string    `json:"owner_id"`
	Content   string    `json:"content"`
	LikeCount int64     `json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Playlist is an ordered collection of video ids owned by one user.
type Playlist struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	VideoIDs    []string  `json:"video_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WatchEntry records that a user watched a video. Newest entries first.
type WatchEntry struct {
	VideoID   string    `json:"video_id"`
	WatchedAt time.Time `json:"watched_at"`
}

// ChannelStats aggregates per-owner counters for channel pages.
type ChannelStats struct {
	Videos int64 `json:"videos"`
	Views  int64 `json:"views"`
}

var (
	ErrNotFound     = errors.New("content: not found")
	ErrInvalidInput = errors.New("content: invalid input")
	ErrForbidden    = errors.New("content: forbidden")
)
