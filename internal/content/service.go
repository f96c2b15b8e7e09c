package content

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"vidora.org/internal/ids"
)

// Service defines catalog operations over videos, comments, likes, playlists,
// and watch history.
type Service interface {
	CreateVideo(ctx context.Context, params NewVideo) (Video, error)
	GetVideo(ctx context.Context, id, viewerID string) (Video, error)
	UpdateVideo(ctx context.Context, id, requesterID string, update VideoUpdate) (Video, error)
	DeleteVideo(ctx context.Context, id, requesterID string) error
	ListVideos(ctx context.Context, limit int, after string) ([]Video, string, error)
	ChannelVideos(ctx context.Context, ownerID, viewerID string, limit int, after string) ([]Video, string, error)
	RecordView(ctx context.Context, videoID string) error

	AddComment(ctx context.Context, videoID, ownerID, body string) (Comment, error)
	ListComments(ctx context.Context, videoID string, limit int, after string) ([]Comment, string, error)
	UpdateComment(ctx context.Context, commentID, requesterID, body string) (Comment, error)
	DeleteComment(ctx context.Context, commentID, requesterID string) error

	ToggleVideoLike(ctx context.Context, videoID, userID string) (bool, error)
	ToggleCommentLike(ctx context.Context, commentID, userID string) (bool, error)
	ListLikedVideos(ctx context.Context, userID string) ([]Video, error)

	CreatePlaylist(ctx context.Context, ownerID, name, description string) (Playlist, error)
	GetPlaylist(ctx context.Context, id string) (Playlist, error)
	ListUserPlaylists(ctx context.Context, ownerID string) ([]Playlist, error)
	UpdatePlaylist(ctx context.Context, id, requesterID string, update PlaylistUpdate) (Playlist, error)
	AddPlaylistVideo(ctx context.Context, playlistID, videoID, requesterID string) (Playlist, error)
	RemovePlaylistVideo(ctx context.Context, playlistID, videoID, requesterID string) (Playlist, error)
	DeletePlaylist(ctx context.Context, id, requesterID string) error

	RecordWatch(ctx context.Context, userID, videoID string) error
	WatchHistory(ctx context.Context, userID string, limit int) ([]WatchEntry, error)

	OwnerStats(ctx context.Context, ownerID string) (ChannelStats, error)
}

// likeKey identifies one like: exactly one of videoID/commentID is set.
type likeKey struct {
	userID    string
	videoID   string
	commentID string
}

// InMemory implements Service with in-process concurrency safety. It backs
// the API when no database DSN is configured, and the handler tests.
type InMemory struct {
	mu        sync.RWMutex
	videos    map[string]*Video
	comments  map[string]*Comment
	playlists map[string]*Playlist
	likes     map[likeKey]struct{}
	history   map[string][]WatchEntry // userID -> newest first
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty catalog.
func NewInMemory() *InMemory {
	return &InMemory{
		videos:    make(map[string]*Video),
		comments:  make(map[string]*Comment),
		playlists: make(map[string]*Playlist),
		likes:     make(map[likeKey]struct{}),
		history:   make(map[string][]WatchEntry),
	}
}

func (s *InMemory) CreateVideo(ctx context.Context, params NewVideo) (Video, error) {
	if err := ValidateNewVideo(&params); err != nil {
		return Video{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	v := &Video{
		ID:           ids.New(),
		OwnerID:      params.OwnerID,
		Title:        params.Title,
		Description:  params.Description,
		VideoURL:     params.VideoURL,
		ThumbnailURL: params.ThumbnailURL,
		Duration:     params.Duration,
		Visibility:   params.Visibility,
		Tags:         params.Tags,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.videos[v.ID] = v
	return s.videoCopy(v), nil
}

func (s *InMemory) GetVideo(ctx context.Context, id, viewerID string) (Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[id]
	if !ok {
		return Video{}, ErrNotFound
	}
	if v.Visibility == VisibilityPrivate && v.OwnerID != viewerID {
		// Private videos are indistinguishable from absent ones.
		return Video{}, ErrNotFound
	}
	return s.videoCopy(v), nil
}

func (s *InMemory) UpdateVideo(ctx context.Context, id, requesterID string, update VideoUpdate) (Video, error) {
	if err := ValidateVideoUpdate(&update); err != nil {
		return Video{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return Video{}, ErrNotFound
	}
	if v.OwnerID != requesterID {
		return Video{}, ErrForbidden
	}
	if update.Title != nil {
		v.Title = *update.Title
	}
	if update.Description != nil {
		v.Description = *update.Description
	}
	if update.Visibility != nil {
		v.Visibility = *update.Visibility
	}
	if update.Tags != nil {
		v.Tags = *update.Tags
	}
	v.UpdatedAt = time.Now().UTC()
	return s.videoCopy(v), nil
}

// DeleteVideo removes the video and everything hanging off it: comments and
// their likes, video likes, playlist entries, and watch history.
func (s *InMemory) DeleteVideo(ctx context.Context, id, requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return ErrNotFound
	}
	if v.OwnerID != requesterID {
		return ErrForbidden
	}
	delete(s.videos, id)
	for cid, c := range s.comments {
		if c.VideoID != id {
			continue
		}
		delete(s.comments, cid)
		for key := range s.likes {
			if key.commentID == cid {
				delete(s.likes, key)
			}
		}
	}
	for key := range s.likes {
		if key.videoID == id {
			delete(s.likes, key)
		}
	}
	for _, p := range s.playlists {
		for i, vid := range p.VideoIDs {
			if vid == id {
				p.VideoIDs = append(p.VideoIDs[:i], p.VideoIDs[i+1:]...)
				break
			}
		}
	}
	for userID, entries := range s.history {
		for i, e := range entries {
			if e.VideoID == id {
				s.history[userID] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
	}
	return nil
}

// ListVideos returns public videos newest-first. Cursor pagination: after is
// the last id of the previous page (ULIDs sort by creation time).
func (s *InMemory) ListVideos(ctx context.Context, limit int, after string) ([]Video, string, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Video, 0, len(s.videos))
	for _, v := range s.videos {
		if v.Visibility != VisibilityPublic {
			continue
		}
		if after != "" && v.ID >= after {
			continue
		}
		all = append(all, v)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	var next string
	if len(all) > limit {
		all = all[:limit]
		next = all[len(all)-1].ID
	}
	out := make([]Video, 0, len(all))
	for _, v := range all {
		out = append(out, s.videoCopy(v))
	}
	return out, next, nil
}

// ChannelVideos lists one owner's videos newest-first. The owner sees all of
// their videos; everyone else sees only the public ones.
func (s *InMemory) ChannelVideos(ctx context.Context, ownerID, viewerID string, limit int, after string) ([]Video, string, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Video, 0)
	for _, v := range s.videos {
		if v.OwnerID != ownerID {
			continue
		}
		if viewerID != ownerID && v.Visibility != VisibilityPublic {
			continue
		}
		if after != "" && v.ID >= after {
			continue
		}
		all = append(all, v)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	var next string
	if len(all) > limit {
		all = all[:limit]
		next = all[len(all)-1].ID
	}
	out := make([]Video, 0, len(all))
	for _, v := range all {
		out = append(out, s.videoCopy(v))
	}
	return out, next, nil
}

func (s *InMemory) RecordView(ctx context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[videoID]
	if !ok {
		return ErrNotFound
	}
	v.Views++
	return nil
}

func (s *InMemory) AddComment(ctx context.Context, videoID, ownerID, body string) (Comment, error) {
	body, err := ValidateCommentBody(body)
	if err != nil {
		return Comment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[videoID]; !ok {
		return Comment{}, ErrNotFound
	}
	c := &Comment{
		ID:        ids.New(),
		VideoID:   videoID,
		OwnerID:   ownerID,
		Content:   body,
		CreatedAt: time.Now().UTC(),
	}
	s.comments[c.ID] = c
	return *c, nil
}

func (s *InMemory) ListComments(ctx context.Context, videoID string, limit int, after string) ([]Comment, string, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.videos[videoID]; !ok {
		return nil, "", ErrNotFound
	}
	all := make([]*Comment, 0)
	for _, c := range s.comments {
		if c.VideoID != videoID {
			continue
		}
		if after != "" && c.ID >= after {
			continue
		}
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	var next string
	if len(all) > limit {
		all = all[:limit]
		next = all[len(all)-1].ID
	}
	out := make([]Comment, 0, len(all))
	for _, c := range all {
		cp := *c
		cp.LikeCount = s.commentLikesLocked(c.ID)
		out = append(out, cp)
	}
	return out, next, nil
}

func (s *InMemory) UpdateComment(ctx context.Context, commentID, requesterID, body string) (Comment, error) {
	body, err := ValidateCommentBody(body)
	if err != nil {
		return Comment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok {
		return Comment{}, ErrNotFound
	}
	if c.OwnerID != requesterID {
		return Comment{}, ErrForbidden
	}
	c.Content = body
	cp := *c
	cp.LikeCount = s.commentLikesLocked(c.ID)
	return cp, nil
}

func (s *InMemory) DeleteComment(ctx context.Context, commentID, requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok {
		return ErrNotFound
	}
	if c.OwnerID != requesterID {
		return ErrForbidden
	}
	delete(s.comments, commentID)
	for key := range s.likes {
		if key.commentID == commentID {
			delete(s.likes, key)
		}
	}
	return nil
}

func (s *InMemory) ToggleVideoLike(ctx context.Context, videoID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[videoID]; !ok {
		return false, ErrNotFound
	}
	key := likeKey{userID: userID, videoID: videoID}
	if _, liked := s.likes[key]; liked {
		delete(s.likes, key)
		return false, nil
	}
	s.likes[key] = struct{}{}
	return true, nil
}

func (s *InMemory) ToggleCommentLike(ctx context.Context, commentID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[commentID]; !ok {
		return false, ErrNotFound
	}
	key := likeKey{userID: userID, commentID: commentID}
	if _, liked := s.likes[key]; liked {
		delete(s.likes, key)
		return false, nil
	}
	s.likes[key] = struct{}{}
	return true, nil
}

// ListLikedVideos returns the videos the user has liked, newest first.
// Videos that turned private since the like are skipped.
func (s *InMemory) ListLikedVideos(ctx context.Context, userID string) ([]Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Video, 0)
	for key := range s.likes {
		if key.userID != userID || key.videoID == "" {
			continue
		}
		v, ok := s.videos[key.videoID]
		if !ok || (v.Visibility == VisibilityPrivate && v.OwnerID != userID) {
			continue
		}
		out = append(out, s.videoCopy(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *InMemory) CreatePlaylist(ctx context.Context, ownerID, name, description string) (Playlist, error) {
	name, description, err := ValidatePlaylistName(name, description)
	if err != nil {
		return Playlist{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	p := &Playlist{
		ID:          ids.New(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		VideoIDs:    []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.playlists[p.ID] = p
	return playlistCopy(p), nil
}

func (s *InMemory) GetPlaylist(ctx context.Context, id string) (Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.playlists[id]
	if !ok {
		return Playlist{}, ErrNotFound
	}
	return playlistCopy(p), nil
}

func (s *InMemory) UpdatePlaylist(ctx context.Context, id, requesterID string, update PlaylistUpdate) (Playlist, error) {
	if err := ValidatePlaylistUpdate(&update); err != nil {
		return Playlist{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.playlists[id]
	if !ok {
		return Playlist{}, ErrNotFound
	}
	if p.OwnerID != requesterID {
		return Playlist{}, ErrForbidden
	}
	if update.Name != nil {
		p.Name = *update.Name
	}
	if update.Description != nil {
		p.Description = *update.Description
	}
	p.UpdatedAt = time.Now().UTC()
	return playlistCopy(p), nil
}

func (s *InMemory) ListUserPlaylists(ctx context.Context, ownerID string) ([]Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Playlist, 0)
	for _, p := range s.playlists {
		if p.OwnerID == ownerID {
			out = append(out, playlistCopy(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *InMemory) AddPlaylistVideo(ctx context.Context, playlistID, videoID, requesterID string) (Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.playlists[playlistID]
	if !ok {
		return Playlist{}, ErrNotFound
	}
	if p.OwnerID != requesterID {
		return Playlist{}, ErrForbidden
	}
	if _, ok := s.videos[videoID]; !ok {
		return Playlist{}, ErrNotFound
	}
	for _, id := range p.VideoIDs {
		if id == videoID {
			return playlistCopy(p), nil
		}
	}
	p.VideoIDs = append(p.VideoIDs, videoID)
	p.UpdatedAt = time.Now().UTC()
	return playlistCopy(p), nil
}

func (s *InMemory) RemovePlaylistVideo(ctx context.Context, playlistID, videoID, requesterID string) (Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.playlists[playlistID]
	if !ok {
		return Playlist{}, ErrNotFound
	}
	if p.OwnerID != requesterID {
		return Playlist{}, ErrForbidden
	}
	kept := p.VideoIDs[:0]
	for _, id := range p.VideoIDs {
		if id != videoID {
			kept = append(kept, id)
		}
	}
	p.VideoIDs = kept
	p.UpdatedAt = time.Now().UTC()
	return playlistCopy(p), nil
}

func (s *InMemory) DeletePlaylist(ctx context.Context, id, requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.playlists[id]
	if !ok {
		return ErrNotFound
	}
	if p.OwnerID != requesterID {
		return ErrForbidden
	}
	delete(s.playlists, id)
	return nil
}

func (s *InMemory) RecordWatch(ctx context.Context, userID, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[videoID]; !ok {
		return ErrNotFound
	}
	entries := s.history[userID]
	// Re-watching moves the entry to the front instead of duplicating it.
	kept := make([]WatchEntry, 0, len(entries)+1)
	kept = append(kept, WatchEntry{VideoID: videoID, WatchedAt: time.Now().UTC()})
	for _, e := range entries {
		if e.VideoID != videoID {
			kept = append(kept, e)
		}
	}
	s.history[userID] = kept
	return nil
}

func (s *InMemory) WatchHistory(ctx context.Context, userID string, limit int) ([]WatchEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[userID]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]WatchEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *InMemory) OwnerStats(ctx context.Context, ownerID string) (ChannelStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats ChannelStats
	for _, v := range s.videos {
		if v.OwnerID == ownerID {
			stats.Videos++
			stats.Views += v.Views
		}
	}
	return stats, nil
}

func (s *InMemory) videoCopy(v *Video) Video {
	cp := *v
	cp.Tags = append([]string(nil), v.Tags...)
	cp.LikeCount = s.videoLikesLocked(v.ID)
	return cp
}

func (s *InMemory) videoLikesLocked(videoID string) int64 {
	var n int64
	for key := range s.likes {
		if key.videoID == videoID {
			n++
		}
	}
	return n
}

func (s *InMemory) commentLikesLocked(commentID string) int64 {
	var n int64
	for key := range s.likes {
		if key.commentID == commentID {
			n++
		}
	}
	return n
}

func playlistCopy(p *Playlist) Playlist {
	cp := *p
	cp.VideoIDs = append([]string(nil), p.VideoIDs...)
	return cp
}

// ValidateNewVideo normalizes params in place and reports whether they
// describe a creatable video. Visibility defaults to public.
func ValidateNewVideo(params *NewVideo) error {
	params.Title = strings.TrimSpace(params.Title)
	params.Description = strings.TrimSpace(params.Description)
	if params.OwnerID == "" || params.Title == "" || params.Description == "" {
		return ErrInvalidInput
	}
	if params.VideoURL == "" || params.ThumbnailURL == "" {
		return ErrInvalidInput
	}
	if params.Visibility == "" {
		params.Visibility = VisibilityPublic
	}
	if !params.Visibility.Valid() {
		return ErrInvalidInput
	}
	cleaned := params.Tags[:0]
	for _, tag := range params.Tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	params.Tags = cleaned
	return nil
}

// ValidateCommentBody trims body and rejects empty comments.
func ValidateCommentBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrInvalidInput
	}
	return body, nil
}

// ValidatePlaylistName trims both fields and rejects an empty name.
func ValidatePlaylistName(name, description string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", ErrInvalidInput
	}
	return name, strings.TrimSpace(description), nil
}

// ValidateVideoUpdate normalizes set fields in place. A set title must not be
// blank and a set visibility must be a known level.
func ValidateVideoUpdate(update *VideoUpdate) error {
	if update.Title != nil {
		trimmed := strings.TrimSpace(*update.Title)
		if trimmed == "" {
			return ErrInvalidInput
		}
		update.Title = &trimmed
	}
	if update.Description != nil {
		trimmed := strings.TrimSpace(*update.Description)
		update.Description = &trimmed
	}
	if update.Visibility != nil && !update.Visibility.Valid() {
		return ErrInvalidInput
	}
	if update.Tags != nil {
		cleaned := make([]string, 0, len(*update.Tags))
		for _, tag := range *update.Tags {
			if tag = strings.TrimSpace(tag); tag != "" {
				cleaned = append(cleaned, tag)
			}
		}
		update.Tags = &cleaned
	}
	return nil
}

// ValidatePlaylistUpdate normalizes set fields in place; a set name must not
// be blank.
func ValidatePlaylistUpdate(update *PlaylistUpdate) error {
	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		if trimmed == "" {
			return ErrInvalidInput
		}
		update.Name = &trimmed
	}
	if update.Description != nil {
		trimmed := strings.TrimSpace(*update.Description)
		update.Description = &trimmed
	}
	return nil
}
