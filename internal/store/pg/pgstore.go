package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"vidora.org/internal/content"
	"vidora.org/internal/ids"
)

// Store implements content.Service on top of PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ content.Service = (*Store)(nil)

const pgForeignKeyViolation = "23503"

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const videoColumns = `v.id, v.owner_id, v.title, v.description, v.video_url, v.thumbnail_url,
	v.duration, v.views, v.visibility, v.tags,
	(select count(*) from likes l where l.video_id = v.id),
	v.created_at, v.updated_at`

func (s *Store) CreateVideo(ctx context.Context, params content.NewVideo) (content.Video, error) {
	if err := content.ValidateNewVideo(&params); err != nil {
		return content.Video{}, err
	}
	tags, err := json.Marshal(params.Tags)
	if err != nil {
		return content.Video{}, err
	}
	v := content.Video{
		ID:           ids.New(),
		OwnerID:      params.OwnerID,
		Title:        params.Title,
		Description:  params.Description,
		VideoURL:     params.VideoURL,
		ThumbnailURL: params.ThumbnailURL,
		Duration:     params.Duration,
		Visibility:   params.Visibility,
		Tags:         params.Tags,
	}
	err = s.db.QueryRowContext(ctx, `
		insert into videos(id, owner_id, title, description, video_url, thumbnail_url, duration, visibility, tags)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		returning created_at, updated_at
	`, v.ID, v.OwnerID, v.Title, v.Description, v.VideoURL, v.ThumbnailURL, v.Duration, v.Visibility, tags).
		Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return content.Video{}, err
	}
	return v, nil
}

func (s *Store) GetVideo(ctx context.Context, id, viewerID string) (content.Video, error) {
	v, err := s.scanVideo(s.db.QueryRowContext(ctx,
		`select `+videoColumns+` from videos v where v.id=$1`, id))
	if err != nil {
		return content.Video{}, err
	}
	if v.Visibility == content.VisibilityPrivate && v.OwnerID != viewerID {
		// Private videos are indistinguishable from absent ones.
		return content.Video{}, content.ErrNotFound
	}
	return v, nil
}

func (s *Store) UpdateVideo(ctx context.Context, id, requesterID string, update content.VideoUpdate) (content.Video, error) {
	if err := content.ValidateVideoUpdate(&update); err != nil {
		return content.Video{}, err
	}
	if err := s.checkVideoOwner(ctx, id, requesterID); err != nil {
		return content.Video{}, err
	}
	var visibility *string
	if update.Visibility != nil {
		v := string(*update.Visibility)
		visibility = &v
	}
	var tags []byte
	if update.Tags != nil {
		b, err := json.Marshal(*update.Tags)
		if err != nil {
			return content.Video{}, err
		}
		tags = b
	}
	_, err := s.db.ExecContext(ctx, `
		update videos set
			title       = coalesce($2, title),
			description = coalesce($3, description),
			visibility  = coalesce($4, visibility),
			tags        = coalesce($5, tags),
			updated_at  = now()
		where id=$1
	`, id, update.Title, update.Description, visibility, tags)
	if err != nil {
		return content.Video{}, err
	}
	return s.GetVideo(ctx, id, requesterID)
}

func (s *Store) DeleteVideo(ctx context.Context, id, requesterID string) error {
	if err := s.checkVideoOwner(ctx, id, requesterID); err != nil {
		return err
	}
	// Comments, likes, playlist entries and history rows cascade.
	return s.exec(ctx, `delete from videos where id=$1`, id)
}

func (s *Store) checkVideoOwner(ctx context.Context, id, requesterID string) error {
	var ownerID string
	err := s.db.QueryRowContext(ctx, `select owner_id from videos where id=$1`, id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return content.ErrNotFound
	}
	if err != nil {
		return err
	}
	if ownerID != requesterID {
		return content.ErrForbidden
	}
	return nil
}

func (s *Store) ListVideos(ctx context.Context, limit int, after string) ([]content.Video, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+videoColumns+`
		from videos v
		where v.visibility = 'public' and ($1 = '' or v.id < $1)
		order by v.id desc
		limit $2
	`, after, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var res []content.Video
	for rows.Next() {
		v, err := s.scanVideo(rows)
		if err != nil {
			return nil, "", err
		}
		res = append(res, v)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(res) > limit {
		res = res[:limit]
		next = res[len(res)-1].ID
	}
	return res, next, nil
}

func (s *Store) ChannelVideos(ctx context.Context, ownerID, viewerID string, limit int, after string) ([]content.Video, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	// The owner sees every visibility level; everyone else only public.
	rows, err := s.db.QueryContext(ctx, `
		select `+videoColumns+`
		from videos v
		where v.owner_id = $1
		  and ($1 = $2 or v.visibility = 'public')
		  and ($3 = '' or v.id < $3)
		order by v.id desc
		limit $4
	`, ownerID, viewerID, after, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var res []content.Video
	for rows.Next() {
		v, err := s.scanVideo(rows)
		if err != nil {
			return nil, "", err
		}
		res = append(res, v)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(res) > limit {
		res = res[:limit]
		next = res[len(res)-1].ID
	}
	return res, next, nil
}

func (s *Store) RecordView(ctx context.Context, videoID string) error {
	return s.exec(ctx, `update videos set views = views + 1 where id=$1`, videoID)
}

func (s *Store) AddComment(ctx context.Context, videoID, ownerID, body string) (content.Comment, error) {
	body, err := content.ValidateCommentBody(body)
	if err != nil {
		return content.Comment{}, err
	}
	c := content.Comment{
		ID:      ids.New(),
		VideoID: videoID,
		OwnerID: ownerID,
		Content: body,
	}
	err = s.db.QueryRowContext(ctx, `
		insert into comments(id, video_id, owner_id, content)
		values ($1,$2,$3,$4)
		returning created_at
	`, c.ID, c.VideoID, c.OwnerID, c.Content).Scan(&c.CreatedAt)
	if isForeignKeyViolation(err) {
		return content.Comment{}, content.ErrNotFound
	}
	if err != nil {
		return content.Comment{}, err
	}
	return c, nil
}

func (s *Store) ListComments(ctx context.Context, videoID string, limit int, after string) ([]content.Comment, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from videos where id=$1)`, videoID).Scan(&exists); err != nil {
		return nil, "", err
	}
	if !exists {
		return nil, "", content.ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, `
		select c.id, c.video_id, c.owner_id, c.content,
			(select count(*) from likes l where l.comment_id = c.id),
			c.created_at
		from comments c
		where c.video_id=$1 and ($2 = '' or c.id < $2)
		order by c.id desc
		limit $3
	`, videoID, after, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var res []content.Comment
	for rows.Next() {
		var c content.Comment
		if err := rows.Scan(&c.ID, &c.VideoID, &c.OwnerID, &c.Content, &c.LikeCount, &c.CreatedAt); err != nil {
			return nil, "", err
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(res) > limit {
		res = res[:limit]
		next = res[len(res)-1].ID
	}
	return res, next, nil
}

func (s *Store) UpdateComment(ctx context.Context, commentID, requesterID, body string) (content.Comment, error) {
	body, err := content.ValidateCommentBody(body)
	if err != nil {
		return content.Comment{}, err
	}
	if err := s.checkCommentOwner(ctx, commentID, requesterID); err != nil {
		return content.Comment{}, err
	}
	c := content.Comment{ID: commentID}
	err = s.db.QueryRowContext(ctx, `
		update comments set content=$2 where id=$1
		returning video_id, owner_id, content, created_at,
			(select count(*) from likes l where l.comment_id = comments.id)
	`, commentID, body).Scan(&c.VideoID, &c.OwnerID, &c.Content, &c.CreatedAt, &c.LikeCount)
	if err != nil {
		return content.Comment{}, err
	}
	return c, nil
}

func (s *Store) DeleteComment(ctx context.Context, commentID, requesterID string) error {
	if err := s.checkCommentOwner(ctx, commentID, requesterID); err != nil {
		return err
	}
	return s.exec(ctx, `delete from comments where id=$1`, commentID)
}

func (s *Store) checkCommentOwner(ctx context.Context, commentID, requesterID string) error {
	var ownerID string
	err := s.db.QueryRowContext(ctx,
		`select owner_id from comments where id=$1`, commentID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return content.ErrNotFound
	}
	if err != nil {
		return err
	}
	if ownerID != requesterID {
		return content.ErrForbidden
	}
	return nil
}

func (s *Store) ToggleVideoLike(ctx context.Context, videoID, userID string) (bool, error) {
	return s.toggleLike(ctx,
		`insert into likes(id, user_id, video_id) values ($1,$2,$3) on conflict do nothing`,
		`delete from likes where user_id=$1 and video_id=$2`,
		videoID, userID)
}

func (s *Store) ToggleCommentLike(ctx context.Context, commentID, userID string) (bool, error) {
	return s.toggleLike(ctx,
		`insert into likes(id, user_id, comment_id) values ($1,$2,$3) on conflict do nothing`,
		`delete from likes where user_id=$1 and comment_id=$2`,
		commentID, userID)
}

func (s *Store) ListLikedVideos(ctx context.Context, userID string) ([]content.Video, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+videoColumns+`
		from videos v
		join likes l on l.video_id = v.id
		where l.user_id = $1
		  and (v.visibility <> 'private' or v.owner_id = $1)
		order by v.id desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make([]content.Video, 0)
	for rows.Next() {
		v, err := s.scanVideo(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// toggleLike inserts a like, and if one already existed removes it instead.
func (s *Store) toggleLike(ctx context.Context, insertQ, deleteQ, targetID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, insertQ, ids.New(), userID, targetID)
	if isForeignKeyViolation(err) {
		return false, content.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}
	if _, err := s.db.ExecContext(ctx, deleteQ, userID, targetID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) CreatePlaylist(ctx context.Context, ownerID, name, description string) (content.Playlist, error) {
	name, description, err := content.ValidatePlaylistName(name, description)
	if err != nil {
		return content.Playlist{}, err
	}
	p := content.Playlist{
		ID:          ids.New(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		VideoIDs:    []string{},
	}
	err = s.db.QueryRowContext(ctx, `
		insert into playlists(id, owner_id, name, description)
		values ($1,$2,$3,$4)
		returning created_at, updated_at
	`, p.ID, p.OwnerID, p.Name, p.Description).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return content.Playlist{}, err
	}
	return p, nil
}

func (s *Store) GetPlaylist(ctx context.Context, id string) (content.Playlist, error) {
	p, err := s.scanPlaylist(ctx, s.db, id)
	if err != nil {
		return content.Playlist{}, err
	}
	return p, nil
}

func (s *Store) UpdatePlaylist(ctx context.Context, id, requesterID string, update content.PlaylistUpdate) (content.Playlist, error) {
	if err := content.ValidatePlaylistUpdate(&update); err != nil {
		return content.Playlist{}, err
	}
	if err := s.checkPlaylistOwner(ctx, s.db, id, requesterID); err != nil {
		return content.Playlist{}, err
	}
	_, err := s.db.ExecContext(ctx, `
		update playlists set
			name        = coalesce($2, name),
			description = coalesce($3, description),
			updated_at  = now()
		where id=$1
	`, id, update.Name, update.Description)
	if err != nil {
		return content.Playlist{}, err
	}
	return s.scanPlaylist(ctx, s.db, id)
}

func (s *Store) ListUserPlaylists(ctx context.Context, ownerID string) ([]content.Playlist, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id from playlists where owner_id=$1 order by id desc
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var idList []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		idList = append(idList, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res := make([]content.Playlist, 0, len(idList))
	for _, id := range idList {
		p, err := s.scanPlaylist(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func (s *Store) AddPlaylistVideo(ctx context.Context, playlistID, videoID, requesterID string) (content.Playlist, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return content.Playlist{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.checkPlaylistOwner(ctx, tx, playlistID, requesterID); err != nil {
		return content.Playlist{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into playlist_videos(playlist_id, video_id, position)
		select $1, $2, coalesce(max(position)+1, 0) from playlist_videos where playlist_id=$1
		on conflict do nothing
	`, playlistID, videoID); err != nil {
		if isForeignKeyViolation(err) {
			return content.Playlist{}, content.ErrNotFound
		}
		return content.Playlist{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`update playlists set updated_at=now() where id=$1`, playlistID); err != nil {
		return content.Playlist{}, err
	}
	p, err := s.scanPlaylist(ctx, tx, playlistID)
	if err != nil {
		return content.Playlist{}, err
	}
	if err := tx.Commit(); err != nil {
		return content.Playlist{}, err
	}
	return p, nil
}

func (s *Store) RemovePlaylistVideo(ctx context.Context, playlistID, videoID, requesterID string) (content.Playlist, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return content.Playlist{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.checkPlaylistOwner(ctx, tx, playlistID, requesterID); err != nil {
		return content.Playlist{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		delete from playlist_videos where playlist_id=$1 and video_id=$2
	`, playlistID, videoID); err != nil {
		return content.Playlist{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`update playlists set updated_at=now() where id=$1`, playlistID); err != nil {
		return content.Playlist{}, err
	}
	p, err := s.scanPlaylist(ctx, tx, playlistID)
	if err != nil {
		return content.Playlist{}, err
	}
	if err := tx.Commit(); err != nil {
		return content.Playlist{}, err
	}
	return p, nil
}

func (s *Store) DeletePlaylist(ctx context.Context, id, requesterID string) error {
	if err := s.checkPlaylistOwner(ctx, s.db, id, requesterID); err != nil {
		return err
	}
	return s.exec(ctx, `delete from playlists where id=$1`, id)
}

func (s *Store) RecordWatch(ctx context.Context, userID, videoID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into watch_history(user_id, video_id, watched_at)
		values ($1,$2,now())
		on conflict (user_id, video_id) do update set watched_at = now()
	`, userID, videoID)
	if isForeignKeyViolation(err) {
		return content.ErrNotFound
	}
	return err
}

func (s *Store) WatchHistory(ctx context.Context, userID string, limit int) ([]content.WatchEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		select video_id, watched_at from watch_history
		where user_id=$1
		order by watched_at desc
		limit $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []content.WatchEntry
	for rows.Next() {
		var e content.WatchEntry
		if err := rows.Scan(&e.VideoID, &e.WatchedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *Store) OwnerStats(ctx context.Context, ownerID string) (content.ChannelStats, error) {
	var stats content.ChannelStats
	err := s.db.QueryRowContext(ctx, `
		select count(*), coalesce(sum(views), 0) from videos where owner_id=$1
	`, ownerID).Scan(&stats.Videos, &stats.Views)
	if err != nil {
		return content.ChannelStats{}, err
	}
	return stats, nil
}

// --- helpers ---

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) checkPlaylistOwner(ctx context.Context, q querier, playlistID, requesterID string) error {
	var ownerID string
	err := q.QueryRowContext(ctx,
		`select owner_id from playlists where id=$1`, playlistID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return content.ErrNotFound
	}
	if err != nil {
		return err
	}
	if ownerID != requesterID {
		return content.ErrForbidden
	}
	return nil
}

func (s *Store) scanPlaylist(ctx context.Context, q querier, id string) (content.Playlist, error) {
	var p content.Playlist
	err := q.QueryRowContext(ctx, `
		select id, owner_id, name, coalesce(description, ''), created_at, updated_at
		from playlists where id=$1
	`, id).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Playlist{}, content.ErrNotFound
	}
	if err != nil {
		return content.Playlist{}, err
	}
	rows, err := q.QueryContext(ctx, `
		select video_id from playlist_videos where playlist_id=$1 order by position asc
	`, id)
	if err != nil {
		return content.Playlist{}, err
	}
	defer rows.Close()

	p.VideoIDs = []string{}
	for rows.Next() {
		var vid string
		if err := rows.Scan(&vid); err != nil {
			return content.Playlist{}, err
		}
		p.VideoIDs = append(p.VideoIDs, vid)
	}
	return p, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanVideo(row rowScanner) (content.Video, error) {
	var v content.Video
	var tags []byte
	err := row.Scan(&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.VideoURL, &v.ThumbnailURL,
		&v.Duration, &v.Views, &v.Visibility, &tags, &v.LikeCount, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Video{}, content.ErrNotFound
	}
	if err != nil {
		return content.Video{}, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &v.Tags); err != nil {
			return content.Video{}, err
		}
	}
	return v, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return content.ErrNotFound
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}
