package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

const pgUniqueViolation = "23505"

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(ctx context.Context) UserStore { return &pgUserStore{db: s.db} }

type pgUserStore struct{ db *sql.DB }

const userColumns = `id, username, email, full_name,
	coalesce(avatar_url, ''), coalesce(cover_image_url, ''),
	password_hash, coalesce(refresh_token_hash, ''), created_at, updated_at`

func (s *pgUserStore) Create(ctx context.Context, u *User) error {
	err := s.db.QueryRowContext(ctx,
		`insert into users(id, username, email, full_name, avatar_url, cover_image_url, password_hash)
		 values($1,$2,$3,$4,nullif($5,''),nullif($6,''),$7)
		 returning created_at, updated_at`,
		u.ID, u.Username, u.Email, u.FullName, u.AvatarURL, u.CoverImageURL, u.PasswordHash,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *pgUserStore) Find(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *pgUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1`, username))
}

func (s *pgUserStore) FindByLogin(ctx context.Context, identifier string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1 or email=$1`, identifier))
}

func (s *pgUserStore) UpdateRefreshToken(ctx context.Context, userID, tokenHash string) error {
	return s.exec(ctx,
		`update users set refresh_token_hash=$1, updated_at=now() where id=$2`, tokenHash, userID)
}

func (s *pgUserStore) ClearRefreshToken(ctx context.Context, userID string) error {
	return s.exec(ctx,
		`update users set refresh_token_hash=null, updated_at=now() where id=$1`, userID)
}

func (s *pgUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return s.exec(ctx,
		`update users set password_hash=$1, updated_at=now() where id=$2`, passwordHash, userID)
}

func (s *pgUserStore) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error {
	err := s.exec(ctx,
		`update users set
			full_name = coalesce($1, full_name),
			email = coalesce($2, email),
			updated_at = now()
		 where id=$3`,
		update.FullName, update.Email, userID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *pgUserStore) UpdateAvatar(ctx context.Context, userID, avatarURL string) error {
	return s.exec(ctx,
		`update users set avatar_url=$1, updated_at=now() where id=$2`, avatarURL, userID)
}

func (s *pgUserStore) UpdateCoverImage(ctx context.Context, userID, coverURL string) error {
	return s.exec(ctx,
		`update users set cover_image_url=$1, updated_at=now() where id=$2`, coverURL, userID)
}

func (s *pgUserStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgUserStore) scanOne(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName,
		&u.AvatarURL, &u.CoverImageURL,
		&u.PasswordHash, &u.RefreshTokenHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
