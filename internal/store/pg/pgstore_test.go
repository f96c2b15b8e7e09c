package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"vidora.org/internal/content"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: db}, mock
}

func videoRow(id, owner string, visibility content.Visibility) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "owner_id", "title", "description", "video_url", "thumbnail_url",
		"duration", "views", "visibility", "tags", "like_count", "created_at", "updated_at",
	}).AddRow(id, owner, "Clip", "Desc", "https://m/v.mp4", "https://m/t.jpg",
		10.0, int64(3), string(visibility), []byte(`["go"]`), int64(2), now, now)
}

func TestGetVideoMapsRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select .* from videos v where v.id=\\$1").
		WithArgs("v1").
		WillReturnRows(videoRow("v1", "owner-1", content.VisibilityPublic))

	v, err := s.GetVideo(context.Background(), "v1", "")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if v.Views != 3 || v.LikeCount != 2 || len(v.Tags) != 1 {
		t.Fatalf("unexpected video: %+v", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetVideoPrivateHiddenFromViewer(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select .* from videos v where v.id=\\$1").
		WithArgs("v1").
		WillReturnRows(videoRow("v1", "owner-1", content.VisibilityPrivate))

	if _, err := s.GetVideo(context.Background(), "v1", "someone-else"); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordViewMissingVideo(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("update videos set views = views \\+ 1").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.RecordView(context.Background(), "ghost"); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestToggleVideoLikeInsertAndRemove(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("insert into likes").
		WillReturnResult(sqlmock.NewResult(0, 1))
	liked, err := s.ToggleVideoLike(context.Background(), "v1", "u1")
	if err != nil || !liked {
		t.Fatalf("toggle on: liked=%v err=%v", liked, err)
	}

	mock.ExpectExec("insert into likes").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from likes").
		WithArgs("u1", "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	liked, err = s.ToggleVideoLike(context.Background(), "v1", "u1")
	if err != nil || liked {
		t.Fatalf("toggle off: liked=%v err=%v", liked, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteCommentOwnership(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select owner_id from comments where id=\\$1").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("user-1"))

	if err := s.DeleteComment(context.Background(), "c1", "intruder"); !errors.Is(err, content.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestOwnerStats(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select count\\(\\*\\), coalesce\\(sum\\(views\\), 0\\) from videos").
		WithArgs("owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(int64(4), int64(120)))

	stats, err := s.OwnerStats(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("OwnerStats: %v", err)
	}
	if stats.Videos != 4 || stats.Views != 120 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestUpdateVideoRequiresOwnership(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select owner_id from videos where id=\\$1").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("owner-1"))

	_, err := s.UpdateVideo(context.Background(), "v1", "stranger", content.VideoUpdate{})
	if !errors.Is(err, content.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateVideoAppliesSetFields(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select owner_id from videos where id=\\$1").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("owner-1"))
	mock.ExpectExec("update videos set").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select .* from videos v where v.id=\\$1").
		WithArgs("v1").
		WillReturnRows(videoRow("v1", "owner-1", content.VisibilityPublic))

	title := "Retitled"
	v, err := s.UpdateVideo(context.Background(), "v1", "owner-1", content.VideoUpdate{Title: &title})
	if err != nil {
		t.Fatalf("UpdateVideo: %v", err)
	}
	if v.ID != "v1" {
		t.Fatalf("unexpected video: %+v", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteVideoMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select owner_id from videos where id=\\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}))

	if err := s.DeleteVideo(context.Background(), "missing", "owner-1"); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChannelVideosQuery(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select .* from videos v\\s+where v.owner_id = \\$1").
		WithArgs("owner-1", "viewer", "", 11).
		WillReturnRows(videoRow("v1", "owner-1", content.VisibilityPublic))

	items, next, err := s.ChannelVideos(context.Background(), "owner-1", "viewer", 10, "")
	if err != nil {
		t.Fatalf("ChannelVideos: %v", err)
	}
	if len(items) != 1 || next != "" {
		t.Fatalf("unexpected page: %d items, next=%q", len(items), next)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
