package httpapi

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"vidora.org/internal/ai"
	"vidora.org/internal/audit"
	"vidora.org/internal/auth"
	"vidora.org/internal/content"
	"vidora.org/internal/media"
)

const (
	maxVideoUploadBytes = int64(512 << 20) // 512 MiB
	maxImageUploadBytes = int64(8 << 20)   // 8 MiB
)

func (a *API) handleVideosCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.uploadVideo(w, r)
	case http.MethodGet:
		a.listVideos(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleVideoResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/videos/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if suffix, ok := strings.CutSuffix(path, "/comments"); ok {
		a.handleVideoComments(w, r, suffix)
		return
	}
	if suffix, ok := strings.CutSuffix(path, "/like"); ok {
		a.likeVideo(w, r, suffix)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getVideo(w, r, path)
	case http.MethodPatch:
		a.updateVideo(w, r, path)
	case http.MethodDelete:
		a.deleteVideo(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

type updateVideoRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Visibility  *string   `json:"visibility"`
	Tags        *[]string `json:"tags"`
}

func (a *API) updateVideo(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req updateVideoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	update := content.VideoUpdate{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	}
	if req.Visibility != nil {
		vis := content.Visibility(*req.Visibility)
		update.Visibility = &vis
	}
	video, err := a.content.UpdateVideo(r.Context(), id, user.ID, update)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

func (a *API) deleteVideo(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := a.content.DeleteVideo(r.Context(), id, user.ID); err != nil {
		handleContentError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "video.delete", map[string]any{
		"video_id": id,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (a *API) uploadVideo(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if a.media == nil {
		writeError(w, r, http.StatusServiceUnavailable, "uploads disabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxVideoUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed multipart request")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	visibility := content.Visibility(strings.TrimSpace(r.FormValue("visibility")))
	tags := splitTags(r.FormValue("tags"))
	if title == "" || description == "" {
		writeError(w, r, http.StatusBadRequest, "title and description are required")
		return
	}

	videoFile, videoHeader, err := r.FormFile("videoFile")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "videoFile is required")
		return
	}
	defer videoFile.Close()

	thumbFile, thumbHeader, err := r.FormFile("thumbnail")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "thumbnail is required")
		return
	}
	defer thumbFile.Close()

	// Both uploads must succeed before any row is written.
	videoUp, err := a.media.Upload(r.Context(), media.KindVideo, videoHeader.Filename, videoFile)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "video upload failed")
		return
	}
	thumbUp, err := a.media.Upload(r.Context(), media.KindImage, thumbHeader.Filename, thumbFile)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "thumbnail upload failed")
		return
	}

	// Best effort; user metadata survives enrichment failure.
	if a.enrich.Enabled() {
		meta, err := a.enrich.Enrich(r.Context(), ai.Metadata{
			Title:       title,
			Description: description,
			Tags:        tags,
		})
		if err == nil {
			title, description, tags = meta.Title, meta.Description, meta.Tags
		}
	}

	video, err := a.content.CreateVideo(r.Context(), content.NewVideo{
		OwnerID:      user.ID,
		Title:        title,
		Description:  description,
		VideoURL:     videoUp.URL,
		ThumbnailURL: thumbUp.URL,
		Duration:     videoUp.Duration,
		Visibility:   visibility,
		Tags:         tags,
	})
	if err != nil {
		handleContentError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "video.upload", map[string]any{
		"video_id": video.ID,
		"title":    video.Title,
	})
	w.Header().Set("Location", "/api/v1/videos/"+video.ID)
	writeJSON(w, http.StatusCreated, video)
}

func (a *API) listVideos(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 20, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	after := strings.TrimSpace(r.URL.Query().Get("after"))

	items, next, err := a.content.ListVideos(r.Context(), limit, after)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	if items == nil {
		items = []content.Video{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"next_after": next,
	})
}

func (a *API) getVideo(w http.ResponseWriter, r *http.Request, id string) {
	viewerID := ""
	if user, ok := auth.UserFromContext(r.Context()); ok {
		viewerID = user.ID
	}
	video, err := a.content.GetVideo(r.Context(), id, viewerID)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	// Fetching a video counts a view and, for signed-in viewers, lands in
	// their watch history.
	if err := a.content.RecordView(r.Context(), id); err == nil {
		video.Views++
	}
	if viewerID != "" {
		_ = a.content.RecordWatch(r.Context(), viewerID, id)
	}
	writeJSON(w, http.StatusOK, video)
}

func (a *API) handleVideoComments(w http.ResponseWriter, r *http.Request, videoID string) {
	if videoID == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.listComments(w, r, videoID)
	case http.MethodPost:
		a.addComment(w, r, videoID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listComments(w http.ResponseWriter, r *http.Request, videoID string) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 20, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	after := strings.TrimSpace(r.URL.Query().Get("after"))

	items, next, err := a.content.ListComments(r.Context(), videoID, limit, after)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	if items == nil {
		items = []content.Comment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"next_after": next,
	})
}

type addCommentRequest struct {
	Content string `json:"content"`
}

func (a *API) addComment(w http.ResponseWriter, r *http.Request, videoID string) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req addCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	comment, err := a.content.AddComment(r.Context(), videoID, user.ID, req.Content)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (a *API) likeVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	liked, err := a.content.ToggleVideoLike(r.Context(), videoID, user.ID)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"liked": liked})
}

// --- helpers ---

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

func formFile(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return nil, nil, errors.New("malformed multipart request")
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, errors.New(field + " file is required")
	}
	return file, header, nil
}
