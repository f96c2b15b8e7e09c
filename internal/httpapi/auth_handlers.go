package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"vidora.org/internal/audit"
	"vidora.org/internal/auth"
	"vidora.org/internal/content"
	"vidora.org/internal/media"
	"vidora.org/internal/obs"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type profileUpdateRequest struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
}

type sessionResponse struct {
	User *auth.User `json:"user"`
	auth.TokenPair
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/users/")
	switch {
	case rest == "register":
		a.register(w, r)
	case rest == "login":
		a.login(w, r)
	case rest == "logout":
		a.logout(w, r)
	case rest == "refresh-token":
		a.refreshAccessToken(w, r)
	case rest == "change-password":
		a.changePassword(w, r)
	case rest == "me":
		a.me(w, r)
	case rest == "me/avatar":
		a.updateAvatar(w, r)
	case rest == "me/cover-image":
		a.updateCoverImage(w, r)
	case rest == "history":
		a.watchHistory(w, r)
	case rest == "me/liked-videos":
		a.likedVideos(w, r)
	case strings.HasPrefix(rest, "c/"):
		channel := strings.TrimPrefix(rest, "c/")
		if username, ok := strings.CutSuffix(channel, "/videos"); ok {
			a.channelVideos(w, r, username)
			return
		}
		a.channelProfile(w, r, channel)
	case strings.HasSuffix(rest, "/playlists"):
		a.userPlaylists(w, r, strings.TrimSuffix(rest, "/playlists"))
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var params auth.RegisterParams
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		p, ok := a.registerMultipart(w, r)
		if !ok {
			return
		}
		params = p
	} else {
		var req registerRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		params = auth.RegisterParams{
			Username: req.Username,
			Email:    req.Email,
			FullName: req.FullName,
			Password: req.Password,
		}
	}
	user, err := a.auth.Register(r.Context(), params)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.register", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Username
	}
	if identifier == "" {
		identifier = req.Email
	}

	pair, user, err := a.auth.Login(r.Context(), identifier, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotFound):
			obs.CountLogin("not_found")
		case errors.Is(err, auth.ErrUnauthorized):
			obs.CountLogin("denied")
		}
		handleAuthError(w, r, err)
		return
	}
	obs.CountLogin("ok")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": user.ID,
	})
	setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, sessionResponse{User: user, TokenPair: pair})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := a.auth.Logout(r.Context(), user.ID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) refreshAccessToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token := ""
	if c, err := r.Cookie(refreshTokenCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		var req refreshRequest
		if err := decodeJSON(w, r, &req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		writeError(w, r, http.StatusUnauthorized, "missing refresh token")
		return
	}

	pair, user, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	obs.CountTokenRotation()
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"user_id": user.ID,
	})
	setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, sessionResponse{User: user, TokenPair: pair})
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.password.change", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	case http.MethodPatch:
		var req profileUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.auth.UpdateProfile(r.Context(), user.ID, auth.ProfileUpdate{
			FullName: req.FullName,
			Email:    req.Email,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": updated})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) updateAvatar(w http.ResponseWriter, r *http.Request) {
	a.updateUserImage(w, r, "avatar", a.auth.UpdateAvatar)
}

func (a *API) updateCoverImage(w http.ResponseWriter, r *http.Request) {
	a.updateUserImage(w, r, "coverImage", a.auth.UpdateCoverImage)
}

// registerMultipart reads a signup form that may carry avatar and cover
// image files next to the account fields. Both images are optional.
func (a *API) registerMultipart(w http.ResponseWriter, r *http.Request) (auth.RegisterParams, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxImageUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed multipart request")
		return auth.RegisterParams{}, false
	}
	params := auth.RegisterParams{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		FullName: r.FormValue("full_name"),
		Password: r.FormValue("password"),
	}
	images := []struct {
		field string
		dest  *string
	}{
		{"avatar", &params.AvatarURL},
		{"coverImage", &params.CoverImageURL},
	}
	for _, img := range images {
		file, header, err := r.FormFile(img.field)
		if err != nil {
			continue
		}
		if a.media == nil {
			file.Close()
			writeError(w, r, http.StatusServiceUnavailable, "uploads disabled")
			return auth.RegisterParams{}, false
		}
		up, err := a.media.Upload(r.Context(), media.KindImage, header.Filename, file)
		file.Close()
		if err != nil {
			writeError(w, r, http.StatusBadGateway, "image upload failed")
			return auth.RegisterParams{}, false
		}
		*img.dest = up.URL
	}
	return params, true
}

func (a *API) updateUserImage(w http.ResponseWriter, r *http.Request, field string, apply func(ctx context.Context, userID, url string) (*auth.User, error)) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if a.media == nil {
		writeError(w, r, http.StatusServiceUnavailable, "uploads disabled")
		return
	}
	file, header, err := formFile(w, r, field, maxImageUploadBytes)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	up, err := a.media.Upload(r.Context(), media.KindImage, header.Filename, file)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "image upload failed")
		return
	}
	updated, err := apply(r.Context(), user.ID, up.URL)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": updated})
}

func (a *API) likedVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	videos, err := a.content.ListLikedVideos(r.Context(), user.ID)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	if videos == nil {
		videos = []content.Video{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": videos})
}

func (a *API) userPlaylists(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	playlists, err := a.content.ListUserPlaylists(r.Context(), userID)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	if playlists == nil {
		playlists = []content.Playlist{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": playlists})
}

// channelVideos lists one channel's videos. A channel owner browsing their
// own page sees private and unlisted videos too.
func (a *API) channelVideos(w http.ResponseWriter, r *http.Request, username string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if username == "" || strings.Contains(username, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	owner, err := a.auth.UserByUsername(r.Context(), username)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 20, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	after := strings.TrimSpace(r.URL.Query().Get("after"))
	viewerID := ""
	if user, ok := auth.UserFromContext(r.Context()); ok {
		viewerID = user.ID
	}
	items, next, err := a.content.ChannelVideos(r.Context(), owner.ID, viewerID, limit, after)
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

func (a *API) channelProfile(w http.ResponseWriter, r *http.Request, username string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if username == "" || strings.Contains(username, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	user, err := a.auth.UserByUsername(r.Context(), username)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	stats, err := a.content.OwnerStats(r.Context(), user.ID)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auth.ChannelProfile{
		User:       *user,
		VideoCount: stats.Videos,
		ViewCount:  stats.Views,
	})
}

func (a *API) watchHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 50, 1, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.content.WatchHistory(r.Context(), user.ID, limit)
	if err != nil {
		handleContentError(w, r, err)
		return
	}

	type historyItem struct {
		Video     content.Video `json:"video"`
		WatchedAt time.Time     `json:"watched_at"`
	}
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		v, err := a.content.GetVideo(r.Context(), e.VideoID, user.ID)
		if err != nil {
			// Deleted or now-private videos silently drop out of history.
			continue
		}
		items = append(items, historyItem{Video: v, WatchedAt: e.WatchedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// --- cookies ---

const refreshTokenCookie = "refreshToken"

func setAuthCookies(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    pair.AccessToken,
		Expires:  pair.AccessExpiresAt,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    pair.RefreshToken,
		Expires:  pair.RefreshExpiresAt,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
