package httpapi

import (
	"net/http"
	"strings"

	"vidora.org/internal/content"
)

type createPlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updatePlaylistRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (a *API) handlePlaylistsCollection(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createPlaylistRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p, err := a.content.CreatePlaylist(r.Context(), user.ID, req.Name, req.Description)
		if err != nil {
			handleContentError(w, r, err)
			return
		}
		w.Header().Set("Location", "/api/v1/playlists/"+p.ID)
		writeJSON(w, http.StatusCreated, p)
	case http.MethodGet:
		lists, err := a.content.ListUserPlaylists(r.Context(), user.ID)
		if err != nil {
			handleContentError(w, r, err)
			return
		}
		if lists == nil {
			lists = []content.Playlist{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": lists})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePlaylistResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/playlists/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	// /api/v1/playlists/{id}/videos/{videoId}
	if id, rest, found := strings.Cut(path, "/videos/"); found {
		a.handlePlaylistVideo(w, r, id, rest)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		// Playlists are readable by anyone who has the id.
		p, err := a.content.GetPlaylist(r.Context(), path)
		if err != nil {
			handleContentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodPatch:
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req updatePlaylistRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p, err := a.content.UpdatePlaylist(r.Context(), path, user.ID, content.PlaylistUpdate{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleContentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		if err := a.content.DeletePlaylist(r.Context(), path, user.ID); err != nil {
			handleContentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handlePlaylistVideo(w http.ResponseWriter, r *http.Request, playlistID, videoID string) {
	if playlistID == "" || videoID == "" || strings.Contains(videoID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		p, err := a.content.AddPlaylistVideo(r.Context(), playlistID, videoID, user.ID)
		if err != nil {
			handleContentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		p, err := a.content.RemovePlaylistVideo(r.Context(), playlistID, videoID, user.ID)
		if err != nil {
			handleContentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}
