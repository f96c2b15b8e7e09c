package httpapi

import (
	"net/http"
	"strings"
)

func (a *API) handleCommentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/comments/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/like"); ok {
		a.likeComment(w, r, id)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodPatch:
		a.updateComment(w, r, path)
	case http.MethodDelete:
		a.deleteComment(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) updateComment(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req addCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	comment, err := a.content.UpdateComment(r.Context(), id, user.ID, req.Content)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (a *API) deleteComment(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := a.content.DeleteComment(r.Context(), id, user.ID); err != nil {
		handleContentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (a *API) likeComment(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	liked, err := a.content.ToggleCommentLike(r.Context(), id, user.ID)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"liked": liked})
}
