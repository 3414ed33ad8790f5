package handler

import (
	"net/http"

	"venture-plan-server/internal/domain"
	"venture-plan-server/internal/middleware"
	"venture-plan-server/pkg/plandoc"
	"venture-plan-server/pkg/response"

	"github.com/gorilla/mux"
)

type diffView struct {
	Field       string        `json:"field"`
	Path        string        `json:"path"`
	OldValue    plandoc.Value `json:"oldValue,omitempty"`
	NewValue    plandoc.Value `json:"newValue,omitempty"`
	Description string        `json:"description"`
}

func (h *VersionHandler) diffViews(diffs []plandoc.Diff) []diffView {
	views := make([]diffView, 0, len(diffs))
	for _, d := range diffs {
		views = append(views, diffView{
			Field:       d.Field,
			Path:        d.Path,
			OldValue:    d.OldValue,
			NewValue:    d.NewValue,
			Description: h.versionService.FormatDiff(d),
		})
	}
	return views
}

// Compare diffs two documents from the request body without touching storage.
func (h *VersionHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req domain.CompareRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	diffs := h.versionService.CompareVersions(req.Before.Value(), req.After.Value())
	response.Success(w, h.diffViews(diffs))
}

// Diff compares a stored version with ?against=live (default) or another
// version ID.
func (h *VersionHandler) Diff(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	versionID := mux.Vars(r)["vid"]

	var (
		diffs []plandoc.Diff
		err   error
	)
	switch against := r.URL.Query().Get("against"); against {
	case "", "live":
		diffs, err = h.versionService.CompareWithLive(r.Context(), userID, versionID)
	default:
		diffs, err = h.versionService.CompareStored(r.Context(), userID, versionID, against)
	}
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, h.diffViews(diffs))
}
