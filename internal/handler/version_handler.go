package handler

import (
	"net/http"
	"strconv"

	"venture-plan-server/internal/domain"
	"venture-plan-server/internal/middleware"
	"venture-plan-server/internal/service"
	"venture-plan-server/pkg/plandoc"
	"venture-plan-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type VersionHandler struct {
	versionService *service.VersionService
	validator      *validator.Validate
	logger         zerolog.Logger
}

func NewVersionHandler(versionService *service.VersionService, logger zerolog.Logger) *VersionHandler {
	return &VersionHandler{
		versionService: versionService,
		validator:      validator.New(),
		logger:         logger,
	}
}

func (h *VersionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateVersionRequest
	if !decodeJSON(w, r, &req, true) || !validate(w, h.validator, req) {
		return
	}

	var snapshot plandoc.Value
	if req.Snapshot != nil {
		snapshot = req.Snapshot.Value()
	}

	record, err := h.versionService.CreateVersion(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"], snapshot, req.Label)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Created(w, record)
}

func (h *VersionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	versions, err := h.versionService.ListVersions(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"], limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, versions)
}

func (h *VersionHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.versionService.GetVersion(r.Context(), middleware.GetUserID(r), mux.Vars(r)["vid"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, record)
}

func (h *VersionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.versionService.DeleteVersion(r.Context(), middleware.GetUserID(r), mux.Vars(r)["vid"]); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, map[string]string{
		"message": "Version deleted",
	})
}

func (h *VersionHandler) Restore(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	result, err := h.versionService.RestoreVersion(r.Context(), middleware.GetUserID(r), vars["id"], vars["vid"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, result)
}
