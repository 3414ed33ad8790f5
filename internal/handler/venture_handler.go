package handler

import (
	"net/http"

	"venture-plan-server/internal/domain"
	"venture-plan-server/internal/middleware"
	"venture-plan-server/internal/service"
	"venture-plan-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type VentureHandler struct {
	ventureService *service.VentureService
	validator      *validator.Validate
	logger         zerolog.Logger
}

func NewVentureHandler(ventureService *service.VentureService, logger zerolog.Logger) *VentureHandler {
	return &VentureHandler{
		ventureService: ventureService,
		validator:      validator.New(),
		logger:         logger,
	}
}

func (h *VentureHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var req domain.CreateVentureRequest
	if !decodeJSON(w, r, &req, false) || !validate(w, h.validator, req) {
		return
	}

	venture, err := h.ventureService.Create(r.Context(), userID, &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Created(w, venture)
}

func (h *VentureHandler) List(w http.ResponseWriter, r *http.Request) {
	ventures, err := h.ventureService.List(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, ventures)
}

func (h *VentureHandler) Get(w http.ResponseWriter, r *http.Request) {
	venture, err := h.ventureService.Get(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, venture)
}

func (h *VentureHandler) UpdateState(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateStateRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	venture, err := h.ventureService.UpdateState(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"], req.State.Value())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, venture)
}

func (h *VentureHandler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	var req domain.AddCollaboratorRequest
	if !decodeJSON(w, r, &req, false) || !validate(w, h.validator, req) {
		return
	}

	venture, err := h.ventureService.AddCollaborator(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"], &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, venture)
}
