package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"venture-plan-server/internal/repository"
	"venture-plan-server/internal/service"
	"venture-plan-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 10 << 20

// decodeJSON reads a JSON body into v. An empty body leaves v untouched when
// allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		response.BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

func validate(w http.ResponseWriter, v *validator.Validate, req interface{}) bool {
	if err := v.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var partial *service.PartialRestoreError

	switch {
	case errors.As(err, &partial):
		logger.Error().Err(err).Msg("partial restore")
		response.ErrorWithFields(w, http.StatusInternalServerError, "partial_restore", map[string]interface{}{
			"message":    err.Error(),
			"checkpoint": partial.Checkpoint,
		})
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(w, err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		response.Unauthorized(w, "unauthenticated")
	case errors.Is(err, service.ErrUnauthorized):
		response.Forbidden(w, "access denied")
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(w, "only the creator may do this")
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(w, "not found")
	case errors.Is(err, service.ErrVersionConflict):
		response.ErrorWithMessage(w, http.StatusConflict, "version_conflict",
			"another writer took the next version number, retry the request")
	case errors.Is(err, service.ErrStoreUnavailable):
		logger.Error().Err(err).Msg("store unavailable")
		response.ErrorWithMessage(w, http.StatusServiceUnavailable, "store_unavailable",
			"the version store is unreachable, retry later")
	case errors.Is(err, repository.ErrAccessDenied):
		logger.Error().Err(err).Msg("store rejected credentials")
		response.InternalError(w, "internal error")
	default:
		logger.Error().Err(err).Msg("unhandled error")
		response.InternalError(w, "internal error")
	}
}
