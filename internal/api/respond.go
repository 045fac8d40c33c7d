package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/internal/middleware"
	"github.com/tunehub/backend/pkg/response"
	"github.com/tunehub/backend/pkg/validator"
)

const maxBodyBytes = 1 << 20

// decodeBody reads a JSON body into dst and checks its validate tags.
// An empty body is accepted when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return domain.Invalid("body", "invalid request body")
		}
	}
	return validator.Struct(dst)
}

// writeError maps service errors onto the HTTP status conventions. Anything
// unrecognised is a persistence failure: it is logged and reported as 500.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error, action string) {
	var ve *domain.ValidationError
	var vs validator.ValidationErrors

	switch {
	case errors.As(err, &ve):
		response.BadRequest(w, ve.Error())
	case errors.As(err, &vs):
		response.BadRequest(w, vs.Error())
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, "not found")
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(w, "not allowed to act for this user")
	case errors.Is(err, domain.ErrConflict):
		response.Conflict(w, "already exists")
	default:
		logger.Error("failed to "+action, zap.Error(err))
		response.InternalError(w, "failed to "+action)
	}
}

// requireActor returns the authenticated caller or writes a 401.
func requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
	}
	return actor, ok
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
