package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/pkg/models"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	Data   any    `json:"data,omitempty"`
}

func respond(w http.ResponseWriter, r *http.Request, status int, msg string, data any) {
	render.Status(r, status)
	render.JSON(w, r, Response{Status: status, Msg: msg, Data: data})
}

func ok(w http.ResponseWriter, r *http.Request, msg string, data any) {
	respond(w, r, http.StatusOK, msg, data)
}

// fail maps err onto an HTTP status and writes it in the envelope. Field
// errors, when present, travel in data.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, fields := statusFor(err)
	var data any
	if len(fields) > 0 {
		data = fields
	}
	respond(w, r, status, err.Error(), data)
}

func invalid(w http.ResponseWriter, r *http.Request, fields []models.FieldError) {
	fail(w, r, &core.ValidationError{Fields: fields})
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	respond(w, r, http.StatusBadRequest, err.Error(), nil)
}

func statusFor(err error) (int, []models.FieldError) {
	var (
		verr *core.ValidationError
		perr *core.ParseError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, verr.Fields
	case errors.As(err, &perr):
		return http.StatusBadRequest, perr.Fields
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, nil
	case errors.Is(err, core.ErrImmutableVariant):
		return http.StatusUnprocessableEntity, nil
	case errors.Is(err, core.ErrDuplicateID):
		return http.StatusConflict, nil
	case errors.Is(err, core.ErrNotBrowsable), errors.Is(err, core.ErrNoKnowledgeNetwork):
		return http.StatusUnprocessableEntity, nil
	case errors.Is(err, core.ErrPlatform):
		return http.StatusBadGateway, nil
	default:
		return http.StatusInternalServerError, nil
	}
}
