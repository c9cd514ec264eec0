package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mind-engage/gabarito/internal/answerkey"
	"github.com/mind-engage/gabarito/internal/correction"
	"github.com/mind-engage/gabarito/internal/detect"
	"github.com/mind-engage/gabarito/internal/grading"
	"github.com/mind-engage/gabarito/internal/users"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// badRequest marks malformed request bodies.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// classify maps domain errors onto a status and the public error body.
func classify(err error) (int, errorBody) {
	var (
		ve     *answerkey.ValidationError
		df     *detect.Failure
		br     badRequest
		tooBig *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ve):
		if ve.Kind == answerkey.KindDuplicateTitle {
			return http.StatusConflict, errorBody{string(ve.Kind), ve.Message}
		}
		return http.StatusBadRequest, errorBody{string(ve.Kind), ve.Message}
	case errors.Is(err, answerkey.ErrNotFound):
		return http.StatusNotFound, errorBody{"NotFound", err.Error()}
	case errors.Is(err, answerkey.ErrForbidden):
		return http.StatusForbidden, errorBody{"Forbidden", err.Error()}
	case errors.As(err, &df):
		return http.StatusUnprocessableEntity, errorBody{"DetectionFailure", "Não foi possível ler a folha de respostas: " + df.Message}
	case errors.Is(err, grading.ErrCorruptAnswerKey), errors.Is(err, grading.ErrInvalidAnswerKey):
		return http.StatusInternalServerError, errorBody{"CorruptAnswerKey", "O gabarito armazenado está inconsistente."}
	case errors.Is(err, correction.ErrNotImage):
		return http.StatusBadRequest, errorBody{"InvalidImage", err.Error()}
	case errors.Is(err, correction.ErrNoSheets):
		return http.StatusBadRequest, errorBody{"NoSheets", err.Error()}
	case errors.Is(err, users.ErrEmailTaken):
		return http.StatusConflict, errorBody{"EmailTaken", err.Error()}
	case errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{"InvalidCredentials", err.Error()}
	case errors.Is(err, users.ErrWeakPassword), errors.Is(err, users.ErrInvalidInput):
		return http.StatusBadRequest, errorBody{"InvalidInput", err.Error()}
	case errors.Is(err, users.ErrNotFound):
		return http.StatusNotFound, errorBody{"NotFound", err.Error()}
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, errorBody{"PayloadTooLarge", "arquivo excede o tamanho máximo permitido"}
	case errors.As(err, &br):
		return http.StatusBadRequest, errorBody{"BadRequest", br.msg}
	}
	return http.StatusInternalServerError, errorBody{"Internal", "erro interno"}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		return badRequest{"JSON inválido"}
	}
	return nil
}
