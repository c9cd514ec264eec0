package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/gabarito/internal/answerkey"
	auth "github.com/mind-engage/gabarito/internal/auth/middleware"
)

// answerKeyBody keeps raw values so that a wrongly typed field fails the
// matching validation rule instead of the JSON decoder.
type answerKeyBody struct {
	Title         *string         `json:"titulo"`
	QuestionCount json.RawMessage `json:"quantidade_questoes"`
	Alphabet      json.RawMessage `json:"alternativas"`
	Answers       json.RawMessage `json:"respostas"`
}

func (b answerKeyBody) patch() (answerkey.Patch, error) {
	var p answerkey.Patch
	p.Title = b.Title
	if b.QuestionCount != nil {
		var n int
		if json.Unmarshal(b.QuestionCount, &n) != nil {
			n = 0
		}
		p.QuestionCount = &n
	}
	if b.Alphabet != nil {
		var alphabet []string
		if json.Unmarshal(b.Alphabet, &alphabet) != nil || alphabet == nil {
			alphabet = []string{}
		}
		p.Alphabet = alphabet
	}
	if b.Answers != nil {
		var answers map[string]string
		if err := json.Unmarshal(b.Answers, &answers); err != nil {
			return answerkey.Patch{}, badRequest{"respostas deve ser um objeto de questão para alternativa"}
		}
		if answers == nil {
			answers = map[string]string{}
		}
		p.Answers = answers
	}
	return p, nil
}

func (b answerKeyBody) draft() (answerkey.Draft, error) {
	p, err := b.patch()
	if err != nil {
		return answerkey.Draft{}, err
	}
	return p.Merge(answerkey.AnswerKey{}), nil
}

func ListAnswerKeysHandler(svc *answerkey.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := svc.List(r.Context(), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, keys)
	}
}

func CreateAnswerKeyHandler(svc *answerkey.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body answerKeyBody
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, logger, err)
			return
		}
		d, err := body.draft()
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		k, err := svc.Create(r.Context(), auth.SubjectFromContext(r.Context()), d)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, k)
	}
}

func GetAnswerKeyHandler(svc *answerkey.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, err := svc.Get(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, k)
	}
}

// UpdateAnswerKeyHandler applies a partial update; absent fields keep their value.
func UpdateAnswerKeyHandler(svc *answerkey.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body answerKeyBody
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, logger, err)
			return
		}
		p, err := body.patch()
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		k, err := svc.Update(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "id"), p)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, k)
	}
}

func DeleteAnswerKeyHandler(svc *answerkey.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
