package http

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	auth "github.com/mind-engage/gabarito/internal/auth/middleware"
	"github.com/mind-engage/gabarito/internal/correction"
)

const (
	maxBatchSheets  = 50
	multipartMemory = 8 << 20
)

// CorrectSheetHandler scores the multipart "image" upload against an answer key.
func CorrectSheetHandler(svc *correction.Service, maxUpload int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, r, logger, multipartError(err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		f, fh, err := r.FormFile("image")
		if err != nil {
			writeError(w, r, logger, badRequest{`campo "image" obrigatório`})
			return
		}
		defer f.Close()

		c, err := svc.Correct(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "id"), correction.Sheet{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

type batchItem struct {
	Filename   string                 `json:"arquivo"`
	Correction *correction.Correction `json:"correcao,omitempty"`
	Error      *errorBody             `json:"erro,omitempty"`
}

// CorrectBatchHandler scores every multipart "images" upload. Per-sheet
// failures are reported inline; the response is 200 unless the batch as a
// whole could not run.
func CorrectBatchHandler(svc *correction.Service, maxUpload int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload*maxBatchSheets)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, r, logger, multipartError(err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		headers := r.MultipartForm.File["images"]
		if len(headers) > maxBatchSheets {
			writeError(w, r, logger, badRequest{"no máximo " + strconv.Itoa(maxBatchSheets) + " imagens por lote"})
			return
		}
		sheets := make([]correction.Sheet, 0, len(headers))
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				writeError(w, r, logger, err)
				return
			}
			defer f.Close()
			sheets = append(sheets, correction.Sheet{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Body:        f,
			})
		}

		items, err := svc.CorrectBatch(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "id"), sheets)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		out := make([]batchItem, len(items))
		for i, it := range items {
			out[i] = batchItem{Filename: it.Filename, Correction: it.Correction}
			if it.Err != nil {
				status, body := classify(it.Err)
				if status >= http.StatusInternalServerError {
					logger.Error("batch sheet failed", zap.String("file", it.Filename), zap.Error(it.Err))
				}
				out[i].Error = &body
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"resultados": out})
	}
}

// CorrectionHistoryHandler lists past corrections of a key; ?limit= caps the count.
func CorrectionHistoryHandler(svc *correction.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err := svc.History(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func multipartError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return tooBig
	}
	if errors.Is(err, multipart.ErrMessageTooLarge) {
		return &http.MaxBytesError{}
	}
	return badRequest{"envie os arquivos como multipart/form-data"}
}
