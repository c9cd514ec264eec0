package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"

	"github.com/mind-engage/gabarito/internal/answerkey"
	api "github.com/mind-engage/gabarito/internal/api/http"
	auth "github.com/mind-engage/gabarito/internal/auth/middleware"
	"github.com/mind-engage/gabarito/internal/correction"
	"github.com/mind-engage/gabarito/internal/db"
	"github.com/mind-engage/gabarito/internal/detect"
	detectmocks "github.com/mind-engage/gabarito/internal/detect/mocks"
	"github.com/mind-engage/gabarito/internal/eventlog"
	"github.com/mind-engage/gabarito/internal/metrics"
	"github.com/mind-engage/gabarito/internal/storage"
	"github.com/mind-engage/gabarito/internal/users"
)

type server struct {
	*httptest.Server
	detector *detectmocks.MockDetector
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	dbh, err := db.Open(ctx, db.DriverSQLite, "file:"+filepath.Join(dir, "api.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })

	blobs, err := storage.NewFSStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	m := metrics.New()
	det := detectmocks.NewMockDetector(gomock.NewController(t))
	keys := answerkey.NewService(answerkey.NewSQLStore(dbh))

	h := api.NewRouter(api.Deps{
		Logger:      logger,
		Auth:        auth.NewAuthService("test-secret", time.Hour),
		Users:       users.NewStore(dbh),
		AnswerKeys:  keys,
		Corrections: correction.NewService(keys, blobs, det, eventlog.NewRepo(dbh), correction.WithLogger(logger), correction.WithMetrics(m)),
		Blobs:       blobs,
		Metrics:     m,
		DB:          dbh,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &server{Server: srv, detector: det}
}

func (s *server) do(t *testing.T, method, path, token string, body io.Reader, contentType string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b
}

func (s *server) doJSON(t *testing.T, method, path, token string, v any) (int, []byte) {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return s.do(t, method, path, token, body, "application/json")
}

func (s *server) signup(t *testing.T, email string) string {
	t.Helper()
	code, body := s.doJSON(t, http.MethodPost, "/users", "", map[string]string{"nome": "Prof", "email": email, "senha": "segredo1"})
	require.Equal(t, http.StatusCreated, code, string(body))

	code, body = s.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "senha": "segredo1"})
	require.Equal(t, http.StatusOK, code, string(body))
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

type upload struct {
	name, contentType, content string
}

func multipartBody(t *testing.T, field string, files ...upload) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.name))
		h.Set("Content-Type", f.contentType)
		pw, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func errorKind(t *testing.T, body []byte) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &e), string(body))
	return e.Error
}

var provaBody = map[string]any{
	"titulo":              "Prova de Ciências",
	"quantidade_questoes": 3,
	"alternativas":        []string{"A", "B", "C"},
	"respostas":           map[string]string{"1": "A", "2": "B", "3": "C"},
}

func createKey(t *testing.T, s *server, token string) string {
	t.Helper()
	code, body := s.doJSON(t, http.MethodPost, "/answer-keys", token, provaBody)
	require.Equal(t, http.StatusCreated, code, string(body))
	var k struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &k))
	return k.ID
}

// detectByContent returns a fixed detection keyed on the uploaded bytes.
func detectByContent(_ context.Context, req detect.Request) (detect.Detection, error) {
	b, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return nil, err
	}
	switch string(b) {
	case "scenario-1":
		return detect.Detection{"1": "A", "2": "C", "3": "branco"}, nil
	case "perfect":
		return detect.Detection{"1": "A", "2": "B", "3": "C"}, nil
	}
	return detect.ParseDetection([]byte(`{"error":"Marcadores de alinhamento não encontrados"}`))
}

func TestAnswerKeyLifecycle(t *testing.T) {
	s := newServer(t)
	teacher := s.signup(t, "ana@escola.br")
	other := s.signup(t, "bia@escola.br")

	code, body := s.doJSON(t, http.MethodGet, "/answer-keys", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Unauthenticated", errorKind(t, body))

	id := createKey(t, s, teacher)

	t.Run("create rejections", func(t *testing.T) {
		testCases := []struct {
			name     string
			body     map[string]any
			wantCode int
			wantKind string
		}{
			{name: "duplicate title", body: map[string]any{
				"titulo": "PROVA DE CIENCIAS", "quantidade_questoes": 1,
				"alternativas": []string{"A"}, "respostas": map[string]string{"1": "A"},
			}, wantCode: 409, wantKind: "DuplicateTitle"},
			{name: "count mismatch", body: map[string]any{
				"titulo": "Prova curta", "quantidade_questoes": 2,
				"alternativas": []string{"A", "B", "C"}, "respostas": map[string]string{"1": "A", "2": "B", "3": "C"},
			}, wantCode: 400, wantKind: "AnswerCountMismatch"},
			{name: "alphabet not a list", body: map[string]any{
				"titulo": "Prova curta", "quantidade_questoes": 1,
				"alternativas": "ABC", "respostas": map[string]string{"1": "A"},
			}, wantCode: 400, wantKind: "AlphabetEmpty"},
			{name: "count not an integer", body: map[string]any{
				"titulo": "Prova curta", "quantidade_questoes": "três",
				"alternativas": []string{"A"}, "respostas": map[string]string{"1": "A"},
			}, wantCode: 400, wantKind: "QuestionCountInvalid"},
			{name: "answers not strings", body: map[string]any{
				"titulo": "Prova curta", "quantidade_questoes": 1,
				"alternativas": []string{"A"}, "respostas": map[string]int{"1": 1},
			}, wantCode: 400, wantKind: "BadRequest"},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				code, body := s.doJSON(t, http.MethodPost, "/answer-keys", teacher, tc.body)
				assert.Equal(t, tc.wantCode, code, string(body))
				assert.Equal(t, tc.wantKind, errorKind(t, body))
			})
		}
	})

	t.Run("other owner may reuse the title", func(t *testing.T) {
		code, body := s.doJSON(t, http.MethodPost, "/answer-keys", other, provaBody)
		assert.Equal(t, http.StatusCreated, code, string(body))
	})

	t.Run("ownership", func(t *testing.T) {
		code, body := s.doJSON(t, http.MethodGet, "/answer-keys/"+id, other, nil)
		assert.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, "Forbidden", errorKind(t, body))

		code, _ = s.doJSON(t, http.MethodGet, "/answer-keys/nope", teacher, nil)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("partial update", func(t *testing.T) {
		code, body := s.doJSON(t, http.MethodPut, "/answer-keys/"+id, teacher, map[string]any{"titulo": "Ciências 2º bimestre"})
		require.Equal(t, http.StatusOK, code, string(body))
		var k answerkey.AnswerKey
		require.NoError(t, json.Unmarshal(body, &k))
		assert.Equal(t, "Ciências 2º bimestre", k.Title)
		assert.Equal(t, 3, k.QuestionCount)

		code, body = s.doJSON(t, http.MethodPut, "/answer-keys/"+id, teacher, map[string]any{"quantidade_questoes": 4})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "AnswerCountMismatch", errorKind(t, body))
	})

	t.Run("list own only", func(t *testing.T) {
		code, body := s.doJSON(t, http.MethodGet, "/answer-keys", teacher, nil)
		require.Equal(t, http.StatusOK, code)
		var list []answerkey.AnswerKey
		require.NoError(t, json.Unmarshal(body, &list))
		assert.Len(t, list, 1)
	})

	t.Run("delete", func(t *testing.T) {
		code, _ := s.doJSON(t, http.MethodDelete, "/answer-keys/"+id, other, nil)
		assert.Equal(t, http.StatusForbidden, code)
		code, _ = s.doJSON(t, http.MethodDelete, "/answer-keys/"+id, teacher, nil)
		assert.Equal(t, http.StatusNoContent, code)
		code, _ = s.doJSON(t, http.MethodGet, "/answer-keys/"+id, teacher, nil)
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func TestCorrectionFlow(t *testing.T) {
	s := newServer(t)
	teacher := s.signup(t, "ana@escola.br")
	other := s.signup(t, "bia@escola.br")
	id := createKey(t, s, teacher)
	s.detector.EXPECT().Detect(gomock.Any(), gomock.Any()).DoAndReturn(detectByContent).AnyTimes()

	var sheet string
	t.Run("single sheet", func(t *testing.T) {
		body, ct := multipartBody(t, "image", upload{"folha.png", "image/png", "scenario-1"})
		code, out := s.do(t, http.MethodPost, "/answer-keys/"+id+"/corrections", teacher, body, ct)
		require.Equal(t, http.StatusOK, code, string(out))

		var c struct {
			Message   string          `json:"message"`
			Sheet     string          `json:"folha"`
			Resultado json.RawMessage `json:"resultado"`
		}
		require.NoError(t, json.Unmarshal(out, &c))
		assert.Equal(t, "Prova corrigida com sucesso.", c.Message)
		assert.JSONEq(t, `{
			"totalQuestoes": 3, "totalAcertos": 1, "notaFinal": 3.33, "percentual": 33.33,
			"resultadoPorQuestao": {"1": "correta", "2": "incorreta", "3": "em branco"}
		}`, string(c.Resultado))
		sheet = c.Sheet
	})

	t.Run("detection failure", func(t *testing.T) {
		body, ct := multipartBody(t, "image", upload{"borrada.jpg", "image/jpeg", "blurry"})
		code, out := s.do(t, http.MethodPost, "/answer-keys/"+id+"/corrections", teacher, body, ct)
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, "DetectionFailure", errorKind(t, out))
		assert.Contains(t, string(out), "Marcadores de alinhamento")
	})

	t.Run("not an image", func(t *testing.T) {
		body, ct := multipartBody(t, "image", upload{"prova.pdf", "application/pdf", "%PDF"})
		code, out := s.do(t, http.MethodPost, "/answer-keys/"+id+"/corrections", teacher, body, ct)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "InvalidImage", errorKind(t, out))
	})

	t.Run("missing field", func(t *testing.T) {
		body, ct := multipartBody(t, "arquivo", upload{"folha.png", "image/png", "perfect"})
		code, out := s.do(t, http.MethodPost, "/answer-keys/"+id+"/corrections", teacher, body, ct)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "BadRequest", errorKind(t, out))
	})

	t.Run("other owner", func(t *testing.T) {
		body, ct := multipartBody(t, "image", upload{"folha.png", "image/png", "perfect"})
		code, _ := s.do(t, http.MethodPost, "/answer-keys/"+id+"/corrections", other, body, ct)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("batch", func(t *testing.T) {
		body, ct := multipartBody(t, "images",
			upload{"a.png", "image/png", "perfect"},
			upload{"b.png", "image/png", "blurry"},
			upload{"c.txt", "text/plain", "x"},
		)
		code, out := s.do(t, http.MethodPost, "/answer-keys/"+id+"/corrections/batch", teacher, body, ct)
		require.Equal(t, http.StatusOK, code, string(out))

		var res struct {
			Resultados []struct {
				Arquivo string          `json:"arquivo"`
				Correcao json.RawMessage `json:"correcao"`
				Erro    *struct {
					Error string `json:"error"`
				} `json:"erro"`
			} `json:"resultados"`
		}
		require.NoError(t, json.Unmarshal(out, &res))
		require.Len(t, res.Resultados, 3)
		assert.Equal(t, "a.png", res.Resultados[0].Arquivo)
		assert.Contains(t, string(res.Resultados[0].Correcao), `"notaFinal":10`)
		require.NotNil(t, res.Resultados[1].Erro)
		assert.Equal(t, "DetectionFailure", res.Resultados[1].Erro.Error)
		require.NotNil(t, res.Resultados[2].Erro)
		assert.Equal(t, "InvalidImage", res.Resultados[2].Erro.Error)
	})

	t.Run("history", func(t *testing.T) {
		code, out := s.doJSON(t, http.MethodGet, "/answer-keys/"+id+"/corrections?limit=10", teacher, nil)
		require.Equal(t, http.StatusOK, code)
		var list []json.RawMessage
		require.NoError(t, json.Unmarshal(out, &list))
		assert.Len(t, list, 2)

		code, _ = s.doJSON(t, http.MethodGet, "/answer-keys/"+id+"/corrections", other, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("stored sheet", func(t *testing.T) {
		require.True(t, strings.HasPrefix(sheet, "sheets/"), sheet)
		code, out := s.do(t, http.MethodGet, "/"+sheet, teacher, nil, "")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "scenario-1", string(out))

		code, _ = s.do(t, http.MethodGet, "/"+sheet, other, nil, "")
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("metrics", func(t *testing.T) {
		code, out := s.do(t, http.MethodGet, "/metrics", "", nil, "")
		require.Equal(t, http.StatusOK, code)
		assert.Contains(t, string(out), `gabarito_corrections_total{result="ok"} 2`)
		assert.Contains(t, string(out), `gabarito_corrections_total{result="detection_failure"} 2`)
	})
}

func TestUsersAndHealth(t *testing.T) {
	s := newServer(t)
	token := s.signup(t, "ana@escola.br")

	code, body := s.doJSON(t, http.MethodPost, "/users", "", map[string]string{"nome": "Ana", "email": "ANA@escola.br", "senha": "outra123"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "EmailTaken", errorKind(t, body))

	code, body = s.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@escola.br", "senha": "errada"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "InvalidCredentials", errorKind(t, body))

	code, _ = s.doJSON(t, http.MethodPost, "/users/change-password", token, map[string]string{"senha_atual": "segredo1", "nova_senha": "novasenha"})
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = s.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@escola.br", "senha": "novasenha"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodPost, "/auth/login", "", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/readyz", "", nil, "")
	assert.Equal(t, http.StatusOK, code)
}
