package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/gabarito/internal/answerkey"
	"github.com/mind-engage/gabarito/internal/detect"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const keyJSON = `{
	"titulo": "Simulado",
	"quantidade_questoes": 3,
	"alternativas": ["A", "B", "C"],
	"respostas": {"1": "A", "2": "B", "3": "C"}
}`

func TestScoreCmd(t *testing.T) {
	dir := t.TempDir()
	key := writeFile(t, dir, "key.json", keyJSON)
	det := writeFile(t, dir, "det.json", `{"1": "A", "2": "C", "3": "branco"}`)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"score", "--key", key, "--detection", det})
	require.NoError(t, cmd.Execute())

	assert.JSONEq(t, `{
		"message": "Prova corrigida com sucesso.",
		"resumo": "1 de 3 questões corretas. Nota 3.33 (33.33%). Em branco: 1.",
		"resultado": {
			"totalQuestoes": 3, "totalAcertos": 1, "notaFinal": 3.33, "percentual": 33.33,
			"resultadoPorQuestao": {"1": "correta", "2": "incorreta", "3": "em branco"}
		}
	}`, out.String())
}

func TestRunScore_Rejections(t *testing.T) {
	dir := t.TempDir()
	goodKey := writeFile(t, dir, "key.json", keyJSON)
	goodDet := writeFile(t, dir, "det.json", `{"1": "A"}`)

	badKey := writeFile(t, dir, "bad.json", `{"titulo": "Simulado", "quantidade_questoes": 2,
		"alternativas": ["A"], "respostas": {"1": "A"}}`)
	err := runScore(&bytes.Buffer{}, badKey, goodDet)
	assert.True(t, answerkey.IsKind(err, answerkey.KindAnswerCountMismatch), "%v", err)

	failed := writeFile(t, dir, "failed.json", `{"error": "sem marcadores"}`)
	err = runScore(&bytes.Buffer{}, goodKey, failed)
	assert.ErrorIs(t, err, detect.ErrDetection)

	err = runScore(&bytes.Buffer{}, filepath.Join(dir, "missing.json"), goodDet)
	assert.Error(t, err)
}

func TestSplitAlternatives(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, splitAlternatives(" A, B,,C "))
	assert.Nil(t, splitAlternatives(""))
}

func TestMigrateCmd(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file:"+filepath.Join(dir, "m.db"))
	t.Setenv("LOG_LEVEL", "error")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate", "--config", filepath.Join(dir, "absent.toml")})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(dir, "m.db"))
}
