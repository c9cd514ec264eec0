package grading

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

const SuccessMessage = "Prova corrigida com sucesso."

// Outcomes maps question numbers to outcomes. It marshals in ascending
// question order so identical reports encode to identical bytes.
type Outcomes map[string]Outcome

func (o Outcomes) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		ai, aerr := strconv.Atoi(a)
		bi, berr := strconv.Atoi(b)
		switch {
		case aerr == nil && berr == nil:
			return cmp.Compare(ai, bi)
		case aerr == nil:
			return -1
		case berr == nil:
			return 1
		}
		return cmp.Compare(a, b)
	})

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(string(o[k]))
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Result is the external projection of a Report.
type Result struct {
	TotalQuestoes       int      `json:"totalQuestoes"`
	TotalAcertos        int      `json:"totalAcertos"`
	NotaFinal           float64  `json:"notaFinal"`
	Percentual          float64  `json:"percentual"`
	ResultadoPorQuestao Outcomes `json:"resultadoPorQuestao"`
}

type Formatted struct {
	Message string `json:"message"`
	Summary string `json:"resumo"`
	Result  Result `json:"resultado"`
}

func Format(r Report) Formatted {
	per := make(Outcomes, len(r.Questions))
	for _, q := range r.Questions {
		per[strconv.Itoa(q.Question)] = q.Outcome
	}
	return Formatted{
		Message: SuccessMessage,
		Summary: summary(r),
		Result: Result{
			TotalQuestoes:       r.TotalQuestions,
			TotalAcertos:        r.TotalCorrect,
			NotaFinal:           r.FinalGrade,
			Percentual:          r.Percentage,
			ResultadoPorQuestao: per,
		},
	}
}

func summary(r Report) string {
	s := fmt.Sprintf("%d de %d questões corretas. Nota %.2f (%.2f%%).",
		r.TotalCorrect, r.TotalQuestions, r.FinalGrade, r.Percentage)
	if n := r.Count(Blank); n > 0 {
		s += fmt.Sprintf(" Em branco: %d.", n)
	}
	if n := r.Count(Void); n > 0 {
		s += fmt.Sprintf(" Anuladas: %d.", n)
	}
	return s
}
