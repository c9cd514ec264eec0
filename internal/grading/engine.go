package grading

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/mind-engage/gabarito/internal/answerkey"
	"github.com/mind-engage/gabarito/internal/detect"
)

type Outcome string

const (
	Correct   Outcome = "correta"
	Incorrect Outcome = "incorreta"
	Blank     Outcome = "em branco"
	Void      Outcome = "anulada"
)

var (
	ErrInvalidAnswerKey = errors.New("answer key has no questions")
	ErrCorruptAnswerKey = errors.New("answer key is corrupt")
)

// QuestionResult is the classification of one question.
type QuestionResult struct {
	Question int
	Expected string
	Detected string
	Outcome  Outcome
}

// Report is the outcome of scoring one sheet. Questions is in ascending
// question order and always has TotalQuestions entries.
type Report struct {
	TotalQuestions int
	TotalCorrect   int
	FinalGrade     float64
	Percentage     float64
	Questions      []QuestionResult
}

// Count returns how many questions were classified as o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, q := range r.Questions {
		if q.Outcome == o {
			n++
		}
	}
	return n
}

// Score classifies every question 1..QuestionCount of k against the tokens
// in d. Detection entries outside that range are ignored. Blank and void
// answers score zero but still count in the denominator.
//
// Score fails with ErrCorruptAnswerKey when k lacks an answer from its own
// alphabet for some question; no partial report is returned.
func Score(k answerkey.AnswerKey, d detect.Detection) (Report, error) {
	n := k.QuestionCount
	if n <= 0 {
		return Report{}, ErrInvalidAnswerKey
	}
	results := make([]QuestionResult, 0, n)
	correct := 0
	for q := 1; q <= n; q++ {
		expected, ok := k.Answer(q)
		if !ok {
			return Report{}, fmt.Errorf("%w: key %s has no answer for question %d", ErrCorruptAnswerKey, k.ID, q)
		}
		if !slices.Contains(k.Alphabet, expected) {
			return Report{}, fmt.Errorf("%w: key %s answer %q for question %d is not an alternative", ErrCorruptAnswerKey, k.ID, expected, q)
		}

		got := d.Token(q)
		var o Outcome
		switch got {
		case "", detect.Blank:
			o = Blank
		case detect.Void:
			o = Void
		case expected:
			o = Correct
			correct++
		default:
			o = Incorrect
		}
		results = append(results, QuestionResult{Question: q, Expected: expected, Detected: got, Outcome: o})
	}

	ratio := float64(correct) / float64(n)
	return Report{
		TotalQuestions: n,
		TotalCorrect:   correct,
		FinalGrade:     round2(ratio * 10),
		Percentage:     round2(ratio * 100),
		Questions:      results,
	}, nil
}

// round2 rounds half away from zero to two decimal places.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
