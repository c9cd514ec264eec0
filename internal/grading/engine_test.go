package grading

import (
	"math"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/gabarito/internal/answerkey"
	"github.com/mind-engage/gabarito/internal/detect"
)

func abcKey() answerkey.AnswerKey {
	return answerkey.AnswerKey{
		ID:            "k1",
		Title:         "Prova",
		QuestionCount: 3,
		Alphabet:      []string{"A", "B", "C"},
		Answers:       map[string]string{"1": "A", "2": "B", "3": "C"},
	}
}

func outcomes(r Report) map[string]Outcome {
	out := map[string]Outcome{}
	for _, q := range r.Questions {
		out[strconv.Itoa(q.Question)] = q.Outcome
	}
	return out
}

func TestScore_Scenarios(t *testing.T) {
	testCases := []struct {
		name        string
		detection   detect.Detection
		wantCorrect int
		wantGrade   float64
		wantPercent float64
		wantPer     map[string]Outcome
	}{
		{
			name:        "one correct one wrong one blank",
			detection:   detect.Detection{"1": "A", "2": "C", "3": "branco"},
			wantCorrect: 1,
			wantGrade:   3.33,
			wantPercent: 33.33,
			wantPer:     map[string]Outcome{"1": Correct, "2": Incorrect, "3": Blank},
		},
		{
			name:        "all correct",
			detection:   detect.Detection{"1": "A", "2": "B", "3": "C"},
			wantCorrect: 3,
			wantGrade:   10.00,
			wantPercent: 100.00,
			wantPer:     map[string]Outcome{"1": Correct, "2": Correct, "3": Correct},
		},
		{
			name:        "all void",
			detection:   detect.Detection{"1": "anulada", "2": "anulada", "3": "anulada"},
			wantCorrect: 0,
			wantGrade:   0,
			wantPercent: 0,
			wantPer:     map[string]Outcome{"1": Void, "2": Void, "3": Void},
		},
		{
			name:        "absent and empty tokens are blank",
			detection:   detect.Detection{"2": ""},
			wantPer:     map[string]Outcome{"1": Blank, "2": Blank, "3": Blank},
			wantGrade:   0,
			wantPercent: 0,
		},
		{
			name:        "two thirds rounds up",
			detection:   detect.Detection{"1": "A", "2": "B", "3": "A"},
			wantCorrect: 2,
			wantGrade:   6.67,
			wantPercent: 66.67,
			wantPer:     map[string]Outcome{"1": Correct, "2": Correct, "3": Incorrect},
		},
		{
			name:        "symbol outside alphabet is incorrect",
			detection:   detect.Detection{"1": "Z", "2": "b", "3": "C"},
			wantCorrect: 1,
			wantGrade:   3.33,
			wantPercent: 33.33,
			wantPer:     map[string]Outcome{"1": Incorrect, "2": Incorrect, "3": Correct},
		},
		{
			name:        "questions beyond the key are ignored",
			detection:   detect.Detection{"1": "A", "2": "B", "3": "C", "4": "A", "0": "A"},
			wantCorrect: 3,
			wantGrade:   10,
			wantPercent: 100,
			wantPer:     map[string]Outcome{"1": Correct, "2": Correct, "3": Correct},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Score(abcKey(), tc.detection)
			require.NoError(t, err)
			assert.Equal(t, 3, r.TotalQuestions)
			assert.Equal(t, tc.wantCorrect, r.TotalCorrect)
			assert.Equal(t, tc.wantGrade, r.FinalGrade)
			assert.Equal(t, tc.wantPercent, r.Percentage)
			assert.Equal(t, tc.wantPer, outcomes(r))
		})
	}
}

func TestScore_CorruptKey(t *testing.T) {
	t.Run("missing answer", func(t *testing.T) {
		k := abcKey()
		delete(k.Answers, "2")
		r, err := Score(k, detect.Detection{"1": "A", "2": "B", "3": "C"})
		assert.ErrorIs(t, err, ErrCorruptAnswerKey)
		assert.Contains(t, err.Error(), "question 2")
		assert.Zero(t, r.TotalQuestions)
		assert.Nil(t, r.Questions)
	})
	t.Run("answer outside alphabet", func(t *testing.T) {
		k := abcKey()
		k.Answers["3"] = "E"
		_, err := Score(k, detect.Detection{})
		assert.ErrorIs(t, err, ErrCorruptAnswerKey)
	})
	t.Run("no questions", func(t *testing.T) {
		k := abcKey()
		k.QuestionCount = 0
		_, err := Score(k, detect.Detection{})
		assert.ErrorIs(t, err, ErrInvalidAnswerKey)
	})
}

func TestScore_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	alphabet := []string{"A", "B", "C", "D", "E"}
	tokens := append([]string{detect.Blank, detect.Void, "", "Z"}, alphabet...)

	for i := 0; i < 200; i++ {
		n := 1 + rng.IntN(60)
		k := answerkey.AnswerKey{QuestionCount: n, Alphabet: alphabet, Answers: map[string]string{}}
		d := detect.Detection{}
		for q := 1; q <= n; q++ {
			k.Answers[strconv.Itoa(q)] = alphabet[rng.IntN(len(alphabet))]
			if rng.IntN(5) > 0 {
				d[strconv.Itoa(q)] = tokens[rng.IntN(len(tokens))]
			}
		}

		r, err := Score(k, d)
		require.NoError(t, err)
		again, err := Score(k, d)
		require.NoError(t, err)
		assert.Equal(t, r, again, "scoring must be deterministic")

		assert.Equal(t, n, r.TotalQuestions)
		assert.Len(t, r.Questions, n)
		assert.GreaterOrEqual(t, r.TotalCorrect, 0)
		assert.LessOrEqual(t, r.TotalCorrect, r.TotalQuestions)
		assert.Equal(t, math.Round(float64(r.TotalCorrect)/float64(n)*10*100)/100, r.FinalGrade)
		assert.Equal(t, math.Round(float64(r.TotalCorrect)/float64(n)*100*100)/100, r.Percentage)
		assert.Equal(t, r.TotalCorrect, r.Count(Correct))

		for _, q := range r.Questions {
			switch q.Detected {
			case detect.Blank, "":
				assert.Equal(t, Blank, q.Outcome)
			case detect.Void:
				assert.Equal(t, Void, q.Outcome)
			}
		}
	}
}

func TestSentinelsAreReservedInAlphabets(t *testing.T) {
	assert.True(t, answerkey.IsReserved(detect.Blank))
	assert.True(t, answerkey.IsReserved(detect.Void))
	assert.Equal(t, string(Void), detect.Void)
}

func TestRound2(t *testing.T) {
	testCases := []struct {
		in, want float64
	}{
		{in: 3.3333333, want: 3.33},
		{in: 6.6666666, want: 6.67},
		{in: 0.125, want: 0.13},
		{in: 10, want: 10},
		{in: 0, want: 0},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, round2(tc.in), "round2(%v)", tc.in)
	}
}
