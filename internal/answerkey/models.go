package answerkey

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// AnswerKey is the canonical answer template ("gabarito") of an exam.
// Answers maps the question number, as a decimal string, to its correct symbol.
type AnswerKey struct {
	ID            string            `json:"id"`
	OwnerID       string            `json:"-"`
	Title         string            `json:"titulo"`
	QuestionCount int               `json:"quantidade_questoes"`
	Alphabet      []string          `json:"alternativas"`
	Answers       map[string]string `json:"respostas"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Answer returns the correct symbol for question q.
func (k AnswerKey) Answer(q int) (string, bool) {
	s, ok := k.Answers[strconv.Itoa(q)]
	return s, ok
}

// Draft is the caller-supplied content of a new answer key.
type Draft struct {
	Title         string
	QuestionCount int
	Alphabet      []string
	Answers       map[string]string
}

// Patch is a partial update. Nil fields keep the stored value.
type Patch struct {
	Title         *string
	QuestionCount *int
	Alphabet      []string
	Answers       map[string]string
}

func (p Patch) Empty() bool {
	return p.Title == nil && p.QuestionCount == nil && p.Alphabet == nil && p.Answers == nil
}

// Merge applies p on top of k and returns the effective draft.
func (p Patch) Merge(k AnswerKey) Draft {
	d := Draft{
		Title:         k.Title,
		QuestionCount: k.QuestionCount,
		Alphabet:      k.Alphabet,
		Answers:       k.Answers,
	}
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.QuestionCount != nil {
		d.QuestionCount = *p.QuestionCount
	}
	if p.Alphabet != nil {
		d.Alphabet = p.Alphabet
	}
	if p.Answers != nil {
		d.Answers = p.Answers
	}
	return d
}

// TitleRef is the minimal view used for duplicate-title checks.
type TitleRef struct {
	ID    string
	Title string
}

// sortedQuestionKeys orders keys numerically; non-numeric keys sort last.
func sortedQuestionKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		na, errA := strconv.Atoi(a)
		nb, errB := strconv.Atoi(b)
		switch {
		case errA == nil && errB == nil && na != nb:
			return cmp.Compare(na, nb)
		case errA == nil && errB != nil:
			return -1
		case errA != nil && errB == nil:
			return 1
		}
		return strings.Compare(a, b)
	})
	return keys
}
