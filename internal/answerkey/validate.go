package answerkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	KindTitleTooShort            Kind = "TitleTooShort"
	KindQuestionCountInvalid     Kind = "QuestionCountInvalid"
	KindAlphabetEmpty            Kind = "AlphabetEmpty"
	KindAlphabetInvalid          Kind = "AlphabetInvalid"
	KindDuplicateTitle           Kind = "DuplicateTitle"
	KindAnswerCountMismatch      Kind = "AnswerCountMismatch"
	KindQuestionNumberOutOfRange Kind = "QuestionNumberOutOfRange"
	KindInvalidAlternative       Kind = "InvalidAlternative"
)

const MinTitleLen = 3

// reservedSymbols are the detector sentinels for blank and voided marks;
// an alphabet containing them could never be scored as correct.
var reservedSymbols = map[string]struct{}{"branco": {}, "anulada": {}}

func IsReserved(symbol string) bool {
	_, ok := reservedSymbols[symbol]
	return ok
}

// ValidationError reports the first violated invariant.
type ValidationError struct {
	Kind    Kind
	Message string
}

func (e *ValidationError) Error() string { return string(e.Kind) + ": " + e.Message }

func invalid(kind Kind, format string, args ...any) error {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a ValidationError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == kind
}

// ValidateForCreate checks every invariant in a fixed order and returns the first failure.
// existing holds the titles already owned by the same user.
func ValidateForCreate(d Draft, existing []TitleRef) error {
	return validate(d, existing, "")
}

// ValidateForUpdate validates the merged state of k and p. The record's own
// title is excluded from the duplicate check so a key can keep or re-case its title.
func ValidateForUpdate(k AnswerKey, p Patch, existing []TitleRef) (Draft, error) {
	d := p.Merge(k)
	if err := validate(d, existing, k.ID); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func validate(d Draft, existing []TitleRef, selfID string) error {
	if len([]rune(strings.TrimSpace(d.Title))) < MinTitleLen {
		return invalid(KindTitleTooShort, "O título deve possuir ao menos %d caracteres.", MinTitleLen)
	}
	if d.QuestionCount <= 0 {
		return invalid(KindQuestionCountInvalid, "A quantidade de questões deve ser maior que zero.")
	}
	if len(d.Alphabet) == 0 {
		return invalid(KindAlphabetEmpty, "É necessário informar ao menos uma alternativa.")
	}
	if err := validateAlphabet(d.Alphabet); err != nil {
		return err
	}

	norm := NormalizeTitle(d.Title)
	for _, t := range existing {
		if t.ID != "" && t.ID == selfID {
			continue
		}
		if NormalizeTitle(t.Title) == norm {
			return invalid(KindDuplicateTitle, "Já existe um gabarito com esse título.")
		}
	}

	if len(d.Answers) != d.QuestionCount {
		return invalid(KindAnswerCountMismatch,
			"Número de respostas (%d) diferente da quantidade de questões (%d).", len(d.Answers), d.QuestionCount)
	}

	allowed := make(map[string]struct{}, len(d.Alphabet))
	for _, s := range d.Alphabet {
		allowed[s] = struct{}{}
	}
	// sorted so the reported question is deterministic
	seen := make(map[int]bool, len(d.Answers))
	for _, q := range sortedQuestionKeys(d.Answers) {
		n, ok := questionNumber(q)
		if !ok || n < 1 || n > d.QuestionCount {
			return invalid(KindQuestionNumberOutOfRange, "Questão inválida: %s.", q)
		}
		if seen[n] {
			return invalid(KindQuestionNumberOutOfRange, "Questão repetida: %s.", q)
		}
		seen[n] = true
	}
	for _, q := range sortedQuestionKeys(d.Answers) {
		a := d.Answers[q]
		if _, ok := allowed[a]; !ok {
			return invalid(KindInvalidAlternative,
				"Resposta inválida na questão %s. Alternativa '%s' não permitida.", q, a)
		}
	}
	return nil
}

func validateAlphabet(alphabet []string) error {
	seen := make(map[string]struct{}, len(alphabet))
	for _, s := range alphabet {
		if strings.TrimSpace(s) == "" {
			return invalid(KindAlphabetInvalid, "Alternativas não podem ser vazias.")
		}
		if IsReserved(s) {
			return invalid(KindAlphabetInvalid, "Alternativa '%s' é reservada.", s)
		}
		if _, dup := seen[s]; dup {
			return invalid(KindAlphabetInvalid, "Alternativa '%s' repetida.", s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// questionNumber parses an answer key such as "7" or "07".
func questionNumber(q string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(q))
	return n, err == nil
}

// canonicalAnswers copies validated answers with question numbers in their
// plain decimal form, the form used by scoring and storage.
func canonicalAnswers(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for q, a := range m {
		if n, ok := questionNumber(q); ok {
			q = strconv.Itoa(n)
		}
		out[q] = a
	}
	return out
}
