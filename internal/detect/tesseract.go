package detect

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
)

// TesseractDetector reads sheets where each answer is written as text, one
// question per line ("1 A", "2: C", "3-B"). Lines that do not parse, or name
// a question outside the sheet or a symbol outside the alphabet, are skipped.
// A question read twice with different symbols is void.
type TesseractDetector struct {
	Lang   string
	Runner Runner
}

func NewTesseractDetector(lang string, r Runner) *TesseractDetector {
	return &TesseractDetector{Lang: lang, Runner: r}
}

var answerLine = regexp.MustCompile(`^(\d+)\s*[:\-.)]?\s*(\S+)$`)

func (t *TesseractDetector) Detect(ctx context.Context, req Request) (Detection, error) {
	args := []string{req.ImagePath, "stdout"}
	if t.Lang != "" {
		args = append(args, "-l", t.Lang)
	}
	out, err := t.Runner.Run(ctx, "tesseract", args...)
	if err != nil {
		return nil, err
	}
	if out.ExitErr != nil {
		f := fail(ReasonExit, "tesseract exited with an error", out.ExitErr)
		f.Stderr = out.Stderr
		return nil, f
	}
	return parseAnswerText(out.Stdout, req.Config), nil
}

func parseAnswerText(text []byte, cfg Config) Detection {
	symbols := make(map[string]string, len(cfg.Alphabet))
	for _, s := range cfg.Alphabet {
		symbols[strings.ToUpper(s)] = s
	}
	det := Detection{}
	sc := bufio.NewScanner(bytes.NewReader(text))
	for sc.Scan() {
		m := answerLine.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if m == nil {
			continue
		}
		q, err := strconv.Atoi(m[1])
		if err != nil || q < 1 || q > cfg.QuestionCount {
			continue
		}
		sym, ok := symbols[strings.ToUpper(m[2])]
		if !ok {
			continue
		}
		key := strconv.Itoa(q)
		if prev, seen := det[key]; seen && prev != sym {
			det[key] = Void
			continue
		}
		det[key] = sym
	}
	return det
}
