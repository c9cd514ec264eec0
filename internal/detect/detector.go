// Package detect reads the marked alternatives from a scanned answer sheet.
package detect

//go:generate mockgen -source=detector.go -destination=mocks/detector.mock.go -package=detectmocks

import (
	"context"
	"strconv"
)

// Sentinel tokens a detector may emit instead of an alphabet symbol.
const (
	Blank = "branco"
	Void  = "anulada"
)

// Config describes the sheet layout the detector should expect. Its JSON
// form is what external detector processes receive.
type Config struct {
	QuestionCount int      `json:"quantidade_questoes"`
	Alphabet      []string `json:"alternativas"`
}

type Request struct {
	ImagePath string
	Config    Config
}

// Detection maps question numbers in canonical decimal form to the token
// the detector read for that question. Absent questions are blank.
type Detection map[string]string

// Token returns the raw token for question q, or "" when none was read.
func (d Detection) Token(q int) string {
	return d[strconv.Itoa(q)]
}

func (d Detection) Clone() Detection {
	out := make(Detection, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

type Detector interface {
	Detect(ctx context.Context, req Request) (Detection, error)
}

// Func adapts a function to the Detector interface.
type Func func(ctx context.Context, req Request) (Detection, error)

func (f Func) Detect(ctx context.Context, req Request) (Detection, error) {
	return f(ctx, req)
}
