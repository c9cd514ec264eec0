// Package correction runs an uploaded answer sheet through detection and
// scoring against one of the owner's answer keys.
package correction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/gabarito/internal/answerkey"
	"github.com/mind-engage/gabarito/internal/detect"
	"github.com/mind-engage/gabarito/internal/eventlog"
	"github.com/mind-engage/gabarito/internal/grading"
	"github.com/mind-engage/gabarito/internal/metrics"
	"github.com/mind-engage/gabarito/internal/storage"
)

var (
	ErrNotImage = errors.New("O arquivo enviado deve ser uma imagem válida.")
	ErrNoSheets = errors.New("Nenhuma imagem enviada.")
)

// Sheet is one uploaded answer sheet image.
type Sheet struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Correction is a scored sheet. Its JSON form is both the API response and
// the payload of the ExamCorrected event.
type Correction struct {
	ID          string    `json:"id"`
	AnswerKeyID string    `json:"gabaritoId"`
	Sheet       string    `json:"folha"`
	CorrectedAt time.Time `json:"corrigidaEm"`
	grading.Formatted
}

type BatchItem struct {
	Filename   string      `json:"arquivo"`
	Correction *Correction `json:"correcao,omitempty"`
	Err        error       `json:"-"`
}

type AnswerKeys interface {
	Get(ctx context.Context, ownerID, id string) (answerkey.AnswerKey, error)
}

type Events interface {
	Append(ctx context.Context, e eventlog.Event) error
	ListByKey(ctx context.Context, typ, key string, limit int) ([]eventlog.Event, error)
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option      { return func(s *Service) { s.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithParallelism(n int) Option          { return func(s *Service) { s.parallelism = n } }

type Service struct {
	keys        AnswerKeys
	blobs       storage.BlobStore
	detector    detect.Detector
	events      Events
	logger      *zap.Logger
	metrics     *metrics.Metrics
	parallelism int
	now         func() time.Time
	newID       func() string
}

func NewService(keys AnswerKeys, blobs storage.BlobStore, detector detect.Detector, events Events, opts ...Option) *Service {
	s := &Service{
		keys:        keys,
		blobs:       blobs,
		detector:    detector,
		events:      events,
		logger:      zap.NewNop(),
		parallelism: 4,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	if s.parallelism < 1 {
		s.parallelism = 1
	}
	return s
}

// Correct scores one sheet against the owner's answer key.
func (s *Service) Correct(ctx context.Context, ownerID, answerKeyID string, sheet Sheet) (Correction, error) {
	k, err := s.keys.Get(ctx, ownerID, answerKeyID)
	if err != nil {
		return Correction{}, err
	}
	return s.correct(ctx, k, sheet)
}

// CorrectBatch scores sheets concurrently. Items keep the input order and
// carry their own error; a corrupt answer key or a canceled context fails
// the whole batch.
func (s *Service) CorrectBatch(ctx context.Context, ownerID, answerKeyID string, sheets []Sheet) ([]BatchItem, error) {
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	k, err := s.keys.Get(ctx, ownerID, answerKeyID)
	if err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(sheets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, sh := range sheets {
		items[i].Filename = sh.Filename
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				items[i].Err = err
				return nil
			}
			c, err := s.correct(gctx, k, sh)
			if err != nil {
				items[i].Err = err
				if isKeyFault(err) {
					return err
				}
				return nil
			}
			items[i].Correction = &c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// History lists past corrections for the key, newest first.
func (s *Service) History(ctx context.Context, ownerID, answerKeyID string, limit int) ([]Correction, error) {
	if _, err := s.keys.Get(ctx, ownerID, answerKeyID); err != nil {
		return nil, err
	}
	events, err := s.events.ListByKey(ctx, eventlog.TypeExamCorrected, answerKeyID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Correction, 0, len(events))
	for _, e := range events {
		var c Correction
		if err := json.Unmarshal(e.Data, &c); err != nil {
			return nil, fmt.Errorf("decode correction event %d: %w", e.Offset, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Service) correct(ctx context.Context, k answerkey.AnswerKey, sheet Sheet) (Correction, error) {
	if !isImage(sheet.ContentType) {
		return Correction{}, ErrNotImage
	}
	id := s.newID()
	key, err := s.blobs.Put(path.Join("sheets", k.OwnerID, k.ID, id+extension(sheet)), sheet.Body)
	if err != nil {
		return Correction{}, fmt.Errorf("store sheet: %w", err)
	}
	imgPath, err := s.blobs.Path(key)
	if err != nil {
		return Correction{}, fmt.Errorf("store sheet: %w", err)
	}

	det, err := s.detector.Detect(ctx, detect.Request{
		ImagePath: imgPath,
		Config:    detect.Config{QuestionCount: k.QuestionCount, Alphabet: k.Alphabet},
	})
	if err != nil {
		s.metrics.CorrectionDone("detection_failure")
		return Correction{}, err
	}

	report, err := grading.Score(k, det)
	if err != nil {
		s.metrics.CorrectionDone("corrupt_key")
		s.logger.Error("answer key failed integrity check during scoring",
			zap.String("answer_key_id", k.ID),
			zap.String("owner_id", k.OwnerID),
			zap.Error(err))
		return Correction{}, err
	}

	c := Correction{
		ID:          id,
		AnswerKeyID: k.ID,
		Sheet:       key,
		CorrectedAt: s.now().Truncate(time.Second),
		Formatted:   grading.Format(report),
	}
	s.record(ctx, k, c)

	s.metrics.CorrectionDone("ok")
	for _, o := range []grading.Outcome{grading.Correct, grading.Incorrect, grading.Blank, grading.Void} {
		s.metrics.QuestionOutcome(string(o), report.Count(o))
	}
	return c, nil
}

// record appends the audit event. A failed append is logged; the sheet has
// already been scored and the caller still gets the result.
func (s *Service) record(ctx context.Context, k answerkey.AnswerKey, c Correction) {
	data, err := json.Marshal(c)
	if err == nil {
		err = s.events.Append(ctx, eventlog.Event{
			Type:    eventlog.TypeExamCorrected,
			Key:     k.ID,
			OwnerID: k.OwnerID,
			Data:    data,
		})
	}
	if err != nil {
		s.logger.Warn("could not record correction",
			zap.String("answer_key_id", k.ID),
			zap.String("correction_id", c.ID),
			zap.Error(err))
	}
}

func isKeyFault(err error) bool {
	return errors.Is(err, grading.ErrCorruptAnswerKey) || errors.Is(err, grading.ErrInvalidAnswerKey)
}

func isImage(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.HasPrefix(mt, "image/")
}

var knownExt = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true, ".webp": true}

func extension(sh Sheet) string {
	if ext := strings.ToLower(filepath.Ext(sh.Filename)); knownExt[ext] {
		return ext
	}
	mt, _, _ := mime.ParseMediaType(sh.ContentType)
	if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
		return exts[0]
	}
	return ".img"
}
