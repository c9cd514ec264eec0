package answerkey

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service is the owner-scoped entry point for answer keys. The owner is
// always passed explicitly; nothing is read from request-scoped state.
type Service struct {
	store Store
	now   func() time.Time
	newID func() string
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

func (s *Service) Create(ctx context.Context, ownerID string, d Draft) (AnswerKey, error) {
	titles, err := s.store.TitlesByOwner(ctx, ownerID)
	if err != nil {
		return AnswerKey{}, err
	}
	if err := ValidateForCreate(d, titles); err != nil {
		return AnswerKey{}, err
	}
	now := s.now().Truncate(time.Second)
	k := AnswerKey{
		ID:            s.newID(),
		OwnerID:       ownerID,
		Title:         strings.TrimSpace(d.Title),
		QuestionCount: d.QuestionCount,
		Alphabet:      append([]string(nil), d.Alphabet...),
		Answers:       canonicalAnswers(d.Answers),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, k); err != nil {
		return AnswerKey{}, err
	}
	return k, nil
}

// Get returns ErrNotFound for unknown ids and ErrForbidden for keys of other owners.
func (s *Service) Get(ctx context.Context, ownerID, id string) (AnswerKey, error) {
	k, err := s.store.Get(ctx, id)
	if err != nil {
		return AnswerKey{}, err
	}
	if k.OwnerID != ownerID {
		return AnswerKey{}, ErrForbidden
	}
	return k, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]AnswerKey, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// Update validates the merged record before writing; a rejected update leaves the stored key intact.
func (s *Service) Update(ctx context.Context, ownerID, id string, p Patch) (AnswerKey, error) {
	k, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return AnswerKey{}, err
	}
	if p.Empty() {
		return k, nil
	}
	titles, err := s.store.TitlesByOwner(ctx, ownerID)
	if err != nil {
		return AnswerKey{}, err
	}
	d, err := ValidateForUpdate(k, p, titles)
	if err != nil {
		return AnswerKey{}, err
	}
	k.Title = strings.TrimSpace(d.Title)
	k.QuestionCount = d.QuestionCount
	k.Alphabet = append([]string(nil), d.Alphabet...)
	k.Answers = canonicalAnswers(d.Answers)
	k.UpdatedAt = s.now().Truncate(time.Second)
	if err := s.store.Update(ctx, k); err != nil {
		return AnswerKey{}, err
	}
	return k, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}
