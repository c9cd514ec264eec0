package answerkey

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("gabarito não encontrado")
	ErrForbidden = errors.New("acesso negado ao gabarito")
)

// Store persists answer keys. Implementations never check ownership; Service does.
type Store interface {
	Get(ctx context.Context, id string) (AnswerKey, error)
	Create(ctx context.Context, k AnswerKey) error
	// Update replaces title, question count, alphabet and answers atomically.
	Update(ctx context.Context, k AnswerKey) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]AnswerKey, error)
	TitlesByOwner(ctx context.Context, ownerID string) ([]TitleRef, error)
}
