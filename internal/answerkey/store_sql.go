package answerkey

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

type SQLStore struct {
	db *sql.DB
	// snapshot is used for reads spanning the key and its child rows.
	snapshot *sql.TxOptions
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, snapshot: snapshotOptions(db)}
}

// snapshotOptions asks postgres for a repeatable-read snapshot. SQLite runs
// on a single connection and its default transaction is already consistent.
func snapshotOptions(db *sql.DB) *sql.TxOptions {
	if _, ok := db.Driver().(*stdlib.Driver); ok {
		return &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}
	}
	return nil
}

// readTx runs fn inside one read transaction so the header, alphabet and
// answers come from the same committed state.
func (s *SQLStore) readTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, s.snapshot)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) Get(ctx context.Context, id string) (k AnswerKey, err error) {
	err = s.readTx(ctx, func(tx *sql.Tx) error {
		k, err = getKey(ctx, tx, id)
		return err
	})
	return k, err
}

func getKey(ctx context.Context, tx *sql.Tx, id string) (AnswerKey, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, owner_id, title, question_count, created_at, updated_at FROM answer_keys WHERE id=$1`, id)
	k, err := scanKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AnswerKey{}, ErrNotFound
		}
		return AnswerKey{}, err
	}

	alts, err := tx.QueryContext(ctx,
		`SELECT answer_key_id, symbol FROM answer_key_alternatives WHERE answer_key_id=$1 ORDER BY position`, id)
	if err != nil {
		return AnswerKey{}, err
	}
	byID := map[string]*AnswerKey{k.ID: &k}
	if err := fillAlphabet(alts, byID); err != nil {
		return AnswerKey{}, err
	}
	ans, err := tx.QueryContext(ctx,
		`SELECT answer_key_id, question, symbol FROM answer_key_answers WHERE answer_key_id=$1`, id)
	if err != nil {
		return AnswerKey{}, err
	}
	if err := fillAnswers(ans, byID); err != nil {
		return AnswerKey{}, err
	}
	return k, nil
}

func (s *SQLStore) Create(ctx context.Context, k AnswerKey) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO answer_keys (id, owner_id, title, title_norm, question_count, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		k.ID, k.OwnerID, k.Title, NormalizeTitle(k.Title), k.QuestionCount, k.CreatedAt.Unix(), k.UpdatedAt.Unix())
	if err != nil {
		return mapConstraint(err)
	}
	return insertChildren(ctx, tx, k)
}

func (s *SQLStore) Update(ctx context.Context, k AnswerKey) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE answer_keys SET title=$1, title_norm=$2, question_count=$3, updated_at=$4 WHERE id=$5`,
		k.Title, NormalizeTitle(k.Title), k.QuestionCount, k.UpdatedAt.Unix(), k.ID)
	if err != nil {
		return mapConstraint(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM answer_key_alternatives WHERE answer_key_id=$1`, k.ID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM answer_key_answers WHERE answer_key_id=$1`, k.ID); err != nil {
		return err
	}
	return insertChildren(ctx, tx, k)
}

func (s *SQLStore) Delete(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	// children explicitly, in case foreign keys are off on this connection
	if _, err = tx.ExecContext(ctx, `DELETE FROM answer_key_alternatives WHERE answer_key_id=$1`, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM answer_key_answers WHERE answer_key_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM answer_keys WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListByOwner(ctx context.Context, ownerID string) (out []AnswerKey, err error) {
	err = s.readTx(ctx, func(tx *sql.Tx) error {
		out, err = listKeys(ctx, tx, ownerID)
		return err
	})
	return out, err
}

func listKeys(ctx context.Context, tx *sql.Tx, ownerID string) ([]AnswerKey, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, owner_id, title, question_count, created_at, updated_at
		   FROM answer_keys WHERE owner_id=$1 ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AnswerKey{}
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(out) == 0 {
		return out, nil
	}

	byID := make(map[string]*AnswerKey, len(out))
	for i := range out {
		byID[out[i].ID] = &out[i]
	}
	alts, err := tx.QueryContext(ctx,
		`SELECT a.answer_key_id, a.symbol
		   FROM answer_key_alternatives a JOIN answer_keys k ON k.id=a.answer_key_id
		  WHERE k.owner_id=$1 ORDER BY a.answer_key_id, a.position`, ownerID)
	if err != nil {
		return nil, err
	}
	if err := fillAlphabet(alts, byID); err != nil {
		return nil, err
	}
	ans, err := tx.QueryContext(ctx,
		`SELECT a.answer_key_id, a.question, a.symbol
		   FROM answer_key_answers a JOIN answer_keys k ON k.id=a.answer_key_id
		  WHERE k.owner_id=$1`, ownerID)
	if err != nil {
		return nil, err
	}
	if err := fillAnswers(ans, byID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) TitlesByOwner(ctx context.Context, ownerID string) ([]TitleRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title FROM answer_keys WHERE owner_id=$1`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TitleRef
	for rows.Next() {
		var t TitleRef
		if err := rows.Scan(&t.ID, &t.Title); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(sc scanner) (AnswerKey, error) {
	var (
		k                AnswerKey
		created, updated int64
	)
	if err := sc.Scan(&k.ID, &k.OwnerID, &k.Title, &k.QuestionCount, &created, &updated); err != nil {
		return AnswerKey{}, err
	}
	k.CreatedAt = time.Unix(created, 0).UTC()
	k.UpdatedAt = time.Unix(updated, 0).UTC()
	k.Alphabet = []string{}
	k.Answers = map[string]string{}
	return k, nil
}

func fillAlphabet(rows *sql.Rows, byID map[string]*AnswerKey) error {
	defer rows.Close()
	for rows.Next() {
		var id, symbol string
		if err := rows.Scan(&id, &symbol); err != nil {
			return err
		}
		if k, ok := byID[id]; ok {
			k.Alphabet = append(k.Alphabet, symbol)
		}
	}
	return rows.Err()
}

func fillAnswers(rows *sql.Rows, byID map[string]*AnswerKey) error {
	defer rows.Close()
	for rows.Next() {
		var (
			id, symbol string
			q          int
		)
		if err := rows.Scan(&id, &q, &symbol); err != nil {
			return err
		}
		if k, ok := byID[id]; ok {
			k.Answers[strconv.Itoa(q)] = symbol
		}
	}
	return rows.Err()
}

func insertChildren(ctx context.Context, tx *sql.Tx, k AnswerKey) error {
	for i, symbol := range k.Alphabet {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO answer_key_alternatives (answer_key_id, position, symbol) VALUES ($1,$2,$3)`,
			k.ID, i, symbol); err != nil {
			return err
		}
	}
	for _, q := range sortedQuestionKeys(k.Answers) {
		n, err := strconv.Atoi(q)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO answer_key_answers (answer_key_id, question, symbol) VALUES ($1,$2,$3)`,
			k.ID, n, k.Answers[q]); err != nil {
			return err
		}
	}
	return nil
}

// mapConstraint turns the (owner_id, title_norm) unique violation into a DuplicateTitle error.
func mapConstraint(err error) error {
	if isUniqueViolation(err) {
		return invalid(KindDuplicateTitle, "Já existe um gabarito com esse título.")
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") // sqlite
}
