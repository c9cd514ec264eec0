// Package eventlog is the append-only audit trail of corrections.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

const TypeExamCorrected = "ExamCorrected"

const defaultSite = "local"

type Event struct {
	Offset    int64           `json:"offset"`
	SiteID    string          `json:"-"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	OwnerID   string          `json:"-"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

type Repo struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db, now: time.Now}
}

func (r *Repo) Append(ctx context.Context, e Event) error {
	if e.SiteID == "" {
		e.SiteID = defaultSite
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, owner_id, data, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		e.SiteID, e.Type, e.Key, e.OwnerID, string(e.Data), r.now().Unix())
	return err
}

// ListByKey returns events of one type for a natural key, newest first.
func (r *Repo) ListByKey(ctx context.Context, typ, key string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT "offset", site_id, typ, key, owner_id, data, created_at
		   FROM event_log
		  WHERE typ = $1 AND key = $2
		  ORDER BY "offset" DESC
		  LIMIT $3`, typ, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var (
			e    Event
			data string
			ts   int64
		)
		if err := rows.Scan(&e.Offset, &e.SiteID, &e.Type, &e.Key, &e.OwnerID, &data, &ts); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		e.CreatedAt = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
