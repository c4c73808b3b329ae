package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/socialhub/internal/apperror"
	"github.com/sakif/socialhub/internal/repository"
)

var _ repository.DocumentStore = (*DB)(nil)

func (db *DB) Get(ctx context.Context, collection, id string) (*repository.Snapshot, error) {
	var data string
	err := db.conn.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(collection, id)
		}
		return nil, wrapErr(fmt.Sprintf("getting %s/%s", collection, id), err)
	}
	return &repository.Snapshot{Collection: collection, ID: id, Data: json.RawMessage(data)}, nil
}

func (db *DB) Set(ctx context.Context, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("sqlite: encoding %s/%s: %w", collection, id, err)
	}
	now := time.Now().UnixMicro()
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, create_time, update_time)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, update_time = excluded.update_time`,
		collection, id, string(data), now, now,
	)
	if err != nil {
		return wrapErr(fmt.Sprintf("setting %s/%s", collection, id), err)
	}
	db.notifier.Publish(collection)
	return nil
}

func (db *DB) Add(ctx context.Context, collection string, doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("sqlite: encoding document for %s: %w", collection, err)
	}
	id := xid.New().String()
	now := time.Now().UnixMicro()
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, create_time, update_time) VALUES (?, ?, ?, ?, ?)`,
		collection, id, string(data), now, now,
	)
	if err != nil {
		return "", wrapErr(fmt.Sprintf("adding to %s", collection), err)
	}
	db.notifier.Publish(collection)
	return id, nil
}

// Update reads, mutates and rewrites one document inside a transaction, so
// increments and set operations on the same document never interleave.
func (db *DB) Update(ctx context.Context, collection, id string, mutations ...repository.Mutation) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var data string
		err := tx.QueryRowContext(ctx,
			`SELECT data FROM documents WHERE collection = ? AND id = ?`,
			collection, id,
		).Scan(&data)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound(collection, id)
			}
			return wrapErr(fmt.Sprintf("reading %s/%s", collection, id), err)
		}

		generic, err := repository.DecodeGeneric([]byte(data))
		if err != nil {
			return err
		}
		doc, ok := generic.(map[string]any)
		if !ok {
			return fmt.Errorf("sqlite: %s/%s is not an object", collection, id)
		}
		for _, m := range mutations {
			if err := m.Apply(doc); err != nil {
				return fmt.Errorf("sqlite: applying %s to %s/%s: %w", m, collection, id, err)
			}
		}

		out, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("sqlite: encoding %s/%s: %w", collection, id, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET data = ?, update_time = ? WHERE collection = ? AND id = ?`,
			string(out), time.Now().UnixMicro(), collection, id,
		)
		if err != nil {
			return wrapErr(fmt.Sprintf("updating %s/%s", collection, id), err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	db.notifier.Publish(collection)
	return nil
}

func (db *DB) Delete(ctx context.Context, collection, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	)
	if err != nil {
		return wrapErr(fmt.Sprintf("deleting %s/%s", collection, id), err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound(collection, id)
	}
	db.notifier.Publish(collection)
	return nil
}

func (db *DB) Query(ctx context.Context, q repository.Query) ([]repository.Snapshot, error) {
	query, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("querying %s", q.Collection), err)
	}
	defer rows.Close()

	snaps := []repository.Snapshot{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s row: %w", q.Collection, err)
		}
		snaps = append(snaps, repository.Snapshot{Collection: q.Collection, ID: id, Data: json.RawMessage(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(fmt.Sprintf("iterating %s rows", q.Collection), err)
	}
	return snaps, nil
}

// Watch registers with the notifier before the first read so a write that
// lands between the two is not missed. Notifications that arrive while a
// re-query is running collapse into a single follow-up re-query.
func (db *DB) Watch(ctx context.Context, q repository.Query) (<-chan []repository.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	signal := make(chan struct{}, 1)
	cancel := db.notifier.Subscribe(q.Collection, func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	})

	first, err := db.Query(ctx, q)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan []repository.Snapshot, 1)
	out <- first

	go func() {
		defer close(out)
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
			}

			snaps, err := db.Query(ctx, q)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				db.logger.Warn("live query refresh failed",
					slog.String("collection", q.Collection),
					slog.String("error", err.Error()),
				)
				continue
			}

			select {
			case out <- snaps:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// buildQuery translates q into SQL. Field paths travel as bound parameters,
// never as SQL text.
func buildQuery(q repository.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	args := []any{q.Collection}
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)

	for _, f := range q.Filters {
		v, err := sqlValue(f.Value)
		if err != nil {
			return "", nil, err
		}
		switch f.Op {
		case repository.OpEqual:
			sb.WriteString(` AND json_extract(data, ?) = ?`)
		case repository.OpArrayContains:
			sb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(documents.data, ?) AS e WHERE e.value = ?)`)
		}
		args = append(args, repository.JSONPath(f.Field), v)
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		sb.WriteString(` ORDER BY json_extract(data, ?) ` + dir + `, rowid ` + dir)
		args = append(args, repository.JSONPath(q.OrderBy))
	} else {
		sb.WriteString(` ORDER BY rowid`)
	}

	if q.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	return sb.String(), args, nil
}

// sqlValue converts a filter value into what json_extract returns for the
// same JSON: text for strings, integers or reals for numbers, 0/1 for bools.
func sqlValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encoding filter value: %w", err)
	}
	generic, err := repository.DecodeGeneric(b)
	if err != nil {
		return nil, err
	}
	switch x := generic.(type) {
	case string:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		return x.Float64()
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("sqlite: filter value of type %T is not a scalar", v)
	}
}

// wrapErr prefixes err and marks context deadlines as transient.
func wrapErr(op string, err error) error {
	if apperror.IsTransient(err) {
		return fmt.Errorf("sqlite: %s: %w", op, apperror.Transient(op, err))
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}
