package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/platformx/platformx/internal/model"
)

// AppendThreadEntry inserts one prompt/response pair. Entries are never updated.
func (r *Repository) AppendThreadEntry(ctx context.Context, entry *model.ThreadEntry) error {
	query := `
		INSERT INTO threads (id, thread_id, user_id, model_id, prompt, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.ThreadID,
		entry.UserID,
		entry.ModelID,
		entry.Prompt,
		entry.Response,
		entry.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to append thread entry: %w", err)
	}
	return nil
}

// ListThreadEntries returns the entries of a user's thread in conversation order.
// A thread owned by another user yields no entries.
func (r *Repository) ListThreadEntries(ctx context.Context, userID, threadID string) ([]*model.ThreadEntry, error) {
	query := `
		SELECT id, thread_id, user_id, model_id, prompt, response, created_at
		FROM threads
		WHERE thread_id = $1 AND user_id = $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, threadID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.ThreadEntry
	for rows.Next() {
		entry, err := scanThreadEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread entries: %w", err)
	}
	return entries, nil
}

// ListThreadSummaries returns the user's threads, most recently active first.
func (r *Repository) ListThreadSummaries(ctx context.Context, userID string, limit int) ([]*model.ThreadSummary, error) {
	_, limit = clampPage(0, limit, 50, 200)

	query := `
		SELECT DISTINCT ON (thread_id)
			thread_id, model_id, prompt,
			COUNT(*) OVER (PARTITION BY thread_id),
			created_at
		FROM threads
		WHERE user_id = $1
		ORDER BY thread_id, created_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, `SELECT * FROM (`+query+`) latest ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	out := []*model.ThreadSummary{}
	for rows.Next() {
		var s model.ThreadSummary
		if err := rows.Scan(&s.ThreadID, &s.ModelID, &s.LastPrompt, &s.EntryCount, &s.LastEntryAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread summary: %w", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}
	return out, nil
}

// CountThreadEntriesSince counts the entries a user created at or after since.
func (r *Repository) CountThreadEntriesSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM threads WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count thread entries: %w", err)
	}
	return count, nil
}

func scanThreadEntry(row pgx.Row) (*model.ThreadEntry, error) {
	var e model.ThreadEntry
	err := row.Scan(
		&e.ID,
		&e.ThreadID,
		&e.UserID,
		&e.ModelID,
		&e.Prompt,
		&e.Response,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
