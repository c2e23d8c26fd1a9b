// Package postgres implements the repositories against PostgreSQL.
// The lifecycle-critical writes (claim, finalize, schedule) are single
// conditional UPDATEs so concurrent callers race on the database row,
// not on application state.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/service/broadcast"
)

// BroadcastRepo implements broadcast.Repository against PostgreSQL.
type BroadcastRepo struct{ db *sql.DB }

// NewBroadcastRepo creates a Postgres-backed broadcast repository.
func NewBroadcastRepo(db *sql.DB) *BroadcastRepo { return &BroadcastRepo{db: db} }

const broadcastColumns = `
	id, owner_id, subject, content, content_html, recipients,
	total_recipients, status, scheduled_for, sent_at,
	COALESCE(provider_reference,''), opened_count, clicked_count,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBroadcast(row rowScanner) (*domain.Broadcast, error) {
	b := &domain.Broadcast{}
	var contentHTML sql.NullString
	var scheduledFor, sentAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.OwnerID, &b.Subject, &b.Content, &contentHTML,
		pq.Array(&b.Recipients),
		&b.TotalRecipients, &b.Status, &scheduledFor, &sentAt,
		&b.ProviderReference, &b.OpenedCount, &b.ClickedCount,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if contentHTML.Valid {
		b.ContentHTML = &contentHTML.String
	}
	if scheduledFor.Valid {
		b.ScheduledFor = &scheduledFor.Time
	}
	if sentAt.Valid {
		b.SentAt = &sentAt.Time
	}
	return b, nil
}

func statusStrings(statuses []domain.BroadcastStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *BroadcastRepo) Get(ctx context.Context, id string) (*domain.Broadcast, error) {
	b, err := scanBroadcast(r.db.QueryRowContext(ctx, `
		SELECT `+broadcastColumns+`
		FROM broadcasts
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, broadcast.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get broadcast: %w", err)
	}
	return b, nil
}

func (r *BroadcastRepo) List(ctx context.Context, ownerID string, f broadcast.ListFilter) ([]domain.Broadcast, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	countQ := `SELECT COUNT(*) FROM broadcasts WHERE owner_id = $1`
	countArgs := []interface{}{ownerID}
	if f.Status != "" {
		countQ += ` AND status = $2`
		countArgs = append(countArgs, f.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count broadcasts: %w", err)
	}

	q := `SELECT ` + broadcastColumns + ` FROM broadcasts WHERE owner_id = $1`
	args := []interface{}{ownerID}
	idx := 2
	if f.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list broadcasts: %w", err)
	}
	defer rows.Close()

	var out []domain.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan broadcast: %w", err)
		}
		out = append(out, *b)
	}
	return out, total, rows.Err()
}

func (r *BroadcastRepo) Create(ctx context.Context, b *domain.Broadcast) (string, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO broadcasts
			(id, owner_id, subject, content, recipients, total_recipients,
			 status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, b.ID, b.OwnerID, b.Subject, []byte(b.Content),
		pq.Array(b.Recipients), b.TotalRecipients, b.Status)
	if err != nil {
		return "", fmt.Errorf("create broadcast: %w", err)
	}
	return b.ID, nil
}

func (r *BroadcastRepo) Update(ctx context.Context, b *domain.Broadcast) error {
	var contentHTML interface{}
	if b.ContentHTML != nil {
		contentHTML = *b.ContentHTML
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE broadcasts
		SET subject = $1, content = $2, content_html = $3,
		    recipients = $4, total_recipients = $5, updated_at = NOW()
		WHERE id = $6
	`, b.Subject, []byte(b.Content), contentHTML,
		pq.Array(b.Recipients), b.TotalRecipients, b.ID)
	if err != nil {
		return fmt.Errorf("update broadcast: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return broadcast.ErrNotFound
	}
	return nil
}

func (r *BroadcastRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM broadcasts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete broadcast: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return broadcast.ErrNotFound
	}
	return nil
}

func (r *BroadcastRepo) SetSchedule(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE broadcasts
		SET status = 'scheduled', scheduled_for = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'draft'
	`, at, id)
	if err != nil {
		return fmt.Errorf("set schedule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return broadcast.ErrNotClaimed
	}
	return nil
}

func (r *BroadcastRepo) ClearSchedule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE broadcasts
		SET status = 'draft', scheduled_for = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
	`, id)
	if err != nil {
		return fmt.Errorf("clear schedule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return broadcast.ErrNotClaimed
	}
	return nil
}

// ClaimSending is the concurrency boundary for delivery: one
// conditional UPDATE that only matches while the row is still in an
// eligible state. Of N concurrent claims exactly one sees a row come
// back; the rest get ErrNotClaimed.
func (r *BroadcastRepo) ClaimSending(ctx context.Context, id string, from []domain.BroadcastStatus) (*domain.Broadcast, error) {
	b, err := scanBroadcast(r.db.QueryRowContext(ctx, `
		UPDATE broadcasts
		SET status = 'sending', updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+broadcastColumns+`
	`, id, pq.Array(statusStrings(from))))
	if err == sql.ErrNoRows {
		return nil, broadcast.ErrNotClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("claim broadcast: %w", err)
	}
	return b, nil
}

func (r *BroadcastRepo) MarkSent(ctx context.Context, id, providerRef string, sentAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE broadcasts
		SET status = 'sent', provider_reference = $1, sent_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'sending'
	`, providerRef, sentAt, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return broadcast.ErrNotClaimed
	}
	return nil
}

func (r *BroadcastRepo) MarkFailed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE broadcasts
		SET status = 'failed', updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return broadcast.ErrNotClaimed
	}
	return nil
}

func (r *BroadcastRepo) SaveRenderedHTML(ctx context.Context, id, html string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE broadcasts SET content_html = $1, updated_at = NOW() WHERE id = $2
	`, html, id)
	if err != nil {
		return fmt.Errorf("save rendered html: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return broadcast.ErrNotFound
	}
	return nil
}

func (r *BroadcastRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]domain.Broadcast, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+broadcastColumns+`
		FROM broadcasts
		WHERE status = 'scheduled' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find due broadcasts: %w", err)
	}
	defer rows.Close()

	var out []domain.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due broadcast: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *BroadcastRepo) FailStuckSending(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE broadcasts
		SET status = 'failed', updated_at = NOW()
		WHERE status = 'sending' AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stuck broadcasts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
