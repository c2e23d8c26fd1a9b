package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/service/broadcast"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

var broadcastCols = []string{
	"id", "owner_id", "subject", "content", "content_html", "recipients",
	"total_recipients", "status", "scheduled_for", "sent_at",
	"coalesce", "opened_count", "clicked_count", "created_at", "updated_at",
}

func broadcastRow(id string, status domain.BroadcastStatus) *sqlmock.Rows {
	now := time.Now()
	content, _ := json.Marshal(map[string]string{"type": "doc"})
	return sqlmock.NewRows(broadcastCols).AddRow(
		id, "owner-1", "Launch", content, nil,
		"{a@example.com,b@example.com}",
		2, string(status), nil, nil, "", 0, 0, now, now,
	)
}

func TestBroadcastRepoGet(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewBroadcastRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM broadcasts").
		WithArgs("b1").
		WillReturnRows(broadcastRow("b1", domain.BroadcastDraft))

	b, err := repo.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)
	assert.Equal(t, domain.BroadcastDraft, b.Status)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, b.Recipients)
	assert.Nil(t, b.ContentHTML)
}

func TestBroadcastRepoGetNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewBroadcastRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM broadcasts").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, broadcast.ErrNotFound)
}

func TestBroadcastRepoClaimSending(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewBroadcastRepo(db)

	mock.ExpectQuery(`UPDATE broadcasts\s+SET status = 'sending'`).
		WithArgs("b1", pq.Array([]string{"draft", "scheduled", "failed"})).
		WillReturnRows(broadcastRow("b1", domain.BroadcastSending))

	b, err := repo.ClaimSending(context.Background(), "b1", domain.SendEligibleStatuses())
	require.NoError(t, err)
	assert.Equal(t, domain.BroadcastSending, b.Status)
}

func TestBroadcastRepoClaimSendingLost(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewBroadcastRepo(db)

	// Conditional update matches nothing when the row left an eligible
	// state; RETURNING yields no rows.
	mock.ExpectQuery(`UPDATE broadcasts\s+SET status = 'sending'`).
		WithArgs("b1", pq.Array([]string{"draft", "scheduled", "failed"})).
		WillReturnRows(sqlmock.NewRows(broadcastCols))

	_, err := repo.ClaimSending(context.Background(), "b1", domain.SendEligibleStatuses())
	assert.ErrorIs(t, err, broadcast.ErrNotClaimed)
}

func TestBroadcastRepoSetScheduleRequiresDraft(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewBroadcastRepo(db)

	at := time.Now().Add(time.Hour)
	mock.ExpectExec(`UPDATE broadcasts\s+SET status = 'scheduled'`).
		WithArgs(at, "b1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetSchedule(context.Background(), "b1", at)
	assert.ErrorIs(t, err, broadcast.ErrNotClaimed)
}

func TestBroadcastRepoMarkSent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewBroadcastRepo(db)

	sentAt := time.Now()
	mock.ExpectExec(`UPDATE broadcasts\s+SET status = 'sent'`).
		WithArgs("prov-1", sentAt, "b1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(context.Background(), "b1", "prov-1", sentAt))
}

func TestBroadcastRepoMarkSentOutsideSending(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewBroadcastRepo(db)

	sentAt := time.Now()
	mock.ExpectExec(`UPDATE broadcasts\s+SET status = 'sent'`).
		WithArgs("prov-1", sentAt, "b1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkSent(context.Background(), "b1", "prov-1", sentAt)
	assert.ErrorIs(t, err, broadcast.ErrNotClaimed)
}

func TestBroadcastRepoFindDue(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewBroadcastRepo(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT (.+) FROM broadcasts\s+WHERE status = 'scheduled'`).
		WithArgs(now, 10).
		WillReturnRows(broadcastRow("b1", domain.BroadcastScheduled))

	due, err := repo.FindDue(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "b1", due[0].ID)
}

func TestBroadcastRepoFailStuckSending(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewBroadcastRepo(db)

	cutoff := time.Now().Add(-15 * time.Minute)
	mock.ExpectExec(`UPDATE broadcasts\s+SET status = 'failed'\s+WHERE status = 'sending'`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.FailStuckSending(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBroadcastRepoCreate(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewBroadcastRepo(db)

	b := &domain.Broadcast{
		OwnerID:         "owner-1",
		Subject:         "Launch",
		Content:         json.RawMessage(`{"type":"doc"}`),
		Recipients:      []string{"a@example.com"},
		TotalRecipients: 1,
		Status:          domain.BroadcastDraft,
	}

	mock.ExpectExec("INSERT INTO broadcasts").
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := repo.Create(context.Background(), b)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, b.ID, id)
}
