package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/service/audience"
)

// SubscriberRepo implements audience.SubscriberRepository against
// PostgreSQL.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

func (r *SubscriberRepo) Get(ctx context.Context, id string) (*domain.Subscriber, error) {
	s := &domain.Subscriber{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, email, COALESCE(name,''), active, created_at, updated_at
		FROM subscribers
		WHERE id = $1
	`, id).Scan(&s.ID, &s.OwnerID, &s.Email, &s.Name, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, audience.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return s, nil
}

func (r *SubscriberRepo) List(ctx context.Context, ownerID string, limit, offset int) ([]domain.Subscriber, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscribers WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count subscribers: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, email, COALESCE(name,''), active, created_at, updated_at
		FROM subscribers
		WHERE owner_id = $1
		ORDER BY email ASC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		var s domain.Subscriber
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Email, &s.Name, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *SubscriberRepo) Create(ctx context.Context, s *domain.Subscriber) (string, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, owner_id, email, name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`, s.ID, s.OwnerID, s.Email, s.Name, s.Active)
	if err != nil {
		return "", fmt.Errorf("create subscriber: %w", err)
	}
	return s.ID, nil
}

func (r *SubscriberRepo) Update(ctx context.Context, s *domain.Subscriber) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers SET name = $1, active = $2, updated_at = NOW()
		WHERE id = $3
	`, s.Name, s.Active, s.ID)
	if err != nil {
		return fmt.Errorf("update subscriber: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return audience.ErrSubscriberNotFound
	}
	return nil
}

func (r *SubscriberRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return audience.ErrSubscriberNotFound
	}
	return nil
}

// GroupRepo implements audience.GroupRepository against PostgreSQL.
// Membership lives in broadcast_group_members keyed by (group_id,
// subscriber_id).
type GroupRepo struct{ db *sql.DB }

// NewGroupRepo creates a Postgres-backed group repository.
func NewGroupRepo(db *sql.DB) *GroupRepo { return &GroupRepo{db: db} }

func (r *GroupRepo) Get(ctx context.Context, id string) (*domain.BroadcastGroup, error) {
	g := &domain.BroadcastGroup{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, COALESCE(description,''), is_default, created_at, updated_at
		FROM broadcast_groups
		WHERE id = $1
	`, id).Scan(&g.ID, &g.OwnerID, &g.Name, &g.Description, &g.IsDefault, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, audience.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (r *GroupRepo) List(ctx context.Context, ownerID string) ([]domain.BroadcastGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, COALESCE(description,''), is_default, created_at, updated_at
		FROM broadcast_groups
		WHERE owner_id = $1
		ORDER BY name ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []domain.BroadcastGroup
	for rows.Next() {
		var g domain.BroadcastGroup
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Name, &g.Description, &g.IsDefault, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *GroupRepo) Create(ctx context.Context, g *domain.BroadcastGroup) (string, error) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO broadcast_groups (id, owner_id, name, description, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`, g.ID, g.OwnerID, g.Name, g.Description, g.IsDefault)
	if err != nil {
		return "", fmt.Errorf("create group: %w", err)
	}
	return g.ID, nil
}

func (r *GroupRepo) Update(ctx context.Context, g *domain.BroadcastGroup) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE broadcast_groups
		SET name = $1, description = $2, is_default = $3, updated_at = NOW()
		WHERE id = $4
	`, g.Name, g.Description, g.IsDefault, g.ID)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return audience.ErrGroupNotFound
	}
	return nil
}

func (r *GroupRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM broadcast_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return audience.ErrGroupNotFound
	}
	return nil
}

func (r *GroupRepo) ClearDefault(ctx context.Context, ownerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE broadcast_groups SET is_default = false, updated_at = NOW()
		WHERE owner_id = $1 AND is_default = true
	`, ownerID)
	if err != nil {
		return fmt.Errorf("clear default group: %w", err)
	}
	return nil
}

func (r *GroupRepo) MemberEmails(ctx context.Context, groupID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.email
		FROM broadcast_group_members m
		JOIN subscribers s ON s.id = m.subscriber_id
		WHERE m.group_id = $1 AND s.active = true
		ORDER BY s.email ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("member emails: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan member email: %w", err)
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

func (r *GroupRepo) AddMember(ctx context.Context, groupID, subscriberID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO broadcast_group_members (group_id, subscriber_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING
	`, groupID, subscriberID)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, subscriberID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM broadcast_group_members
		WHERE group_id = $1 AND subscriber_id = $2
	`, groupID, subscriberID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}
