package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/docsign-api/internal/models"
)

// MembershipRepository answers group membership and role lookups. The signing
// engine treats these as an external collaborator contract; this is the
// Postgres-backed implementation.
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository constructs the repository.
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// IsMember reports whether the user belongs to the group.
func (r *MembershipRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, groupID, userID); err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// RoleOf returns the member's role in the group, or an empty role for
// non-members.
func (r *MembershipRepository) RoleOf(ctx context.Context, groupID, userID string) (models.GroupRole, error) {
	var role models.GroupRole
	const query = `SELECT role FROM group_members WHERE group_id = $1 AND user_id = $2`
	if err := r.db.GetContext(ctx, &role, query, groupID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("resolve member role: %w", err)
	}
	return role, nil
}

// MemberNames resolves user display names for roster serialization.
func (r *MembershipRepository) MemberNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	if len(userIDs) == 0 {
		return map[string]string{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, full_name FROM users WHERE id IN (?)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("build member names query: %w", err)
	}
	query = r.db.Rebind(query)

	rows := []struct {
		ID       string `db:"id"`
		FullName string `db:"full_name"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("resolve member names: %w", err)
	}

	names := make(map[string]string, len(rows))
	for _, row := range rows {
		names[row.ID] = row.FullName
	}
	return names, nil
}
