package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const userColumns = `id, display_name, email, role, is_active, created_at`

func scanUser(row rowScanner) (User, error) {
	var (
		u         User
		createdAt timeValue
	)
	if err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.Role, &u.IsActive, &createdAt); err != nil {
		return User{}, err
	}
	u.CreatedAt = createdAt.Time
	return u, nil
}

// UpsertUser inserts a user or refreshes the profile of an existing id.
func (s *SQLStore) UpsertUser(ctx context.Context, u User) (User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	_, err := s.pool().exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET display_name=excluded.display_name, email=excluded.email, role=excluded.role, is_active=excluded.is_active
	`, u.ID, u.DisplayName, u.Email, u.Role, u.IsActive, u.CreatedAt.UTC())
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}
	return s.FindByID(ctx, u.ID)
}

func (s *SQLStore) FindByID(ctx context.Context, userID string) (User, error) {
	return s.findUser(ctx, `id=$1`, userID)
}

func (s *SQLStore) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.findUser(ctx, `email=$1`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *SQLStore) findUser(ctx context.Context, where string, arg string) (User, error) {
	u, err := scanUser(s.pool().queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// FindActiveByRole lists active users holding role, ordered by id.
func (s *SQLStore) FindActiveByRole(ctx context.Context, role string) ([]User, error) {
	rows, err := s.pool().query(ctx, `
		SELECT `+userColumns+` FROM users WHERE role=$1 AND is_active = TRUE ORDER BY id
	`, role)
	if err != nil {
		return nil, fmt.Errorf("find users by role: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func (s *SQLStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.pool().queryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// ListUsers pages through users whose name or email contains search, ordered
// by display name. The second result is the total match count.
func (s *SQLStore) ListUsers(ctx context.Context, search string, limit, offset int) ([]User, int, error) {
	if limit <= 0 {
		limit = 20
	}
	where := ""
	args := []any{}
	if search = strings.TrimSpace(search); search != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(search))+"%")
		where = ` WHERE LOWER(display_name) LIKE $1 ESCAPE '\' OR email LIKE $1 ESCAPE '\'`
	}

	var total int
	if err := s.pool().queryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT `+userColumns+` FROM users%s ORDER BY display_name, id LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := s.pool().query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return items, total, nil
}
