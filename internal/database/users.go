package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"venuebook/internal/models"
)

const userColumns = `id, email, display_name, photo_url, role, telegram_chat_id, created_at, last_login`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.Role, &u.TelegramChatID, &u.CreatedAt, &u.LastLogin)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// TouchUser records a sign-in: the profile fields and last_login are
// refreshed, an unknown user is created with u.Role (the user role when that
// is not a known role). An existing role is never changed here.
func (db *DB) TouchUser(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	role := u.Role
	if !models.IsValidRole(role) {
		role = models.RoleUser
	}
	query := `
        INSERT INTO users (id, email, display_name, photo_url, role, created_at, last_login, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            email = CASE WHEN excluded.email != '' THEN excluded.email ELSE email END,
            display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE display_name END,
            photo_url = CASE WHEN excluded.photo_url != '' THEN excluded.photo_url ELSE photo_url END,
            last_login = excluded.last_login,
            updated_at = excluded.updated_at
    `
	_, err := db.ExecContext(ctx, query, u.ID, u.Email, u.DisplayName, u.PhotoURL, role, now, now, now)
	if err != nil {
		return fmt.Errorf("failed to touch user: %w", err)
	}
	return nil
}

// UpsertUser stores every field of u, including its role.
func (db *DB) UpsertUser(ctx context.Context, u *models.User) error {
	if err := upsertUser(ctx, db, u); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func upsertUser(ctx context.Context, ex execer, u *models.User) error {
	now := time.Now().UTC()
	created, lastLogin := u.CreatedAt, u.LastLogin
	if created.IsZero() {
		created = now
	}
	if lastLogin.IsZero() {
		lastLogin = created
	}
	role := u.Role
	if role == "" {
		role = models.RoleUser
	}

	query := `
        INSERT INTO users (id, email, display_name, photo_url, role, telegram_chat_id, created_at, last_login, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            email = excluded.email,
            display_name = excluded.display_name,
            photo_url = excluded.photo_url,
            role = excluded.role,
            telegram_chat_id = excluded.telegram_chat_id,
            created_at = excluded.created_at,
            last_login = excluded.last_login,
            updated_at = excluded.updated_at
    `
	_, err := ex.ExecContext(ctx, query, u.ID, u.Email, u.DisplayName, u.PhotoURL, role, u.TelegramChatID,
		created.UTC(), lastLogin.UTC(), now)
	return err
}

func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (db *DB) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (db *DB) SetUserRole(ctx context.Context, id, role string) error {
	return db.updateUser(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`, role, id)
}

func (db *DB) SetTelegramChatID(ctx context.Context, id string, chatID int64) error {
	return db.updateUser(ctx, `UPDATE users SET telegram_chat_id = ?, updated_at = ? WHERE id = ?`, chatID, id)
}

func (db *DB) updateUser(ctx context.Context, query string, value any, id string) error {
	result, err := db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}
