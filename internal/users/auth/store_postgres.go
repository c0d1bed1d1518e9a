// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/authapi/internal/platform/database/schema"
	"github.com/taibuivan/authapi/internal/platform/dberr"
	"github.com/taibuivan/authapi/internal/platform/sec"
)

// # User Repository

// PostgresUserStore implements [CredentialStore] on the users.account table.
//
// Storage-specific errors (pgx.ErrNoRows, unique violations) are mapped to
// the package sentinels so the engine never sees SQL details.
type PostgresUserStore struct {
	pool  *pgxpool.Pool
	clock Clock
}

// NewPostgresUserStore creates a new PostgreSQL implementation of the CredentialStore.
func NewPostgresUserStore(pool *pgxpool.Pool, clock Clock) *PostgresUserStore {
	if clock == nil {
		clock = time.Now
	}
	return &PostgresUserStore{pool: pool, clock: clock}
}

var account = schema.UserAccount

/*
Create persists a new principal into the users.account table.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: ErrDuplicateEmail, ErrDuplicateUsername or connectivity errors
*/
func (repository *PostgresUserStore) Create(context context.Context, user *User) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		account.Table, account.ColumnList())

	now := repository.clock().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.RecoveryCodes == nil {
		user.RecoveryCodes = []string{}
	}

	_, err := repository.pool.Exec(context, query,
		user.ID,
		user.Username,
		user.NormalizedUsername,
		user.Email,
		user.NormalizedEmail,
		user.EmailConfirmed,
		user.PasswordHash,
		user.SecurityStamp,
		user.LockoutEnabled,
		user.AccessFailedCount,
		user.LockoutEnd,
		user.TwoFactorEnabled,
		nullable(user.AuthenticatorKey),
		user.RecoveryCodes,
		string(user.Role),
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("postgres_user_store_create_failed: %w", err)
	}

	return nil
}

/*
FindByID retrieves a principal by its unique ID.
*/
func (repository *PostgresUserStore) FindByID(context context.Context, id string) (*User, error) {
	return repository.findOne(context, account.ID, id, "find_by_id")
}

/*
FindByEmail retrieves a principal by normalized email.
*/
func (repository *PostgresUserStore) FindByEmail(context context.Context, normalizedEmail string) (*User, error) {
	return repository.findOne(context, account.NormalizedEmail, normalizedEmail, "find_by_email")
}

/*
FindByUsername retrieves a principal by normalized username.
*/
func (repository *PostgresUserStore) FindByUsername(context context.Context, normalizedUsername string) (*User, error) {
	return repository.findOne(context, account.NormalizedUsername, normalizedUsername, "find_by_username")
}

/*
UpdateLockout stores the failure counter and lockout end.
*/
func (repository *PostgresUserStore) UpdateLockout(context context.Context, id string, accessFailedCount int, lockoutEnd *time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $2, %s = $3, %s = $4 WHERE %s = $1",
		account.Table, account.AccessFailedCount, account.LockoutEnd, account.UpdatedAt, account.ID)

	return repository.exec(context, "update_lockout", query, id, accessFailedCount, lockoutEnd, repository.clock().UTC())
}

/*
SetPasswordHash replaces the hash and stamp and clears the lockout state.
*/
func (repository *PostgresUserStore) SetPasswordHash(context context.Context, id, passwordHash, securityStamp string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $2, %s = $3, %s = 0, %s = NULL, %s = $4
		WHERE %s = $1`,
		account.Table, account.PasswordHash, account.SecurityStamp, account.AccessFailedCount,
		account.LockoutEnd, account.UpdatedAt, account.ID)

	return repository.exec(context, "set_password_hash", query, id, passwordHash, securityStamp, repository.clock().UTC())
}

/*
ConfirmEmail marks the email as confirmed.
*/
func (repository *PostgresUserStore) ConfirmEmail(context context.Context, id string) error {
	query := fmt.Sprintf("UPDATE %s SET %s = TRUE, %s = $2 WHERE %s = $1",
		account.Table, account.EmailConfirmed, account.UpdatedAt, account.ID)

	return repository.exec(context, "confirm_email", query, id, repository.clock().UTC())
}

/*
ChangeEmail swaps the email (and mirrored username), confirms it and rotates the stamp.
*/
func (repository *PostgresUserStore) ChangeEmail(context context.Context, id string, change EmailChange) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			%s = $2, %s = $3, %s = TRUE,
			%s = COALESCE(NULLIF($4, ''), %s),
			%s = COALESCE(NULLIF($5, ''), %s),
			%s = $6, %s = $7
		WHERE %s = $1`,
		account.Table,
		account.Email, account.NormalizedEmail, account.EmailConfirmed,
		account.Username, account.Username,
		account.NormalizedUsername, account.NormalizedUsername,
		account.SecurityStamp, account.UpdatedAt,
		account.ID)

	tag, err := repository.pool.Exec(context, query, id,
		change.Email, change.NormalizedEmail,
		change.Username, change.NormalizedUsername,
		change.SecurityStamp, repository.clock().UTC(),
	)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("postgres_user_store_change_email_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

/*
SetTwoFactorEnabled toggles two-factor sign-in and rotates the stamp.
*/
func (repository *PostgresUserStore) SetTwoFactorEnabled(context context.Context, id string, enabled bool, securityStamp string) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $2, %s = $3, %s = $4 WHERE %s = $1",
		account.Table, account.TwoFactorEnabled, account.SecurityStamp, account.UpdatedAt, account.ID)

	return repository.exec(context, "set_two_factor_enabled", query, id, enabled, securityStamp, repository.clock().UTC())
}

/*
SetAuthenticatorKey replaces the shared key and rotates the stamp.
*/
func (repository *PostgresUserStore) SetAuthenticatorKey(context context.Context, id, key, securityStamp string) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $2, %s = $3, %s = $4 WHERE %s = $1",
		account.Table, account.AuthenticatorKey, account.SecurityStamp, account.UpdatedAt, account.ID)

	return repository.exec(context, "set_authenticator_key", query, id, nullable(key), securityStamp, repository.clock().UTC())
}

/*
ReplaceRecoveryCodes overwrites the remaining recovery code hashes.
*/
func (repository *PostgresUserStore) ReplaceRecoveryCodes(context context.Context, id string, hashes []string) error {
	if hashes == nil {
		hashes = []string{}
	}
	query := fmt.Sprintf("UPDATE %s SET %s = $2, %s = $3 WHERE %s = $1",
		account.Table, account.RecoveryCodes, account.UpdatedAt, account.ID)

	return repository.exec(context, "replace_recovery_codes", query, id, hashes, repository.clock().UTC())
}

/*
RedeemRecoveryCode atomically removes the hash from the array.

Description: The WHERE clause only matches while the hash is still present,
so two concurrent redemptions of the same code cannot both succeed.
*/
func (repository *PostgresUserStore) RedeemRecoveryCode(context context.Context, id, hash string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = array_remove(%s, $2), %s = $3
		WHERE %s = $1 AND $2 = ANY(%s)`,
		account.Table, account.RecoveryCodes, account.RecoveryCodes, account.UpdatedAt,
		account.ID, account.RecoveryCodes)

	tag, err := repository.pool.Exec(context, query, id, hash, repository.clock().UTC())
	if err != nil {
		return false, fmt.Errorf("postgres_user_store_redeem_recovery_code_failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// # Helpers

// findOne loads a single principal matching column = value.
func (repository *PostgresUserStore) findOne(context context.Context, column, value, action string) (*User, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", account.ColumnList(), account.Table, column)

	user, err := scanUser(repository.pool.QueryRow(context, query, value))
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("postgres_user_store_%s_failed: %w", action, err)
	}

	return user, nil
}

// exec runs a single-row mutation and reports a missing principal.
func (repository *PostgresUserStore) exec(context context.Context, action, query string, args ...any) error {
	tag, err := repository.pool.Exec(context, query, args...)
	if err != nil {
		return fmt.Errorf("postgres_user_store_%s_failed: %w", action, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// scanUser hydrates a User in [schema.UserAccountTable.Columns] order.
func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	var authenticatorKey *string
	var role string

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.NormalizedUsername,
		&user.Email,
		&user.NormalizedEmail,
		&user.EmailConfirmed,
		&user.PasswordHash,
		&user.SecurityStamp,
		&user.LockoutEnabled,
		&user.AccessFailedCount,
		&user.LockoutEnd,
		&user.TwoFactorEnabled,
		&authenticatorKey,
		&user.RecoveryCodes,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if authenticatorKey != nil {
		user.AuthenticatorKey = *authenticatorKey
	}
	user.Role = sec.UserRole(role)

	return user, nil
}

// mapUniqueViolation classifies duplicate-key errors by constraint.
func mapUniqueViolation(err error) error {
	constraint, ok := dberr.UniqueViolation(err)
	if !ok {
		return nil
	}
	switch constraint {
	case account.UniqueEmail:
		return ErrDuplicateEmail
	case account.UniqueUsername:
		return ErrDuplicateUsername
	default:
		return fmt.Errorf("postgres_user_store_unique_violation: %w", err)
	}
}

// nullable maps "" to SQL NULL.
func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
