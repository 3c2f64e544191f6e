package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shalteor/quassel-tools/internal/crypto"
	"github.com/shalteor/quassel-tools/internal/models"
)

// AddUser inserts a new user and returns its id. An existing username
// yields (0, ErrUserExists) and leaves the table untouched.
func (db *DB) AddUser(ctx context.Context, username, password, authenticator string) (int64, error) {
	if authenticator == "" {
		authenticator = models.AuthenticatorDatabase
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO quasseluser (username, password, hashversion, authenticator)
		VALUES (?, ?, ?, ?)
	`

	var id int64
	err = db.WithTx(ctx, func(ctx context.Context, tx DBTX) error {
		result, err := tx.ExecContext(ctx, query, username, hash, models.HashLatest, authenticator)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrUserExists
			}
			return fmt.Errorf("failed to add user: %w", err)
		}

		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			db.logger.Warn("user already exists", zap.String("username", username))
		}
		return 0, err
	}

	db.logger.Info("user added", zap.String("username", username), zap.Int64("userid", id))
	return id, nil
}

// UpdateUser stores a freshly salted hash for the user. It reports whether a row changed.
func (db *DB) UpdateUser(ctx context.Context, userID int64, password string) (bool, error) {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return false, err
	}

	query := `UPDATE quasseluser SET password = ?, hashversion = ? WHERE userid = ?`

	var updated bool
	err = db.WithTx(ctx, func(ctx context.Context, tx DBTX) error {
		result, err := tx.ExecContext(ctx, query, hash, models.HashLatest, userID)
		if err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		updated = rows != 0
		return nil
	})
	if err != nil {
		return false, err
	}

	db.logger.Info("password updated", zap.Int64("userid", userID), zap.Bool("updated", updated))
	return updated, nil
}

// RenameUser overwrites the username. A name collision fails with ErrUserExists.
func (db *DB) RenameUser(ctx context.Context, userID int64, newName string) error {
	query := `UPDATE quasseluser SET username = ? WHERE userid = ?`

	err := db.WithTx(ctx, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, query, newName, userID); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %v", ErrUserExists, err)
			}
			return fmt.Errorf("failed to rename user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.Info("user renamed", zap.Int64("userid", userID), zap.String("username", newName))
	return nil
}

// deleteSteps removes a user and everything that references it. backlog
// rows hang off buffer, so they go first.
var deleteSteps = []struct {
	table string
	query string
}{
	{"backlog", `DELETE FROM backlog WHERE bufferid IN (SELECT DISTINCT bufferid FROM buffer WHERE userid = ?)`},
	{"buffer", `DELETE FROM buffer WHERE userid = ?`},
	{"network", `DELETE FROM network WHERE userid = ?`},
	{"quasseluser", `DELETE FROM quasseluser WHERE userid = ?`},
}

// DeleteUser deletes the user with its backlog, buffers and networks in one transaction
func (db *DB) DeleteUser(ctx context.Context, userID int64) error {
	err := db.WithTx(ctx, func(ctx context.Context, tx DBTX) error {
		for _, step := range deleteSteps {
			result, err := tx.ExecContext(ctx, step.query, userID)
			if err != nil {
				return fmt.Errorf("failed to delete from %s: %w", step.table, err)
			}
			if rows, err := result.RowsAffected(); err == nil {
				db.logger.Debug("rows deleted", zap.String("table", step.table), zap.Int64("rows", rows))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.Info("user deleted", zap.Int64("userid", userID))
	return nil
}

// UpdateUserByName resolves username and updates its password.
// An unknown username returns false without touching the store.
func (db *DB) UpdateUserByName(ctx context.Context, username, password string) (bool, error) {
	userID, err := db.GetUserID(ctx, username)
	if err != nil || userID == 0 {
		return false, err
	}
	return db.UpdateUser(ctx, userID, password)
}

// RenameUserByName resolves username and renames it. It returns the resolved
// id, 0 meaning nothing was done.
func (db *DB) RenameUserByName(ctx context.Context, username, newName string) (int64, error) {
	userID, err := db.GetUserID(ctx, username)
	if err != nil || userID == 0 {
		return 0, err
	}
	return userID, db.RenameUser(ctx, userID, newName)
}

// DeleteUserByName resolves username and deletes it. It returns the resolved
// id, 0 meaning nothing was done.
func (db *DB) DeleteUserByName(ctx context.Context, username string) (int64, error) {
	userID, err := db.GetUserID(ctx, username)
	if err != nil || userID == 0 {
		return 0, err
	}
	return userID, db.DeleteUser(ctx, userID)
}

// ValidateUser returns the user's id if password matches, 0 otherwise.
// Unknown user and wrong password are indistinguishable.
func (db *DB) ValidateUser(ctx context.Context, username, password string) (int64, error) {
	user, err := db.GetUserByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, nil
	}

	if user.HashVersion == models.HashSha2_512 {
		if _, _, err := crypto.ParseHash(user.PasswordHash); err != nil {
			db.logger.Warn("stored password hash is malformed", zap.Int64("userid", user.ID))
			return 0, nil
		}
	}

	if !crypto.CheckPasswordVersion(password, user.PasswordHash, user.HashVersion) {
		return 0, nil
	}
	return user.ID, nil
}

// GetUserByUsername retrieves a user by username. A missing user is (nil, nil).
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT userid, username, password, hashversion, authenticator
		FROM quasseluser
		WHERE username = ?
	`

	user := &models.User{}
	err := db.conn.QueryRowContext(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.HashVersion, &user.Authenticator,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetUserID returns the id for username, 0 if there is no such user
func (db *DB) GetUserID(ctx context.Context, username string) (int64, error) {
	var userID int64
	err := db.conn.QueryRowContext(ctx, `SELECT userid FROM quasseluser WHERE username = ?`, username).Scan(&userID)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get user id: %w", err)
	}

	return userID, nil
}

// GetUserAuthenticator returns the authenticator of a user, "" if there is no such user
func (db *DB) GetUserAuthenticator(ctx context.Context, userID int64) (string, error) {
	var authenticator string
	err := db.conn.QueryRowContext(ctx, `SELECT authenticator FROM quasseluser WHERE userid = ?`, userID).Scan(&authenticator)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user authenticator: %w", err)
	}

	return authenticator, nil
}

// GetAllAuthUserNames returns every user keyed by id
func (db *DB) GetAllAuthUserNames(ctx context.Context) (map[int64]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT userid, username FROM quasseluser`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make(map[int64]string)
	for rows.Next() {
		var (
			id       int64
			username string
		)
		if err := rows.Scan(&id, &username); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[id] = username
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return users, nil
}
