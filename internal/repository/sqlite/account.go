package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/socialhub/internal/apperror"
	"github.com/sakif/socialhub/internal/model"
	"github.com/sakif/socialhub/internal/repository"
)

// compile-time check that *DB implements repository.AccountRepository
var _ repository.AccountRepository = (*DB)(nil)

// CreateAccount inserts a new account, generating its uid. The email is
// stored lower-cased; a duplicate email or GitHub id yields ErrConflict.
func (db *DB) CreateAccount(ctx context.Context, a *model.Account) error {
	a.UID = xid.New().String()
	a.Email = strings.ToLower(a.Email)
	a.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (uid, email, password_hash, github_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.UID, a.Email, a.PasswordHash, a.GitHubID, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("account", a.Email)
		}
		return wrapErr(fmt.Sprintf("inserting account %s", a.Email), err)
	}
	return nil
}

// GetAccountByEmail looks the account up case-insensitively.
func (db *DB) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	email = strings.ToLower(email)
	a, err := db.scanAccount(db.conn.QueryRowContext(ctx,
		`SELECT uid, email, password_hash, github_id, created_at FROM accounts WHERE email = ?`,
		email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("account", email)
	}
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("getting account %s", email), err)
	}
	return a, nil
}

func (db *DB) GetAccountByGitHubID(ctx context.Context, githubID int64) (*model.Account, error) {
	a, err := db.scanAccount(db.conn.QueryRowContext(ctx,
		`SELECT uid, email, password_hash, github_id, created_at FROM accounts WHERE github_id = ?`,
		githubID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("account", fmt.Sprintf("github:%d", githubID))
	}
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("getting account github:%d", githubID), err)
	}
	return a, nil
}

// LinkGitHub attaches a GitHub id to an existing account.
func (db *DB) LinkGitHub(ctx context.Context, uid string, githubID int64) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET github_id = ? WHERE uid = ?`,
		githubID, uid,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("account", fmt.Sprintf("github:%d", githubID))
		}
		return wrapErr(fmt.Sprintf("linking github to %s", uid), err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("account", uid)
	}
	return nil
}

func (db *DB) scanAccount(row *sql.Row) (*model.Account, error) {
	var (
		a        model.Account
		githubID sql.NullInt64
	)
	if err := row.Scan(&a.UID, &a.Email, &a.PasswordHash, &githubID, &a.CreatedAt); err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		a.GitHubID = &id
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
