package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/socialhub/internal/apperror"
	"github.com/sakif/socialhub/internal/model"
)

// createTestAccount creates an account and fails the test if it errors.
func createTestAccount(t *testing.T, db *DB, email string) *model.Account {
	t.Helper()
	a := &model.Account{Email: email, PasswordHash: "$2a$04$hash"}
	if err := db.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return a
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateAccount(t *testing.T) {
	db := newTestDB(t)

	a := &model.Account{Email: "Alice@Example.com", PasswordHash: "h"}
	if err := db.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	if a.UID == "" {
		t.Error("CreateAccount() did not set UID")
	}
	if a.Email != "alice@example.com" {
		t.Errorf("Email = %q, want lower-cased", a.Email)
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreateAccount() did not set CreatedAt")
	}
}

func TestCreateAccount_DuplicateEmailIsConflict(t *testing.T) {
	db := newTestDB(t)
	createTestAccount(t, db, "dup@x.com")

	err := db.CreateAccount(context.Background(), &model.Account{Email: "DUP@x.com"})

	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("CreateAccount() error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// LOOKUP TESTS
// =========================================================================

func TestGetAccountByEmail_IgnoresCase(t *testing.T) {
	db := newTestDB(t)
	created := createTestAccount(t, db, "bob@x.com")

	found, err := db.GetAccountByEmail(context.Background(), "BOB@X.COM")
	if err != nil {
		t.Fatalf("GetAccountByEmail() error = %v", err)
	}
	if found.UID != created.UID {
		t.Errorf("UID = %q, want %q", found.UID, created.UID)
	}
	if found.GitHubID != nil {
		t.Errorf("GitHubID = %v, want nil", *found.GitHubID)
	}
}

func TestGetAccountByEmail_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetAccountByEmail(context.Background(), "nobody@x.com")

	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetAccountByEmail() error = %v, want ErrNotFound", err)
	}
}

func TestLinkGitHub_ThenLookup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestAccount(t, db, "gh@x.com")

	if err := db.LinkGitHub(ctx, a.UID, 4242); err != nil {
		t.Fatalf("LinkGitHub() error = %v", err)
	}

	found, err := db.GetAccountByGitHubID(ctx, 4242)
	if err != nil {
		t.Fatalf("GetAccountByGitHubID() error = %v", err)
	}
	if found.UID != a.UID {
		t.Errorf("UID = %q, want %q", found.UID, a.UID)
	}
}

func TestLinkGitHub_UnknownAccount(t *testing.T) {
	db := newTestDB(t)

	err := db.LinkGitHub(context.Background(), "missing", 1)

	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("LinkGitHub() error = %v, want ErrNotFound", err)
	}
}

func TestGetAccountByGitHubID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetAccountByGitHubID(context.Background(), 999)

	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetAccountByGitHubID() error = %v, want ErrNotFound", err)
	}
}
