package auth

import (
	"context"
	"errors"
	"testing"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	user := createTestUser(t, repo, "alice@example.com")

	byID, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Email != "alice@example.com" {
		t.Errorf("GetByID() email = %q, want %q", byID.Email, "alice@example.com")
	}
	if byID.Role != RoleUser {
		t.Errorf("GetByID() role = %q, want %q", byID.Role, RoleUser)
	}

	byEmail, err := repo.GetByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if byEmail.ID != user.ID {
		t.Errorf("GetByEmail() id = %q, want %q", byEmail.ID, user.ID)
	}
}

func TestUserRepository_NotFound(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID() error = %v, want ErrUserNotFound", err)
	}
	if _, err := repo.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByEmail() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	createTestUser(t, repo, "taken@example.com")

	dup := &User{
		Email:        "taken@example.com",
		Name:         "Second User",
		PasswordHash: "hash",
	}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrEmailExists) {
		t.Errorf("Create() error = %v, want ErrEmailExists", err)
	}
}

func TestUserRepository_ListAndCount(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	createTestUser(t, repo, "a@example.com")
	createTestUser(t, repo, "b@example.com")
	admin := createTestUser(t, repo, "root@example.com")

	// Promote one user so the filter has something to find.
	if _, err := repo.db.ExecContext(ctx, "UPDATE users SET role = 'admin' WHERE id = ?", admin.ID); err != nil {
		t.Fatalf("promoting user: %v", err)
	}

	all, err := repo.List(ctx, "", nil, 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() returned %d users, want 3", len(all))
	}

	total, err := repo.Count(ctx, "", nil)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if total != 3 {
		t.Errorf("Count() = %d, want 3", total)
	}

	admins, err := repo.List(ctx, "role = ?", []any{"admin"}, 10, 0)
	if err != nil {
		t.Fatalf("List(filtered) error = %v", err)
	}
	if len(admins) != 1 || admins[0].ID != admin.ID {
		t.Errorf("List(filtered) = %v, want just the admin", admins)
	}

	adminCount, err := repo.Count(ctx, "role = ?", []any{"admin"})
	if err != nil {
		t.Fatalf("Count(filtered) error = %v", err)
	}
	if adminCount != 1 {
		t.Errorf("Count(filtered) = %d, want 1", adminCount)
	}
}

func TestUserRepository_ListPagination(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	for _, email := range []string{"p1@example.com", "p2@example.com", "p3@example.com"} {
		createTestUser(t, repo, email)
	}

	page, err := repo.List(ctx, "", nil, 2, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("List(limit=2) returned %d users, want 2", len(page))
	}

	rest, err := repo.List(ctx, "", nil, 2, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rest) != 1 {
		t.Errorf("List(limit=2, offset=2) returned %d users, want 1", len(rest))
	}
}
