package credential

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedRecord(t *testing.T, m *Memory) *Record {
	t.Helper()

	rec := &Record{
		ID:           "u1",
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: "$argon2id$stub",
		IsActive:     true,
		Level:        1,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return rec
}

func TestMemoryLookups(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedRecord(t, m)

	byID, err := m.GetByID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byID.Email != "alice@example.com" {
		t.Errorf("Email = %q", byID.Email)
	}

	// Email and username lookups are case-insensitive.
	if _, err := m.GetByEmail(ctx, "ALICE@Example.COM"); err != nil {
		t.Errorf("GetByEmail mixed case = %v", err)
	}
	if _, err := m.GetByUsername(ctx, " Alice "); err != nil {
		t.Errorf("GetByUsername mixed case = %v", err)
	}

	if _, err := m.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) = %v, want ErrNotFound", err)
	}
	if _, err := m.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByEmail(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryDuplicates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedRecord(t, m)

	dupEmail := &Record{ID: "u2", Email: "Alice@example.com", Username: "other"}
	if err := m.Create(ctx, dupEmail); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create duplicate email = %v, want ErrDuplicate", err)
	}

	dupUsername := &Record{ID: "u3", Email: "other@example.com", Username: "ALICE"}
	if err := m.Create(ctx, dupUsername); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create duplicate username = %v, want ErrDuplicate", err)
	}
}

func TestMemoryUpdatePasswordHash(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedRecord(t, m)

	if err := m.UpdatePasswordHash(ctx, "u1", "$argon2id$new"); err != nil {
		t.Fatalf("UpdatePasswordHash failed: %v", err)
	}
	rec, _ := m.GetByID(ctx, "u1")
	if rec.PasswordHash != "$argon2id$new" {
		t.Errorf("PasswordHash = %q", rec.PasswordHash)
	}

	if err := m.UpdatePasswordHash(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdatePasswordHash(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryMarkVerified(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedRecord(t, m)

	if err := m.MarkVerified(ctx, "u1"); err != nil {
		t.Fatalf("MarkVerified failed: %v", err)
	}
	rec, _ := m.GetByID(ctx, "u1")
	if !rec.IsVerified {
		t.Error("IsVerified still false after MarkVerified")
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedRecord(t, m)

	rec, _ := m.GetByID(ctx, "u1")
	rec.Email = "tampered@example.com"

	again, _ := m.GetByID(ctx, "u1")
	if again.Email != "alice@example.com" {
		t.Error("mutating a returned record leaked into the store")
	}
}
