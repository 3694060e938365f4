package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"mp4dao/account"
)

const operatorAddr = "0x00000000000000000000000000000000000000Aa"

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret", time.Hour)

	req := RegisterOperatorRequest{
		Email:    "ops@example.com",
		Password: "supersafe",
		Address:  operatorAddr,
	}

	ctx := context.Background()
	op, err := svc.RegisterOperator(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}
	want := account.MustParse(operatorAddr)
	if op.Address != want {
		t.Fatalf("register: expected address %s got %s", want, op.Address)
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.Operator.ID != op.ID {
		t.Fatalf("login: expected operator id %q got %q", op.ID, resp.Operator.ID)
	}

	caller, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if caller.Address != want {
		t.Fatalf("verify token: expected %s got %s", want, caller.Address)
	}
	if caller.Role != RoleOperator {
		t.Fatalf("verify token: expected role %s got %s", RoleOperator, caller.Role)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret", 0)
	ctx := context.Background()

	_, err := svc.RegisterOperator(ctx, RegisterOperatorRequest{
		Email:    "ops@example.com",
		Password: "short",
		Address:  operatorAddr,
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	if _, err := svc.RegisterOperator(ctx, RegisterOperatorRequest{
		Password: "strongpassword",
		Address:  operatorAddr,
	}); err == nil {
		t.Fatal("expected validation error for missing email")
	}

	_, err = svc.RegisterOperator(ctx, RegisterOperatorRequest{
		Email:    "ops@example.com",
		Password: "strongpassword",
		Address:  "0x1234",
	})
	if !errors.Is(err, account.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret", 0)

	req := RegisterOperatorRequest{
		Email:    "ops@example.com",
		Password: "strongpassword",
		Address:  operatorAddr,
	}
	if _, err := svc.RegisterOperator(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := svc.RegisterOperator(context.Background(), req); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret", 0)
	ctx := context.Background()

	_, err := svc.Login(ctx, LoginRequest{Email: "unknown@example.com", Password: "irrelevant"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if _, err := svc.RegisterOperator(ctx, RegisterOperatorRequest{
		Email:    "ops@example.com",
		Password: "strongpassword",
		Address:  operatorAddr,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = svc.Login(ctx, LoginRequest{Email: "ops@example.com", Password: "wrongpassword"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestService_HolderToken(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret", time.Hour)
	holder := account.MustParse("0x00000000000000000000000000000000000000b1")

	token, err := svc.IssueToken(holder, RoleHolder)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	caller, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if caller.Address != holder || caller.Role != RoleHolder {
		t.Fatalf("unexpected caller %+v", caller)
	}

	if _, err := svc.IssueToken(account.Zero, RoleHolder); err == nil {
		t.Fatal("expected error for zero address")
	}
	if _, err := svc.IssueToken(holder, Role("admin")); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestService_VerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret", time.Minute)
	holder := account.MustParse("0x00000000000000000000000000000000000000b1")

	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	token, err := svc.IssueToken(holder, RoleHolder)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	other := NewService(newFakeRepository(), "other-secret", time.Minute)
	other.now = func() time.Time { return issued }
	if _, err := other.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

type fakeRepository struct {
	byEmail map[string]Operator
	nextID  int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byEmail: make(map[string]Operator),
		nextID:  1,
	}
}

func (f *fakeRepository) CreateOperator(ctx context.Context, params CreateOperatorParams) (Operator, error) {
	key := strings.ToLower(params.Email)
	if _, exists := f.byEmail[key]; exists {
		return Operator{}, ErrDuplicateEmail
	}

	op := Operator{
		ID:           fmt.Sprintf("operator-%d", f.nextID),
		Email:        key,
		Address:      params.Address,
		PasswordHash: params.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	f.nextID++
	f.byEmail[key] = op
	return op, nil
}

func (f *fakeRepository) GetOperatorByEmail(ctx context.Context, email string) (Operator, error) {
	op, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return Operator{}, ErrOperatorNotFound
	}
	return op, nil
}

func TestService_WithoutRepository(t *testing.T) {
	svc := NewService(nil, "test-secret", 0)

	if _, err := svc.Login(context.Background(), LoginRequest{Email: "ops@example.com", Password: "whatever1"}); !errors.Is(err, ErrOperatorsDisabled) {
		t.Fatalf("expected ErrOperatorsDisabled, got %v", err)
	}
	holder := account.MustParse("0x00000000000000000000000000000000000000b1")
	if _, err := svc.IssueToken(holder, RoleHolder); err != nil {
		t.Fatalf("holder tokens must not need a repository: %v", err)
	}
}
