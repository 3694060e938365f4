package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"mp4dao/account"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrInvalidToken signals a token that failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrOperatorsDisabled signals a service built without an operator repository.
	ErrOperatorsDisabled = errors.New("auth: operator accounts not configured")
)

const defaultTokenTTL = 24 * time.Hour

// Service issues and verifies caller tokens and logs operators in.
type Service struct {
	repo      Repository
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

// LoginResult bundles the token and the operator returned after a successful login.
type LoginResult struct {
	Token    string
	Operator Operator
}

// NewService creates a new authentication service. A non-positive ttl falls
// back to 24h. repo may be nil when only wallet-holder tokens are issued.
func NewService(repo Repository, jwtSecret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
		now:       time.Now,
	}
}

// RegisterOperator enrols an operator bound to an account address.
func (s *Service) RegisterOperator(ctx context.Context, req RegisterOperatorRequest) (*Operator, error) {
	if s.repo == nil {
		return nil, ErrOperatorsDisabled
	}
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, fmt.Errorf("auth: email is required")
	}
	addr, err := account.ParseAddress(req.Address)
	if err != nil {
		return nil, fmt.Errorf("auth: operator address: %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	op, err := s.repo.CreateOperator(ctx, CreateOperatorParams{
		Email:        email,
		Address:      addr,
		PasswordHash: string(passwordHash),
	})
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// Login authenticates an operator and returns an operator token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if s.repo == nil {
		return LoginResult{}, ErrOperatorsDisabled
	}
	op, err := s.repo.GetOperatorByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrOperatorNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.IssueToken(op.Address, RoleOperator)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, Operator: op}, nil
}

// IssueToken signs a token for an address whose ownership the caller has
// already established (wallet signature, operator login).
func (s *Service) IssueToken(addr account.Address, role Role) (string, error) {
	if addr.IsZero() {
		return "", fmt.Errorf("auth: issue token: %w", account.ErrInvalidAddress)
	}
	if !isValidRole(role) {
		return "", fmt.Errorf("auth: invalid role %q", role)
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  addr.String(),
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a token and returns the caller it names.
func (s *Service) VerifyToken(tokenString string) (Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Caller{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	addr, err := account.ParseAddress(sub)
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	roleStr, _ := claims["role"].(string)
	role := Role(roleStr)
	if !isValidRole(role) {
		return Caller{}, fmt.Errorf("%w: role %q", ErrInvalidToken, roleStr)
	}
	return Caller{Address: addr, Role: role}, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleHolder, RoleOperator:
		return true
	default:
		return false
	}
}
