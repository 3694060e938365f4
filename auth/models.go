package auth

import (
	"time"

	"mp4dao/account"
)

type Role string

const (
	// RoleHolder is a wallet holder acting on its own account.
	RoleHolder Role = "holder"
	// RoleOperator is a registry operator that logged in with credentials.
	RoleOperator Role = "operator"
)

// Caller is the verified identity handed to the registry and the ledger.
type Caller struct {
	Address account.Address
	Role    Role
}

// Operator mirrors the operators table. The bound address is the account the
// operator acts as once logged in.
type Operator struct {
	ID           string
	Email        string
	Address      account.Address
	PasswordHash string
	CreatedAt    time.Time
}

// RegisterOperatorRequest contains operator enrolment data.
type RegisterOperatorRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Address  string `json:"address"`
}

// LoginRequest contains operator login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
