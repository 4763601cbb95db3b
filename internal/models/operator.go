package models

import "time"

// Operator is an account that may browse recorded rounds through /api/runs
// and the run stream. Accounts live in the users table and are created with
// pagesctl seed-user; POST /task never consults them.
type Operator struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
}

// OperatorLogin is the body of POST /api/auth/login.
type OperatorLogin struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// OperatorSession is returned by a successful login.
type OperatorSession struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	OperatorID string    `json:"operator_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
}

// Session pairs an issued bearer token with the operator it was issued to.
func (o *Operator) Session(token string, expiresAt time.Time) OperatorSession {
	return OperatorSession{
		Token:      token,
		ExpiresAt:  expiresAt,
		OperatorID: o.ID,
		Name:       o.Name,
		Email:      o.Email,
	}
}
