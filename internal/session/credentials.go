package session

import (
	"errors"
	"strings"
)

// Storage keys shared with the rest of the verification flow.
const (
	UsernameKey = "username"
	TokenKey    = "token"
)

var (
	// ErrMissingCredentials is returned when either half of the credential pair is absent.
	ErrMissingCredentials = errors.New("session credentials missing")
	// ErrMissingUsername marks an absent username.
	ErrMissingUsername = errors.New("username is not found in client storage")
	// ErrMissingToken marks an absent bearer token.
	ErrMissingToken = errors.New("user is not authenticated")
)

// Credentials is the username/token pair issued by an earlier step of the flow.
type Credentials struct {
	Username string
	Token    string
}

// Validate reports which half of the pair is missing. Both missing yields ErrMissingUsername.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return errors.Join(ErrMissingCredentials, ErrMissingUsername)
	}
	if strings.TrimSpace(c.Token) == "" {
		return errors.Join(ErrMissingCredentials, ErrMissingToken)
	}
	return nil
}

// AuthorizationHeader renders the bearer header value.
func (c Credentials) AuthorizationHeader() string {
	return "Bearer " + c.Token
}
