package models

import "github.com/golang-jwt/jwt/v5"

// Identity is the caller resolved from a bearer token. An empty Email means
// the caller is anonymous.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Authenticated reports whether an email was resolved.
func (i *Identity) Authenticated() bool {
	return i != nil && i.Email != ""
}

// IdentityClaims is the payload of locally validated access tokens.
type IdentityClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}
