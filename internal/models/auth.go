package models

import "github.com/golang-jwt/jwt/v5"

// UserRole is the platform role carried in access tokens.
type UserRole string

// Roles recognised by this service. Tokens are issued by the platform SSO;
// this service only validates and authorises.
const (
	RoleAdmin   UserRole = "ADMIN"
	RoleService UserRole = "SERVICE"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID int64    `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
