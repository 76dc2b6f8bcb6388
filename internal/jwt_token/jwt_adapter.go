package jwttoken

import (
	"pollworker/pkg/platform/middleware/admin"
)

// JWTServiceAdapter exposes JWTService as the admin middleware's validator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*admin.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &admin.Claims{UserID: claims.UserID, IsAdmin: claims.IsAdmin}, nil
}
