package jwttoken

import (
	authmw "dab/pkg/platform/middleware/auth"
)

func ToMiddlewareClaims(claims *CallerClaims) *authmw.CallerClaims {
	return &authmw.CallerClaims{
		Caller: claims.Subject,
		JTI:    claims.ID,
	}
}

// JWTServiceAdapter satisfies authmw.TokenValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.CallerClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
