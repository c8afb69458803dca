package app

import (
	"case_chat_service/internal/chat/domain"
	"case_chat_service/pkg/token"
)

// IdentityResolver 把不透明 token 解析成身分
type IdentityResolver interface {
	Resolve(tokenStr string) (domain.Identity, error)
}

type jwtIdentityResolver struct{}

// NewJWTIdentityResolver resolve identities from tokens signed with the shared HMAC secret
func NewJWTIdentityResolver() IdentityResolver {
	return jwtIdentityResolver{}
}

func (jwtIdentityResolver) Resolve(tokenStr string) (domain.Identity, error) {
	if tokenStr == "" {
		return domain.Identity{}, token.ErrInvalidToken
	}
	claims, err := token.ParseJWT(tokenStr)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{ID: claims.MemberID, Role: domain.ParseRole(claims.Role)}, nil
}
