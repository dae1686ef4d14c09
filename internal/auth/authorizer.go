package auth

import (
	"context"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

type claimsKey struct{}

// WithClaims кладёт проверенные claims в контекст запроса.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext возвращает claims вызывающего или nil для анонимного запроса.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}

// ClaimsAuthorizer отвечает на вопросы о вызывающем по claims из контекста.
type ClaimsAuthorizer struct{}

func (ClaimsAuthorizer) IsCaller(ctx context.Context, role domain.Role) bool {
	claims := ClaimsFromContext(ctx)
	return claims != nil && claims.Role == role
}

func (ClaimsAuthorizer) CallerEmail(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Email
	}
	return ""
}

var _ domain.Authorizer = ClaimsAuthorizer{}
