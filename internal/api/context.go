package api

import (
	"context"

	"github.com/org/certledger/pkg/models"
)

type contextKey string

const (
	ctxKeyIdentity  contextKey = "identity"
	ctxKeyRequestID contextKey = "request_id"
)

func withIdentity(ctx context.Context, ident *models.Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, ident)
}

func identityFromCtx(ctx context.Context) *models.Identity {
	ident, _ := ctx.Value(ctxKeyIdentity).(*models.Identity)
	return ident
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func requestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}
