package apidirectories

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/annotationstore/service"
)

type contextKey string

const ContextServicerKey contextKey = "4f9d2c1e-8b7a-11ef-a0d3-5f2e7c9b1a44"

func SetServicer(ctx context.Context, s service.Servicer) context.Context {
	return context.WithValue(ctx, ContextServicerKey, s)
}

func GetServicer(ctx context.Context) service.Servicer {
	return ctx.Value(ContextServicerKey).(service.Servicer)
}

func InjectServicer(s service.Servicer) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			next(SetServicer(ctx, s))
		}
	}
}
