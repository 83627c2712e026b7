package logger

import "context"

type fieldsKey struct{}

// fields are the request-scoped values copied onto every record logged with
// the request's context.
type fields struct {
	requestID string
	actor     string
}

func fieldsFrom(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey{}).(fields)
	return f
}

// WithRequestID returns ctx carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	f := fieldsFrom(ctx)
	f.requestID = id
	return context.WithValue(ctx, fieldsKey{}, f)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	return fieldsFrom(ctx).requestID
}

// WithActor returns ctx carrying the acting user, formatted "role:id".
func WithActor(ctx context.Context, actor string) context.Context {
	f := fieldsFrom(ctx)
	f.actor = actor
	return context.WithValue(ctx, fieldsKey{}, f)
}

// Actor returns the acting user stored in ctx, or "".
func Actor(ctx context.Context) string {
	return fieldsFrom(ctx).actor
}

// detach keeps the logging fields of ctx but drops its deadline and values.
func detach(ctx context.Context) context.Context {
	f := fieldsFrom(ctx)
	if f == (fields{}) {
		return context.Background()
	}
	return context.WithValue(context.Background(), fieldsKey{}, f)
}
