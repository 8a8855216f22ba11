package main

import (
	"context"

	gocmd "github.com/goliatone/go-command"
)

type validator interface {
	Validate() error
}

type executor[M any] interface {
	Execute(ctx context.Context, msg M) error
}

type querier[M any, R any] interface {
	Query(ctx context.Context, msg M) (R, error)
}

// execute validates msg, runs it through cmd and returns the result the
// command stored on the context, if any.
func execute[T any, M validator](ctx context.Context, cmd executor[M], msg M) (T, error) {
	var zero T
	if err := msg.Validate(); err != nil {
		return zero, err
	}
	collector := gocmd.NewResult[T]()
	if err := cmd.Execute(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
		return zero, err
	}
	out, _ := collector.Load()
	return out, nil
}

func query[M validator, R any](ctx context.Context, qry querier[M, R], msg M) (R, error) {
	var zero R
	if err := msg.Validate(); err != nil {
		return zero, err
	}
	return qry.Query(ctx, msg)
}
