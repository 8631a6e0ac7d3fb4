// Package events fans job snapshots out to things outside the progress store:
// the redis status mirror, the kafka status topic and live websocket clients.
package events

import (
	"context"
	"errors"

	"transcode-service/internal/entity"
)

// Notifier observes job snapshots after the store accepted them.
type Notifier interface {
	Notify(ctx context.Context, job entity.Job) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, job entity.Job) error

func (f NotifierFunc) Notify(ctx context.Context, job entity.Job) error {
	return f(ctx, job)
}

// Multi calls every notifier in order and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, job entity.Job) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
