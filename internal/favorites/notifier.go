package favorites

import (
	"context"

	"bookshelf/internal/models"
)

// Notifier is told about the current collection of a key after every
// add, remove and explicit refresh. Panels re-render from it.
type Notifier interface {
	Refresh(ctx context.Context, key string, c models.Collection)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, key string, c models.Collection)

func (f NotifierFunc) Refresh(ctx context.Context, key string, c models.Collection) {
	f(ctx, key, c)
}

// Notifiers fans a refresh out to each notifier in order.
type Notifiers []Notifier

func (ns Notifiers) Refresh(ctx context.Context, key string, c models.Collection) {
	for _, n := range ns {
		if n != nil {
			n.Refresh(ctx, key, c)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Refresh(context.Context, string, models.Collection) {}
