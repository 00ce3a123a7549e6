package nanoio

import (
	"context"

	"github.com/rs/zerolog"
)

// Option configures a Loop.
type Option func(*options)

type options struct {
	ctx context.Context
	log zerolog.Logger
	obs Observer
}

func defaultOptions() options {
	return options{
		ctx: context.Background(),
		log: zerolog.Nop(),
		obs: nopObserver{},
	}
}

// WithContext sets the parent of every task context. Values and trace
// annotations flow from it; its cancellation is not observed.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithLogger sets the logger used for loop diagnostics, such as
// background task failures. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithObserver installs an Observer notified of task and poll events.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.obs = obs
		}
	}
}
