// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iosched

import "github.com/joeycumines/logiface"

// schedOptions holds configuration applied at construction.
type schedOptions struct {
	logger *logiface.Logger[logiface.Event]
}

// Option configures a Scheduler instance.
type Option interface {
	apply(*schedOptions)
}

type optionFunc func(*schedOptions)

func (f optionFunc) apply(o *schedOptions) { f(o) }

// WithLogger attaches a structured logger to the scheduler. Lifecycle
// transitions and abandoned work are logged at debug and trace levels; the
// hot paths never log. A nil logger disables logging (the default).
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return optionFunc(func(o *schedOptions) {
		o.logger = logger
	})
}

func resolveOptions(opts []Option) *schedOptions {
	cfg := &schedOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}
