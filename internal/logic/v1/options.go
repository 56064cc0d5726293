package v1

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used for password hashes.
const DefaultBcryptCost = 12

type options struct {
	now        func() time.Time
	bcryptCost int
	newCode    func() (string, error)
}

// Option configures the services of this package.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCodeGenerator replaces GenerateResetCode.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(o *options) { o.newCode = gen }
}

// WithBcryptCost overrides the bcrypt work factor.
func WithBcryptCost(cost int) Option {
	return func(o *options) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			o.bcryptCost = cost
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, bcryptCost: DefaultBcryptCost, newCode: GenerateResetCode}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
