package engine

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the engine configuration. Validation happens at engine
// construction; an invalid configuration means the engine is not created and
// no goroutine starts.
type Config struct {
	// SchedulerPoolSize is the number of timer workers serving delayed
	// delivery.
	SchedulerPoolSize int `validate:"min=1"`

	// ThreadDispatcherAssignment pins workers to dispatchers: one worker is
	// created per outer entry, visiting the named dispatchers in round-robin
	// order. The union of all inner lists, plus the subscriptions
	// dispatcher, is the set of valid dispatcher names.
	ThreadDispatcherAssignment [][]string `validate:"min=1"`

	// DefaultQueueSize is the mailbox capacity for processors that do not
	// override it.
	DefaultQueueSize int `validate:"min=1,max=1000000"`

	// Backoff controls the per-worker exponential pause applied after a full
	// round-robin cycle in which no dispatcher lock could be acquired.
	Backoff BackoffConfig

	// BroadcastRatePerSec throttles broadcast fan-out posts per second.
	// Zero disables the throttle.
	BroadcastRatePerSec float64 `validate:"min=0"`
}

// BackoffConfig holds the worker backoff parameters.
type BackoffConfig struct {
	BaseDelay  time.Duration `validate:"gt=0"`
	Multiplier float64       `validate:"gt=1"`
	MaxDelay   time.Duration `validate:"gt=0,gtefield=BaseDelay"`
}

// DefaultConfig returns sensible defaults: one worker on the default
// dispatcher, two timer workers, and a microsecond-scale backoff curve.
func DefaultConfig() *Config {
	return &Config{
		SchedulerPoolSize:          2,
		ThreadDispatcherAssignment: [][]string{{DefaultDispatcherName}},
		DefaultQueueSize:           1024,
		Backoff: BackoffConfig{
			BaseDelay:  100 * time.Microsecond,
			Multiplier: 2.0,
			MaxDelay:   100 * time.Millisecond,
		},
	}
}

var configValidator = validator.New()

// Validate checks the configuration, returning an error wrapping
// ErrConfigInvalid that names the failing field.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	// The validator cannot express the nested assignment shape.
	for i, names := range c.ThreadDispatcherAssignment {
		if len(names) == 0 {
			return fmt.Errorf("%w: thread assignment entry %d is empty", ErrConfigInvalid, i)
		}
	}

	return nil
}

// backoff returns the Backoff value object for workers.
func (c *Config) backoff() Backoff {
	return Backoff{
		BaseDelay:  c.Backoff.BaseDelay,
		Multiplier: c.Backoff.Multiplier,
		MaxDelay:   c.Backoff.MaxDelay,
	}
}

// validDispatcherNames returns the union of all assignment entries plus the
// always-present subscriptions dispatcher.
func (c *Config) validDispatcherNames() map[string]struct{} {
	names := make(map[string]struct{})
	for _, entry := range c.ThreadDispatcherAssignment {
		for _, name := range entry {
			names[name] = struct{}{}
		}
	}
	names[SubscriptionsDispatcherName] = struct{}{}
	return names
}
