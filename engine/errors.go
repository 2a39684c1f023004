package engine

import "errors"

var (
	// ErrConfigInvalid indicates the engine configuration failed validation.
	// The engine is not created.
	ErrConfigInvalid = errors.New("engine: invalid configuration")

	// ErrUnknownDispatcher indicates a processor names a dispatcher that is
	// neither declared in the thread assignment nor the subscriptions
	// dispatcher.
	ErrUnknownDispatcher = errors.New("engine: unknown dispatcher")

	// ErrDuplicateProcessor indicates a processor id is already registered.
	ErrDuplicateProcessor = errors.New("engine: processor id already registered")

	// ErrUnknownProcessor indicates a stop was requested for an id that is
	// not registered.
	ErrUnknownProcessor = errors.New("engine: processor not registered")

	// ErrInvalidCronExpr indicates a cron expression could not be parsed.
	ErrInvalidCronExpr = errors.New("engine: invalid cron expression")
)
