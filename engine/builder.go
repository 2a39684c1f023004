package engine

// ProcessorBuilder constructs a processor bound to an engine. Defaults: the
// default dispatcher and the engine's default queue size.
type ProcessorBuilder struct {
	engine         *Engine
	id             string
	handler        Handler
	dispatcherName string
	queueSize      int
}

// NewProcessor starts building a processor with the given id and initial
// handler.
func (e *Engine) NewProcessor(id string, onEvent Handler) *ProcessorBuilder {
	return &ProcessorBuilder{
		engine:         e,
		id:             id,
		handler:        onEvent,
		dispatcherName: DefaultDispatcherName,
		queueSize:      e.cfg.DefaultQueueSize,
	}
}

// WithDispatcher places the processor on the named dispatcher.
func (b *ProcessorBuilder) WithDispatcher(name string) *ProcessorBuilder {
	b.dispatcherName = name
	return b
}

// WithQueueSize overrides the mailbox capacity for this processor.
func (b *ProcessorBuilder) WithQueueSize(n int) *ProcessorBuilder {
	b.queueSize = n
	return b
}

// Build constructs the processor without registering it.
func (b *ProcessorBuilder) Build() *Processor {
	return newProcessor(b.engine, b.id, b.dispatcherName, b.queueSize, b.handler)
}

// Register builds the processor and registers it with the engine.
func (b *ProcessorBuilder) Register() (*Processor, error) {
	p := b.Build()
	if err := b.engine.Register(p); err != nil {
		return nil, err
	}
	return p, nil
}
