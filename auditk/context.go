package auditk

import (
	"context"
	"math"
)

// EventHandler for adding middleware between traffic events and the watch list
type EventHandler func(c *Context)

const abortIndex int8 = math.MaxInt8 / 2

// Context carries one traffic event through the classifier handler chain
type Context struct {
	Ctx    context.Context
	Event  *TrafficEvent
	Result *Classification

	handlers []EventHandler
	index    int8
}

// NewContext for evt, the result defaults to ignored
func NewContext(ctx context.Context, evt *TrafficEvent) *Context {
	return &Context{
		Ctx:    ctx,
		Event:  evt,
		Result: &Classification{Action: ActIgnored, Outcome: Success("")},
		index:  -1,
	}
}

// AddHandler adds new event handlers
func (c *Context) AddHandler(h ...EventHandler) {
	if c.handlers == nil {
		c.handlers = make([]EventHandler, 0, len(h))
	}
	c.handlers = append(c.handlers, h...)
}

// Next calls the remaining handlers in order
func (c *Context) Next() {
	c.index++
	for c.index < int8(len(c.handlers)) {
		c.handlers[c.index](c)
		c.index++
	}
}

// IsAborted returns true if the current context was aborted.
func (c *Context) IsAborted() bool {
	return c.index >= abortIndex
}

// Abort prevents pending handlers from being called.
func (c *Context) Abort() {
	c.index = abortIndex
}

// Finish records the action and aborts the chain
func (c *Context) Finish(action ClassifyAction, outcome Outcome) {
	c.Result.Action = action
	c.Result.Outcome = outcome
	c.Abort()
}
