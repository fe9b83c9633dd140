package notify

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// ActionHandler is called when an action of a posted notification is invoked.
type ActionHandler func(ctx context.Context, key string)

// Center posts notifications and routes their actions back to the poster.
type Center struct {
	notifier Notifier

	mu       sync.Mutex
	handlers map[uint32]ActionHandler
}

// NewCenter creates a center on top of notifier.
func NewCenter(notifier Notifier) *Center {
	return &Center{
		notifier: notifier,
		handlers: make(map[uint32]ActionHandler),
	}
}

// Post shows n. handler may be nil. When n replaces an earlier notification
// the earlier handler is dropped.
func (c *Center) Post(n Notification, handler ActionHandler) (uint32, error) {
	id, err := c.notifier.Notify(n)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if n.ReplacesID != 0 {
		delete(c.handlers, n.ReplacesID)
	}
	if id != 0 && handler != nil {
		c.handlers[id] = handler
	}
	return id, nil
}

// Dismiss closes a notification and forgets its handler.
func (c *Center) Dismiss(id uint32) error {
	if id == 0 {
		return nil
	}

	c.mu.Lock()
	delete(c.handlers, id)
	c.mu.Unlock()

	return c.notifier.Close(id)
}

// Run routes actions to handlers until ctx is done.
func (c *Center) Run(ctx context.Context) {
	actions := c.notifier.Actions()
	if actions == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-actions:
			if !ok {
				return
			}
			c.mu.Lock()
			handler := c.handlers[ev.ID]
			c.mu.Unlock()

			if handler == nil {
				zlog.Debug().Msgf("notify: no handler for action: id=%d key=%s", ev.ID, ev.Key)
				continue
			}
			handler(ctx, ev.Key)
		}
	}
}
