package events

import (
	"context"
	"sync"

	"parking-booking/pkg/metrics"

	"go.uber.org/zap"
)

type Handler func(ctx context.Context, ev Event) error

type registration struct {
	name    string
	handler Handler
}

// Dispatcher is a registry of handlers keyed by event type. Handlers are
// registered at startup and run synchronously, in registration order, after
// the producing transaction has committed. A failing handler is logged and
// does not stop the others.
type Dispatcher struct {
	mu       sync.RWMutex
	byType   map[Type][]registration
	wildcard []registration
	log      *zap.Logger
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		byType: make(map[Type][]registration),
		log:    log.With(zap.String("component", "events")),
	}
}

// Register adds h for the given types, or for every type when none are given.
func (d *Dispatcher) Register(name string, h Handler, types ...Type) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg := registration{name: name, handler: h}
	if len(types) == 0 {
		d.wildcard = append(d.wildcard, reg)
		return
	}
	for _, t := range types {
		d.byType[t] = append(d.byType[t], reg)
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, evs ...Event) {
	for _, ev := range evs {
		d.dispatch(ctx, ev)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev Event) {
	d.mu.RLock()
	regs := make([]registration, 0, len(d.byType[ev.Type])+len(d.wildcard))
	regs = append(regs, d.byType[ev.Type]...)
	regs = append(regs, d.wildcard...)
	d.mu.RUnlock()

	for _, reg := range regs {
		if err := reg.handler(ctx, ev); err != nil {
			metrics.EventHandlerFailures.WithLabelValues(string(ev.Type), reg.name).Inc()
			d.log.Error("Event handler failed",
				zap.Error(err),
				zap.String("handler", reg.name),
				zap.String("type", string(ev.Type)),
				zap.String("booking_id", ev.BookingID.String()),
			)
		}
	}
}
