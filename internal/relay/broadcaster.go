package relay

import (
	"pet_chat/internal/domain"
	"pet_chat/internal/metrics"
	"pet_chat/pkg/logger"
)

// Broadcaster fans events out to connections found in the Registry.
// Recipients are snapshotted when a call starts; a failed delivery to one
// recipient is logged and skipped and never reported to the caller.
type Broadcaster struct {
	registry *Registry
	log      logger.Logger
}

func NewBroadcaster(registry *Registry, log logger.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, log: log}
}

func (b *Broadcaster) ToRoom(room domain.RoomLabel, evt domain.ServerEvent) {
	b.deliver(b.registry.targets(room, ""), evt)
}

func (b *Broadcaster) ToRoomExcept(room domain.RoomLabel, except domain.ConnectionID, evt domain.ServerEvent) {
	b.deliver(b.registry.targets(room, except), evt)
}

func (b *Broadcaster) ToAll(evt domain.ServerEvent) {
	b.deliver(b.registry.allTargets(), evt)
}

func (b *Broadcaster) ToOne(id domain.ConnectionID, evt domain.ServerEvent) {
	t, ok := b.registry.targetOf(id)
	if !ok {
		b.log.Debug("Dropping event for unknown connection", "connection_id", id, "event", evt.Event)
		return
	}
	b.deliver([]target{t}, evt)
}

func (b *Broadcaster) deliver(targets []target, evt domain.ServerEvent) {
	if len(targets) == 0 {
		return
	}

	payload, err := evt.Encode()
	if err != nil {
		b.log.Error("Failed to encode event", "error", err, "event", evt.Event)
		return
	}

	for _, t := range targets {
		if err := t.sink.Send(payload); err != nil {
			metrics.DeliveriesDropped.Inc()
			b.log.Warn("Failed to deliver event", "error", err, "connection_id", t.id, "event", evt.Event)
		}
	}
}
