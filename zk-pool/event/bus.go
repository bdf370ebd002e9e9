package event

import (
	evbus "github.com/asaskevich/EventBus"
	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/rs/zerolog"
)

// Bus fans committed events out to in-process subscribers. Handlers have
// the signature func(store.Event).
type Bus struct {
	bus    evbus.Bus
	logger zerolog.Logger
}

func NewBus() *Bus {
	return &Bus{
		bus:    evbus.New(),
		logger: utils.NewLogger("event"),
	}
}

func Topic(kind string) string {
	return "zkpool." + kind
}

func (b *Bus) Subscribe(kind string, handler func(store.Event)) error {
	return b.bus.Subscribe(Topic(kind), handler)
}

// SubscribeAsync runs handler in its own goroutine, one event at a time.
func (b *Bus) SubscribeAsync(kind string, handler func(store.Event)) error {
	return b.bus.SubscribeAsync(Topic(kind), handler, true)
}

func (b *Bus) Unsubscribe(kind string, handler func(store.Event)) error {
	return b.bus.Unsubscribe(Topic(kind), handler)
}

// Publish delivers the events of a committed scope in order.
func (b *Bus) Publish(info *store.CommitInfo) {
	for _, ev := range info.Events {
		topic := Topic(ev.Kind)
		if !b.bus.HasCallback(topic) {
			continue
		}
		b.logger.Trace().Str("topic", topic).Uint64("version", ev.Version).Uint32("seq", ev.Seq).Msg("publish")
		b.bus.Publish(topic, ev)
	}
}

// WaitAsync waits for asynchronous handlers to finish.
func (b *Bus) WaitAsync() {
	b.bus.WaitAsync()
}
