package events

import (
	"context"
	"log"
	"sync"
)

// Broadcaster is a many-to-many hub that ingests events from the minter
// (or any other source) and distributes them to filtered subscribers and
// a unified "all" stream. It satisfies Sink, so the minter can emit into
// it directly; Run drains any registered source channels as well.
type Broadcaster struct {
	sources []<-chan Event

	// Filtered subscribers keyed by event kind.
	mu   sync.RWMutex
	subs map[Kind][]chan Event

	// allMu guards the unified subscriber list.
	allMu  sync.RWMutex
	allSub []chan Event
}

// NewBroadcaster creates a Broadcaster ready for source registration.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[Kind][]chan Event),
	}
}

// Register adds an event channel as a source. Must be called before Run.
func (b *Broadcaster) Register(src <-chan Event) {
	b.sources = append(b.sources, src)
}

// Emit distributes a single event synchronously with respect to matching
// subscriber channels (sends are non-blocking). It implements Sink.
func (b *Broadcaster) Emit(ev Event) {
	b.distribute(ev)
}

// Subscribe returns a buffered channel that receives events of the given
// kind. The caller must drain the channel to avoid dropped messages.
func (b *Broadcaster) Subscribe(kind Kind) <-chan Event {
	ch := make(chan Event, 256)

	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], ch)
	b.mu.Unlock()

	return ch
}

// SubscribeAll returns a buffered channel that receives every event
// regardless of kind. Intended for persistence and the feed server.
func (b *Broadcaster) SubscribeAll() <-chan Event {
	ch := make(chan Event, 512)

	b.allMu.Lock()
	b.allSub = append(b.allSub, ch)
	b.allMu.Unlock()

	return ch
}

// Run starts consuming from all registered sources and distributing
// events. It blocks until ctx is cancelled. Each source gets its own
// goroutine.
func (b *Broadcaster) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, src := range b.sources {
		wg.Add(1)
		go func(ch <-chan Event) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					b.distribute(ev)
				}
			}
		}(src)
	}

	wg.Wait()
}

// distribute sends an event to all matching filtered subscribers and all
// unified subscribers. Non-blocking: slow consumers get messages dropped.
func (b *Broadcaster) distribute(ev Event) {
	b.mu.RLock()
	if subs, ok := b.subs[ev.Kind()]; ok {
		for _, ch := range subs {
			select {
			case ch <- ev:
			default:
				log.Printf("broadcaster: dropping %s event for slow subscriber", ev.Kind())
			}
		}
	}
	b.mu.RUnlock()

	b.allMu.RLock()
	for _, ch := range b.allSub {
		select {
		case ch <- ev:
		default:
			// Slow unified subscriber, drop.
		}
	}
	b.allMu.RUnlock()
}
