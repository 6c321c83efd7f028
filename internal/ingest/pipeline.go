// Package ingest contains the real-time pipeline: the transport handoff
// from the MQTT client, message decoding, per-cycle batching, and the flush
// that reconciles the durable store with the Redis mirror.
package ingest

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"smart-parking-backend/config"
	"smart-parking-backend/internal/cache"
	"smart-parking-backend/internal/metric"
	"smart-parking-backend/internal/store"
	"smart-parking-backend/internal/ws"
)

// Broadcaster receives every accepted event, unbatched.
type Broadcaster interface {
	Broadcast(u ws.Update)
}

// AvailabilityNotifier is handed spot ids whose status transitioned to
// Available during a flush.
type AvailabilityNotifier interface {
	Dispatch(spotID int)
}

// rawMessage is a delivery as handed over by the transport adapter.
type rawMessage struct {
	topic   string
	payload []byte
}

// pendingUpdate is the newest observation for a spot since the last flush.
type pendingUpdate struct {
	Status     string
	City       string
	ObservedAt time.Time
}

// Pipeline owns the ingest queue, the pending update buffer, and the flush
// timer. Construct it once and share it; all state is internal and guarded.
type Pipeline struct {
	queue   chan rawMessage
	decoder *Decoder
	store   store.Store
	sync    *Synchronizer

	hub      Broadcaster          // may be nil
	notifier AvailabilityNotifier // may be nil

	flushInterval time.Duration

	// pending is the only resource shared between the message consumer and
	// the flush loop. Hold mu for every read, write, or drain; release it
	// before any store or cache I/O.
	mu      sync.Mutex
	pending map[int]pendingUpdate

	started atomic.Bool
	now     func() time.Time
}

// NewPipeline wires the pipeline components together.
func NewPipeline(cfg *config.Config, s store.Store, c cache.SpotCache, hub Broadcaster, notifier AvailabilityNotifier) *Pipeline {
	return &Pipeline{
		queue:         make(chan rawMessage, cfg.Ingest.QueueSize),
		decoder:       NewDecoder(cfg.MQTT.Cities),
		store:         s,
		sync:          NewSynchronizer(s, c),
		hub:           hub,
		notifier:      notifier,
		flushInterval: cfg.Ingest.FlushInterval,
		pending:       make(map[int]pendingUpdate),
		now:           time.Now,
	}
}

// Enqueue hands a raw delivery into the pipeline. It is safe to call from
// any goroutine and never blocks: when the pipeline is not running or the
// queue is full, the delivery is dropped and logged.
func (p *Pipeline) Enqueue(topic string, payload []byte) {
	if !p.started.Load() {
		log.Printf("pipeline not running; dropping message on %s", topic)
		metric.MessagesDropped.Inc()
		return
	}

	select {
	case p.queue <- rawMessage{topic: topic, payload: payload}:
		metric.MessagesReceived.Inc()
	default:
		log.Printf("ingest queue full; dropping message on %s", topic)
		metric.MessagesDropped.Inc()
	}
}

// Run starts the message consumer and the periodic flush loop, and blocks
// until ctx is cancelled. An in-progress flush completes before Run
// returns, and the buffer is drained one final time on the way out.
func (p *Pipeline) Run(ctx context.Context) {
	p.started.Store(true)
	defer p.started.Store(false)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		p.consumeLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		p.flushLoop(ctx)
	}()

	wg.Wait()
}

func (p *Pipeline) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			p.process(ctx, msg)
		}
	}
}

// process runs one raw message through decode, audit log, buffer, and
// broadcast. Rejections are logged drops with no further effect.
func (p *Pipeline) process(ctx context.Context, msg rawMessage) {
	event, err := p.decoder.Decode(msg.topic, msg.payload)
	if err != nil {
		log.Printf("discarding message on %s: %v", msg.topic, err)
		return
	}

	now := p.now().UTC()

	// Audit row first; a failed append is logged and does not stop the
	// batch or broadcast path.
	if err := p.store.AppendStatusLog(ctx, event.SpotID, event.Status, now); err != nil {
		log.Printf("error logging status change for spot %d: %v", event.SpotID, err)
	}

	p.mu.Lock()
	p.pending[event.SpotID] = pendingUpdate{
		Status:     event.Status,
		City:       event.City,
		ObservedAt: now,
	}
	p.mu.Unlock()

	if p.hub != nil {
		p.hub.Broadcast(ws.NewSpotUpdate(event.SpotID, event.Status, event.City, now))
	}
}

func (p *Pipeline) flushLoop(ctx context.Context) {
	timer := time.NewTimer(p.flushInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Let in-flight updates reach the store before shutdown.
			p.flush(context.Background())
			return
		case <-timer.C:
			p.flush(ctx)
			timer.Reset(p.flushInterval)
		}
	}
}

// takeSnapshot atomically swaps the pending buffer for an empty one.
// Arrivals during the subsequent flush land in the next generation.
func (p *Pipeline) takeSnapshot() map[int]pendingUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	snapshot := p.pending
	p.pending = make(map[int]pendingUpdate)
	return snapshot
}

func (p *Pipeline) flush(ctx context.Context) {
	snapshot := p.takeSnapshot()
	if snapshot == nil {
		return
	}

	nowAvailable := p.sync.ApplySnapshot(ctx, snapshot)

	if p.notifier != nil {
		for _, spotID := range nowAvailable {
			p.notifier.Dispatch(spotID)
		}
	}
}
