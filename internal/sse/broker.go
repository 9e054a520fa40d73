// Package sse streams contract and catalog changes to dashboard clients as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types sent to clients.
const (
	ContractUpdated  = "contract.updated"
	ContractLinked   = "contract.linked"
	ContractPushed   = "contract.pushed"
	DocumentIndexed  = "document.indexed"
	DocumentRemoved  = "document.removed"
	DashboardUpdated = "dashboard.updated"
)

const (
	defaultThrottle  = 2 * time.Second
	defaultHeartbeat = 25 * time.Second
	clientBuffer     = 64
)

// Event is one message on the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// DashboardSummary is the payload of dashboard.updated. Changes counts the
// change events folded into this refresh hint.
type DashboardSummary struct {
	Changes int    `json:"changes"`
	Last    string `json:"last"`
}

// Option configures a Broker.
type Option func(*Broker)

// WithHeartbeat sets the interval of keep-alive comments on idle streams.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// Broker fans events out to subscribed clients.
//
// A single goroutine owns the client set, the event sequence and the
// dashboard throttle; public methods talk to it over channels.
type Broker struct {
	dashboardMin time.Duration
	heartbeat    time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. Change events published through Notify are
// followed by at most one dashboard.updated per dashboardThrottle; changes
// inside the window are summarised by a trailing dashboard.updated.
func NewBroker(dashboardThrottle time.Duration, opts ...Option) *Broker {
	if dashboardThrottle <= 0 {
		dashboardThrottle = defaultThrottle
	}

	b := &Broker{
		dashboardMin:  dashboardThrottle,
		heartbeat:     defaultHeartbeat,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.loop()
	return b
}

func frame(id uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", id, event.Type, payload)), nil
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq           uint64
		lastDashboard time.Time
		pending       int
		lastKind      string
		flushTimer    *time.Timer
		flush         <-chan time.Time
	)

	send := func(event Event) {
		seq++
		raw, err := frame(seq, event)
		if err != nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop.
			}
		}
	}

	dashboard := func(now time.Time) {
		lastDashboard = now
		send(Event{Type: DashboardUpdated, Data: DashboardSummary{Changes: pending, Last: lastKind}})
		pending = 0
	}

	for {
		select {
		case <-b.stopCh:
			if flushTimer != nil {
				flushTimer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			send(event)

		case event := <-b.changeCh:
			send(event)
			pending++
			lastKind = event.Type

			now := time.Now()
			if wait := b.dashboardMin - now.Sub(lastDashboard); wait <= 0 {
				dashboard(now)
			} else if flush == nil {
				flushTimer = time.NewTimer(wait)
				flush = flushTimer.C
			}

		case <-flush:
			flush = nil
			if pending > 0 {
				dashboard(time.Now())
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The channel is closed on Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event without touching the dashboard throttle.
func (b *Broker) Publish(event Event) {
	b.enqueue(b.publishCh, event)
}

// Notify publishes a contract or document change and schedules a
// dashboard.updated hint.
func (b *Broker) Notify(kind string, data any) {
	b.enqueue(b.changeCh, Event{Type: kind, Data: data})
}

func (b *Broker) enqueue(ch chan Event, event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case ch <- event:
	case <-b.stopped:
	}
}

// DocumentEvent adapts index watcher callbacks ("indexed", "removed").
func (b *Broker) DocumentEvent(kind, path string) {
	switch kind {
	case "indexed":
		b.Notify(DocumentIndexed, map[string]string{"path": path})
	case "removed":
		b.Notify(DocumentRemoved, map[string]string{"path": path})
	}
}

// ServeHTTP streams events to one client until it disconnects (GET /events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
