// Package sse streams avatar and roster updates to dashboard tabs as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event is one message for every subscriber.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types sent to dashboard clients.
const (
	TypeAvatarReady     = "avatar.ready"
	TypeAvatarFailed    = "avatar.failed"
	TypeAvatarsProgress = "avatars.progress"
	TypeClientsReloaded = "clients.reloaded"
)

// AvatarUpdate reports one finished avatar decryption. Done and Total feed
// the avatars.progress event.
type AvatarUpdate struct {
	Index int
	OK    bool
	URL   string
	MIME  string
	Done  int
	Total int
}

type avatarData struct {
	Index int    `json:"index"`
	URL   string `json:"url,omitempty"`
	MIME  string `json:"mime,omitempty"`
}

type progressData struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

const (
	subscriberBuffer = 64
	defaultHistory   = 128
	defaultHeartbeat = 25 * time.Second
)

// Option configures a Broker.
type Option func(*Broker)

// WithHistory keeps the last n frames for clients reconnecting with
// Last-Event-ID. Zero disables replay.
func WithHistory(n int) Option {
	return func(b *Broker) { b.historyLen = n }
}

// WithHeartbeat sets how often idle streams get a comment line.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

type subscription struct {
	ch     chan []byte
	lastID uint64
}

// Broker fans events out to subscribers.
//
// A single loop goroutine owns the subscriber set, the frame history and the
// progress throttle; the public methods only talk to it over channels.
type Broker struct {
	progressMin time.Duration
	historyLen  int
	heartbeat   time.Duration

	subCh   chan subscription
	unsubCh chan chan []byte
	eventCh chan Event
	avatar  chan AvatarUpdate
	countCh chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. avatars.progress events are sent at most once
// per progressThrottle, except for the last one of a batch.
func NewBroker(progressThrottle time.Duration, opts ...Option) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = 500 * time.Millisecond
	}
	b := &Broker{
		progressMin: progressThrottle,
		historyLen:  defaultHistory,
		heartbeat:   defaultHeartbeat,
		subCh:       make(chan subscription),
		unsubCh:     make(chan chan []byte),
		eventCh:     make(chan Event, 256),
		avatar:      make(chan AvatarUpdate, 256),
		countCh:     make(chan chan int),
		stopCh:      make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.loop()
	return b
}

type frame struct {
	id  uint64
	raw []byte
}

// encode renders event as an SSE frame with the given id.
func encode(id uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", id, event.Type, payload)), nil
}

func (b *Broker) loop() {
	defer close(b.stopped)

	subs := make(map[chan []byte]struct{})
	var (
		nextID       uint64
		history      []frame
		lastProgress time.Time
	)

	send := func(event Event) {
		raw, err := encode(nextID+1, event)
		if err != nil {
			return
		}
		nextID++
		if b.historyLen > 0 {
			history = append(history, frame{id: nextID, raw: raw})
			if len(history) > b.historyLen {
				history = history[len(history)-b.historyLen:]
			}
		}
		for ch := range subs {
			select {
			case ch <- raw:
			default:
				// Slow tab; it resyncs from the table endpoint.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range subs {
				close(ch)
			}
			return

		case s := <-b.subCh:
			subs[s.ch] = struct{}{}
			if s.lastID == 0 {
				continue
			}
			for _, f := range history {
				if f.id <= s.lastID {
					continue
				}
				select {
				case s.ch <- f.raw:
				default:
				}
			}

		case ch := <-b.unsubCh:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case event := <-b.eventCh:
			send(event)

		case u := <-b.avatar:
			if u.OK {
				send(Event{Type: TypeAvatarReady, Data: avatarData{Index: u.Index, URL: u.URL, MIME: u.MIME}})
			} else {
				send(Event{Type: TypeAvatarFailed, Data: avatarData{Index: u.Index}})
			}
			now := time.Now()
			if u.Done >= u.Total || now.Sub(lastProgress) >= b.progressMin {
				lastProgress = now
				send(Event{Type: TypeAvatarsProgress, Data: progressData{Done: u.Done, Total: u.Total}})
			}

		case resp := <-b.countCh:
			resp <- len(subs)
		}
	}
}

// Close stops the loop and closes every subscriber channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a subscriber that receives new frames only.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeFrom(0)
}

// SubscribeFrom registers a subscriber and first replays the retained
// frames with an id above lastID. The channel is closed when the broker is.
func (b *Broker) SubscribeFrom(lastID uint64) chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subCh <- subscription{ch: ch, lastID: lastID}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of subscribers.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countCh <- resp:
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

// Publish broadcasts event. It is a no-op after Close.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- event:
	case <-b.stopped:
	}
}

// PublishAvatar publishes avatar.ready or avatar.failed followed by a
// throttled avatars.progress event.
func (b *Broker) PublishAvatar(u AvatarUpdate) {
	if b.closed.Load() {
		return
	}
	select {
	case b.avatar <- u:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client (GET /api/events). A Last-Event-ID
// header resumes after that frame.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.SubscribeFrom(lastID)
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": ping\n\n"))
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
