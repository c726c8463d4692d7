package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func recv(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
		return ""
	}
}

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestClientCount(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	if n := b.ClientCount(); n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
	a, c := b.Subscribe(), b.Subscribe()
	if n := b.ClientCount(); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	b.Unsubscribe(a)
	b.Unsubscribe(c)
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("count after unsubscribe = %d, want 0", n)
	}
}

func TestPublish_FrameFormat(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeClientsReloaded, Data: map[string]int{"total": 3}})
	b.Publish(Event{Type: TypeClientsReloaded, Data: map[string]int{"total": 4}})

	if got, want := recv(t, ch), "id: 1\nevent: clients.reloaded\ndata: {\"total\":3}\n\n"; got != want {
		t.Errorf("frame = %q, want %q", got, want)
	}
	if got := recv(t, ch); !strings.HasPrefix(got, "id: 2\n") {
		t.Errorf("second frame = %q, want id 2", got)
	}
}

func TestPublishAvatar_ProgressThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// The first progress goes out, the second is throttled, the last of the
	// batch always goes out.
	b.PublishAvatar(AvatarUpdate{Index: 0, OK: true, URL: "/objects/a", MIME: "image/png", Done: 1, Total: 3})
	b.PublishAvatar(AvatarUpdate{Index: 2, OK: false, Done: 2, Total: 3})
	b.PublishAvatar(AvatarUpdate{Index: 1, OK: true, URL: "/objects/b", MIME: "image/jpeg", Done: 3, Total: 3})
	time.Sleep(50 * time.Millisecond)

	var ready, failed []string
	var progress []string
	for _, s := range drain(ch) {
		switch {
		case strings.Contains(s, "event: avatar.ready"):
			ready = append(ready, s)
		case strings.Contains(s, "event: avatar.failed"):
			failed = append(failed, s)
		case strings.Contains(s, "event: avatars.progress"):
			progress = append(progress, s)
		}
	}

	if len(ready) != 2 || len(failed) != 1 {
		t.Fatalf("ready = %d, failed = %d, want 2 and 1", len(ready), len(failed))
	}
	if !strings.Contains(ready[0], `{"index":0,"url":"/objects/a","mime":"image/png"}`) {
		t.Errorf("ready data = %q", ready[0])
	}
	if !strings.Contains(failed[0], `data: {"index":2}`) {
		t.Errorf("failed data = %q", failed[0])
	}
	if len(progress) != 2 || !strings.Contains(progress[1], `{"done":3,"total":3}`) {
		t.Errorf("progress = %q", progress)
	}
}

func TestSubscribeFrom_ReplaysHistory(t *testing.T) {
	b := NewBroker(0, WithHistory(2))
	defer b.Close()

	probe := b.Subscribe()
	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: TypeClientsReloaded, Data: map[string]int{"total": i}})
	}
	for i := 0; i < 3; i++ {
		recv(t, probe)
	}
	b.Unsubscribe(probe)

	ch := b.SubscribeFrom(1)
	defer b.Unsubscribe(ch)
	got := drain(ch)
	if len(got) != 2 || !strings.HasPrefix(got[0], "id: 2\n") || !strings.HasPrefix(got[1], "id: 3\n") {
		t.Fatalf("replay = %q, want frames 2 and 3", got)
	}

	fresh := b.Subscribe()
	defer b.Unsubscribe(fresh)
	if got := drain(fresh); len(got) != 0 {
		t.Errorf("plain subscribe replayed %q", got)
	}
}

func TestPublish_DropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Type: "test", Data: i})
	}
	// Reaching this point means the loop never blocked on the full buffer.
	if n := b.ClientCount(); n != 1 {
		t.Errorf("count = %d", n)
	}
}

func TestClose(t *testing.T) {
	b := NewBroker(0)
	ch := b.Subscribe()

	b.Close()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("subscriber channel still open")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if n := b.ClientCount(); n != 0 {
		t.Errorf("count after close = %d", n)
	}
	if _, ok := <-b.Subscribe(); ok {
		t.Error("subscribe after close should return a closed channel")
	}

	b.Publish(Event{Type: TypeClientsReloaded, Data: 0})
	b.PublishAvatar(AvatarUpdate{Index: 0, Done: 1, Total: 1})
}

// syncRecorder guards the body so the test can read it while the handler
// is still writing.
type syncRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

func TestServeHTTP(t *testing.T) {
	b := NewBroker(0, WithHeartbeat(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.PublishAvatar(AvatarUpdate{Index: 4, OK: true, URL: "/objects/x", MIME: "image/png", Done: 1, Total: 1})
	time.Sleep(80 * time.Millisecond)
	cancel()
	<-done

	body := w.body()
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	for _, want := range []string{"event: avatar.ready", "event: avatars.progress", ": ping\n\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q: %q", want, body)
		}
	}

	deadline = time.Now().Add(time.Second)
	for b.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeHTTP_LastEventID(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()
	probe := b.Subscribe()
	b.Publish(Event{Type: TypeClientsReloaded, Data: map[string]int{"total": 1}})
	b.Publish(Event{Type: TypeClientsReloaded, Data: map[string]int{"total": 2}})
	recv(t, probe)
	recv(t, probe)
	b.Unsubscribe(probe)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.body()
	if strings.Contains(body, `"total":1`) || !strings.Contains(body, "id: 2\nevent: clients.reloaded\ndata: {\"total\":2}") {
		t.Errorf("resumed stream = %q", body)
	}
}
