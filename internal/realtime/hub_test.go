package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Maken-HQ-Team/meetmate/internal/config"
	"github.com/Maken-HQ-Team/meetmate/internal/models"
)

// fakeListener drives the hub from tests without a database
type fakeListener struct {
	notifications chan *pq.Notification
	listened      chan string
	pings         chan struct{}
	closed        chan struct{}
}

func newFakeListener() *fakeListener {
	return &fakeListener{
		notifications: make(chan *pq.Notification, 10),
		listened:      make(chan string, 1),
		pings:         make(chan struct{}, 10),
		closed:        make(chan struct{}),
	}
}

func (f *fakeListener) Listen(channel string) error {
	f.listened <- channel
	return nil
}

func (f *fakeListener) NotificationChannel() <-chan *pq.Notification {
	return f.notifications
}

func (f *fakeListener) Ping() error {
	select {
	case f.pings <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeListener) Close() error {
	close(f.closed)
	return nil
}

func (f *fakeListener) notify(payload string) {
	f.notifications <- &pq.Notification{Channel: "meetmate_changes", Extra: payload}
}

func testRealtimeConfig() *config.RealtimeConfig {
	return &config.RealtimeConfig{
		Channel:      "meetmate_changes",
		MinReconnect: 10 * time.Second,
		MaxReconnect: time.Minute,
		PingInterval: time.Hour, // keep the ticker quiet during tests
	}
}

func startHub(t *testing.T) (*Hub, *fakeListener, func()) {
	t.Helper()

	fl := newFakeListener()
	hub := newHub(fl, testRealtimeConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := hub.Run(ctx); err != nil {
			t.Errorf("hub run failed: %v", err)
		}
	}()

	select {
	case ch := <-fl.listened:
		if ch != "meetmate_changes" {
			t.Fatalf("listened on channel %q, want meetmate_changes", ch)
		}
	case <-time.After(time.Second):
		t.Fatal("hub never started listening")
	}

	return hub, fl, func() {
		cancel()
		<-done
	}
}

func recvEvent(t *testing.T, sub *Subscription) models.ChangeEvent {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return models.ChangeEvent{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_FanoutByTable(t *testing.T) {
	hub, fl, stop := startHub(t)
	defer stop()

	grantSub := hub.Subscribe("public", "share_grants", nil)
	windowSub := hub.Subscribe("public", "availability_windows", nil)

	fl.notify(`{"schema":"public","table":"share_grants","op":"INSERT","row":{"viewer_id":"v1"}}`)

	ev := recvEvent(t, grantSub)
	if ev.Table != "share_grants" || ev.Op != models.ChangeInsert {
		t.Fatalf("unexpected event: %+v", ev)
	}
	assertNoEvent(t, windowSub)
}

func TestHub_FilterNarrowsEvents(t *testing.T) {
	hub, fl, stop := startHub(t)
	defer stop()

	sub := hub.Subscribe("public", "share_grants", func(ev models.ChangeEvent) bool {
		g, err := ev.GrantRow()
		return err == nil && g.ViewerID == "viewer-a"
	})

	fl.notify(`{"schema":"public","table":"share_grants","op":"UPDATE","row":{"viewer_id":"viewer-b"}}`)
	fl.notify(`{"schema":"public","table":"share_grants","op":"UPDATE","row":{"viewer_id":"viewer-a"}}`)

	ev := recvEvent(t, sub)
	g, err := ev.GrantRow()
	if err != nil {
		t.Fatalf("failed to decode grant row: %v", err)
	}
	if g.ViewerID != "viewer-a" {
		t.Fatalf("filter let through viewer %q", g.ViewerID)
	}
	assertNoEvent(t, sub)
}

func TestHub_MalformedPayloadDropped(t *testing.T) {
	hub, fl, stop := startHub(t)
	defer stop()

	sub := hub.Subscribe("public", "share_grants", nil)

	fl.notify(`not json`)
	fl.notify(`{"schema":"public","table":"share_grants","op":"DELETE","row":{}}`)

	ev := recvEvent(t, sub)
	if ev.Op != models.ChangeDelete {
		t.Fatalf("expected the valid event, got %+v", ev)
	}
}

func TestHub_NilNotificationSurvivesReconnect(t *testing.T) {
	hub, fl, stop := startHub(t)
	defer stop()

	sub := hub.Subscribe("public", "share_grants", nil)

	fl.notifications <- nil
	fl.notify(`{"schema":"public","table":"share_grants","op":"INSERT","row":{}}`)

	ev := recvEvent(t, sub)
	if ev.Op != models.ChangeInsert {
		t.Fatalf("hub did not survive reconnect marker: %+v", ev)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub, fl, stop := startHub(t)
	defer stop()

	sub := hub.Subscribe("public", "share_grants", nil)
	if got := hub.SubscriptionCount(); got != 1 {
		t.Fatalf("subscription count = %d, want 1", got)
	}

	sub.Unsubscribe()
	if got := hub.SubscriptionCount(); got != 0 {
		t.Fatalf("subscription count after unsubscribe = %d, want 0", got)
	}

	// channel is closed; a receive completes immediately
	if _, ok := <-sub.C; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}

	// events after unsubscribe go nowhere, and must not panic
	fl.notify(`{"schema":"public","table":"share_grants","op":"INSERT","row":{}}`)
	time.Sleep(20 * time.Millisecond)
}

func TestHub_SlowConsumerDropsNotStalls(t *testing.T) {
	hub, fl, stop := startHub(t)
	defer stop()

	sub := hub.Subscribe("public", "share_grants", nil)

	// overflow the buffer without receiving
	for i := 0; i < subscriptionBuffer+10; i++ {
		fl.notify(`{"schema":"public","table":"share_grants","op":"INSERT","row":{}}`)
	}

	deadline := time.After(2 * time.Second)
	drained := 0
	for drained < subscriptionBuffer {
		select {
		case <-sub.C:
			drained++
		case <-deadline:
			t.Fatalf("drained only %d events before timeout", drained)
		}
	}
}

func TestHub_Shutdown(t *testing.T) {
	hub, fl, stop := startHub(t)

	sub := hub.Subscribe("public", "share_grants", nil)

	stop()
	if err := hub.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	select {
	case <-fl.closed:
	default:
		t.Fatal("listener was not closed")
	}

	if _, ok := <-sub.C; ok {
		t.Fatal("subscription channel not closed on shutdown")
	}

	// second shutdown is a no-op
	if err := hub.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown failed: %v", err)
	}
}
