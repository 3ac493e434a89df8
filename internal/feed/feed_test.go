package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelrank/pkg/models"
)

func readEvent(t *testing.T, r *bufio.Reader) Event {
	t.Helper()
	line, err := r.ReadBytes('\n')
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(line, &ev))
	return ev
}

func TestTCPSubscriberReceivesSummary(t *testing.T) {
	hub := NewHub(nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer("", hub).Serve(ctx, ln) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
		hub.Close()
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)

	assert.Equal(t, EventWelcome, readEvent(t, r).Type)
	require.Eventually(t, func() bool { return hub.Stats().TCPClients == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Notify(context.Background(), models.RefreshSummary{RunID: "run-1", Total: 7}))

	ev := readEvent(t, r)
	assert.Equal(t, EventRefreshFinished, ev.Type)
	require.NotNil(t, ev.Summary)
	assert.Equal(t, "run-1", ev.Summary.RunID)
	assert.Equal(t, 7, ev.Summary.Total)
}

func TestWebSocketSubscriber(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil)
	r := gin.New()
	r.GET("/ws", WSHandler(hub))
	srv := httptest.NewServer(r)
	defer srv.Close()
	defer hub.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var welcome Event
	require.NoError(t, ws.ReadJSON(&welcome))
	assert.Equal(t, EventWelcome, welcome.Type)
	require.Eventually(t, func() bool { return hub.Stats().WSClients == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(Event{Type: EventScheduleUpdated, Schedule: map[string]any{"time": "08:00"}})

	var ev Event
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, EventScheduleUpdated, ev.Type)
	assert.False(t, ev.At.IsZero())
}

func TestPublishDropsDeadSubscribers(t *testing.T) {
	hub := NewHub(nil)
	a, b := net.Pipe()
	hub.Add(a)
	_ = b.Close()

	hub.Publish(Event{Type: EventRefreshFinished})
	assert.Equal(t, 0, hub.Stats().TCPClients)
}

func TestClientReceivesTypedEvents(t *testing.T) {
	hub := NewHub(nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srvCtx, stopSrv := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- NewServer("", hub).Serve(srvCtx, ln) }()
	defer func() {
		stopSrv()
		assert.NoError(t, <-served)
		hub.Close()
	}()

	events := make(chan Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	subscribed := make(chan error, 1)
	go func() {
		subscribed <- NewClient(ln.Addr().String(), nil).Subscribe(ctx, func(ev Event) { events <- ev })
	}()

	next := func() Event {
		select {
		case ev := <-events:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("no event")
			return Event{}
		}
	}
	assert.Equal(t, EventWelcome, next().Type)
	require.Eventually(t, func() bool { return hub.Stats().TCPClients == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Notify(context.Background(), models.RefreshSummary{RunID: "run-9", Total: 3}))
	ev := next()
	assert.Equal(t, EventRefreshFinished, ev.Type)
	require.NotNil(t, ev.Summary)
	assert.Equal(t, "run-9", ev.Summary.RunID)
	assert.Equal(t, 3, ev.Summary.Total)

	cancel()
	select {
	case err := <-subscribed:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

func TestClientRedialsAfterDrop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// each connection gets one event and is then closed
	go func() {
		for i := 1; ; i++ {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			b, _ := json.Marshal(Event{Type: EventRefreshFinished, Clients: i})
			_, _ = conn.Write(append(b, '\n'))
			_ = conn.Close()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewClient(ln.Addr().String(), nil)
	c.Retry = 10 * time.Millisecond

	got := make(chan int, 8)
	go func() {
		_ = c.Subscribe(ctx, func(ev Event) {
			select {
			case got <- ev.Clients:
			default:
			}
		})
	}()

	for want := 1; want <= 3; want++ {
		select {
		case n := <-got:
			assert.Equal(t, want, n)
		case <-time.After(2 * time.Second):
			t.Fatalf("connection %d never delivered", want)
		}
	}
}
