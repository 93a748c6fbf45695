package main

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"i4.energy/across/gsmmodem/pdu"
)

func TestHubBroadcast(t *testing.T) {
	h := NewHub(discardLogger())
	fast, cancelFast := h.Subscribe(2)
	slow, cancelSlow := h.Subscribe(1)
	defer cancelFast()

	h.Broadcast([]byte("a"))
	h.Broadcast([]byte("b"))

	if got := string(<-fast) + string(<-fast); got != "ab" {
		t.Errorf("expected both messages in order, got %q", got)
	}
	if got := string(<-slow); got != "a" {
		t.Errorf("expected first message, got %q", got)
	}
	select {
	case msg := <-slow:
		t.Errorf("lagging subscriber must miss messages, got %q", msg)
	default:
	}

	cancelSlow()
	cancelSlow()
	if h.Subscribers() != 1 {
		t.Errorf("expected 1 subscriber, got %d", h.Subscribers())
	}
	if _, open := <-slow; open {
		t.Error("channel must be closed after unsubscribe")
	}
}

func TestHubServeWS(t *testing.T) {
	h := NewHub(discardLogger())
	srv := httptest.NewServer(&Server{Logger: discardLogger(), Modem: &fakeGateway{}, Hub: h})
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for h.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Publish(InboxEvent{ID: "ev-1", Index: 3, Message: &pdu.Message{Number: "+3161", Text: "hi"}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev InboxEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.ID != "ev-1" || ev.Index != 3 || ev.Message.Text != "hi" {
		t.Errorf("unexpected event %+v", ev)
	}

	conn.Close()
	deadline = time.Now().Add(time.Second)
	for h.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
