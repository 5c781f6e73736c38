package api

import (
	"encoding/json"
	"testing"

	"tvbridge/models"
)

func TestHubBroadcastsSessionTransitions(t *testing.T) {
	hub := NewWebSocketHub()
	client := &wsClient{hub: hub, send: make(chan []byte, 16)}
	hub.clients[client] = true

	hub.DeviceChanged(&models.DeviceInfo{Serial: "A", Status: models.StatusConnected})
	hub.DeviceChanged(nil)

	var ev SessionEvent
	if err := json.Unmarshal(<-client.send, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "session" || ev.Device == nil || ev.Device.Serial != "A" {
		t.Errorf("unexpected first event: %+v", ev)
	}

	if err := json.Unmarshal(<-client.send, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Device != nil {
		t.Errorf("clear transition must carry a null device, got %+v", ev.Device)
	}
}

func TestHubDropsFramesWhenClientBufferFull(t *testing.T) {
	hub := NewWebSocketHub()
	client := &wsClient{hub: hub, send: make(chan []byte, 1)}
	hub.clients[client] = true

	// Second broadcast must not block even though the buffer is full.
	hub.DeviceChanged(&models.DeviceInfo{Serial: "A"})
	hub.DeviceChanged(&models.DeviceInfo{Serial: "B"})

	if got := len(client.send); got != 1 {
		t.Errorf("expected exactly one buffered frame, got %d", got)
	}
}
