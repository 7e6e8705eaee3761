package hub

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(NewRouter(New()))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write err: %v", err)
	}
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read err: %v", err)
	}
	return msg
}

func register(t *testing.T, conn *websocket.Conn, role, name string) {
	t.Helper()
	sendJSON(t, conn, map[string]string{"type": "register", "role": role, "name": name})
	reply := readJSON(t, conn)
	if reply["ok"] != true || reply["role"] != role {
		t.Fatalf("unexpected registration reply: %v", reply)
	}
}

func TestUnregisteredSenderGetsError(t *testing.T) {
	_, wsURL := startHub(t)
	conn := dial(t, wsURL)

	sendJSON(t, conn, map[string]string{"cmd": "treat_now"})
	reply := readJSON(t, conn)
	if reply["error"] != "not_registered" {
		t.Fatalf("expected not_registered, got %v", reply)
	}
	if reply["expect"] == nil {
		t.Fatal("expected the reply to describe the registration shape")
	}
}

func TestUICommandWithoutDevice(t *testing.T) {
	_, wsURL := startHub(t)
	ui := dial(t, wsURL)
	register(t, ui, "ui", "frontend")

	sendJSON(t, ui, map[string]string{"cmd": "treat_now"})
	reply := readJSON(t, ui)
	if reply["error"] != "no_device_connected" {
		t.Fatalf("expected no_device_connected, got %v", reply)
	}
}

func TestDeviceEventBroadcastToUIs(t *testing.T) {
	_, wsURL := startHub(t)
	device := dial(t, wsURL)
	register(t, device, "device", "")
	ui1 := dial(t, wsURL)
	register(t, ui1, "ui", "one")
	ui2 := dial(t, wsURL)
	register(t, ui2, "ui", "two")

	sendJSON(t, device, map[string]any{
		"type": "event", "event": "treat_given", "timestamp": 1.0,
		"payload": map[string]any{"reason": "auto"},
	})

	for _, ui := range []*websocket.Conn{ui1, ui2} {
		msg := readJSON(t, ui)
		if msg["event"] != "treat_given" {
			t.Fatalf("expected treat_given broadcast, got %v", msg)
		}
	}
}

func TestUICommandForwardedToDevice(t *testing.T) {
	_, wsURL := startHub(t)
	device := dial(t, wsURL)
	register(t, device, "device", "")
	ui := dial(t, wsURL)
	register(t, ui, "ui", "frontend")

	sendJSON(t, ui, map[string]any{"cmd": "set_mode", "mode": "manual"})

	msg := readJSON(t, device)
	if msg["cmd"] != "set_mode" || msg["mode"] != "manual" {
		t.Fatalf("expected forwarded command, got %v", msg)
	}
}

func TestSecondDeviceRegistrationTakesSlot(t *testing.T) {
	_, wsURL := startHub(t)
	first := dial(t, wsURL)
	register(t, first, "device", "old")
	second := dial(t, wsURL)
	register(t, second, "device", "new")

	ui := dial(t, wsURL)
	register(t, ui, "ui", "frontend")
	sendJSON(t, ui, map[string]string{"cmd": "treat_now"})

	msg := readJSON(t, second)
	if msg["cmd"] != "treat_now" {
		t.Fatalf("expected command routed to second device, got %v", msg)
	}

	// The first device must not have received the command.
	_ = first.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatal("expected no message on the replaced device")
	}
}

func TestNonJSONFromDeviceWrappedForUIs(t *testing.T) {
	_, wsURL := startHub(t)
	device := dial(t, wsURL)
	register(t, device, "device", "")
	ui := dial(t, wsURL)
	register(t, ui, "ui", "frontend")

	if err := device.WriteMessage(websocket.TextMessage, []byte("boot ok")); err != nil {
		t.Fatalf("write err: %v", err)
	}

	msg := readJSON(t, ui)
	if msg["type"] != "raw" || msg["text"] != "boot ok" {
		t.Fatalf("expected wrapped raw text, got %v", msg)
	}
}

func TestStatusEndpointBroadcasts(t *testing.T) {
	srv, wsURL := startHub(t)
	ui := dial(t, wsURL)
	register(t, ui, "ui", "frontend")

	body := bytes.NewBufferString(`{"pose":"sit","mode":"auto"}`)
	resp, err := http.Post(srv.URL+"/api/status", "application/json", body)
	if err != nil {
		t.Fatalf("post err: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	msg := readJSON(t, ui)
	if msg["type"] != "event" || msg["event"] != "status" {
		t.Fatalf("expected status envelope, got %v", msg)
	}
	payload, _ := msg["payload"].(map[string]any)
	if payload["pose"] != "sit" {
		t.Fatalf("expected body forwarded as payload, got %v", payload)
	}
}

func TestStatusEndpointPassesEnvelopesThrough(t *testing.T) {
	srv, wsURL := startHub(t)
	ui := dial(t, wsURL)
	register(t, ui, "ui", "frontend")

	body := bytes.NewBufferString(`{"type":"event","event":"treat_given","timestamp":100,"payload":{"reason":"auto"}}`)
	resp, err := http.Post(srv.URL+"/api/status", "application/json", body)
	if err != nil {
		t.Fatalf("post err: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// An envelope body must not be re-wrapped as a status event.
	msg := readJSON(t, ui)
	if msg["event"] != "treat_given" {
		t.Fatalf("expected envelope forwarded as-is, got %v", msg)
	}
	if msg["timestamp"] != 100.0 {
		t.Fatalf("expected original timestamp preserved, got %v", msg["timestamp"])
	}
}

func TestStatusEndpointRejectsInvalidJSON(t *testing.T) {
	srv, _ := startHub(t)

	resp, err := http.Post(srv.URL+"/api/status", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("post err: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var reply map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if reply["error"] != "invalid_json" {
		t.Fatalf("expected invalid_json, got %v", reply)
	}
}

func TestClientsEndpointReportsCounts(t *testing.T) {
	srv, wsURL := startHub(t)
	device := dial(t, wsURL)
	register(t, device, "device", "")
	ui := dial(t, wsURL)
	register(t, ui, "ui", "frontend")

	resp, err := http.Get(srv.URL + "/api/clients")
	if err != nil {
		t.Fatalf("get err: %v", err)
	}
	defer resp.Body.Close()

	var counts map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&counts); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if counts["deviceConnected"] != true {
		t.Fatalf("expected device connected, got %v", counts)
	}
	if counts["uiCount"] != float64(1) {
		t.Fatalf("expected 1 ui, got %v", counts)
	}
}
