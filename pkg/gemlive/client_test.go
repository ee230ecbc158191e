package gemlive

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, handler func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade error: %v", err)
			return
		}
		handler(conn)
	}))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestConnectSendsSetupAndEmitsOpened(t *testing.T) {
	setupCh := make(chan setupMessage, 1)
	srv, wsURL := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var setup setupMessage
		if err := conn.ReadJSON(&setup); err != nil {
			t.Errorf("read setup: %v", err)
			return
		}
		setupCh <- setup
		if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
			return
		}
		// Hold the connection until the client disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	opened := make(chan struct{}, 1)
	client := NewClient(Config{BaseURL: wsURL, APIKey: "test"}, Callbacks{
		OnOpened: func() { opened <- struct{}{} },
	}, nil)
	defer client.Disconnect()

	sessionCfg := SessionConfig{
		Modality:          ModalityAudio,
		SystemInstruction: "You are a fitness assistant.",
		Tools: []FunctionDeclaration{
			{Name: "get_sessions", Parameters: &Schema{
				Type:       "OBJECT",
				Properties: map[string]Schema{"date": {Type: "STRING"}},
				Required:   []string{"date"},
			}},
		},
	}
	if err := client.Connect(context.Background(), "gemini-2.5-flash-native-audio", sessionCfg); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	var setup setupMessage
	select {
	case setup = <-setupCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for setup message")
	}
	if setup.Setup.Model != "models/gemini-2.5-flash-native-audio" {
		t.Fatalf("setup model=%q, want models/gemini-2.5-flash-native-audio", setup.Setup.Model)
	}
	if got := setup.Setup.GenerationConfig.ResponseModalities; len(got) != 1 || got[0] != "AUDIO" {
		t.Fatalf("setup modalities=%v, want [AUDIO]", got)
	}
	if setup.Setup.SystemInstruction == nil || len(setup.Setup.SystemInstruction.Parts) != 1 {
		t.Fatal("setup system instruction missing")
	}
	if len(setup.Setup.Tools) != 1 || len(setup.Setup.Tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("setup tools=%v, want one declaration group", setup.Setup.Tools)
	}

	waitFor(t, opened, "OnOpened")
	if !client.Connected() {
		t.Fatal("Connected()=false after setupComplete")
	}
}

func TestServerContentDispatch(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	srv, wsURL := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var setup setupMessage
		if err := conn.ReadJSON(&setup); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		_ = conn.WriteJSON(map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []any{
						map[string]any{"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     base64.StdEncoding.EncodeToString(pcm),
						}},
						map[string]any{"text": "hello"},
					},
				},
			},
		})
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{"interrupted": true}})
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{"turnComplete": true}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	audioCh := make(chan []byte, 1)
	textCh := make(chan string, 1)
	interrupted := make(chan struct{}, 1)
	turnDone := make(chan struct{}, 1)
	client := NewClient(Config{BaseURL: wsURL, APIKey: "test"}, Callbacks{
		OnAudio:        func(b []byte) { audioCh <- b },
		OnText:         func(s string) { textCh <- s },
		OnInterrupted:  func() { interrupted <- struct{}{} },
		OnTurnComplete: func() { turnDone <- struct{}{} },
	}, nil)
	defer client.Disconnect()

	if err := client.Connect(context.Background(), "gemini-test", SessionConfig{}); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	select {
	case got := <-audioCh:
		if string(got) != string(pcm) {
			t.Fatalf("audio=%v, want %v", got, pcm)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audio")
	}
	select {
	case got := <-textCh:
		if got != "hello" {
			t.Fatalf("text=%q, want %q", got, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for text")
	}
	waitFor(t, interrupted, "OnInterrupted")
	waitFor(t, turnDone, "OnTurnComplete")
}

func TestToolCallRoundTrip(t *testing.T) {
	responseCh := make(chan toolResponseMessage, 1)
	srv, wsURL := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var setup setupMessage
		if err := conn.ReadJSON(&setup); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		_ = conn.WriteJSON(map[string]any{
			"toolCall": map[string]any{
				"functionCalls": []any{
					map[string]any{"id": "call-1", "name": "get_sessions", "args": map[string]any{"date": "2024-05-25"}},
				},
			},
		})
		var resp toolResponseMessage
		if err := conn.ReadJSON(&resp); err != nil {
			return
		}
		responseCh <- resp
	})
	defer srv.Close()

	callsCh := make(chan []FunctionCall, 1)
	client := NewClient(Config{BaseURL: wsURL, APIKey: "test"}, Callbacks{
		OnToolCall: func(calls []FunctionCall) { callsCh <- calls },
	}, nil)
	defer client.Disconnect()

	if err := client.Connect(context.Background(), "gemini-test", SessionConfig{}); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	var calls []FunctionCall
	select {
	case calls = <-callsCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tool call")
	}
	if len(calls) != 1 || calls[0].ID != "call-1" || calls[0].Name != "get_sessions" {
		t.Fatalf("calls=%v, want one get_sessions call with id call-1", calls)
	}
	if got := calls[0].Args["date"]; got != "2024-05-25" {
		t.Fatalf("args date=%v, want 2024-05-25", got)
	}

	err := client.SendToolResults([]FunctionResult{
		{ID: "call-1", Name: "get_sessions", Response: map[string]any{"sessions": []any{}}},
	})
	if err != nil {
		t.Fatalf("SendToolResults error: %v", err)
	}

	select {
	case resp := <-responseCh:
		if len(resp.ToolResponse.FunctionResponses) != 1 {
			t.Fatalf("function responses=%d, want 1", len(resp.ToolResponse.FunctionResponses))
		}
		if resp.ToolResponse.FunctionResponses[0].ID != "call-1" {
			t.Fatalf("response id=%q, want call-1", resp.ToolResponse.FunctionResponses[0].ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tool response")
	}
}

func TestSendAudioWhileDisconnected(t *testing.T) {
	client := NewClient(Config{}, Callbacks{}, nil)
	if err := client.SendAudio([]byte{0x00, 0x01}); err != ErrNotConnected {
		t.Fatalf("SendAudio error=%v, want %v", err, ErrNotConnected)
	}
	if err := client.SendText("hi"); err != ErrNotConnected {
		t.Fatalf("SendText error=%v, want %v", err, ErrNotConnected)
	}
}

func TestDisconnectIsIdempotentAndEmitsClosedOnce(t *testing.T) {
	srv, wsURL := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var setup setupMessage
		if err := conn.ReadJSON(&setup); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	closed := make(chan string, 4)
	client := NewClient(Config{BaseURL: wsURL, APIKey: "test"}, Callbacks{
		OnClosed: func(reason string) { closed <- reason },
	}, nil)

	if err := client.Connect(context.Background(), "gemini-test", SessionConfig{}); err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	client.Disconnect()
	client.Disconnect()

	select {
	case reason := <-closed:
		if reason == "" {
			t.Fatal("closed reason is empty")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClosed")
	}
	select {
	case reason := <-closed:
		t.Fatalf("OnClosed fired twice, second reason %q", reason)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMalformedInboundMessageKeepsStreamOpen(t *testing.T) {
	srv, wsURL := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var setup setupMessage
		if err := conn.ReadJSON(&setup); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	opened := make(chan struct{}, 1)
	errCh := make(chan error, 1)
	client := NewClient(Config{BaseURL: wsURL, APIKey: "test"}, Callbacks{
		OnOpened: func() { opened <- struct{}{} },
		OnError:  func(err error) { errCh <- err },
	}, nil)
	defer client.Disconnect()

	if err := client.Connect(context.Background(), "gemini-test", SessionConfig{}); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected protocol error, got nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for protocol error")
	}
	// The malformed frame must not terminate the stream.
	waitFor(t, opened, "OnOpened after malformed frame")
}
