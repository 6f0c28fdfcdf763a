package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeVosk mimics vosk-server: a partial reply per chunk, and a final
// result every finalEvery chunks and on eof.
type fakeVosk struct {
	finalEvery int
	text       string

	mu      sync.Mutex
	configs []map[string]any
	chunks  int
	eof     bool
}

func (f *fakeVosk) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			if typ == websocket.TextMessage {
				var msg map[string]any
				json.Unmarshal(data, &msg)
				if _, ok := msg["eof"]; ok {
					f.mu.Lock()
					f.eof = true
					f.mu.Unlock()
					conn.WriteJSON(map[string]any{"text": ""})
					return
				}
				f.mu.Lock()
				f.configs = append(f.configs, msg)
				f.mu.Unlock()
				continue
			}

			f.mu.Lock()
			f.chunks++
			n := f.chunks
			f.mu.Unlock()

			if n%f.finalEvery == 0 {
				conn.WriteJSON(map[string]any{
					"text": f.text,
					"result": []map[string]any{
						{"conf": 1.0, "word": "hello"},
						{"conf": 0.5, "word": "world"},
					},
				})
			} else {
				conn.WriteJSON(map[string]any{"partial": "hel"})
			}
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestVosk_AcceptWaveform(t *testing.T) {
	fake := &fakeVosk{finalEvery: 3, text: "  hello world "}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	factory, err := NewVosk(WithBaseURL(wsURL(srv)), WithSampleRate(16000))
	if err != nil {
		t.Fatalf("NewVosk failed: %v", err)
	}

	ctx := context.Background()
	rec, err := factory.NewRecognizer(ctx)
	if err != nil {
		t.Fatalf("NewRecognizer failed: %v", err)
	}

	chunk := make([]byte, 3200) // 100ms
	for i := 0; i < 2; i++ {
		final, err := rec.AcceptWaveform(ctx, chunk)
		if err != nil {
			t.Fatalf("AcceptWaveform %d failed: %v", i, err)
		}
		if final {
			t.Fatalf("chunk %d should be partial", i)
		}
	}

	final, err := rec.AcceptWaveform(ctx, chunk)
	if err != nil {
		t.Fatalf("AcceptWaveform failed: %v", err)
	}
	if !final {
		t.Fatal("third chunk should finalize")
	}

	res := rec.Result()
	if res.Text != "hello world" {
		t.Errorf("expected trimmed text, got %q", res.Text)
	}
	if res.Confidence != 0.75 {
		t.Errorf("expected confidence 0.75, got %f", res.Confidence)
	}
	if res.Duration != 300*time.Millisecond {
		t.Errorf("expected 300ms, got %v", res.Duration)
	}

	if err := rec.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if _, err := rec.AcceptWaveform(ctx, chunk); err != ErrClosed {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}

	// Give the server a moment to record eof.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		fake.mu.Lock()
		eof := fake.eof
		fake.mu.Unlock()
		if eof {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if !fake.eof {
		t.Error("server never saw eof")
	}
	if len(fake.configs) != 1 {
		t.Fatalf("expected one config message, got %d", len(fake.configs))
	}
	conf, _ := fake.configs[0]["config"].(map[string]any)
	if conf["sample_rate"] != float64(16000) {
		t.Errorf("unexpected config %v", fake.configs[0])
	}
}

func TestVosk_EmptyChunkIsNoop(t *testing.T) {
	fake := &fakeVosk{finalEvery: 1, text: "x"}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	factory, _ := NewVosk(WithBaseURL(wsURL(srv)))
	rec, err := factory.NewRecognizer(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	final, err := rec.AcceptWaveform(context.Background(), nil)
	if err != nil || final {
		t.Errorf("expected no-op, got final=%v err=%v", final, err)
	}
}

func TestVosk_ContextCancelUnblocksRead(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Read forever, never reply.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	factory, _ := NewVosk(WithBaseURL(wsURL(srv)))
	rec, err := factory.NewRecognizer(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = rec.AcceptWaveform(ctx, make([]byte, 320))
	if err == nil {
		t.Fatal("expected error when context expires")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("read was not unblocked promptly: %v", time.Since(start))
	}
}

func TestVosk_Errors(t *testing.T) {
	if _, err := NewVosk(); err != ErrNoEndpoint {
		t.Errorf("expected ErrNoEndpoint, got %v", err)
	}

	factory, _ := NewVosk(WithBaseURL("ws://127.0.0.1:1"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := factory.NewRecognizer(ctx); err == nil {
		t.Error("expected dial error")
	}
	if err := factory.Health(ctx); err == nil {
		t.Error("expected health error")
	}
}
