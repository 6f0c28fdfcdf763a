package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/teslashibe/go-parley/pkg/tts"
	"github.com/teslashibe/go-parley/pkg/voice"
)

func record(session string, i int) TurnRecord {
	return TurnRecord{
		ID:         fmt.Sprintf("t%d", i),
		SessionID:  session,
		Transcript: fmt.Sprintf("utterance %d", i),
		Started:    time.Unix(int64(1700000000+i), 0).UTC(),
	}
}

func ids(recs []TurnRecord) string {
	s := ""
	for _, r := range recs {
		s += r.ID + " "
	}
	return s
}

// testStore runs the shared TurnStore contract against s.
func testStore(t *testing.T, s TurnStore) {
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := s.Append(ctx, record("a", i)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	s.Append(ctx, record("b", 9))

	tests := []struct {
		session string
		limit   int
		want    string
	}{
		{"a", 0, "t3 t4 t5 "}, // MaxTurns is 3
		{"a", 2, "t4 t5 "},
		{"a", 10, "t3 t4 t5 "},
		{"b", 0, "t9 "},
		{"missing", 0, ""},
	}
	for _, tt := range tests {
		got, err := s.List(ctx, tt.session, tt.limit)
		if err != nil {
			t.Fatalf("List(%s, %d) error = %v", tt.session, tt.limit, err)
		}
		if got == nil {
			t.Errorf("List(%s) returned nil, want empty slice", tt.session)
		}
		if ids(got) != tt.want {
			t.Errorf("List(%s, %d) = %q, want %q", tt.session, tt.limit, ids(got), tt.want)
		}
	}

	got, _ := s.List(ctx, "a", 1)
	if got[0].Transcript != "utterance 5" || !got[0].Started.Equal(time.Unix(1700000005, 0)) {
		t.Errorf("record round trip = %+v", got[0])
	}
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory(WithMaxTurns(3)))
}

func TestMemoryTTL(t *testing.T) {
	m := NewMemory(WithTTL(time.Minute))
	now := time.Unix(0, 0)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	m.Append(ctx, record("old", 1))
	now = now.Add(2 * time.Minute)
	m.Append(ctx, record("new", 2))

	if m.Sessions() != 1 {
		t.Errorf("Sessions() = %d, want idle session expired", m.Sessions())
	}
	got, _ := m.List(ctx, "old", 0)
	if len(got) != 0 {
		t.Errorf("expired session returned %d records", len(got))
	}
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	m.Close()
	if err := m.Append(context.Background(), record("a", 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Append() error = %v, want ErrClosed", err)
	}
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedis(t *testing.T) {
	_, client := newMiniredis(t)
	testStore(t, NewRedisClient(client, WithMaxTurns(3)))
}

func TestRedisKeysAndTTL(t *testing.T) {
	mr, client := newMiniredis(t)
	s := NewRedisClient(client, WithKeyPrefix("test:"), WithTTL(time.Hour))

	if err := s.Append(context.Background(), record("abc", 1)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	key := "test:session:abc:turns"
	if !mr.Exists(key) {
		t.Fatalf("key %s not found; keys = %v", key, mr.Keys())
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	got, _ := s.List(context.Background(), "abc", 0)
	if len(got) != 0 {
		t.Errorf("expired list returned %d records", len(got))
	}
}

func TestRedisCorruptRecord(t *testing.T) {
	mr, client := newMiniredis(t)
	mr.RPush("parley:session:x:turns", "{not json")

	s := NewRedisClient(client)
	if _, err := s.List(context.Background(), "x", 0); err == nil {
		t.Error("expected decode error")
	}
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	if _, err := NewRedis(context.Background(), "not a url"); err == nil {
		t.Error("expected parse error")
	}
}

func TestFromTurn(t *testing.T) {
	turn := &voice.Turn{
		ID:         "t1",
		SessionID:  "s1",
		Transcript: "hi",
		Reply:      "hey",
		Styled:     "um, hey",
		Audio:      make([]byte, 512),
		Format:     tts.AudioFormat{Encoding: tts.EncodingWAV},
		Err:        &voice.StageError{Stage: voice.StageTTS, Err: errors.New("down")},
	}

	rec := FromTurn(turn)
	if rec.AudioBytes != 512 || rec.AudioEncoding != "wav" {
		t.Errorf("audio fields = %d, %q", rec.AudioBytes, rec.AudioEncoding)
	}
	if rec.Error != "voice: tts stage: down" {
		t.Errorf("Error = %q", rec.Error)
	}
}
