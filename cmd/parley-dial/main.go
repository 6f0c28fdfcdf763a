// parley-dial: streams an audio file to a parley server like a phone client
// would, and saves every spoken reply.
//
// Usage:
//
//	parley-dial -in hello.wav -url ws://localhost:8765/ws -out replies/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-parley/internal/log"
	"github.com/teslashibe/go-parley/pkg/audio"
	"github.com/teslashibe/go-parley/pkg/protocol"
)

func main() {
	url := flag.String("url", "ws://localhost:8765/ws", "Server websocket URL")
	in := flag.String("in", "", "Input audio: 16-bit mono WAV, or raw PCM16 with -rate")
	rate := flag.Int("rate", 16000, "Sample rate the server expects")
	chunk := flag.Duration("chunk", 100*time.Millisecond, "Audio per AUDIO frame")
	out := flag.String("out", "replies", "Directory for reply audio")
	tail := flag.Duration("wait", 30*time.Second, "How long to wait for replies after the input ends")
	silence := flag.Duration("silence", time.Second, "Silence appended so the server's endpointer closes the utterance")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger := log.Init(*logLevel, "text")
	if *in == "" {
		fmt.Fprintln(os.Stderr, "parley-dial: -in is required")
		flag.Usage()
		os.Exit(2)
	}

	pcm, err := loadPCM(*in, *rate)
	if err != nil {
		logger.Error("load input", "file", *in, "error", err)
		os.Exit(1)
	}
	pcm = append(pcm, make([]byte, audio.BytesFor(*silence, *rate))...)

	if err := os.MkdirAll(*out, 0o755); err != nil {
		logger.Error("create output dir", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := &dialer{
		url:    *url,
		rate:   *rate,
		chunk:  *chunk,
		out:    *out,
		wait:   *tail,
		logger: logger,
	}
	n, err := d.run(ctx, pcm)
	if err != nil {
		logger.Error("dial failed", "error", err)
		os.Exit(1)
	}
	logger.Info("done", "replies", n, "dir", *out)
}

// loadPCM reads a WAV or raw PCM16 file and returns mono PCM16 at rate.
func loadPCM(path string, rate int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !audio.IsWAV(data) {
		return data, nil
	}

	pcm, header, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	if header.NumChannels != 1 {
		return nil, fmt.Errorf("want mono audio, got %d channels", header.NumChannels)
	}
	return audio.ResampleBytes(pcm, int(header.SampleRate), rate), nil
}

type dialer struct {
	url    string
	rate   int
	chunk  time.Duration
	out    string
	wait   time.Duration
	logger *slog.Logger
}

// run sends pcm in real time and saves replies until wait passes with no
// new frame after the input ends. It returns the number of replies saved.
func (d *dialer) run(ctx context.Context, pcm []byte) (int, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return 0, fmt.Errorf("connect %s: %w", d.url, err)
	}
	defer conn.Close()
	d.logger.Info("connected", "url", d.url, "audio", audio.Duration(len(pcm), d.rate))

	replies := make(chan int, 1)
	activity := make(chan struct{}, 1)
	go func() {
		replies <- d.readReplies(conn, activity)
	}()

	if err := d.stream(ctx, conn, pcm); err != nil {
		return 0, err
	}
	d.logger.Info("input sent, waiting for replies", "wait", d.wait)

	idle := time.NewTimer(d.wait)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return <-replies, nil
		case <-activity:
			idle.Reset(d.wait)
		case <-idle.C:
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return <-replies, nil
		case n := <-replies:
			return n, nil
		}
	}
}

// stream sends one AUDIO frame per chunk, paced like a live microphone.
func (d *dialer) stream(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	size := audio.BytesFor(d.chunk, d.rate)
	if size == 0 {
		return errors.New("chunk too short for sample rate")
	}

	ticker := time.NewTicker(d.chunk)
	defer ticker.Stop()
	for off := 0; off < len(pcm); off += size {
		end := min(off+size, len(pcm))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(protocol.EncodeAudio(pcm[off:end]))); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func (d *dialer) readReplies(conn *websocket.Conn, activity chan<- struct{}) int {
	saved := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				d.logger.Debug("read ended", "error", err)
			}
			return saved
		}
		select {
		case activity <- struct{}{}:
		default:
		}

		frame, err := protocol.ParseFrame(string(data))
		if err != nil {
			d.logger.Warn("bad frame", "error", err)
			continue
		}
		if !frame.IsAudio() {
			d.logger.Info("server", "type", frame.Type, "payload", frame.Payload)
			continue
		}

		saved++
		path := filepath.Join(d.out, fmt.Sprintf("reply-%03d.%s", saved, extension(frame.Audio)))
		if err := os.WriteFile(path, frame.Audio, 0o644); err != nil {
			d.logger.Error("save reply", "path", path, "error", err)
			continue
		}
		d.logger.Info("reply saved", "path", path, "bytes", len(frame.Audio))
	}
}

func extension(b []byte) string {
	switch {
	case audio.IsWAV(b):
		return "wav"
	case strings.HasPrefix(string(b[:min(3, len(b))]), "ID3"), len(b) > 1 && b[0] == 0xFF && b[1]&0xE0 == 0xE0:
		return "mp3"
	default:
		return "audio"
	}
}
