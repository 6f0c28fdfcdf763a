package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-parley/pkg/audio"
	"github.com/teslashibe/go-parley/pkg/hub"
	"github.com/teslashibe/go-parley/pkg/metrics"
	"github.com/teslashibe/go-parley/pkg/protocol"
	"github.com/teslashibe/go-parley/pkg/store"
	"github.com/teslashibe/go-parley/pkg/stt"
	"github.com/teslashibe/go-parley/pkg/voice"
)

// storeTimeout bounds turn log writes, which outlive a closed session.
const storeTimeout = 2 * time.Second

// session is one conversation socket. The reader pump and the turn loop are
// its only goroutines; the loop handles frames strictly in arrival order.
type session struct {
	id      string
	remote  string
	started time.Time

	srv     *Server
	conn    *websocket.Conn
	rec     stt.Recognizer
	dec     decoder
	limiter *rate.Limiter
	queue   chan []byte
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	turns   atomic.Int64
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		ID:      s.id,
		Remote:  s.remote,
		Started: s.started,
		Turns:   s.turns.Load(),
	}
}

func (s *Server) handleConversation(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	sess := &session{
		id:      uuid.NewString(),
		remote:  conn.RemoteAddr().String(),
		started: time.Now(),
		srv:     s,
		conn:    conn,
		queue:   make(chan []byte, s.config.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	sess.logger = s.logger.With("session_id", sess.id)

	if !s.register(sess) {
		sess.close(websocket.CloseTryAgainLater, "too many sessions")
		return
	}
	defer s.unregister(sess)

	dec, err := newDecoder(s.config.InputCodec, s.config.InputSampleRate)
	if err != nil {
		sess.logger.Error("create decoder", "error", err)
		sess.close(websocket.CloseInternalServerErr, "audio decoder unavailable")
		return
	}
	sess.dec = dec

	rec, err := s.factory.NewRecognizer(ctx)
	if err != nil {
		sess.logger.Error("create recognizer", "error", err)
		sess.sendError("", voice.StageSTT, err)
		sess.close(websocket.CloseInternalServerErr, "recognizer unavailable")
		return
	}
	sess.rec = rec
	defer rec.Close()

	if s.config.FramesPerSecond > 0 {
		sess.limiter = rate.NewLimiter(rate.Limit(s.config.FramesPerSecond), s.config.Burst)
	}

	m := s.config.Metrics
	m.SessionStarted()
	defer m.SessionEnded()

	sess.logger.Info("session started", "remote", sess.remote)
	s.config.Hub.Publish(hub.NewEvent(hub.EventSessionStarted, sess.id, map[string]any{"remote": sess.remote}))

	// Unblock the reader when the session or the server is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	conn.SetReadLimit(s.config.ReadLimit)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		sess.run()
	}()

	sess.readPump()
	cancel()
	close(sess.queue)
	<-loopDone

	if s.ctx.Err() != nil {
		sess.close(websocket.CloseGoingAway, "server shutting down")
	}
	sess.logger.Info("session ended", "turns", sess.turns.Load(), "duration", time.Since(sess.started).Round(time.Millisecond))
	s.config.Hub.Publish(hub.NewEvent(hub.EventSessionEnded, sess.id, map[string]any{"turns": sess.turns.Load()}))
}

func (s *session) readPump() {
	m := s.srv.config.Metrics
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("read failed", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			m.FrameDropped(metrics.DropMalformed)
			continue
		}

		frame, err := protocol.ParseFrame(string(data))
		if err != nil {
			m.FrameDropped(metrics.DropMalformed)
			s.logger.Debug("bad frame", "error", err)
			continue
		}
		m.FrameReceived(frameLabel(frame.Type))

		if !frame.IsAudio() {
			s.logger.Debug("ignoring frame", "type", frame.Type)
			continue
		}
		if s.limiter != nil && !s.limiter.Allow() {
			m.FrameDropped(metrics.DropRateLimited)
			continue
		}
		if len(frame.Audio) == 0 {
			continue
		}

		// Blocks while a turn runs; the socket then applies backpressure.
		select {
		case s.queue <- frame.Audio:
		case <-s.ctx.Done():
			return
		}
	}
}

// frameLabel bounds the frame type label to known values.
func frameLabel(t protocol.FrameType) string {
	if t == protocol.TypeAudio {
		return "audio"
	}
	return "other"
}

// run consumes queued audio until the queue closes or the session ends.
func (s *session) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case payload, ok := <-s.queue:
			if !ok {
				return
			}
			s.handleAudio(payload)
		}
	}
}

func (s *session) handleAudio(payload []byte) {
	cfg := s.srv.config

	pcm, err := s.dec.Decode(payload)
	if err != nil {
		cfg.Metrics.FrameDropped(metrics.DropDecode)
		s.logger.Debug("decode audio", "codec", cfg.InputCodec, "error", err)
		return
	}
	if cfg.InputSampleRate != cfg.RecognizerSampleRate {
		pcm = audio.ResampleBytes(pcm, cfg.InputSampleRate, cfg.RecognizerSampleRate)
	}

	ctx, cancel := context.WithTimeout(s.ctx, cfg.STTTimeout)
	start := time.Now()
	final, err := s.rec.AcceptWaveform(ctx, pcm)
	cancel()
	d := time.Since(start)

	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Error("recognizer failed", "error", err)
		s.sendError("", voice.StageSTT, err)
		if errors.Is(err, stt.ErrClosed) {
			s.cancel()
			return
		}
		s.rec.Reset()
		return
	}
	if !final {
		return
	}

	// Reading the result starts the next utterance. Reset would also drop
	// speech the recognizer buffered after the cut.
	res := s.rec.Result()
	cfg.Metrics.ObserveStage(voice.StageSTT, d)
	if res.Empty() {
		s.logger.Debug("empty utterance")
		return
	}
	s.runTurn(res, d)
}

func (s *session) runTurn(res stt.Result, sttTime time.Duration) {
	cfg := s.srv.config
	tr := voice.Transcript{
		ID:         uuid.NewString(),
		SessionID:  s.id,
		Text:       res.Text,
		Confidence: res.Confidence,
		STT:        sttTime,
	}

	cfg.Hub.Publish(hub.NewEvent(hub.EventTranscript, s.id, map[string]any{
		"text":       tr.Text,
		"confidence": tr.Confidence,
	}).WithTurn(tr.ID))
	s.sendText(protocol.TypeTranscript, protocol.TranscriptData{TurnID: tr.ID, Text: tr.Text})

	turn, err := s.srv.pipeline.ProcessTurn(s.ctx, tr)
	if turn == nil {
		// Blank after trimming.
		return
	}
	s.turns.Add(1)
	s.record(turn)

	if turn.Reply != "" {
		cfg.Hub.Publish(hub.NewEvent(hub.EventReply, s.id, map[string]any{
			"text":   turn.Reply,
			"styled": turn.Styled,
			"plain":  turn.Plain,
		}).WithTurn(turn.ID))
		if turn.Styled != "" {
			s.sendText(protocol.TypeReply, protocol.ReplyData{TurnID: turn.ID, Text: turn.Reply, Styled: turn.Styled})
		}
	}

	if err != nil {
		if s.ctx.Err() != nil {
			s.logger.Info("turn abandoned, session closed", "turn_id", turn.ID)
			return
		}
		stage := voice.StageOf(err)
		cfg.Hub.Publish(hub.NewEvent(hub.EventTurnFailed, s.id, map[string]any{
			"stage": stage,
			"error": err.Error(),
		}).WithTurn(turn.ID))
		s.sendError(turn.ID, stage, err)
		return
	}

	if err := s.write(protocol.EncodeAudio(turn.Audio)); err != nil {
		return
	}
	cfg.Metrics.AudioSent(len(turn.Audio))
	cfg.Hub.Publish(hub.NewEvent(hub.EventTurnDone, s.id, map[string]any{
		"timings":     turn.Timings,
		"audio_bytes": len(turn.Audio),
		"encoding":    turn.Format.Encoding,
	}).WithTurn(turn.ID))
}

// record appends the turn to the log, even when the session just closed.
func (s *session) record(turn *voice.Turn) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), storeTimeout)
	defer cancel()
	if err := s.srv.config.Store.Append(ctx, store.FromTurn(turn)); err != nil {
		s.logger.Warn("store turn", "turn_id", turn.ID, "error", err)
	}
}

// write sends one text frame. A failed write ends the session.
func (s *session) write(frame string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.srv.config.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		if s.ctx.Err() == nil {
			s.logger.Warn("write failed", "error", err)
		}
		s.cancel()
		return err
	}
	return nil
}

// sendText sends a JSON text frame when text frames are enabled.
func (s *session) sendText(typ protocol.FrameType, v any) {
	if !s.srv.config.TextFrames {
		return
	}
	frame, err := protocol.EncodeText(typ, v)
	if err != nil {
		s.logger.Error("encode frame", "type", typ, "error", err)
		return
	}
	s.write(frame)
}

func (s *session) sendError(turnID string, stage voice.Stage, err error) {
	s.sendText(protocol.TypeError, protocol.ErrorData{TurnID: turnID, Stage: string(stage), Error: err.Error()})
}

// close sends a close frame. The handler returning closes the connection.
func (s *session) close(code int, reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}
