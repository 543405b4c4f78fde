package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/voicebridge/internal/audio"
	"github.com/obiente/translate/voicebridge/internal/lang"
	"github.com/obiente/translate/voicebridge/internal/pipeline"
	"github.com/obiente/translate/voicebridge/internal/transcript"
)

// sessionParams are the per-session settings negotiated by "start".
type sessionParams struct {
	source     string
	targets    []string
	sampleRate int
	channels   int
	speak      bool
	alts       int
}

// client is one websocket connection. The read loop (run) is the producer;
// consume runs on its own goroutine per session.
type client struct {
	srv  *Server
	conn *websocket.Conn
	log  zerolog.Logger
	wmu  sync.Mutex // gorilla allows one concurrent writer

	mu      sync.Mutex // guards the fields below
	meta    clientMeta
	roomID  string
	session *pipeline.Session
	params  sessionParams
	stop    context.CancelFunc
	done    chan struct{}

	seq atomic.Int64
}

type transcriptMessage struct {
	Type         string               `json:"type"`
	SessionID    string               `json:"session_id"`
	Sequence     int64                `json:"sequence"`
	Kind         string               `json:"kind"`
	Status       string               `json:"status"`
	Text         string               `json:"text,omitempty"`
	Language     string               `json:"language,omitempty"`
	Translations map[string]Rendition `json:"translations,omitempty"`

	RoomID    string `json:"room_id,omitempty"`
	PeerID    string `json:"peer_id,omitempty"`
	PeerLabel string `json:"peer_label,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

func newClient(s *Server, conn *websocket.Conn) *client {
	return &client{
		srv:  s,
		conn: conn,
		log:  log.With().Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

func (c *client) writeJSON(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *client) sendError(detail string) {
	_ = c.writeJSON(map[string]any{"type": "error", "detail": detail})
}

func (c *client) run() {
	defer c.shutdown()
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("ws read error")
			}
			return
		}
		// Bump read deadline on any activity
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		if mt == websocket.BinaryMessage {
			c.handleBinary(data)
			continue
		}
		if mt != websocket.TextMessage {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid json")
			continue
		}
		switch msg["type"] {
		case "ping":
			_ = c.writeJSON(map[string]any{"type": "pong", "ts": msg["ts"]})
		case "start":
			c.start(msg)
		case "frame":
			c.handleFrame(msg)
		case "chunk":
			c.handleChunk(msg)
		case "join_room":
			rid, _ := msg["room_id"].(string)
			if rid == "" {
				c.sendError("room_id required")
				break
			}
			c.mu.Lock()
			if v, ok := msg["peer_id"].(string); ok {
				c.meta.peerID = v
			}
			if v, ok := msg["peer_label"].(string); ok {
				c.meta.peerLabel = v
			}
			prev, meta := c.roomID, c.meta
			c.roomID = rid
			c.mu.Unlock()
			if prev != rid {
				c.srv.leaveRoom(prev, c)
			}
			c.srv.joinRoom(rid, c, meta)
			_ = c.writeJSON(map[string]any{"type": "room_joined", "room_id": rid, "peer_id": meta.peerID, "peer_label": meta.peerLabel})
		case "leave_room":
			c.mu.Lock()
			rid := c.roomID
			c.roomID = ""
			c.mu.Unlock()
			c.srv.leaveRoom(rid, c)
			_ = c.writeJSON(map[string]any{"type": "room_left"})
		case "stop":
			c.endSession()
			_ = c.writeJSON(map[string]any{"type": "stopped"})
			return
		default:
			c.sendError("unknown message type")
		}
	}
}

// shutdown releases everything the connection holds.
func (c *client) shutdown() {
	c.mu.Lock()
	rid := c.roomID
	c.roomID = ""
	c.mu.Unlock()
	c.srv.leaveRoom(rid, c)
	c.endSession()
	_ = c.conn.Close()
}

// kick is called by Server.Shutdown from another goroutine. It cancels the
// in-flight recognition and unblocks the read loop.
func (c *client) kick(ctx context.Context) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess != nil {
		_ = sess.Close(ctx)
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
}

func (c *client) start(msg map[string]any) {
	cfg := c.srv.cfg
	p := sessionParams{
		source:     cfg.DefaultSourceLanguage,
		targets:    cfg.DefaultTargetLanguages,
		sampleRate: 16000,
		channels:   1,
	}
	if v, ok := msg["language"].(string); ok {
		p.source = v
	}
	if p.source = lang.Base(p.source); p.source == "" {
		p.source = lang.Auto
	}
	if v, ok := msg["target_languages"].([]any); ok {
		p.targets = make([]string, 0, len(v))
		for _, l := range v {
			if s, ok := l.(string); ok {
				p.targets = append(p.targets, s)
			}
		}
	}
	p.targets = lang.Normalize(p.targets)
	if v := int(asFloat(msg["sample_rate"])); v > 0 {
		p.sampleRate = v
	}
	if v := int(asFloat(msg["channels"])); v > 0 {
		p.channels = v
	}
	if v, ok := msg["speak"].(bool); ok {
		p.speak = v
	}
	if v := int(asFloat(msg["translation_alternatives"])); v > 0 {
		p.alts = v
	}

	c.endSession()

	c.mu.Lock()
	if v, ok := msg["channel_id"].(string); ok {
		c.meta.channelID = v
	}
	channel := c.meta.channelID
	c.mu.Unlock()

	sess := pipeline.New(c.srv.invoker, pipeline.Options{
		SourceLanguage:  p.source,
		TargetLanguages: p.targets,
		Dir:             cfg.SegmentDir,
		SampleMode:      cfg.SampleMode,
		Mode:            cfg.PipelineMode,
		SilenceRMS:      cfg.SilenceRMS,
		Silence:         cfg.Silence,
		MaxBuffer:       cfg.MaxBuffer,
		Metrics:         c.srv.metrics,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.session, c.params, c.stop, c.done = sess, p, cancel, done
	c.mu.Unlock()
	c.seq.Store(0)

	go c.consume(ctx, sess, p, done)

	sess.Logger().Info().
		Str("channel", channel).
		Int("sample_rate", p.sampleRate).
		Int("channels", p.channels).
		Bool("speak", p.speak).
		Msg("ws: session started")
	_ = c.writeJSON(map[string]any{
		"type":             "started",
		"session_id":       sess.ID(),
		"language":         p.source,
		"target_languages": p.targets,
		"sample_rate":      p.sampleRate,
		"channels":         p.channels,
	})
}

// current returns the active session, starting one with defaults if the
// client sent audio before "start".
func (c *client) current() (*pipeline.Session, sessionParams) {
	c.mu.Lock()
	sess, p := c.session, c.params
	c.mu.Unlock()
	if sess != nil {
		return sess, p
	}
	c.start(map[string]any{})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.params
}

func (c *client) endSession() {
	c.mu.Lock()
	sess, stop, done := c.session, c.stop, c.done
	c.session, c.stop, c.done = nil, nil, nil
	c.mu.Unlock()
	if sess == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := sess.Close(ctx); err != nil {
		sess.Logger().Warn().Err(err).Msg("ws: session teardown incomplete")
	}
	stop()
	<-done
}

func (c *client) feed(sess *pipeline.Session, f audio.Frame) {
	switch err := sess.HandleFrame(f); {
	case err == nil:
	case errors.Is(err, audio.ErrInvalidFrame):
		c.sendError("invalid frame")
	case errors.Is(err, pipeline.ErrSessionClosed):
		c.sendError("session closed")
	default:
		c.log.Warn().Err(err).Msg("ws: frame rejected")
		c.sendError("frame rejected")
	}
}

func (c *client) handleFrame(msg map[string]any) {
	b64, _ := msg["data"].(string)
	if b64 == "" {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		c.sendError("invalid base64 audio")
		return
	}
	samples, err := audio.DecodeFloat32LE(raw)
	if err != nil {
		c.sendError("invalid float32 audio")
		return
	}
	sess, p := c.current()
	f := audio.Frame{SampleRate: p.sampleRate, Channels: p.channels, Samples: samples}
	if v := int(asFloat(msg["sample_rate"])); v > 0 {
		f.SampleRate = v
	}
	if v := int(asFloat(msg["channels"])); v > 0 {
		f.Channels = v
	}
	c.feed(sess, f)
}

func (c *client) handleBinary(data []byte) {
	samples, err := audio.DecodeFloat32LE(data)
	if err != nil {
		c.sendError("invalid float32 audio")
		return
	}
	sess, p := c.current()
	c.feed(sess, audio.Frame{SampleRate: p.sampleRate, Channels: p.channels, Samples: samples})
}

// handleChunk accepts the older WAV / PCM16 chunk message.
func (c *client) handleChunk(msg map[string]any) {
	b64, _ := msg["data"].(string)
	if b64 == "" {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		c.sendError("invalid base64 audio")
		return
	}

	var f audio.Frame
	if mt, _ := msg["mime_type"].(string); mt == "audio/pcm" || mt == "audio/L16" || mt == "audio/pcm16" {
		f, err = audio.DecodePCM16LE(raw, int(asFloat(msg["sample_rate"])))
	} else {
		f, err = audio.DecodeWAV(raw)
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("audio decode failed")
		c.sendError("decode audio failed")
		return
	}
	sess, _ := c.current()
	c.feed(sess, f)
}

// consume polls the session's mailbox and forwards each result to the
// client (and its room) until the session closes.
func (c *client) consume(ctx context.Context, sess *pipeline.Session, p sessionParams, done chan struct{}) {
	defer close(done)
	mb := sess.Mailbox()
	for ctx.Err() == nil && !mb.Closed() {
		r, ok := mb.TryTake(c.srv.cfg.PollInterval)
		if !ok {
			continue
		}
		c.deliver(ctx, sess, p, r)
	}
}

func (c *client) deliver(ctx context.Context, sess *pipeline.Session, p sessionParams, r transcript.Result) {
	msg := transcriptMessage{
		Type:      "transcript",
		SessionID: sess.ID(),
		Sequence:  c.seq.Add(1),
		Kind:      r.Kind.String(),
		Status:    r.Status(),
		Language:  r.Language,
	}
	if r.OK() {
		msg.Text = r.Text
		src := r.Language
		if src == "" {
			src = p.source
		}
		msg.Translations = c.srv.renderer.Render(ctx, r.Text, src, p.targets, p.alts, p.speak)
	}
	if ctx.Err() != nil {
		return
	}
	if err := c.writeJSON(msg); err != nil {
		sess.Logger().Warn().Err(err).Msg("ws: failed to send transcript")
	}

	c.mu.Lock()
	rid, meta := c.roomID, c.meta
	c.mu.Unlock()
	if rid != "" && r.OK() {
		msg.Type = "room_transcript"
		msg.RoomID, msg.PeerID, msg.PeerLabel, msg.ChannelID = rid, meta.peerID, meta.peerLabel, meta.channelID
		c.srv.broadcast(rid, c, meta.peerID, msg)
	}
}
