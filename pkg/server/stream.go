package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/replay/pkg/eventloop"
	"github.com/vango-dev/replay/pkg/nodepath"
	"github.com/vango-dev/replay/pkg/page"
	"github.com/vango-dev/replay/pkg/protocol"
)

// stream serves the websocket of one hosted page. All reads and writes
// happen on the goroutine running serve.
type stream struct {
	server *Server
	hp     *hostedPage
	conn   *websocket.Conn
	logger *slog.Logger
}

func newStream(s *Server, hp *hostedPage, conn *websocket.Conn) *stream {
	return &stream{
		server: s,
		hp:     hp,
		conn:   conn,
		logger: hp.page.Logger().With("component", "stream"),
	}
}

// serve reads frames until the client goes away, sends a close control or
// the page is closed.
func (st *stream) serve(ctx context.Context) error {
	cfg := st.server.config
	st.conn.SetReadLimit(cfg.MaxMessageSize)
	st.logger.Debug("stream connected", "remote", st.conn.RemoteAddr().String())

	for {
		st.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		mt, data, err := st.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				st.logger.Debug("stream read error", "error", err)
			}
			return nil
		}
		cfg.Metrics.StreamMessage("in")

		if mt != websocket.BinaryMessage {
			if err := st.sendError(protocol.ErrInvalidFrame, "binary frames only", false); err != nil {
				return err
			}
			continue
		}
		msg, flags, err := protocol.Unmarshal(data)
		if err != nil {
			if err := st.sendError(protocol.ErrInvalidFrame, err.Error(), false); err != nil {
				return err
			}
			continue
		}

		spanCtx, span := st.server.observer.Tracer().Start(ctx, "stream."+messageName(msg),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("replay.page_id", st.hp.page.ID())))
		done, err := st.handle(spanCtx, msg, flags)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if err != nil || done {
			return err
		}
	}
}

// handle processes one message. done is true when the stream should end.
func (st *stream) handle(ctx context.Context, msg protocol.Message, flags protocol.FrameFlags) (done bool, err error) {
	switch m := msg.(type) {
	case *protocol.Event:
		return st.handleEvent(ctx, m, flags)

	case *protocol.Control:
		switch m.Type {
		case protocol.ControlBoot:
			return st.handleBoot(ctx)
		case protocol.ControlPing:
			return false, st.send(&protocol.Control{
				Type:      protocol.ControlPong,
				Timestamp: m.Timestamp,
			})
		case protocol.ControlClose:
			st.logger.Debug("stream closed by client", "reason", m.Reason.String())
			return true, nil
		}
		st.logger.Debug("ignoring control", "type", m.Type.String())
		return false, nil

	default:
		st.logger.Debug("ignoring client message", "message", msg)
		return false, nil
	}
}

func (st *stream) handleEvent(ctx context.Context, ev *protocol.Event, flags protocol.FrameFlags) (bool, error) {
	if ev.Type != "click" {
		return false, st.sendError(protocol.ErrInvalidEvent, "unsupported event type "+ev.Type, false)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int64("replay.seq", int64(ev.Seq)),
		attribute.String("replay.token", ev.Token),
		attribute.Bool("replay.early", flags.Has(protocol.FlagEarly)))

	p := st.hp.page
	var err error
	if ev.Token != "" {
		err = p.ClickToken(ctx, ev.Token)
		if errors.Is(err, page.ErrNoTarget) && len(ev.Path) > 0 {
			err = p.ClickPath(ctx, nodepath.Path(ev.Path))
		}
	} else {
		err = p.ClickPath(ctx, nodepath.Path(ev.Path))
	}
	st.logger.Debug("stream click",
		"seq", ev.Seq,
		"token", ev.Token,
		"path", nodepath.Path(ev.Path).String(),
		"early", flags.Has(protocol.FlagEarly),
		"error", err)

	switch {
	case err == nil:
	case errors.Is(err, page.ErrNoTarget):
		return false, st.sendError(protocol.ErrNoTarget, err.Error(), false)
	case errors.Is(err, eventloop.ErrClosed):
		return true, st.sendError(protocol.ErrPageNotFound, "page closed", true)
	default:
		return true, st.sendError(protocol.ErrServerError, err.Error(), true)
	}
	return st.ack(ctx, ev.Seq)
}

func (st *stream) handleBoot(ctx context.Context) (bool, error) {
	err := st.hp.page.Boot(ctx, st.hp.app.Define)
	switch {
	case err == nil:
	case errors.Is(err, page.ErrAlreadyBooted):
		return false, st.sendError(protocol.ErrInvalidEvent, "page already booted", false)
	case errors.Is(err, eventloop.ErrClosed):
		return true, st.sendError(protocol.ErrPageNotFound, "page closed", true)
	default:
		// Components that failed to hydrate stay inert; the page keeps running.
		st.logger.Warn("boot failed", "error", err)
	}
	return st.ack(ctx, 0)
}

func (st *stream) ack(ctx context.Context, seq uint64) (bool, error) {
	p := st.hp.page
	pending, err := p.Pending(ctx)
	if err != nil {
		return true, st.sendError(protocol.ErrPageNotFound, "page closed", true)
	}
	booted, err := p.Booted(ctx)
	if err != nil {
		return true, st.sendError(protocol.ErrPageNotFound, "page closed", true)
	}
	return false, st.send(&protocol.Ack{
		Seq:     seq,
		Pending: uint64(pending),
		Booted:  booted,
	})
}

func messageName(msg protocol.Message) string {
	switch m := msg.(type) {
	case *protocol.Event:
		return "event"
	case *protocol.Control:
		return strings.ToLower(m.Type.String())
	}
	return "message"
}

func (st *stream) sendError(code protocol.ErrorCode, message string, fatal bool) error {
	return st.send(&protocol.ErrorMessage{Code: code, Message: message, Fatal: fatal})
}

func (st *stream) send(msg protocol.Message) error {
	data, err := protocol.Marshal(msg, 0)
	if err != nil {
		return err
	}
	st.conn.SetWriteDeadline(time.Now().Add(st.server.config.WriteTimeout))
	if err := st.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return err
	}
	st.server.config.Metrics.StreamMessage("out")
	return nil
}
