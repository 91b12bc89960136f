package ws

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ControlBridge/internal/domain/runner"
	"github.com/GriffinCanCode/ControlBridge/internal/shared/id"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	outboundBuffer = 256
)

// session is one open channel. The read loop runs on the upgrading
// goroutine; writePump is the only writer of conn.
type session struct {
	id         id.SessionID
	h          *Handler
	conn       *websocket.Conn
	codec      Codec
	origin     string
	remoteAddr string
	logger     *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	out       chan []byte
	closeOnce sync.Once

	runMu   sync.Mutex
	running bool
}

func newSession(h *Handler, conn *websocket.Conn, origin, remoteAddr string) *session {
	ctx, cancel := context.WithCancel(context.Background())
	sid := id.NewSessionID()
	return &session{
		id:         sid,
		h:          h,
		conn:       conn,
		codec:      codecFor(conn.Subprotocol()),
		origin:     origin,
		remoteAddr: remoteAddr,
		logger: h.deps.Logger.With(
			zap.String("session", sid.String()),
			zap.String("origin", origin),
		),
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan []byte, outboundBuffer),
	}
}

func (s *session) serve() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump()
	}()

	s.readPump()
	s.close()
	<-done
}

// close cancels delivery and unblocks both pumps. Safe to call repeatedly.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
	})
}

func (s *session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				s.ctx.Err() == nil {
				s.logger.Debug("Channel read failed", zap.Error(err))
			}
			return
		}

		in, err := s.codec.Decode(data)
		if err != nil {
			s.logger.Warn("Ignoring malformed envelope", zap.Error(err))
			continue
		}
		s.h.deps.Metrics.RecordEnvelope("in", in.Action)

		switch in.Action {
		case ActionInvoke:
			go s.invoke(in)
		case ActionRunTool:
			s.runTool(in)
		default:
			s.logger.Warn("Ignoring envelope with unknown action", zap.String("action", in.Action))
		}
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(s.codec.MessageType(), data); err != nil {
				s.logger.Debug("Channel write failed", zap.Error(err))
				s.close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}

		case <-s.ctx.Done():
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// send queues env for the writer. After close it drops env.
func (s *session) send(env Envelope) {
	data, err := s.codec.Encode(env)
	if err != nil {
		s.logger.Error("Failed to encode envelope", zap.String("action", env.Action), zap.Error(err))
		return
	}

	select {
	case <-s.ctx.Done():
		return
	default:
	}
	select {
	case s.out <- data:
		s.h.deps.Metrics.RecordEnvelope("out", env.Action)
	case <-s.ctx.Done():
	}
}

func (s *session) invoke(in Inbound) {
	rid := id.NewRequestID()
	s.logger.Debug("Tunnelling invoke",
		zap.String("request", rid.String()),
		zap.String("method", in.Invoke.Method),
		zap.String("path", in.Invoke.Path),
	)
	reply := dispatch(s.ctx, s.h.deps.Gateway, in.Invoke, s.origin, s.remoteAddr, rid.String())
	s.send(Envelope{Action: ActionInvoke, ID: in.ID, Payload: reply})
}

func (s *session) runTool(in Inbound) {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		s.send(Envelope{
			Action:  ActionToolStatus,
			ID:      in.ID,
			Payload: ToolStatus{Status: StatusRejected, Error: "tool already running"},
		})
		return
	}
	s.running = true
	s.runMu.Unlock()

	tool := s.h.deps.Tool
	args := append(append([]string{}, tool.BaseArgs...), strings.Fields(in.RunTool.Args)...)
	stdin := []byte(tool.Stdin)
	if in.RunTool.Body != nil {
		stdin = []byte(*in.RunTool.Body)
	}

	run, err := s.h.deps.Runner.Start(s.ctx, runner.Spec{
		Path:  tool.Path,
		Args:  args,
		Stdin: stdin,
		Dir:   tool.WorkDir,
		Env:   tool.Env,
		PTY:   tool.PTY,
	})
	if err != nil {
		s.finishRun()
		s.h.deps.Metrics.RecordToolRun("spawn_failed", 0)
		code := -1
		s.send(Envelope{
			Action:  ActionToolStatus,
			ID:      in.ID,
			Payload: ToolStatus{Status: StatusExit, Code: &code, Error: err.Error()},
		})
		return
	}

	s.logger.Info("Tool run started", zap.String("run", run.ID.String()), zap.Int("pid", run.PID()))
	s.send(Envelope{
		Action:  ActionToolStatus,
		ID:      in.ID,
		Payload: ToolStatus{Status: StatusStarted, PID: run.PID()},
	})

	go s.forward(in.ID, run)
}

// forward relays a run's events in order. It drains the run even after the
// channel closes so the process is never blocked on its output.
func (s *session) forward(reqID string, run *runner.Run) {
	// Released before the exit status is sent: a client that sees the exit
	// may start the next run immediately.
	released := false
	release := func() {
		if !released {
			released = true
			s.finishRun()
		}
	}
	defer release()

	for ev := range run.Events() {
		switch ev.Kind {
		case runner.EventLine:
			s.h.deps.Metrics.RecordToolLine()
			s.send(Envelope{
				Action:  ActionToolOutput,
				ID:      reqID,
				Payload: ToolOutput{Stream: string(ev.Stream), Line: ev.Line},
			})

		case runner.EventExit:
			status := ToolStatus{Status: StatusExit, Code: &ev.Code}
			outcome := "success"
			if ev.Err != nil {
				status.Error = ev.Err.Error()
				outcome = "error"
			} else if ev.Code != 0 {
				outcome = "failure"
			}
			s.h.deps.Metrics.RecordToolRun(outcome, time.Since(run.StartedAt))
			release()
			s.send(Envelope{Action: ActionToolStatus, ID: reqID, Payload: status})
		}
	}
}

func (s *session) finishRun() {
	s.runMu.Lock()
	s.running = false
	s.runMu.Unlock()
}
