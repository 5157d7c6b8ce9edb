// Package server is the §5/§7 NDJSON-over-TCP stream boundary: one line in,
// one line out, with telemetry broadcast to every connected client on its
// own cadence. All command handling and tick advancement happens on a
// single actor goroutine so the agent's single-owner contract (§9) holds
// even with multiple concurrent client connections.
package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"satbus/internal/config"
	"satbus/internal/core/agent"
	"satbus/internal/core/model"
	"satbus/internal/core/protocol"
)

var errLineTooLong = errors.New("line exceeds maximum inbound size")

// TelemetrySink receives every tick's telemetry packet for trend storage,
// independent of the wire broadcast cadence and size budget.
type TelemetrySink interface {
	Write(model.TelemetryPacket)
}

// Server accepts NDJSON TCP connections, routes commands to the agent, and
// broadcasts telemetry at the configured cadence.
type Server struct {
	cfg          config.ServerConfig
	tickInterval time.Duration
	agent        *agent.Agent
	sink         TelemetrySink
	log          *zap.Logger

	listener net.Listener
	cmdCh    chan inboundCmd

	clientsMu sync.Mutex
	clients   map[*client]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type inboundCmd struct {
	line []byte
	resp chan []byte
}

type client struct {
	conn net.Conn
	out  chan []byte
}

// New creates a server bound to the given agent. It does not listen until Start.
func New(cfg config.ServerConfig, sim config.SimulationConfig, ag *agent.Agent, logger *zap.Logger) *Server {
	return &Server{
		cfg:          cfg,
		tickInterval: time.Duration(sim.TickIntervalMS) * time.Millisecond,
		agent:        ag,
		log:          logger.With(zap.String("component", "server")),
		cmdCh:        make(chan inboundCmd, cfg.MaxClients*2),
		clients:      make(map[*client]struct{}),
	}
}

// SetTelemetrySink attaches the time-series telemetry sink after
// construction, since its own connection lifecycle is wired independently
// by Fx.
func (s *Server) SetTelemetrySink(sink TelemetrySink) { s.sink = sink }

// Start opens the listener and launches the accept loop and the actor loop, §5.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go s.acceptLoop(runCtx)
	go s.actorLoop(runCtx)

	s.log.Info("server listening", zap.String("addr", addr))
	return nil
}

// Stop closes the listener, every client connection, and the actor loop.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.clientsMu.Lock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
	s.clientsMu.Unlock()
	s.wg.Wait()
	s.log.Info("server stopped")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.log.Warn("accept failed", zap.Error(err))
				return
			}
		}
		s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	c := &client{conn: conn, out: make(chan []byte, 64)}

	s.clientsMu.Lock()
	if len(s.clients) >= s.cfg.MaxClients {
		s.clientsMu.Unlock()
		_ = conn.Close()
		s.log.Warn("rejected connection: at max_clients", zap.Int("max_clients", s.cfg.MaxClients))
		return
	}
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()

	s.log.Info("client connected", zap.String("remote", conn.RemoteAddr().String()))

	s.wg.Add(2)
	go s.writeLoop(ctx, c)
	go s.readLoop(ctx, c)
}

func (s *Server) dropClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
	_ = c.conn.Close()
	close(c.out)
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	defer s.wg.Done()
	r := bufio.NewReader(c.conn)
	for {
		line, err := readLine(r, protocol.MaxInboundBytes)
		if err != nil && len(line) == 0 {
			s.dropClient(c)
			return
		}
		if errors.Is(err, errLineTooLong) {
			out, _ := json.Marshal(model.Response{Status: model.RespError, Message: "message exceeds maximum inbound size"})
			s.send(c, out)
			continue
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		resp := make(chan []byte, 1)
		select {
		case s.cmdCh <- inboundCmd{line: line, resp: resp}:
		case <-ctx.Done():
			s.dropClient(c)
			return
		}

		select {
		case out := <-resp:
			s.send(c, out)
		case <-ctx.Done():
			s.dropClient(c)
			return
		}
	}
}

func (s *Server) send(c *client, line []byte) {
	select {
	case c.out <- line:
	default:
		s.log.Warn("client outbound queue full, dropping frame")
	}
}

func (s *Server) writeLoop(ctx context.Context, c *client) {
	defer s.wg.Done()
	for {
		select {
		case line, ok := <-c.out:
			if !ok {
				return
			}
			if _, err := c.conn.Write(append(line, '\n')); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// actorLoop is the single goroutine that ever calls into the agent, §9: it
// serializes command handling, tick advancement and telemetry broadcast.
func (s *Server) actorLoop(ctx context.Context) {
	defer s.wg.Done()

	tickTicker := time.NewTicker(s.tickInterval)
	defer tickTicker.Stop()
	telemetryTicker := time.NewTicker(telemetryPeriod(s.cfg.TelemetryHz))
	defer telemetryTicker.Stop()

	lastTickMS := nowMS()

	for {
		select {
		case <-ctx.Done():
			return

		case cmd := <-s.cmdCh:
			out := s.agent.HandleLine(cmd.line, nowMS())
			cmd.resp <- out

		case <-tickTicker.C:
			now := nowMS()
			dt := now - lastTickMS
			lastTickMS = now
			pkt := s.agent.Tick(now, dt)
			if s.sink != nil {
				s.sink.Write(pkt)
			}

		case <-telemetryTicker.C:
			pkt := s.agent.LastTelemetry()
			body, err := json.Marshal(pkt)
			if err != nil {
				s.log.Error("telemetry marshal failed", zap.Error(err))
				continue
			}
			s.broadcast(body)
		}
	}
}

func (s *Server) broadcast(line []byte) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		s.send(c, line)
	}
}

func telemetryPeriod(hz float64) time.Duration {
	if hz <= 0 {
		hz = 1
	}
	return time.Duration(float64(time.Second) / hz)
}

func nowMS() int64 { return time.Now().UnixMilli() }

// readLine reads one '\n'-delimited line bounded to maxBytes. Lines longer
// than maxBytes are drained to the next delimiter and reported via
// errLineTooLong rather than silently truncated or left to desync framing.
func readLine(r *bufio.Reader, maxBytes int) ([]byte, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return buf, err
			}
			return buf, err
		}
		if b == '\n' {
			return buf, nil
		}
		buf = append(buf, b)
		if len(buf) > maxBytes {
			for {
				b2, err2 := r.ReadByte()
				if err2 != nil {
					return buf, err2
				}
				if b2 == '\n' {
					break
				}
			}
			return buf, errLineTooLong
		}
	}
}
