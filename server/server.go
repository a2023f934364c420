package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/wfunc/codechallenge/auth"
	"github.com/wfunc/codechallenge/broadcast"
	"github.com/wfunc/codechallenge/config"
	"github.com/wfunc/codechallenge/game"
	"github.com/wfunc/codechallenge/logger"
	"github.com/wfunc/codechallenge/monitor"
	"github.com/wfunc/codechallenge/network"
	"github.com/wfunc/codechallenge/persistence"
	"github.com/wfunc/codechallenge/registry"
	"github.com/wfunc/codechallenge/room"
	challenge_rpc "github.com/wfunc/codechallenge/rpc"
	"github.com/wfunc/codechallenge/services"
	"github.com/wfunc/codechallenge/session"
	"github.com/wfunc/codechallenge/timer"
)

const (
	metricsNamespace = "challenge"
	apiTimeout       = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// ReasonFor maps an error onto the reason sent to the client before its
// connection is closed.
func ReasonFor(err error) string {
	switch {
	case errors.Is(err, auth.ErrWrongPassword):
		return network.ReasonWrongPassword
	case errors.Is(err, game.ErrInvalidMove):
		return network.ReasonInvalidMove
	default:
		return network.ReasonInvalidFormat
	}
}

// GameServer hosts one challenge: a single room that every authenticated
// player joins, plus the display, metrics, api and admin listeners.
type GameServer struct {
	cfg            *config.Config
	registry       *registry.Registry
	roomManager    *room.Manager
	room           *room.Room
	sessionManager *session.Manager
	results        *services.ResultService
	monitor        *monitor.Monitor
	hub            *broadcast.Hub
	timers         *timer.TimerManager
	rpcServer      *challenge_rpc.Server

	listener     net.Listener
	httpListener net.Listener
	httpServer   *http.Server

	connections  sync.WaitGroup
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewGameServer wires the server. db may be nil when rounds are not persisted.
func NewGameServer(cfg *config.Config, engine game.Engine, db persistence.Database, scores persistence.ScoreStore) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		registry:       registry.New(cfg.Auth.BcryptCost),
		roomManager:    room.NewRoomManager(),
		sessionManager: session.NewManager(),
		results:        services.NewResultService(db, scores),
		monitor:        monitor.NewMonitor(metricsNamespace),
		hub:            broadcast.NewHub(),
		timers:         timer.NewTimerManager(timer.DefaultResolution),
		shutdownChan:   make(chan struct{}),
	}

	s.room = s.roomManager.CreateRoom(uuid.NewString(), engine,
		room.WithMinPlayers(cfg.Session.MinPlayers),
		room.WithTurnDelay(cfg.Session.TurnDelay),
		room.WithMode(cfg.Session.Mode),
		room.WithBroadcaster(s.hub),
		room.WithRecorder(s.results),
		room.WithObserver(s.monitor),
		room.WithScheduler(s.timers),
	)
	s.monitor.SetActiveRooms(len(s.roomManager.Rooms()))
	return s
}

// Start opens the listeners and returns once they accept connections.
func (s *GameServer) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
	defer cancel()
	if err := s.results.Restore(ctx); err != nil {
		logger.Log.Warnf("Could not restore scores: %v", err)
	}

	listener, err := net.Listen("tcp", s.cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Address, err)
	}
	s.listener = listener

	if addr := s.cfg.Server.HTTPAddress; addr != "" {
		httpListener, err := net.Listen("tcp", addr)
		if err != nil {
			listener.Close()
			return fmt.Errorf("listening on %s: %w", addr, err)
		}
		s.httpListener = httpListener
		s.httpServer = &http.Server{Handler: s.router()}
		go func() {
			if err := s.httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Errorf("HTTP server: %v", err)
			}
		}()
		logger.Log.Infof("HTTP server listening on %s", httpListener.Addr())
	}

	if addr := s.cfg.Server.RPCAddress; addr != "" {
		rpcServer, err := challenge_rpc.NewServer(addr, challenge_rpc.NewChallengeService(s.roomManager, s.results))
		if err != nil {
			listener.Close()
			if s.httpServer != nil {
				s.httpServer.Close()
			}
			return fmt.Errorf("starting rpc server: %w", err)
		}
		s.rpcServer = rpcServer
		go rpcServer.Start()
	}

	go s.acceptLoop()
	logger.Log.Infof("Game server listening on %s, challenge %s, room %s", listener.Addr(), s.room.Challenge(), s.room.GetID())
	return nil
}

// Run starts the server and blocks until ctx is cancelled.
func (s *GameServer) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Shutdown()
	return nil
}

// Shutdown stops accepting, disconnects every player and viewer and waits
// for connection handlers and pending round records.
func (s *GameServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		logger.Log.Info("Shutting down game server")
		close(s.shutdownChan)
		s.listener.Close()
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			s.httpServer.Shutdown(ctx)
			cancel()
		}
		s.hub.Close()
		s.sessionManager.CloseAll()
		s.connections.Wait()
		s.roomManager.CloseAll()
		s.timers.Stop()
	})
}

func (s *GameServer) Addr() net.Addr {
	return s.listener.Addr()
}

// HTTPAddr is nil when the HTTP server is disabled.
func (s *GameServer) HTTPAddr() net.Addr {
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

// RPCAddr is nil when the RPC server is disabled.
func (s *GameServer) RPCAddr() net.Addr {
	if s.rpcServer == nil {
		return nil
	}
	return s.rpcServer.Addr()
}

func (s *GameServer) Room() *room.Room {
	return s.room
}

func (s *GameServer) Monitor() *monitor.Monitor {
	return s.monitor
}

func (s *GameServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Log.Errorf("Accept error: %v", err)
			continue
		}

		s.connections.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *GameServer) handleConnection(conn net.Conn) {
	defer s.connections.Done()

	tcpConn := network.NewTCPConnection(conn, network.Options{
		MaxLineLength: s.cfg.Server.MaxLineLength,
		SendQueue:     s.cfg.Server.SendQueue,
		WriteTimeout:  s.cfg.Server.WriteTimeout,
	})
	sess := session.NewSession(tcpConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, session ID: %s", tcpConn.RemoteAddr(), sess.GetID())

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("Panic in session %s: %v", sess.GetID(), r)
		}
		logger.Log.Infof("Connection closed from %s, session ID: %s", tcpConn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		tcpConn.Close()
	}()

	go func() {
		select {
		case <-s.shutdownChan:
			tcpConn.Close()
		case <-tcpConn.Done():
		}
	}()

	if !s.authenticate(sess) {
		return
	}
	s.play(sess)
}

// authenticate runs the handshake on the first message of the connection.
func (s *GameServer) authenticate(sess *session.Session) bool {
	msg, err := sess.Conn.ReadMessage()
	if err != nil {
		if errors.Is(err, network.ErrProtocol) {
			s.reject(sess, err)
		}
		return false
	}
	s.monitor.IncMessagesReceived()

	username, err := auth.New(s.registry).Authenticate(msg)
	if err != nil {
		s.reject(sess, err)
		return false
	}

	sess.SetUsername(username)
	if previous := s.sessionManager.Bind(sess); previous != nil {
		logger.Log.Infof("%s logged in again, closing session %s", username, previous.GetID())
		previous.Close()
	}
	logger.Log.Infof("Session %s authenticated as %s", sess.GetID(), username)
	return true
}

func (s *GameServer) reject(sess *session.Session, err error) {
	reason := ReasonFor(err)
	logger.Log.Warnf("Rejecting session %s: %v", sess.GetID(), err)
	s.monitor.AuthFailed(reason)
	sess.CloseWithError(reason)
}

// play forwards moves to the room until the connection ends.
func (s *GameServer) play(sess *session.Session) {
	if current, ok := s.sessionManager.GetByUsername(sess.Username()); !ok || current != sess {
		return
	}
	if err := s.room.Join(sess); err != nil {
		sess.Close()
		return
	}
	defer s.room.Leave(sess)

	for {
		msg, err := sess.Conn.ReadMessage()
		if err != nil {
			if errors.Is(err, network.ErrProtocol) {
				logger.Log.Warnf("Protocol error from %s: %v", sess.Username(), err)
				sess.CloseWithError(ReasonFor(err))
			} else if !errors.Is(err, io.EOF) {
				logger.Log.Debugf("Read from %s ended: %v", sess.Username(), err)
			}
			return
		}
		sess.Touch()
		s.monitor.IncMessagesReceived()

		if msg.Tag != network.TagMove {
			logger.Log.Warnf("Unexpected %s message from %s", msg.Tag, sess.Username())
			sess.CloseWithError(network.ReasonInvalidFormat)
			return
		}

		start := time.Now()
		if err := s.room.SubmitMove(sess, msg.Body); err != nil {
			return
		}
		s.monitor.ObserveMessageLatency(time.Since(start))
	}
}

func (s *GameServer) router() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", s.monitor.Handler()).Methods(http.MethodGet)
	r.Handle("/display", s.hub).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/roster", s.handleRoster).Methods(http.MethodGet)
	api.HandleFunc("/scores", s.handleScores).Methods(http.MethodGet)
	api.HandleFunc("/rounds", s.handleRounds).Methods(http.MethodGet)
	api.HandleFunc("/rounds/{id}", s.handleRound).Methods(http.MethodGet)
	return r
}

func (s *GameServer) handleRoster(w http.ResponseWriter, r *http.Request) {
	snap, err := s.room.Snapshot()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *GameServer) handleScores(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
	defer cancel()

	scores, err := s.results.Scores(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (s *GameServer) handleRounds(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("bad limit %q", v))
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
	defer cancel()

	rounds, err := s.results.RecentRounds(ctx, limit)
	switch {
	case errors.Is(err, services.ErrNoDatabase):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, rounds)
	}
}

func (s *GameServer) handleRound(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
	defer cancel()

	rec, err := s.results.Round(ctx, mux.Vars(r)["id"])
	switch {
	case errors.Is(err, services.ErrNoDatabase), errors.Is(err, persistence.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Debugf("Writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
