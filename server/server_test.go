package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/codechallenge/auth"
	"github.com/wfunc/codechallenge/config"
	"github.com/wfunc/codechallenge/game"
	"github.com/wfunc/codechallenge/game/gomoku"
	"github.com/wfunc/codechallenge/models"
	"github.com/wfunc/codechallenge/network"
	"github.com/wfunc/codechallenge/persistence"
	challenge_rpc "github.com/wfunc/codechallenge/rpc"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:       "127.0.0.1:0",
			HTTPAddress:   "127.0.0.1:0",
			RPCAddress:    "127.0.0.1:0",
			MaxLineLength: 4096,
			SendQueue:     16,
			WriteTimeout:  time.Second,
		},
		Session: config.SessionConfig{MinPlayers: 2},
		Auth:    config.AuthConfig{BcryptCost: bcrypt.MinCost},
	}
}

func startServer(t *testing.T, opts ...func(*config.Config)) *GameServer {
	t.Helper()
	engine, err := gomoku.New(8, 8)
	require.NoError(t, err)

	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	s := NewGameServer(cfg, engine, nil, persistence.NewMemoryScores())
	require.NoError(t, s.Start())
	t.Cleanup(s.Shutdown)
	return s
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, s *GameServer) *client {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func login(t *testing.T, s *GameServer, username, password string) *client {
	t.Helper()
	c := dial(t, s)
	c.send(network.TagAuth, network.Auth{Username: username, Password: password})
	return c
}

func (c *client) send(tag string, body any) {
	c.t.Helper()
	line, err := network.Encode(tag, body)
	require.NoError(c.t, err)
	c.raw(string(line))
}

func (c *client) raw(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line))
	require.NoError(c.t, err)
}

func (c *client) move(x, y int) {
	c.t.Helper()
	c.send(network.TagMove, map[string]int{"x": x, "y": y})
}

func (c *client) read() *network.Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.r.ReadBytes('\n')
	require.NoError(c.t, err)
	msg, err := network.Decode(line[:len(line)-1])
	require.NoError(c.t, err)
	return msg
}

func (c *client) expectBoard() *gomoku.Board {
	c.t.Helper()
	msg := c.read()
	require.Equal(c.t, network.TagYourTurn, msg.Tag)
	b, err := gomoku.DecodeBoard(msg.Body)
	require.NoError(c.t, err)
	return b
}

func (c *client) expectReason(tag, reason string) {
	c.t.Helper()
	msg := c.read()
	require.Equal(c.t, tag, msg.Tag)
	got, err := network.DecodeReason(msg.Body)
	require.NoError(c.t, err)
	assert.Equal(c.t, reason, got)
}

func (c *client) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.r.ReadBytes('\n')
	assert.ErrorIs(c.t, err, io.EOF)
}

// waitFor blocks until the room has the given players waiting or seated.
func waitFor(t *testing.T, s *GameServer, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := s.Room().Snapshot()
		return err == nil && len(snap.Players)+len(snap.Waiting) == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, network.ReasonWrongPassword, ReasonFor(fmt.Errorf("%w for erik", auth.ErrWrongPassword)))
	assert.Equal(t, network.ReasonInvalidMove, ReasonFor(fmt.Errorf("%w: occupied", game.ErrInvalidMove)))
	assert.Equal(t, network.ReasonInvalidFormat, ReasonFor(game.ErrMalformedMove))
	assert.Equal(t, network.ReasonInvalidFormat, ReasonFor(network.ErrLineTooLong))
	assert.Equal(t, network.ReasonInvalidFormat, ReasonFor(errors.New("anything else")))
}

func TestGameServer_RoundAndRestart(t *testing.T) {
	s := startServer(t)

	erik := login(t, s, "erik", "pw1")
	waitFor(t, s, 1)
	simon := login(t, s, "simon", "pw2")

	b := erik.expectBoard()
	assert.Equal(t, 8, b.Width)
	assert.Equal(t, 64, len(b.Cells))

	for i := 0; i < 4; i++ {
		erik.move(i, 0)
		simon.expectBoard()
		simon.move(i, 1)
		erik.expectBoard()
	}
	erik.move(4, 0)

	erik.expectReason(network.TagGameOver, "winner erik")
	simon.expectReason(network.TagGameOver, "winner erik")

	// same roster, same order, fresh board
	b = erik.expectBoard()
	for _, cell := range b.Cells {
		assert.Empty(t, cell)
	}

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.HTTPAddr().String() + "/api/scores")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var scores []models.Score
		if json.NewDecoder(resp.Body).Decode(&scores) != nil {
			return false
		}
		return len(scores) == 1 && scores[0] == models.Score{Username: "erik", Wins: 1}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGameServer_WrongPassword(t *testing.T) {
	s := startServer(t)

	login(t, s, "erik", "right")
	waitFor(t, s, 1)

	impostor := login(t, s, "erik", "wrong")
	impostor.expectReason(network.TagError, network.ReasonWrongPassword)
	impostor.expectClosed()
}

func TestGameServer_FirstMessageMustBeAuth(t *testing.T) {
	s := startServer(t)

	c := dial(t, s)
	c.move(0, 0)
	c.expectReason(network.TagError, network.ReasonInvalidFormat)
	c.expectClosed()
}

func TestGameServer_GarbageLine(t *testing.T) {
	s := startServer(t)

	c := dial(t, s)
	c.raw("hello\n")
	c.expectReason(network.TagError, network.ReasonInvalidFormat)
	c.expectClosed()
}

func TestGameServer_EscapedNewlineInUsername(t *testing.T) {
	s := startServer(t)

	c := dial(t, s)
	c.raw(`{"auth":{"username":"evil\nname","password":"p"}}` + "\n")
	c.expectReason(network.TagError, network.ReasonInvalidFormat)
	c.expectClosed()
	waitFor(t, s, 0)
}

func TestGameServer_InvalidMoveClosesConnection(t *testing.T) {
	s := startServer(t)

	erik := login(t, s, "erik", "pw")
	waitFor(t, s, 1)
	login(t, s, "simon", "pw")

	erik.expectBoard()
	erik.move(8, 0)
	erik.expectReason(network.TagError, network.ReasonInvalidMove)
	erik.expectClosed()
}

func TestGameServer_NonMoveAfterAuth(t *testing.T) {
	s := startServer(t)

	erik := login(t, s, "erik", "pw")
	waitFor(t, s, 1)
	erik.send(network.TagAuth, network.Auth{Username: "erik", Password: "pw"})
	erik.expectReason(network.TagError, network.ReasonInvalidFormat)
	erik.expectClosed()
	waitFor(t, s, 0)
}

func TestGameServer_ActiveDisconnectPassesTurn(t *testing.T) {
	s := startServer(t, func(cfg *config.Config) { cfg.Session.MinPlayers = 3 })

	erik := login(t, s, "erik", "pw")
	waitFor(t, s, 1)
	simon := login(t, s, "simon", "pw")
	waitFor(t, s, 2)
	octopus := login(t, s, "octopus", "pw")
	waitFor(t, s, 3)

	erik.expectBoard()
	erik.move(3, 3)
	simon.expectBoard()
	simon.conn.Close()

	// octopus was last in line and is next after simon
	b := octopus.expectBoard()
	assert.Equal(t, "erik", b.At(3, 3))
}

func TestGameServer_DuplicateLoginSupersedes(t *testing.T) {
	s := startServer(t)

	first := login(t, s, "erik", "pw")
	waitFor(t, s, 1)

	login(t, s, "erik", "pw")
	first.expectClosed()

	require.Eventually(t, func() bool {
		snap, err := s.Room().Snapshot()
		return err == nil && len(snap.Waiting) == 1 && snap.Waiting[0] == "erik"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestGameServer_HTTP(t *testing.T) {
	s := startServer(t)
	base := "http://" + s.HTTPAddr().String()

	login(t, s, "erik", "pw")
	waitFor(t, s, 1)

	resp, err := http.Get(base + "/api/roster")
	require.NoError(t, err)
	var snap struct {
		Challenge string   `json:"challenge"`
		Waiting   []string `json:"waiting"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	assert.Equal(t, "gomoku", snap.Challenge)
	assert.Equal(t, []string{"erik"}, snap.Waiting)

	resp, err = http.Get(base + "/api/rounds")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(base + "/api/rounds?limit=x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "challenge_online_players 1")
}

func TestGameServer_RPC(t *testing.T) {
	s := startServer(t)

	login(t, s, "erik", "pw")
	waitFor(t, s, 1)

	c, err := challenge_rpc.Dial(s.RPCAddr().String())
	require.NoError(t, err)
	defer c.Close()

	snap, err := c.Roster(s.Room().GetID())
	require.NoError(t, err)
	assert.Equal(t, []string{"erik"}, snap.Waiting)

	require.NoError(t, c.SetTurnDelay(s.Room().GetID(), 10*time.Millisecond))
}

func TestGameServer_GateHoldsPlayers(t *testing.T) {
	s := startServer(t, func(cfg *config.Config) { cfg.Session.Mode = "gating" })

	erik := login(t, s, "erik", "pw")
	waitFor(t, s, 1)
	login(t, s, "simon", "pw")
	waitFor(t, s, 2)

	snap, err := s.Room().Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "gating", snap.Mode)
	assert.Equal(t, []string{"erik", "simon"}, snap.Waiting)

	c, err := challenge_rpc.Dial(s.RPCAddr().String())
	require.NoError(t, err)
	defer c.Close()
	_, err = c.SetMode("", "competition")
	require.NoError(t, err)

	b := erik.expectBoard()
	assert.Equal(t, 64, len(b.Cells))
}

func TestGameServer_ShutdownClosesPlayers(t *testing.T) {
	engine, err := gomoku.New(8, 8)
	require.NoError(t, err)
	s := NewGameServer(testConfig(), engine, nil, persistence.NewMemoryScores())
	require.NoError(t, s.Start())

	erik := login(t, s, "erik", "pw")
	waitFor(t, s, 1)
	silent := dial(t, s)

	s.Shutdown()
	erik.expectClosed()
	silent.expectClosed()

	_, err = net.DialTimeout("tcp", s.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err)
}
