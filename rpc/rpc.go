package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/codechallenge/logger"
	"github.com/wfunc/codechallenge/models"
	"github.com/wfunc/codechallenge/room"
	"github.com/wfunc/codechallenge/services"
)

const (
	ServiceName = "ChallengeService"
	callTimeout = 5 * time.Second
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	rpc      *rpc.Server
}

// NewServer listens on addr and registers the admin service.
func NewServer(addr string, service *ChallengeService) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, service); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		rpc:      srv,
	}, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start serves RPC connections until Stop is called.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// ChallengeService exposes room and scoreboard administration.
// Methods follow the net/rpc signature: exported args, pointer reply, error result.
type ChallengeService struct {
	rooms   *room.Manager
	results *services.ResultService
}

func NewChallengeService(rooms *room.Manager, results *services.ResultService) *ChallengeService {
	return &ChallengeService{rooms: rooms, results: results}
}

type RoomsArgs struct {
	Challenge string // empty lists every room
}

type RoomsReply struct {
	Rooms []room.Snapshot
}

func (cs *ChallengeService) Rooms(args *RoomsArgs, reply *RoomsReply) error {
	for _, r := range cs.rooms.Rooms() {
		if args.Challenge != "" && r.Challenge() != args.Challenge {
			continue
		}
		snap, err := r.Snapshot()
		if err != nil {
			continue
		}
		reply.Rooms = append(reply.Rooms, snap)
	}
	return nil
}

type RosterArgs struct {
	Room string
}

type RosterReply struct {
	Snapshot room.Snapshot
}

func (cs *ChallengeService) Roster(args *RosterArgs, reply *RosterReply) error {
	r, err := cs.room(args.Room)
	if err != nil {
		return err
	}
	reply.Snapshot, err = r.Snapshot()
	return err
}

type ScoresArgs struct {
	Limit int // 0 means all
}

type ScoresReply struct {
	Scores []models.Score
}

func (cs *ChallengeService) Scores(args *ScoresArgs, reply *ScoresReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	scores, err := cs.results.Scores(ctx)
	if err != nil {
		return err
	}
	if args.Limit > 0 && len(scores) > args.Limit {
		scores = scores[:args.Limit]
	}
	reply.Scores = scores
	return nil
}

type RecentRoundsArgs struct {
	Limit int
}

type RecentRoundsReply struct {
	Rounds []*models.RoundRecord
}

func (cs *ChallengeService) RecentRounds(args *RecentRoundsArgs, reply *RecentRoundsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}
	rounds, err := cs.results.RecentRounds(ctx, limit)
	if err != nil {
		return err
	}
	reply.Rounds = rounds
	return nil
}

type TurnDelayArgs struct {
	Room  string
	Delay time.Duration
}

type TurnDelayReply struct {
	Delay time.Duration
}

// SetTurnDelay changes how long a room waits before prompting the next player.
func (cs *ChallengeService) SetTurnDelay(args *TurnDelayArgs, reply *TurnDelayReply) error {
	r, err := cs.room(args.Room)
	if err != nil {
		return err
	}
	if err := r.SetTurnDelay(args.Delay); err != nil {
		return err
	}
	logger.Log.Infow("Turn delay changed", "room", args.Room, "delay", args.Delay)
	reply.Delay = args.Delay
	return nil
}

type ModeArgs struct {
	Room string // empty switches every room
	Mode string
}

type ModeReply struct {
	Rooms []string
}

// SetMode switches rooms between practice, gating and competition. Closing
// the gate also clears the scoreboard.
func (cs *ChallengeService) SetMode(args *ModeArgs, reply *ModeReply) error {
	mode, err := room.ParseMode(args.Mode)
	if err != nil {
		return err
	}

	targets := cs.rooms.Rooms()
	if args.Room != "" {
		r, err := cs.room(args.Room)
		if err != nil {
			return err
		}
		targets = []*room.Room{r}
	}
	for _, r := range targets {
		if err := r.SetMode(mode); err != nil {
			return fmt.Errorf("room %s: %w", r.ID, err)
		}
		reply.Rooms = append(reply.Rooms, r.ID)
	}
	logger.Log.Infow("Mode changed", "mode", mode, "rooms", reply.Rooms)

	if mode != room.ModeGating {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return cs.results.ResetScores(ctx)
}

// ResetScores clears the scoreboard and replies with the standings it held.
func (cs *ChallengeService) ResetScores(args *ScoresArgs, reply *ScoresReply) error {
	if err := cs.Scores(args, reply); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return cs.results.ResetScores(ctx)
}

func (cs *ChallengeService) room(id string) (*room.Room, error) {
	r, ok := cs.rooms.GetRoom(id)
	if !ok {
		return nil, fmt.Errorf("no room %q", id)
	}
	return r, nil
}

// Client is a typed wrapper over an RPC connection to ChallengeService.
type Client struct {
	c *rpc.Client
}

func Dial(addr string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{c: c}, nil
}

func (c *Client) Rooms(challenge string) ([]room.Snapshot, error) {
	var reply RoomsReply
	err := c.c.Call(ServiceName+".Rooms", &RoomsArgs{Challenge: challenge}, &reply)
	return reply.Rooms, err
}

func (c *Client) Roster(roomID string) (room.Snapshot, error) {
	var reply RosterReply
	err := c.c.Call(ServiceName+".Roster", &RosterArgs{Room: roomID}, &reply)
	return reply.Snapshot, err
}

func (c *Client) Scores(limit int) ([]models.Score, error) {
	var reply ScoresReply
	err := c.c.Call(ServiceName+".Scores", &ScoresArgs{Limit: limit}, &reply)
	return reply.Scores, err
}

func (c *Client) RecentRounds(limit int) ([]*models.RoundRecord, error) {
	var reply RecentRoundsReply
	err := c.c.Call(ServiceName+".RecentRounds", &RecentRoundsArgs{Limit: limit}, &reply)
	return reply.Rounds, err
}

func (c *Client) SetTurnDelay(roomID string, d time.Duration) error {
	var reply TurnDelayReply
	return c.c.Call(ServiceName+".SetTurnDelay", &TurnDelayArgs{Room: roomID, Delay: d}, &reply)
}

// SetMode switches roomID, or every room when roomID is empty, and returns
// the rooms it changed.
func (c *Client) SetMode(roomID, mode string) ([]string, error) {
	var reply ModeReply
	err := c.c.Call(ServiceName+".SetMode", &ModeArgs{Room: roomID, Mode: mode}, &reply)
	return reply.Rooms, err
}

func (c *Client) ResetScores() ([]models.Score, error) {
	var reply ScoresReply
	err := c.c.Call(ServiceName+".ResetScores", &ScoresArgs{}, &reply)
	return reply.Scores, err
}

func (c *Client) Close() error {
	return c.c.Close()
}
