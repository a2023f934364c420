package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/codechallenge/game"
	"github.com/wfunc/codechallenge/logger"
	"github.com/wfunc/codechallenge/models"
	"github.com/wfunc/codechallenge/network"
	"github.com/wfunc/codechallenge/session"
	"github.com/wfunc/codechallenge/state"
)

var ErrRoomClosed = errors.New("room closed")

// Reasons a player leaves a room.
const (
	RemovedDisconnect  = "disconnect"
	RemovedInvalidMove = "invalid_move"
	RemovedProtocol    = "protocol"
	RemovedSuperseded  = "superseded"
)

// Modes a room can run in. A gated room holds its players but starts no
// rounds until the mode changes.
const (
	ModePractice    = "practice"
	ModeGating      = "gating"
	ModeCompetition = "competition"
)

func ParseMode(s string) (string, error) {
	switch s {
	case ModePractice, ModeGating, ModeCompetition:
		return s, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

const (
	DefaultMinPlayers = 2
	recordTimeout     = 5 * time.Second
	eventQueueSize    = 256
)

// Snapshot is what the display sink sees of a room.
type Snapshot struct {
	Room      string               `json:"room"`
	Round     int                  `json:"round"`
	Challenge string               `json:"challenge"`
	Mode      string               `json:"mode"`
	Players   []string             `json:"players"`
	Waiting   []string             `json:"waiting"`
	Active    string               `json:"active,omitempty"`
	Phase     string               `json:"phase"`
	State     json.RawMessage      `json:"state,omitempty"`
	Outcome   string               `json:"outcome,omitempty"`
	LastSeen  map[string]time.Time `json:"last_seen,omitempty"`
}

type Option func(*Room)

func WithMinPlayers(n int) Option {
	return func(r *Room) {
		if n >= 1 {
			r.minPlayers = n
		}
	}
}

func WithTurnDelay(d time.Duration) Option {
	return func(r *Room) { r.turnDelay = d }
}

func WithMode(mode string) Option {
	return func(r *Room) {
		if m, err := ParseMode(mode); err == nil {
			r.mode = m
		}
	}
}

func WithBroadcaster(b Broadcaster) Option {
	return func(r *Room) { r.broadcaster = b }
}

func WithRecorder(rec ResultRecorder) Option {
	return func(r *Room) { r.recorder = rec }
}

func WithObserver(o Observer) Option {
	return func(r *Room) { r.observer = o }
}

func WithScheduler(s Scheduler) Option {
	return func(r *Room) { r.timers = s }
}

// Room runs one game session: a roster of players taking turns against a
// single engine state, round after round. All game state is owned by the
// room's loop goroutine; the exported methods only queue work for it.
type Room struct {
	ID        string
	CreatedAt time.Time

	engine      game.Engine
	minPlayers  int
	turnDelay   time.Duration
	broadcaster Broadcaster
	recorder    ResultRecorder
	observer    Observer
	timers      Scheduler
	phase       *state.RoundMachine

	events    chan func()
	closeChan chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	records   sync.WaitGroup

	// loop-owned
	mode        string
	roster      []*session.Session
	waiting     []*session.Session
	active      int
	game        game.State
	round       int
	moves       int
	startedAt   time.Time
	started     []string
	outcome     string
	turnPending bool
	turnTimer   int64
	turnToken   uint64
}

func NewRoom(id string, engine game.Engine, opts ...Option) *Room {
	r := &Room{
		ID:          id,
		CreatedAt:   time.Now(),
		engine:      engine,
		minPlayers:  DefaultMinPlayers,
		mode:        ModePractice,
		broadcaster: nopBroadcaster{},
		observer:    nopObserver{},
		events:      make(chan func(), eventQueueSize),
		closeChan:   make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.phase = state.NewRoundMachine(r)

	go r.loop()
	return r
}

// GetID implements state.RoomContext.
func (r *Room) GetID() string {
	return r.ID
}

func (r *Room) Challenge() string {
	return r.engine.Name()
}

// Join adds an authenticated session. It plays from the next round start.
func (r *Room) Join(s *session.Session) error {
	return r.do(func() { r.join(s) })
}

// Leave removes a session whose connection has gone away.
func (r *Room) Leave(s *session.Session) error {
	return r.do(func() { r.remove(s, RemovedDisconnect) })
}

// SubmitMove hands a move payload from s to the room. Rejections are
// reported to the player by the room itself.
func (r *Room) SubmitMove(s *session.Session, move json.RawMessage) error {
	return r.do(func() { r.move(s, move) })
}

// SetTurnDelay changes the pause before each your-turn within a round.
func (r *Room) SetTurnDelay(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("turn delay must not be negative, got %s", d)
	}
	return r.do(func() { r.turnDelay = d })
}

// SetMode switches the room's mode. Entering gating stops the round in
// progress without a result; leaving it starts a round if enough players
// are present.
func (r *Room) SetMode(mode string) error {
	m, err := ParseMode(mode)
	if err != nil {
		return err
	}
	return r.do(func() { r.setMode(m) })
}

func (r *Room) Snapshot() (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := r.do(func() { reply <- r.snapshot() }); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-r.done:
		return Snapshot{}, ErrRoomClosed
	}
}

// Close stops the loop and waits for outstanding round records. Player
// connections are left to their owners.
func (r *Room) Close() {
	r.closeOnce.Do(func() { close(r.closeChan) })
	<-r.done
	r.records.Wait()
}

func (r *Room) do(fn func()) error {
	select {
	case <-r.closeChan:
		return ErrRoomClosed
	default:
	}
	select {
	case r.events <- fn:
		return nil
	case <-r.closeChan:
		return ErrRoomClosed
	}
}

func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case fn := <-r.events:
			fn()
		case <-r.closeChan:
			r.cancelTurnTimer()
			return
		}
	}
}

func (r *Room) join(s *session.Session) {
	name := s.Username()
	for _, other := range r.members() {
		if other != s && other.Username() == name {
			logger.Log.Infof("Room %s: %s connected again, dropping the previous connection", r.ID, name)
			other.Close()
			r.remove(other, RemovedSuperseded)
		}
	}
	if r.isMember(s) {
		return
	}

	r.waiting = append(r.waiting, s)
	logger.Log.Infof("Room %s: %s joined", r.ID, name)
	if !r.tryStart() {
		r.publish()
	}
}

func (r *Room) setMode(mode string) {
	if mode == r.mode {
		return
	}
	wasGating := r.mode == ModeGating
	r.mode = mode
	logger.Log.Infof("Room %s: mode %s", r.ID, mode)

	switch {
	case mode == ModeGating:
		if r.phase.In(state.PhaseAwaitingMove) {
			r.stopRound("gate closed")
			r.enter(state.PhaseIdle)
		}
		r.publish()
	case wasGating:
		if !r.tryStart() {
			r.publish()
		}
	default:
		r.publish()
	}
}

func (r *Room) tryStart() bool {
	if r.mode == ModeGating {
		return false
	}
	if !r.phase.In(state.PhaseIdle) && !r.phase.In(state.PhaseRoundOver) {
		return false
	}
	if len(r.roster)+len(r.waiting) < r.minPlayers {
		return false
	}
	r.startRound()
	return true
}

func (r *Room) startRound() {
	r.roster = append(r.roster, r.waiting...)
	r.waiting = nil
	r.round++
	r.moves = 0
	r.outcome = ""
	r.active = 0
	r.startedAt = time.Now()
	r.started = usernames(r.roster)
	r.game = r.engine.InitialState(r.started)

	r.enter(state.PhaseAwaitingMove)
	logger.Log.Infof("Room %s: round %d started with %v", r.ID, r.round, r.started)
	r.publish()
	r.sendYourTurn()
}

func (r *Room) move(s *session.Session, raw json.RawMessage) {
	if !r.isMember(s) {
		// already removed, its connection is on its way out
		return
	}
	if r.mode == ModeGating {
		// the round this move was meant for has been stopped
		logger.Log.Debugf("Room %s: dropping move from %s while gated", r.ID, s.Username())
		return
	}
	if !r.isActive(s) {
		logger.Log.Warnf("Room %s: %s sent a move out of turn", r.ID, s.Username())
		s.CloseWithError(network.ReasonInvalidFormat)
		r.remove(s, RemovedProtocol)
		return
	}

	r.enter(state.PhaseApplying)
	next, err := r.engine.ValidateAndApply(r.game, s.Username(), raw)
	if err != nil {
		reason, removal := network.ReasonInvalidMove, RemovedInvalidMove
		if errors.Is(err, game.ErrMalformedMove) {
			reason, removal = network.ReasonInvalidFormat, RemovedProtocol
		}
		logger.Log.Infof("Room %s: rejected move from %s: %v", r.ID, s.Username(), err)
		r.enter(state.PhaseAwaitingMove)
		s.CloseWithError(reason)
		r.remove(s, removal)
		return
	}

	r.game = next
	r.moves++
	r.observer.MoveAccepted()

	outcome := r.engine.CheckTerminal(r.game)
	if !outcome.Terminal() {
		r.enter(state.PhaseAwaitingMove)
		r.active = (r.active + 1) % len(r.roster)
		r.publish()
		r.promptNext()
		return
	}
	r.finishRound(outcome)
}

func (r *Room) finishRound(outcome game.Outcome) {
	r.enter(state.PhaseRoundOver)

	reason, recorded := network.ReasonDraw, models.OutcomeDraw
	if outcome.Kind == game.Win {
		reason, recorded = network.WinnerReason(outcome.Winner), models.OutcomeWin
	}
	r.outcome = reason
	logger.Log.Infof("Room %s: round %d over after %d moves: %s", r.ID, r.round, r.moves, reason)
	r.publish()

	for _, p := range r.members() {
		if err := p.Send(network.TagGameOver, network.GameOver{Reason: reason}); err != nil {
			logger.Log.Warnf("Room %s: game-over to %s: %v", r.ID, p.Username(), err)
		}
	}
	r.record(recorded, outcome.Winner)
	r.observer.RoundFinished(recorded)

	if !r.tryStart() {
		r.enter(state.PhaseIdle)
		r.publish()
	}
}

func (r *Room) abortRound() {
	r.stopRound("no players left")
	r.enter(state.PhaseIdle)
	if !r.tryStart() {
		r.publish()
	}
}

// stopRound ends the current round without a winner. Nobody is told.
func (r *Room) stopRound(why string) {
	r.cancelTurnTimer()
	r.outcome = models.OutcomeAborted
	logger.Log.Warnf("Room %s: round %d aborted, %s", r.ID, r.round, why)
	r.record(models.OutcomeAborted, "")
	r.observer.RoundFinished(models.OutcomeAborted)
}

// remove takes s out of the room. If s held the turn, the next player in
// order is prompted with the unchanged state.
func (r *Room) remove(s *session.Session, reason string) {
	if i := slices.Index(r.waiting, s); i >= 0 {
		r.waiting = slices.Delete(r.waiting, i, i+1)
		r.observer.PlayerRemoved(reason)
		logger.Log.Infof("Room %s: %s left before playing (%s)", r.ID, s.Username(), reason)
		r.publish()
		return
	}

	i := slices.Index(r.roster, s)
	if i < 0 {
		return
	}
	r.roster = slices.Delete(r.roster, i, i+1)
	r.observer.PlayerRemoved(reason)
	logger.Log.Infof("Room %s: removed %s (%s)", r.ID, s.Username(), reason)

	if !r.phase.In(state.PhaseAwaitingMove) {
		r.publish()
		return
	}
	if len(r.roster) == 0 {
		r.abortRound()
		return
	}

	switch {
	case i < r.active:
		r.active--
	case i == r.active:
		r.cancelTurnTimer()
		if r.active >= len(r.roster) {
			r.active = 0
		}
		r.publish()
		r.promptNext()
		return
	}
	r.publish()
}

func (r *Room) promptNext() {
	if r.turnDelay <= 0 || r.timers == nil {
		r.sendYourTurn()
		return
	}

	r.turnPending = true
	r.turnToken++
	token := r.turnToken
	r.turnTimer = r.timers.AddTimer(r.turnDelay, 0, func() {
		r.do(func() { r.turnReady(token) })
	})
}

func (r *Room) turnReady(token uint64) {
	if !r.turnPending || token != r.turnToken {
		return
	}
	r.turnPending = false
	r.turnTimer = 0
	r.sendYourTurn()
}

func (r *Room) cancelTurnTimer() {
	if r.turnTimer != 0 && r.timers != nil {
		r.timers.RemoveTimer(r.turnTimer)
	}
	r.turnTimer = 0
	r.turnPending = false
	r.turnToken++
}

func (r *Room) sendYourTurn() {
	if len(r.roster) == 0 {
		return
	}
	p := r.roster[r.active]

	raw, err := r.engine.Serialize(r.game)
	if err != nil {
		logger.Log.Errorf("Room %s: serializing state: %v", r.ID, err)
		return
	}
	if err := p.Send(network.TagYourTurn, raw); err != nil {
		logger.Log.Warnf("Room %s: your-turn to %s: %v", r.ID, p.Username(), err)
		p.Close()
		r.remove(p, RemovedDisconnect)
	}
}

func (r *Room) record(outcome, winner string) {
	if r.recorder == nil {
		return
	}
	rec := &models.RoundRecord{
		ID:         uuid.NewString(),
		RoomID:     r.ID,
		Round:      r.round,
		Challenge:  r.engine.Name(),
		Players:    r.started,
		Outcome:    outcome,
		Winner:     winner,
		Moves:      r.moves,
		StartedAt:  r.startedAt,
		FinishedAt: time.Now(),
	}

	r.records.Add(1)
	go func() {
		defer r.records.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := r.recorder.RecordRound(ctx, rec); err != nil {
			logger.Log.Errorf("Room %s: recording round %d: %v", r.ID, rec.Round, err)
		}
	}()
}

func (r *Room) enter(phase string) {
	if err := r.phase.Enter(phase); err != nil {
		logger.Log.Errorf("Room %s: %v", r.ID, err)
	}
}

func (r *Room) isMember(s *session.Session) bool {
	return slices.Contains(r.roster, s) || slices.Contains(r.waiting, s)
}

func (r *Room) isActive(s *session.Session) bool {
	return r.phase.In(state.PhaseAwaitingMove) &&
		!r.turnPending &&
		len(r.roster) > 0 &&
		r.roster[r.active] == s
}

func (r *Room) members() []*session.Session {
	all := make([]*session.Session, 0, len(r.roster)+len(r.waiting))
	all = append(all, r.roster...)
	return append(all, r.waiting...)
}

func (r *Room) snapshot() Snapshot {
	snap := Snapshot{
		Room:      r.ID,
		Round:     r.round,
		Challenge: r.engine.Name(),
		Mode:      r.mode,
		Players:   usernames(r.roster),
		Waiting:   usernames(r.waiting),
		Phase:     r.phase.Phase(),
		Outcome:   r.outcome,
	}
	if members := r.members(); len(members) > 0 {
		snap.LastSeen = make(map[string]time.Time, len(members))
		for _, p := range members {
			snap.LastSeen[p.Username()] = p.LastActive()
		}
	}
	if r.phase.In(state.PhaseAwaitingMove) && len(r.roster) > 0 {
		snap.Active = r.roster[r.active].Username()
	}
	if r.game != nil {
		if raw, err := r.engine.Serialize(r.game); err == nil {
			snap.State = raw
		}
	}
	return snap
}

func (r *Room) publish() {
	r.broadcaster.Publish(r.snapshot())
}

func usernames(sessions []*session.Session) []string {
	names := make([]string, 0, len(sessions))
	for _, s := range sessions {
		names = append(names, s.Username())
	}
	return names
}

// Manager holds the rooms a server is running.
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex
}

func NewRoomManager() *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
	}
}

func (m *Manager) CreateRoom(id string, engine game.Engine, opts ...Option) *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room := NewRoom(id, engine, opts...)
	m.rooms[id] = room
	return room
}

// RemoveRoom closes a room and forgets it.
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	room, exists := m.rooms[id]
	delete(m.rooms, id)
	m.mutex.Unlock()

	if exists {
		room.Close()
	}
}

func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// Rooms returns all rooms ordered by creation time.
func (m *Manager) Rooms() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	slices.SortFunc(rooms, func(a, b *Room) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return rooms
}

func (m *Manager) CloseAll() {
	for _, r := range m.Rooms() {
		m.RemoveRoom(r.ID)
	}
}
