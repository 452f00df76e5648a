package game

import (
	"errors"
	"sync"
	"time"
)

// RoomStatus represents the lifecycle state of a room
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "WAITING"
	StatusPlaying  RoomStatus = "PLAYING"
	StatusFinished RoomStatus = "FINISHED"
)

// PlayerStatus is the wire-visible per-player state
type PlayerStatus int

const (
	PlayerPlaying PlayerStatus = 0
	PlayerWin     PlayerStatus = 1
	PlayerLeft    PlayerStatus = 2
	PlayerTimeout PlayerStatus = 3
)

const (
	// TimeoutStrikeLimit removes a player after this many missed turns
	TimeoutStrikeLimit = 3
	// WinSettleDelay lets clients play the win animation before game_over
	// after a timer auto-win
	WinSettleDelay = 2 * time.Second
	// FinishedRoomTTL keeps a finished room around for late game_over reads
	FinishedRoomTTL = 10 * time.Second
)

var (
	ErrRoomFull       = errors.New("room is full")
	ErrGameStarted    = errors.New("game already started")
	ErrGameNotStarted = errors.New("game not started")
	ErrAlreadySeated  = errors.New("player already in room")
	ErrNotInRoom      = errors.New("player not in room")
)

// Move is one relayed token move
type Move struct {
	PeerID     int   `json:"peer_id"`
	TokenID    int   `json:"token_id"`
	TokenValue int   `json:"token_value"`
	Timestamp  int64 `json:"timestamp"`
}

// GameData is the relayed board snapshot: the last dice roll and the move log
type GameData struct {
	LastDice int    `json:"last_dice"`
	Moves    []Move `json:"moves"`
}

// Player is a seated participant. PeerID equals the roster index at join and
// never changes; the roster is never compacted.
type Player struct {
	UserID       string       `json:"user_id"`
	UserName     string       `json:"user_name"`
	PeerID       int          `json:"peer_id"`
	Status       PlayerStatus `json:"status"`
	NumOfTimeout int          `json:"numoftimeout"`
	JoinedAt     time.Time    `json:"joined_at"`
}

// Room is the per-game state machine. All mutating methods take the room
// mutex, so inbound events, timer fires and delayed settlement are serialized
// per room.
type Room struct {
	ID         string
	HostUserID string
	BetAmount  int
	MaxPlayers int
	Friend     bool
	CreatedAt  time.Time

	// handlerMu serializes dispatcher-grained work (event handlers, timer
	// fires, delayed callbacks) for this room. Separate from mu so a handler
	// can hold it across several state transitions and the emissions they
	// cause.
	handlerMu sync.Mutex

	mu          sync.Mutex
	status      RoomStatus
	players     []*Player
	currentTurn int
	game        GameData
	settled     bool

	turnTimer *time.Timer
	timerSeq  uint64
}

// NewRoom creates a WAITING room owned by hostUserID
func NewRoom(id, hostUserID string, betAmount, maxPlayers int, friend bool) *Room {
	return &Room{
		ID:         id,
		HostUserID: hostUserID,
		BetAmount:  betAmount,
		MaxPlayers: maxPlayers,
		Friend:     friend,
		CreatedAt:  time.Now(),
		status:     StatusWaiting,
	}
}

// Serialize claims the room's handler lock and returns the release. The lock
// lives on the room itself, so a callback holding a stale pointer and a
// handler that just looked the room up can never disagree about which lock
// guards it.
func (r *Room) Serialize() func() {
	r.handlerMu.Lock()
	return r.handlerMu.Unlock
}

// Status returns the current lifecycle state
func (r *Room) Status() RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// PlayerCount returns the roster size (including LEFT and TIMEOUT seats)
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Joinable reports whether a matchmaking join for (bet, size) fits this room
func (r *Room) Joinable(betAmount, maxPlayers int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status == StatusWaiting &&
		r.BetAmount == betAmount &&
		r.MaxPlayers == maxPlayers &&
		len(r.players) < r.MaxPlayers
}

// FindPlayer returns the seated player for userID, if any
func (r *Room) FindPlayer(userID string) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		if p.UserID == userID {
			return *p, true
		}
	}
	return Player{}, false
}

// AddPlayer seats a player at the next roster position. started is true when
// this join filled the room: the caller emits game_start and arms the turn
// timer for peer 0.
func (r *Room) AddPlayer(userID, userName string) (player Player, started bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusWaiting {
		return Player{}, false, ErrGameStarted
	}
	if len(r.players) >= r.MaxPlayers {
		return Player{}, false, ErrRoomFull
	}
	for _, p := range r.players {
		if p.UserID == userID {
			return Player{}, false, ErrAlreadySeated
		}
	}

	p := &Player{
		UserID:   userID,
		UserName: userName,
		PeerID:   len(r.players),
		Status:   PlayerPlaying,
		JoinedAt: time.Now(),
	}
	r.players = append(r.players, p)

	if len(r.players) == r.MaxPlayers {
		r.status = StatusPlaying
		r.currentTurn = 0
		started = true
	}
	return *p, started, nil
}

// RecordDice stores the latest dice roll. The server does not validate Ludo
// semantics; it only relays.
func (r *Room) RecordDice(peerID, diceFace int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPlaying {
		return ErrGameNotStarted
	}
	r.game.LastDice = diceFace
	return nil
}

// RecordMove appends a token move to the log and returns the dice roll it
// travelled with
func (r *Room) RecordMove(peerID, tokenID, tokenValue int) (lastDice int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPlaying {
		return 0, ErrGameNotStarted
	}
	r.game.Moves = append(r.game.Moves, Move{
		PeerID:     peerID,
		TokenID:    tokenID,
		TokenValue: tokenValue,
		Timestamp:  time.Now().UnixMilli(),
	})
	return r.game.LastDice, nil
}

// nextPlaying scans at most len(players) seats forward from cursor+1 and
// returns the first PLAYING seat, or -1 when none remains. Callers hold the
// lock.
func (r *Room) nextPlaying(cursor int) int {
	n := len(r.players)
	for i := 1; i <= n; i++ {
		idx := (cursor + i) % n
		if r.players[idx].Status == PlayerPlaying {
			return idx
		}
	}
	return -1
}

// AdvanceTurn moves the cursor to the next PLAYING player. ok is false when
// no active player remains and the caller must terminate the game.
func (r *Room) AdvanceTurn() (nextPeer int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.advanceTurnLocked()
}

func (r *Room) advanceTurnLocked() (int, bool) {
	if r.status != StatusPlaying || len(r.players) == 0 {
		return 0, false
	}
	next := r.nextPlaying(r.currentTurn)
	if next < 0 {
		return 0, false
	}
	r.currentTurn = next
	return next, true
}

// CurrentTurn returns the cursor position
func (r *Room) CurrentTurn() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentTurn
}

func (r *Room) playingCountLocked() int {
	n := 0
	for _, p := range r.players {
		if p.Status == PlayerPlaying {
			n++
		}
	}
	return n
}

// MarkWin records a client-reported win. finished is true when at most one
// PLAYING player remains: the room moves to FINISHED and the caller settles.
// When the game continues and the winner held the turn, nextTurn carries the
// advanced cursor (-1 otherwise).
func (r *Room) MarkWin(peerID int) (finished bool, nextTurn int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusPlaying {
		return false, -1, ErrGameNotStarted
	}
	if peerID < 0 || peerID >= len(r.players) {
		return false, -1, ErrNotInRoom
	}
	r.players[peerID].Status = PlayerWin

	if r.playingCountLocked() <= 1 {
		r.status = StatusFinished
		r.stopTurnTimerLocked()
		return true, -1, nil
	}

	nextTurn = -1
	if r.currentTurn == peerID {
		if next, ok := r.advanceTurnLocked(); ok {
			nextTurn = next
		}
	}
	return false, nextTurn, nil
}

// MarkLeft records a voluntary leave. In a WAITING room the seat is kept but
// flagged LEFT (peer ids are positional and never compacted); empty reports
// whether no seated player remains. In a PLAYING room, lastPeer >= 0 flags the
// sole surviving player, who is marked WIN, and the room moves to FINISHED.
func (r *Room) MarkLeft(peerID int) (empty bool, lastPeer int, nextTurn int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lastPeer, nextTurn = -1, -1
	if peerID < 0 || peerID >= len(r.players) {
		return false, -1, -1, ErrNotInRoom
	}
	r.players[peerID].Status = PlayerLeft

	if r.status == StatusWaiting {
		empty = r.playingCountLocked() == 0
		return empty, -1, -1, nil
	}
	if r.status != StatusPlaying {
		return false, -1, -1, nil
	}

	switch r.playingCountLocked() {
	case 1:
		for _, p := range r.players {
			if p.Status == PlayerPlaying {
				p.Status = PlayerWin
				lastPeer = p.PeerID
			}
		}
		r.status = StatusFinished
		r.stopTurnTimerLocked()
	case 0:
		r.status = StatusFinished
		r.stopTurnTimerLocked()
	default:
		if r.currentTurn == peerID {
			if next, ok := r.advanceTurnLocked(); ok {
				nextTurn = next
			}
		}
	}
	return false, lastPeer, nextTurn, nil
}

// MarkTimeout flags a player TIMEOUT outside of the turn-timer path (the
// disconnect grace). It never advances the cursor, never touches the timer
// and never terminates the game; the turn timer handles the rest.
func (r *Room) MarkTimeout(peerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if peerID < 0 || peerID >= len(r.players) {
		return ErrNotInRoom
	}
	if r.status != StatusPlaying {
		return ErrGameNotStarted
	}
	r.players[peerID].Status = PlayerTimeout
	return nil
}

// TimeoutResult describes what a turn-timer expiry did to the room
type TimeoutResult struct {
	// Stale is true when the fire lost a race with a rearm or the game ended
	Stale bool
	// PeerID is the player whose turn expired
	PeerID int
	// Strikes is the player's timeout count after this expiry
	Strikes int
	// Removed is true when the player reached the strike limit (user_timeout)
	Removed bool
	// AutoWinPeer is the sole surviving player, marked WIN (-1 when none)
	AutoWinPeer int
	// Finished is true when no PLAYING player remains and settlement must run
	// immediately
	Finished bool
	// NextTurn carries the advanced cursor when the game continues (-1
	// otherwise); the caller emits turn_changed and rearms the timer
	NextTurn int
}

// HandleTurnTimeout applies the timer-expiry transition. seq must be the
// value captured when the timer was armed; a stale sequence no-ops, which
// makes cancellation idempotent.
func (r *Room) HandleTurnTimeout(seq uint64) TimeoutResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := TimeoutResult{AutoWinPeer: -1, NextTurn: -1}
	if seq != r.timerSeq || r.status != StatusPlaying {
		res.Stale = true
		return res
	}

	p := r.players[r.currentTurn]
	p.NumOfTimeout++
	res.PeerID = p.PeerID
	res.Strikes = p.NumOfTimeout

	if p.NumOfTimeout < TimeoutStrikeLimit {
		if next, ok := r.advanceTurnLocked(); ok {
			res.NextTurn = next
		} else {
			r.status = StatusFinished
			r.stopTurnTimerLocked()
			res.Finished = true
		}
		return res
	}

	// Third strike: the player is out
	p.Status = PlayerTimeout
	res.Removed = true

	switch r.playingCountLocked() {
	case 1:
		for _, q := range r.players {
			if q.Status == PlayerPlaying {
				q.Status = PlayerWin
				res.AutoWinPeer = q.PeerID
			}
		}
		r.status = StatusFinished
		r.stopTurnTimerLocked()
	case 0:
		r.status = StatusFinished
		r.stopTurnTimerLocked()
		res.Finished = true
	default:
		if next, ok := r.advanceTurnLocked(); ok {
			res.NextTurn = next
		}
	}
	return res
}

// FinishNoActive force-terminates a PLAYING room in which no active player
// remains. Returns false if the room is not in that state.
func (r *Room) FinishNoActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPlaying || r.playingCountLocked() > 0 {
		return false
	}
	r.status = StatusFinished
	r.stopTurnTimerLocked()
	return true
}

// BeginSettle claims the one-shot right to settle a FINISHED room. Settlement
// can be reached from several paths (reported win, leave, timer expiry, the
// delayed settle callback); only the first claim wins.
func (r *Room) BeginSettle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusFinished || r.settled {
		return false
	}
	r.settled = true
	return true
}

// ArmTurnTimer schedules a one-shot expiry after d, replacing any armed
// timer. fire receives the arm sequence so a stale callback can be detected
// inside HandleTurnTimeout.
func (r *Room) ArmTurnTimer(d time.Duration, fire func(seq uint64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTurnTimerLocked()
	r.timerSeq++
	seq := r.timerSeq
	r.turnTimer = time.AfterFunc(d, func() { fire(seq) })
}

// StopTurnTimer disarms the turn timer; safe to call at any time
func (r *Room) StopTurnTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTurnTimerLocked()
}

func (r *Room) stopTurnTimerLocked() {
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
	r.timerSeq++
}

// TimerArmed reports whether a turn timer is pending
func (r *Room) TimerArmed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turnTimer != nil
}

// Snapshot is a lock-free copy of the room for emission and settlement
type Snapshot struct {
	RoomID      string     `json:"room_id"`
	BetAmount   int        `json:"room_coin"`
	MaxPlayers  int        `json:"max_players"`
	Status      RoomStatus `json:"status"`
	CurrentTurn int        `json:"current_turn"`
	Players     []Player   `json:"players"`
	Game        GameData   `json:"game_data"`
}

// Snapshot copies the full room state under the lock
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	players := make([]Player, len(r.players))
	for i, p := range r.players {
		players[i] = *p
	}
	moves := make([]Move, len(r.game.Moves))
	copy(moves, r.game.Moves)

	return Snapshot{
		RoomID:      r.ID,
		BetAmount:   r.BetAmount,
		MaxPlayers:  r.MaxPlayers,
		Status:      r.status,
		CurrentTurn: r.currentTurn,
		Players:     players,
		Game:        GameData{LastDice: r.game.LastDice, Moves: moves},
	}
}
