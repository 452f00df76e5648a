package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/playludo/backend/internal/config"
	"github.com/playludo/backend/internal/game"
	"github.com/playludo/backend/internal/history"
	"github.com/playludo/backend/internal/metrics"
	"github.com/playludo/backend/internal/models"
	"github.com/playludo/backend/internal/store"
)

// Dispatcher routes inbound frames to their handlers. Handlers that touch a
// room run under that room's handler lock (Room.Serialize), so state
// transitions and the emissions they cause stay ordered per room even though
// every connection reads on its own goroutine. Timer and grace callbacks take
// the same lock. Balance mutations go through the store's atomic UpdateUser,
// which serializes per user across rooms.
type Dispatcher struct {
	store   store.UserStore
	rooms   *game.Registry
	hub     *Hub
	history *history.Store

	turnTimeout time.Duration
	grace       time.Duration
	sessionTTL  time.Duration
	startCoins  int
}

func NewDispatcher(cfg *config.Config, st store.UserStore, rooms *game.Registry, hub *Hub, hist *history.Store) *Dispatcher {
	return &Dispatcher{
		store:       st,
		rooms:       rooms,
		hub:         hub,
		history:     hist,
		turnTimeout: time.Duration(cfg.TurnTimeoutSeconds) * time.Second,
		grace:       time.Duration(cfg.DisconnectGraceSeconds) * time.Second,
		sessionTTL:  time.Duration(cfg.SessionTTLSeconds) * time.Second,
		startCoins:  cfg.StartingCoins,
	}
}

// Dispatch handles one inbound frame from c
func (d *Dispatcher) Dispatch(c *Client, frame Frame) {
	metrics.EventsTotal.WithLabelValues(frame.Event).Inc()

	switch frame.Event {
	case EvAddUser:
		d.handleAddUser(c, frame.Data)
	case EvGetUserData:
		d.handleGetUserData(c, frame.Data)
	case EvRequestJoin:
		d.handleRequestJoin(c, frame.Data)
	case EvFriendCreateRoom:
		d.handleFriendCreateRoom(c, frame.Data)
	case EvFriendJoinRoom:
		d.handleFriendJoinRoom(c, frame.Data)
	case EvDiceSend:
		d.handleDiceSend(c, frame.Data)
	case EvTokenSend:
		d.handleTokenSend(c, frame.Data)
	case EvTokenReset:
		d.handleTokenReset(c, frame.Data)
	case EvChangeTurn:
		d.handleChangeTurn(c, frame.Data)
	case EvWinGame:
		d.handleWinGame(c, frame.Data)
	case EvLeaveRoom:
		d.handleLeaveRoom(c, frame.Data)
	case EvUserChat:
		d.handleUserChat(c, frame.Data)
	case EvUserEmoji:
		d.handleUserEmoji(c, frame.Data)
	case EvUserSendGift:
		d.handleUserGift(c, frame.Data)
	case EvGetPreviousRoom:
		d.handleGetPreviousRoom(c, frame.Data)
	case EvRemoveFromMatchmaking:
		d.handleRemoveFromMatchmaking(frame.Data)
	default:
		log.Printf("[DISPATCH] unknown event %q from user %q", frame.Event, c.UserID())
		c.sendError("unknown event")
	}
}

// parse decodes an event payload, reporting malformed data to the sender
func (d *Dispatcher) parse(c *Client, data string, v interface{}) bool {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		metrics.MalformedPayloads.Inc()
		log.Printf("[DISPATCH] bad payload from user %q: %v", c.UserID(), err)
		c.sendError("invalid payload")
		return false
	}
	return true
}

// toClient emits to a specific connection, bound or not
func (d *Dispatcher) toClient(c *Client, event string, payload interface{}) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		log.Printf("[DISPATCH] encode %s failed: %v", event, err)
		return
	}
	c.enqueue(frame)
}

// --- identity and profile ---

func (d *Dispatcher) handleAddUser(c *Client, data string) {
	var p AddUserPayload
	if !d.parse(c, data, &p) {
		return
	}
	if p.UserID == "" {
		c.sendError("user_id required")
		return
	}

	c.setUserID(p.UserID)
	d.hub.Bind(p.UserID, c)

	ctx := context.Background()
	if p.FCMToken != "" {
		err := d.store.UpdateUser(ctx, p.UserID, func(user *models.User) error {
			user.FCMToken = p.FCMToken
			return nil
		})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("[USER] fcm token update for %s failed: %v", p.UserID, err)
		}
	}

	token := fmt.Sprintf("token_%s_%d", p.UserID, time.Now().Unix())
	session, _ := json.Marshal(map[string]interface{}{
		"user_id":    p.UserID,
		"created_at": time.Now().Unix(),
	})
	if err := d.store.SessionPut(ctx, token, session, d.sessionTTL); err != nil {
		log.Printf("[USER] session store for %s failed: %v", p.UserID, err)
	}

	d.hub.ToUser(p.UserID, EvAuthToken, token)
	log.Printf("[USER] %s connected", p.UserID)
}

func (d *Dispatcher) handleGetUserData(c *Client, data string) {
	var p GetUserDataPayload
	if !d.parse(c, data, &p) {
		return
	}
	if p.UserID == "" {
		c.sendError("user_id required")
		return
	}

	ctx := context.Background()
	user, err := d.store.GetUser(ctx, p.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		user = models.NewUser(p.UserID, p.UserName, d.startCoins)
		if err := d.store.PutUser(ctx, user); err != nil {
			log.Printf("[USER] create %s failed: %v", p.UserID, err)
			c.sendError("could not create user")
			return
		}
		log.Printf("[USER] created %s with %d coins", p.UserID, d.startCoins)
	case err != nil:
		log.Printf("[USER] load %s failed: %v", p.UserID, err)
		c.sendError("user lookup failed")
		return
	default:
		if p.UserName != "" && p.UserName != user.UserName {
			user.UserName = p.UserName
			if err := d.store.UpdateUser(ctx, p.UserID, func(u *models.User) error {
				u.UserName = p.UserName
				return nil
			}); err != nil {
				log.Printf("[USER] rename %s failed: %v", p.UserID, err)
			}
		}
	}

	d.toClient(c, EvUserData, UserDataPayload{
		UserID:     user.UserID,
		UserName:   user.UserName,
		UserCoin:   user.Coins,
		NumOfWin:   user.WinCount,
		NumOfLose:  user.LostCount,
		UserLevel:  user.Level,
		TotalGames: user.TotalGamesPlayed,
	})
}

// --- seating and matchmaking ---

// errInsufficientCoins aborts the charge update without writing
var errInsufficientCoins = errors.New("insufficient coins")

// chargeForSeat deducts the bet before seating as one atomic balance update,
// so the check and the deduction cannot straddle a settlement credit or
// another charge. The deduction is the cost of entering a room; pre-game
// leaves are not refunded.
func (d *Dispatcher) chargeForSeat(c *Client, userID string, bet int) bool {
	current := 0
	err := d.store.UpdateUser(context.Background(), userID, func(user *models.User) error {
		if user.Coins < bet {
			current = user.Coins
			return errInsufficientCoins
		}
		user.Coins -= bet
		return nil
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, errInsufficientCoins):
		d.toClient(c, EvInsufficientCoins, InsufficientCoinsPayload{Required: bet, Current: current})
		return false
	case errors.Is(err, store.ErrNotFound):
		log.Printf("[MATCH] charge for unknown user %s", userID)
		c.sendError("unknown user")
		return false
	default:
		log.Printf("[MATCH] charge for %s failed: %v", userID, err)
		c.sendError("could not reserve coins")
		return false
	}
}

// refundSeat reverses a charge when seating fails after the deduction
func (d *Dispatcher) refundSeat(userID string, bet int) {
	err := d.store.UpdateUser(context.Background(), userID, func(user *models.User) error {
		user.Coins += bet
		return nil
	})
	if err != nil {
		log.Printf("[MATCH] refund for %s failed: %v", userID, err)
	}
}

func validRoomSize(n int) bool { return n == 2 || n == 4 }

func (d *Dispatcher) handleRequestJoin(c *Client, data string) {
	var p RequestJoinPayload
	if !d.parse(c, data, &p) {
		return
	}
	if p.UserID == "" || !validRoomSize(p.RoomPlayersSize) || p.RoomCoinValue <= 0 {
		c.sendError("invalid join request")
		return
	}
	if existing, ok := d.rooms.FindByUser(p.UserID); ok && existing.Status() != game.StatusFinished {
		log.Printf("[MATCH] %s already seated in room %s, join ignored", p.UserID, existing.ID)
		return
	}
	if !d.chargeForSeat(c, p.UserID, p.RoomCoinValue) {
		return
	}

	// A found room can fill between lookup and AddPlayer; retry with a fresh
	// lookup, creating a room when none is open.
	for attempt := 0; attempt < 8; attempt++ {
		room := d.rooms.FindAvailable(p.RoomCoinValue, p.RoomPlayersSize)
		if room == nil {
			room = game.NewRoom(game.NewRoomID(), p.UserID, p.RoomCoinValue, p.RoomPlayersSize, false)
			if !d.rooms.Add(room) {
				continue
			}
			metrics.RoomsCreated.WithLabelValues("matchmaking").Inc()
			metrics.ActiveRooms.Set(float64(d.rooms.Count()))
			log.Printf("[MATCH] room %s created (bet=%d size=%d)", room.ID, p.RoomCoinValue, p.RoomPlayersSize)
		}

		unlock := room.Serialize()
		player, started, err := room.AddPlayer(p.UserID, p.UserName)
		if err != nil {
			unlock()
			continue
		}

		d.hub.JoinRoom(room.ID, p.UserID, c)
		d.hub.ToRoom(room.ID, EvPlayerJoined, PlayerJoinedPayload{
			PeerID:      player.PeerID,
			UserName:    p.UserName,
			PlayerCount: room.PlayerCount(),
			MaxPlayers:  room.MaxPlayers,
		})
		if started {
			d.startGame(room)
		}
		unlock()
		return
	}

	d.refundSeat(p.UserID, p.RoomCoinValue)
	c.sendError("could not join a room")
}

func (d *Dispatcher) handleFriendCreateRoom(c *Client, data string) {
	var p FriendCreateRoomPayload
	if !d.parse(c, data, &p) {
		return
	}
	if p.UserID == "" || !validRoomSize(p.RoomPlayersSize) || p.RoomCoinValue <= 0 {
		c.sendError("invalid room request")
		return
	}
	if existing, ok := d.rooms.FindByUser(p.UserID); ok && existing.Status() != game.StatusFinished {
		d.toClient(c, EvFriendError, FriendErrorPayload{Message: "You are already in a room"})
		return
	}
	if !d.chargeForSeat(c, p.UserID, p.RoomCoinValue) {
		return
	}

	code := strings.ToUpper(strings.TrimSpace(p.RoomCode))
	if code == "" {
		code = game.NewRoomCode()
	}
	room := game.NewRoom(code, p.UserID, p.RoomCoinValue, p.RoomPlayersSize, true)
	if !d.rooms.Add(room) {
		// Another create claimed the code first
		d.refundSeat(p.UserID, p.RoomCoinValue)
		d.toClient(c, EvFriendError, FriendErrorPayload{Message: "Room code already in use"})
		return
	}
	metrics.RoomsCreated.WithLabelValues("friend").Inc()
	metrics.ActiveRooms.Set(float64(d.rooms.Count()))

	unlock := room.Serialize()
	defer unlock()
	player, _, err := room.AddPlayer(p.UserID, p.UserName)
	if err != nil {
		d.refundSeat(p.UserID, p.RoomCoinValue)
		d.toClient(c, EvFriendError, FriendErrorPayload{Message: "Could not create room"})
		return
	}

	d.hub.JoinRoom(room.ID, p.UserID, c)
	d.toClient(c, EvFriendRoomCode, FriendRoomCodePayload{RoomCode: code})
	d.hub.ToRoom(room.ID, EvPlayerJoined, PlayerJoinedPayload{
		PeerID:      player.PeerID,
		UserName:    p.UserName,
		PlayerCount: room.PlayerCount(),
		MaxPlayers:  room.MaxPlayers,
	})
	log.Printf("[MATCH] friend room %s created by %s (bet=%d size=%d)", code, p.UserID, p.RoomCoinValue, p.RoomPlayersSize)
}

func (d *Dispatcher) handleFriendJoinRoom(c *Client, data string) {
	var p FriendJoinRoomPayload
	if !d.parse(c, data, &p) {
		return
	}
	code := strings.ToUpper(strings.TrimSpace(p.RoomCode))
	room := d.rooms.Get(code)
	if room == nil || !room.Friend {
		d.toClient(c, EvFriendError, FriendErrorPayload{Message: "Room not found"})
		return
	}
	if room.PlayerCount() >= room.MaxPlayers {
		d.toClient(c, EvFriendError, FriendErrorPayload{Message: "Room is full"})
		return
	}
	if room.Status() != game.StatusWaiting {
		d.toClient(c, EvFriendError, FriendErrorPayload{Message: "Game already started"})
		return
	}
	if !d.chargeForSeat(c, p.UserID, room.BetAmount) {
		return
	}

	unlock := room.Serialize()
	defer unlock()
	player, started, err := room.AddPlayer(p.UserID, p.UserName)
	if err != nil {
		d.refundSeat(p.UserID, room.BetAmount)
		switch {
		case errors.Is(err, game.ErrRoomFull):
			d.toClient(c, EvFriendError, FriendErrorPayload{Message: "Room is full"})
		case errors.Is(err, game.ErrGameStarted):
			d.toClient(c, EvFriendError, FriendErrorPayload{Message: "Game already started"})
		case errors.Is(err, game.ErrAlreadySeated):
			d.toClient(c, EvFriendError, FriendErrorPayload{Message: "Already in this room"})
		default:
			d.toClient(c, EvFriendError, FriendErrorPayload{Message: "Could not join room"})
		}
		return
	}

	d.hub.JoinRoom(room.ID, p.UserID, c)
	d.hub.ToRoom(room.ID, EvPlayerJoined, PlayerJoinedPayload{
		PeerID:      player.PeerID,
		UserName:    p.UserName,
		PlayerCount: room.PlayerCount(),
		MaxPlayers:  room.MaxPlayers,
	})
	if started {
		d.startGame(room)
	}
}

// startGame emits game_start to the full room and arms the first turn timer.
// Caller holds the room's dispatch lock.
func (d *Dispatcher) startGame(room *game.Room) {
	snap := room.Snapshot()
	roster := make([]RoomUserData, 0, len(snap.Players))
	for _, pl := range snap.Players {
		roster = append(roster, RoomUserData{UserID: pl.UserID, UserName: pl.UserName, PeerID: pl.PeerID})
	}
	d.hub.ToRoom(room.ID, EvGameStart, GameStartPayload{
		RoomID:   snap.RoomID,
		RoomCoin: snap.BetAmount,
		UserData: roster,
	})
	d.armTurn(room)
	log.Printf("[GAME] room %s started (%d players, bet=%d)", room.ID, len(snap.Players), snap.BetAmount)
}

func (d *Dispatcher) armTurn(room *game.Room) {
	roomID := room.ID
	room.ArmTurnTimer(d.turnTimeout, func(seq uint64) {
		d.onTurnTimeout(roomID, seq)
	})
}

// --- in-game relays ---

func (d *Dispatcher) handleDiceSend(c *Client, data string) {
	var p DiceSendPayload
	if !d.parse(c, data, &p) {
		return
	}
	room := d.rooms.Get(p.RoomID)
	if room == nil {
		log.Printf("[GAME] dice_send for unknown room %s", p.RoomID)
		return
	}

	unlock := room.Serialize()
	defer unlock()
	if err := room.RecordDice(p.PeerID, p.DiceFace); err != nil {
		log.Printf("[GAME] dice_send rejected in room %s: %v", room.ID, err)
		return
	}
	d.hub.ToRoomExcept(room.ID, c.UserID(), EvDiceReceived, DiceReceivedPayload{PeerID: p.PeerID, DiceFace: p.DiceFace})
	d.armTurn(room)
}

func (d *Dispatcher) handleTokenSend(c *Client, data string) {
	var p TokenSendPayload
	if !d.parse(c, data, &p) {
		return
	}
	room := d.rooms.Get(p.RoomID)
	if room == nil {
		log.Printf("[GAME] token_send for unknown room %s", p.RoomID)
		return
	}

	unlock := room.Serialize()
	defer unlock()
	lastDice, err := room.RecordMove(p.PeerID, p.TokenID, p.TokenValue)
	if err != nil {
		log.Printf("[GAME] token_send rejected in room %s: %v", room.ID, err)
		return
	}
	d.hub.ToRoomExcept(room.ID, c.UserID(), EvTokenReceived, TokenReceivedPayload{
		PeerID:     p.PeerID,
		TokenID:    p.TokenID,
		TokenValue: p.TokenValue,
		DiceFace:   lastDice,
	})
	d.armTurn(room)
}

func (d *Dispatcher) handleTokenReset(c *Client, data string) {
	var p TokenSendPayload
	if !d.parse(c, data, &p) {
		return
	}
	room := d.rooms.Get(p.RoomID)
	if room == nil || room.Status() != game.StatusPlaying {
		return
	}
	// Pure relay: the board rollback is client-side, dice_face 0 marks it
	d.hub.ToRoomExcept(room.ID, c.UserID(), EvTokenReset, TokenReceivedPayload{
		PeerID:     p.PeerID,
		TokenID:    p.TokenID,
		TokenValue: p.TokenValue,
		DiceFace:   0,
	})
}

func (d *Dispatcher) handleChangeTurn(c *Client, data string) {
	var p ChangeTurnPayload
	if !d.parse(c, data, &p) {
		return
	}
	room := d.rooms.Get(p.RoomID)
	if room == nil {
		return
	}

	unlock := room.Serialize()
	defer unlock()
	next, ok := room.AdvanceTurn()
	if !ok {
		if room.FinishNoActive() {
			d.settleRoom(room)
		}
		return
	}
	d.hub.ToRoom(room.ID, EvTurnChanged, next)
	d.armTurn(room)
}

func (d *Dispatcher) handleWinGame(c *Client, data string) {
	var p WinGamePayload
	if !d.parse(c, data, &p) {
		return
	}
	room := d.rooms.Get(p.RoomID)
	if room == nil {
		return
	}

	unlock := room.Serialize()
	defer unlock()
	finished, nextTurn, err := room.MarkWin(p.PeerID)
	if err != nil {
		log.Printf("[GAME] win_game rejected in room %s: %v", room.ID, err)
		return
	}
	d.hub.ToRoomExcept(room.ID, c.UserID(), EvWinGame, p.PeerID)

	if finished {
		// A reported final win settles on the spot; the animation delay is
		// reserved for the timer auto-win path
		d.settleRoom(room)
		return
	}
	if nextTurn >= 0 {
		d.hub.ToRoom(room.ID, EvTurnChanged, nextTurn)
		d.armTurn(room)
	}
}

func (d *Dispatcher) handleLeaveRoom(c *Client, data string) {
	var p LeaveRoomPayload
	if !d.parse(c, data, &p) {
		return
	}
	room := d.rooms.Get(p.RoomID)
	if room == nil {
		return
	}

	unlock := room.Serialize()
	defer unlock()
	empty, lastPeer, nextTurn, err := room.MarkLeft(p.PeerID)
	if err != nil {
		log.Printf("[GAME] leave_room rejected in room %s: %v", room.ID, err)
		return
	}

	d.hub.ToRoomExcept(room.ID, c.UserID(), EvLeaveRoom, p)
	d.hub.LeaveRoom(room.ID, c.UserID())

	if empty {
		d.removeRoom(room.ID)
		log.Printf("[MATCH] room %s emptied and destroyed", room.ID)
		return
	}
	if lastPeer >= 0 {
		// Everyone else is gone; the survivor wins on the spot
		d.hub.ToRoom(room.ID, EvWinGame, lastPeer)
		d.settleRoom(room)
		return
	}
	if room.Status() == game.StatusFinished {
		d.settleRoom(room)
		return
	}
	if nextTurn >= 0 {
		d.hub.ToRoom(room.ID, EvTurnChanged, nextTurn)
		d.armTurn(room)
	}
}

func (d *Dispatcher) handleUserChat(c *Client, data string) {
	var p UserChatPayload
	if !d.parse(c, data, &p) {
		return
	}
	if d.rooms.Get(p.RoomID) == nil {
		return
	}
	d.hub.ToRoomExcept(p.RoomID, c.UserID(), EvUserChat, p)
}

func (d *Dispatcher) handleUserEmoji(c *Client, data string) {
	var p UserEmojiPayload
	if !d.parse(c, data, &p) {
		return
	}
	if d.rooms.Get(p.RoomID) == nil {
		return
	}
	d.hub.ToRoomExcept(p.RoomID, c.UserID(), EvUserEmoji, p)
}

func (d *Dispatcher) handleUserGift(c *Client, data string) {
	var p UserGiftPayload
	if !d.parse(c, data, &p) {
		return
	}
	if d.rooms.Get(p.RoomID) == nil {
		return
	}
	d.hub.ToRoomExcept(p.RoomID, c.UserID(), EvUserSendGift, p)
}

// --- reconnection and matchmaking exit ---

func (d *Dispatcher) handleGetPreviousRoom(c *Client, data string) {
	var p GetPreviousRoomPayload
	if !d.parse(c, data, &p) {
		return
	}
	room := d.rooms.Get(p.RoomID)
	if room == nil {
		d.toClient(c, EvRoomNotFound, RoomNotFoundPayload{RoomID: p.RoomID, Message: "Room no longer exists"})
		return
	}
	player, ok := room.FindPlayer(p.UserID)
	if !ok {
		d.toClient(c, EvRoomNotFound, RoomNotFoundPayload{RoomID: p.RoomID, Message: "Not a member of this room"})
		return
	}

	c.setUserID(p.UserID)
	d.hub.Bind(p.UserID, c)
	d.hub.JoinRoom(room.ID, p.UserID, c)

	snap := room.Snapshot()
	roster := make([]RoomUserData, 0, len(snap.Players))
	for _, pl := range snap.Players {
		roster = append(roster, RoomUserData{UserID: pl.UserID, UserName: pl.UserName, PeerID: pl.PeerID})
	}
	d.hub.ToUser(p.UserID, EvPreviousRoomData, PreviousRoomDataPayload{
		RoomID:      snap.RoomID,
		RoomCoin:    snap.BetAmount,
		MaxPlayers:  snap.MaxPlayers,
		Status:      snap.Status,
		CurrentTurn: snap.CurrentTurn,
		MyPeerID:    player.PeerID,
		UserData:    roster,
		GameData:    snap.Game,
	})
	log.Printf("[RECONNECT] %s rejoined room %s as peer %d", p.UserID, room.ID, player.PeerID)
}

// handleRemoveFromMatchmaking takes a bare user id (optionally quoted) rather
// than a JSON object
func (d *Dispatcher) handleRemoveFromMatchmaking(data string) {
	userID := strings.Trim(strings.TrimSpace(data), `"`)
	if userID == "" {
		metrics.MalformedPayloads.Inc()
		return
	}
	room, ok := d.rooms.FindByUser(userID)
	if !ok || room.Status() != game.StatusWaiting {
		return
	}
	player, ok := room.FindPlayer(userID)
	if !ok || player.Status != game.PlayerPlaying {
		return
	}

	unlock := room.Serialize()
	defer unlock()
	empty, _, _, err := room.MarkLeft(player.PeerID)
	if err != nil {
		return
	}
	d.hub.LeaveRoom(room.ID, userID)
	d.hub.ToRoom(room.ID, EvLeaveRoom, LeaveRoomPayload{RoomID: room.ID, PeerID: player.PeerID})
	if empty {
		d.removeRoom(room.ID)
	}
	// The seat charge stays with the house; queue exits are not refunded
	log.Printf("[MATCH] %s left the queue for room %s", userID, room.ID)
}

// HandleDisconnect runs when a connection's read pump exits. If the user holds
// a seat, a grace timer gives them time to reconnect before any penalty.
func (d *Dispatcher) HandleDisconnect(c *Client) {
	userID := c.UserID()
	if userID == "" {
		return
	}
	if !d.hub.Unbind(userID, c) {
		// A newer connection already took over
		return
	}
	log.Printf("[WS] %s disconnected", userID)

	room, ok := d.rooms.FindByUser(userID)
	if !ok {
		return
	}
	player, ok := room.FindPlayer(userID)
	if !ok || player.Status != game.PlayerPlaying {
		return
	}
	roomID := room.ID
	peerID := player.PeerID
	log.Printf("[WS] grace timer started for %s in room %s", userID, roomID)

	time.AfterFunc(d.grace, func() {
		if d.hub.Client(userID) != nil {
			return // reconnected in time
		}
		r := d.rooms.Get(roomID)
		if r == nil {
			return
		}
		unlock := r.Serialize()
		defer unlock()

		cur, ok := r.FindPlayer(userID)
		if !ok || cur.Status != game.PlayerPlaying || cur.PeerID != peerID {
			return
		}
		switch r.Status() {
		case game.StatusWaiting:
			empty, _, _, err := r.MarkLeft(peerID)
			if err != nil {
				return
			}
			d.hub.LeaveRoom(roomID, userID)
			d.hub.ToRoom(roomID, EvLeaveRoom, LeaveRoomPayload{RoomID: roomID, PeerID: peerID})
			if empty {
				d.removeRoom(roomID)
			}
			log.Printf("[WS] %s dropped from waiting room %s after grace", userID, roomID)
		case game.StatusPlaying:
			if err := r.MarkTimeout(peerID); err != nil {
				return
			}
			d.hub.LeaveRoom(roomID, userID)
			d.hub.ToRoom(roomID, EvUserTimeout, peerID)
			log.Printf("[WS] %s timed out of room %s after grace", userID, roomID)
		}
	})
}

// --- timer expiry and settlement ---

func (d *Dispatcher) onTurnTimeout(roomID string, seq uint64) {
	room := d.rooms.Get(roomID)
	if room == nil {
		return
	}
	unlock := room.Serialize()
	defer unlock()

	res := room.HandleTurnTimeout(seq)
	if res.Stale {
		return
	}
	metrics.TurnTimeouts.Inc()

	if !res.Removed {
		d.hub.ToRoom(roomID, EvUserTimeoutCounter, TimeoutCounterPayload{PeerID: res.PeerID, NumOfTimeout: res.Strikes})
		if res.NextTurn >= 0 {
			d.hub.ToRoom(roomID, EvTurnChanged, res.NextTurn)
			d.armTurn(room)
		} else if res.Finished {
			d.settleRoom(room)
		}
		return
	}

	// Third strike: the player is out of the game
	d.hub.ToRoom(roomID, EvUserTimeout, res.PeerID)
	log.Printf("[GAME] peer %d removed from room %s after %d missed turns", res.PeerID, roomID, res.Strikes)

	switch {
	case res.AutoWinPeer >= 0:
		d.hub.ToRoom(roomID, EvWinGame, res.AutoWinPeer)
		d.settleAfterWin(room)
	case res.Finished:
		d.settleRoom(room)
	case res.NextTurn >= 0:
		d.hub.ToRoom(roomID, EvTurnChanged, res.NextTurn)
		d.armTurn(room)
	}
}

// settleAfterWin delays settlement after a timer auto-win so clients can play
// the win animation before game_over lands. Caller holds the room's handler
// lock.
func (d *Dispatcher) settleAfterWin(room *game.Room) {
	time.AfterFunc(game.WinSettleDelay, func() {
		unlock := room.Serialize()
		defer unlock()
		d.settleRoom(room)
	})
}

// settleRoom computes results, credits payouts, emits game_over and schedules
// room teardown. Idempotent: only the first claim on a FINISHED room settles.
// Caller holds the room's dispatch lock.
func (d *Dispatcher) settleRoom(room *game.Room) {
	if !room.BeginSettle() {
		return
	}

	snap := room.Snapshot()
	results := game.ComputeResults(snap)
	game.ApplyResults(context.Background(), d.store, results)
	metrics.GamesSettled.Inc()

	d.hub.ToRoom(room.ID, EvGameOver, results)
	log.Printf("[SETTLE] room %s settled (%d players)", room.ID, len(results))

	go func() {
		if err := d.history.ArchiveGame(context.Background(), snap, results); err != nil {
			log.Printf("[HISTORY] archive for room %s failed: %v", snap.RoomID, err)
		}
	}()

	// Keep the finished room around briefly for late game_over reads
	roomID := room.ID
	time.AfterFunc(game.FinishedRoomTTL, func() {
		d.removeRoom(roomID)
	})
}

func (d *Dispatcher) removeRoom(roomID string) {
	d.rooms.Remove(roomID)
	d.hub.DropRoom(roomID)
	metrics.ActiveRooms.Set(float64(d.rooms.Count()))
}
