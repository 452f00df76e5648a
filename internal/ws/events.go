package ws

import (
	"encoding/json"

	"github.com/playludo/backend/internal/game"
)

// Frame is the transport envelope: a named event carrying a single
// JSON-encoded string payload. Field names and casing are protocol, not
// implementation detail; the misspelled dice_recieved/token_recieved events
// are kept as-is for client compatibility.
type Frame struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// Inbound event names
const (
	EvAddUser               = "add_user"
	EvGetUserData           = "get_userdata"
	EvRequestJoin           = "request_join"
	EvFriendCreateRoom      = "friend_create_room"
	EvFriendJoinRoom        = "friend_join_room"
	EvDiceSend              = "dice_send"
	EvTokenSend             = "token_send"
	EvTokenReset            = "token_reset"
	EvChangeTurn            = "change_turn"
	EvWinGame               = "win_game"
	EvLeaveRoom             = "leave_room"
	EvUserChat              = "user_chat"
	EvUserEmoji             = "user_emoji_id"
	EvUserSendGift          = "user_send_gift"
	EvGetPreviousRoom       = "get_previous_room"
	EvRemoveFromMatchmaking = "remove_from_matchmaking"
)

// Outbound event names
const (
	EvAuthToken          = "auth_token"
	EvUserData           = "user_data"
	EvGameStart          = "game_start"
	EvTurnChanged        = "turn_changed"
	EvDiceReceived       = "dice_recieved"
	EvTokenReceived      = "token_recieved"
	EvUserTimeoutCounter = "user_timeout_counter"
	EvUserTimeout        = "user_timeout"
	EvGameOver           = "game_over"
	EvPlayerJoined       = "player_joined"
	EvFriendRoomCode     = "friend_room_code"
	EvPreviousRoomData   = "previous_room_data"
	EvRoomNotFound       = "room_not_found"
	EvInsufficientCoins  = "insufficient_coins"
	EvFriendError        = "friend_error_response"
	EvError              = "error"
)

// Inbound payloads

type AddUserPayload struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	FCMToken string `json:"fcm_token"`
}

type GetUserDataPayload struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

type RequestJoinPayload struct {
	UserID          string `json:"user_id"`
	UserName        string `json:"user_name"`
	RoomCoinValue   int    `json:"room_coin_value"`
	RoomPlayersSize int    `json:"room_players_size"`
}

type FriendCreateRoomPayload struct {
	UserID          string `json:"user_id"`
	UserName        string `json:"user_name"`
	RoomCoinValue   int    `json:"room_coin_value"`
	RoomPlayersSize int    `json:"room_players_size"`
	RoomCode        string `json:"room_code"`
}

type FriendJoinRoomPayload struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	RoomCode string `json:"room_code"`
}

type DiceSendPayload struct {
	RoomID   string `json:"room_id"`
	PeerID   int    `json:"peer_id"`
	DiceFace int    `json:"dice_face"`
}

type TokenSendPayload struct {
	RoomID     string `json:"room_id"`
	PeerID     int    `json:"peer_id"`
	TokenID    int    `json:"token_id"`
	TokenValue int    `json:"token_value"`
}

type ChangeTurnPayload struct {
	RoomID string `json:"room_id"`
	PeerID int    `json:"peer_id"`
}

type WinGamePayload struct {
	RoomID     string `json:"room_id"`
	PeerID     int    `json:"peer_id"`
	PlayerRank int    `json:"player_rank"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"room_id"`
	PeerID int    `json:"peer_id"`
}

type UserChatPayload struct {
	RoomID   string `json:"room_id"`
	PeerID   int    `json:"peer_id"`
	ChatText string `json:"chat_text"`
}

type UserEmojiPayload struct {
	RoomID  string `json:"room_id"`
	PeerID  int    `json:"peer_id"`
	EmojiID int    `json:"emoji_id"`
}

type UserGiftPayload struct {
	RoomID string `json:"room_id"`
	PeerID int    `json:"peer_id"`
	GiftID int    `json:"gift_id"`
}

type GetPreviousRoomPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// Outbound payloads

type UserDataPayload struct {
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	UserCoin   int    `json:"user_coin"`
	NumOfWin   int    `json:"numof_win"`
	NumOfLose  int    `json:"numof_lose"`
	UserLevel  int    `json:"user_level"`
	TotalGames int    `json:"total_games"`
}

type RoomUserData struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	PeerID   int    `json:"peer_id"`
}

type GameStartPayload struct {
	RoomID   string         `json:"room_id"`
	RoomCoin int            `json:"room_coin"`
	UserData []RoomUserData `json:"userdata"`
}

type DiceReceivedPayload struct {
	PeerID   int `json:"peer_id"`
	DiceFace int `json:"dice_face"`
}

type TokenReceivedPayload struct {
	PeerID     int `json:"peer_id"`
	TokenID    int `json:"token_id"`
	TokenValue int `json:"token_value"`
	DiceFace   int `json:"dice_face"`
}

type TimeoutCounterPayload struct {
	PeerID       int `json:"peer_id"`
	NumOfTimeout int `json:"numoftimeout"`
}

type PlayerJoinedPayload struct {
	PeerID      int    `json:"peer_id"`
	UserName    string `json:"user_name"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
}

type InsufficientCoinsPayload struct {
	Required int `json:"required"`
	Current  int `json:"current"`
}

type FriendRoomCodePayload struct {
	RoomCode string `json:"room_code"`
}

type FriendErrorPayload struct {
	Message string `json:"message"`
}

type RoomNotFoundPayload struct {
	RoomID  string `json:"room_id"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type PreviousRoomDataPayload struct {
	RoomID      string          `json:"room_id"`
	RoomCoin    int             `json:"room_coin"`
	MaxPlayers  int             `json:"max_players"`
	Status      game.RoomStatus `json:"status"`
	CurrentTurn int             `json:"current_turn"`
	MyPeerID    int             `json:"my_peer_id"`
	UserData    []RoomUserData  `json:"userdata"`
	GameData    game.GameData   `json:"game_data"`
}

// encodeFrame wraps payload into the transport envelope. The payload is
// JSON-encoded into the data string, so a bare int or string payload encodes
// to "2" or "\"token\"" exactly as the protocol expects.
func encodeFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: string(data)})
}
