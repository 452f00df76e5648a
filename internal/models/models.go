package models

import "time"

// User represents a player profile in the user store
type User struct {
	UserID           string    `json:"user_id"`
	UserName         string    `json:"user_name"`
	Coins            int       `json:"coins"`
	WinCount         int       `json:"win_count"`
	LostCount        int       `json:"lost_count"`
	TotalGamesPlayed int       `json:"total_games_played"`
	Level            int       `json:"level"`
	FCMToken         string    `json:"fcm_token,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	LastUpdate       time.Time `json:"last_update"`
}

// NewUser creates a fresh profile with the starting coin balance
func NewUser(userID, userName string, startingCoins int) *User {
	now := time.Now()
	return &User{
		UserID:    userID,
		UserName:  userName,
		Coins:     startingCoins,
		Level:     1,
		CreatedAt: now,
		LastUpdate: now,
	}
}

// RecomputeLevel derives level from the win count (one level per 10 wins)
func (u *User) RecomputeLevel() {
	u.Level = 1 + u.WinCount/10
}

// LeaderboardEntry is a single leaderboard row, score = win count
type LeaderboardEntry struct {
	UserID   string `json:"user_id"`
	WinCount int    `json:"win_count"`
}

// GameResult is one participant's row in a game_over settlement
type GameResult struct {
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	PeerID       int    `json:"peer_id"`
	PlayerRank   int    `json:"player_rank"`
	WinningCoin  int    `json:"winning_coin"`
	PlayerStatus int    `json:"player_status"`
}
