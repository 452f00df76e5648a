package game

import (
	"context"
	"log"
	"sort"

	"github.com/playludo/backend/internal/models"
)

// ComputeResults ranks a finished roster and assigns payouts.
//
// WIN players sort first, stable within the group, everyone else keeps roster
// order after them. For 2-player rooms the rank-1 WIN takes 2x the bet; for
// 4-player rooms rank-1 WIN takes 3x and a rank-2 WIN takes 1x. Non-WIN
// statuses never receive coins regardless of rank.
func ComputeResults(snap Snapshot) []models.GameResult {
	players := make([]Player, len(snap.Players))
	copy(players, snap.Players)

	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Status == PlayerWin && players[j].Status != PlayerWin
	})

	results := make([]models.GameResult, len(players))
	for i, p := range players {
		rank := i + 1
		winning := 0
		if p.Status == PlayerWin {
			switch {
			case snap.MaxPlayers == 2 && rank == 1:
				winning = 2 * snap.BetAmount
			case snap.MaxPlayers == 4 && rank == 1:
				winning = 3 * snap.BetAmount
			case snap.MaxPlayers == 4 && rank == 2:
				winning = snap.BetAmount
			}
		}
		results[i] = models.GameResult{
			UserID:       p.UserID,
			UserName:     p.UserName,
			PeerID:       p.PeerID,
			PlayerRank:   rank,
			WinningCoin:  winning,
			PlayerStatus: int(p.Status),
		}
	}
	return results
}

// UserWriter is the slice of the user store settlement needs
type UserWriter interface {
	UpdateUser(ctx context.Context, userID string, fn func(*models.User) error) error
	LeaderboardUpsert(ctx context.Context, userID string, winCount int) error
}

// ApplyResults credits payouts and updates per-user statistics and the
// leaderboard. Each credit is one atomic store update, so it cannot lose a
// seat charge racing in from the user's next game. Best-effort: a backend
// failure for one user never blocks the others, and the caller emits
// game_over only after every credit has been attempted.
func ApplyResults(ctx context.Context, store UserWriter, results []models.GameResult) {
	for _, res := range results {
		winCount := 0
		err := store.UpdateUser(ctx, res.UserID, func(user *models.User) error {
			user.Coins += res.WinningCoin
			user.TotalGamesPlayed++
			if res.PlayerStatus == int(PlayerWin) {
				user.WinCount++
				user.RecomputeLevel()
			} else {
				user.LostCount++
			}
			winCount = user.WinCount
			return nil
		})
		if err != nil {
			log.Printf("[SETTLE] credit user %s failed: %v", res.UserID, err)
			continue
		}
		if err := store.LeaderboardUpsert(ctx, res.UserID, winCount); err != nil {
			log.Printf("[SETTLE] leaderboard upsert for %s failed: %v", res.UserID, err)
		}
	}
}
