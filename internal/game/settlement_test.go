package game

import (
	"context"
	"testing"

	"github.com/playludo/backend/internal/models"
)

func finishedSnapshot(bet, size int, statuses []PlayerStatus) Snapshot {
	names := []string{"alice", "bob", "carol", "dave"}
	players := make([]Player, len(statuses))
	for i, s := range statuses {
		players[i] = Player{UserID: names[i], UserName: names[i], PeerID: i, Status: s}
	}
	return Snapshot{
		RoomID:     "room-1",
		BetAmount:  bet,
		MaxPlayers: size,
		Status:     StatusFinished,
		Players:    players,
	}
}

func TestComputeResultsTwoPlayer(t *testing.T) {
	snap := finishedSnapshot(100, 2, []PlayerStatus{PlayerWin, PlayerPlaying})
	results := ComputeResults(snap)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].UserID != "alice" || results[0].PlayerRank != 1 || results[0].WinningCoin != 200 {
		t.Errorf("winner row = %+v, want alice rank 1 payout 200", results[0])
	}
	if results[1].UserID != "bob" || results[1].PlayerRank != 2 || results[1].WinningCoin != 0 {
		t.Errorf("loser row = %+v, want bob rank 2 payout 0", results[1])
	}
}

func TestComputeResultsFourPlayerSplit(t *testing.T) {
	// Peers 1 and 2 reported wins in that order; pot is 4x50 = 200
	snap := finishedSnapshot(50, 4, []PlayerStatus{PlayerLeft, PlayerWin, PlayerWin, PlayerTimeout})
	results := ComputeResults(snap)

	payouts := map[string]int{}
	ranks := map[string]int{}
	for _, res := range results {
		payouts[res.UserID] = res.WinningCoin
		ranks[res.UserID] = res.PlayerRank
	}

	if payouts["bob"] != 150 || ranks["bob"] != 1 {
		t.Errorf("bob: payout %d rank %d, want 150 rank 1", payouts["bob"], ranks["bob"])
	}
	if payouts["carol"] != 50 || ranks["carol"] != 2 {
		t.Errorf("carol: payout %d rank %d, want 50 rank 2", payouts["carol"], ranks["carol"])
	}
	if payouts["alice"] != 0 || payouts["dave"] != 0 {
		t.Errorf("non-winners paid: alice %d dave %d", payouts["alice"], payouts["dave"])
	}

	total := 0
	for _, res := range results {
		total += res.WinningCoin
	}
	if total != 200 {
		t.Errorf("total payout = %d, want the full 200 pot", total)
	}
}

func TestComputeResultsNonWinRankNeverPays(t *testing.T) {
	// Everybody timed out or left; nobody takes the pot
	snap := finishedSnapshot(100, 4, []PlayerStatus{PlayerTimeout, PlayerLeft, PlayerTimeout, PlayerLeft})
	for _, res := range ComputeResults(snap) {
		if res.WinningCoin != 0 {
			t.Errorf("peer %d paid %d without a WIN", res.PeerID, res.WinningCoin)
		}
	}
}

// recordingWriter is an in-memory UserWriter for settlement tests
type recordingWriter struct {
	users map[string]*models.User
	board map[string]int
}

func newRecordingWriter(users ...*models.User) *recordingWriter {
	w := &recordingWriter{users: map[string]*models.User{}, board: map[string]int{}}
	for _, u := range users {
		cp := *u
		w.users[u.UserID] = &cp
	}
	return w
}

func (w *recordingWriter) UpdateUser(ctx context.Context, userID string, fn func(*models.User) error) error {
	u, ok := w.users[userID]
	if !ok {
		return context.Canceled
	}
	cp := *u
	if err := fn(&cp); err != nil {
		return err
	}
	w.users[userID] = &cp
	return nil
}

func (w *recordingWriter) LeaderboardUpsert(ctx context.Context, userID string, winCount int) error {
	w.board[userID] = winCount
	return nil
}

func TestApplyResultsUpdatesStatsAndLeaderboard(t *testing.T) {
	alice := models.NewUser("alice", "alice", 900)
	alice.WinCount = 9
	bob := models.NewUser("bob", "bob", 900)
	w := newRecordingWriter(alice, bob)

	snap := finishedSnapshot(100, 2, []PlayerStatus{PlayerWin, PlayerPlaying})
	ApplyResults(context.Background(), w, ComputeResults(snap))

	got := w.users["alice"]
	if got.Coins != 1100 {
		t.Errorf("winner coins = %d, want 1100", got.Coins)
	}
	if got.WinCount != 10 || got.TotalGamesPlayed != 1 {
		t.Errorf("winner stats = %d wins %d games, want 10/1", got.WinCount, got.TotalGamesPlayed)
	}
	if got.Level != 2 {
		t.Errorf("winner level = %d, want 2 at ten wins", got.Level)
	}
	if w.board["alice"] != 10 {
		t.Errorf("leaderboard score = %d, want 10", w.board["alice"])
	}

	got = w.users["bob"]
	if got.Coins != 900 {
		t.Errorf("loser coins = %d, want 900", got.Coins)
	}
	if got.LostCount != 1 || got.TotalGamesPlayed != 1 {
		t.Errorf("loser stats = %d losses %d games, want 1/1", got.LostCount, got.TotalGamesPlayed)
	}
}

func TestApplyResultsSkipsMissingUser(t *testing.T) {
	bob := models.NewUser("bob", "bob", 900)
	w := newRecordingWriter(bob)

	// alice is unknown to the store; bob's update must still land
	snap := finishedSnapshot(100, 2, []PlayerStatus{PlayerWin, PlayerPlaying})
	ApplyResults(context.Background(), w, ComputeResults(snap))

	if w.users["bob"].TotalGamesPlayed != 1 {
		t.Error("failure for one user blocked the others")
	}
}
