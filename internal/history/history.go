package history

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/playludo/backend/internal/game"
	"github.com/playludo/backend/internal/models"
)

// Store archives settled games to PostgreSQL, one row per participant. The
// archive is optional: a nil *Store (no DATABASE_URL configured) no-ops, so
// callers never guard the calls.
type Store struct {
	db *sqlx.DB
}

// Connect opens the archive database. Returns (nil, nil) when databaseURL is
// empty, which disables archiving.
func Connect(databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, nil
	}
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database pool
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const insertResult = `
	INSERT INTO game_history (
		room_id, bet_amount, max_players,
		user_id, user_name, peer_id,
		player_rank, winning_coin, player_status
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// ArchiveGame records one settled game
func (s *Store) ArchiveGame(ctx context.Context, snap game.Snapshot, results []models.GameResult) error {
	if s == nil || s.db == nil {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for _, res := range results {
		if _, err := tx.ExecContext(ctx, insertResult,
			snap.RoomID, snap.BetAmount, snap.MaxPlayers,
			res.UserID, res.UserName, res.PeerID,
			res.PlayerRank, res.WinningCoin, res.PlayerStatus,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// HistoryRow is one archived participant row
type HistoryRow struct {
	ID           int64  `db:"id" json:"id"`
	RoomID       string `db:"room_id" json:"room_id"`
	BetAmount    int    `db:"bet_amount" json:"bet_amount"`
	MaxPlayers   int    `db:"max_players" json:"max_players"`
	UserID       string `db:"user_id" json:"user_id"`
	UserName     string `db:"user_name" json:"user_name"`
	PeerID       int    `db:"peer_id" json:"peer_id"`
	PlayerRank   int    `db:"player_rank" json:"player_rank"`
	WinningCoin  int    `db:"winning_coin" json:"winning_coin"`
	PlayerStatus int    `db:"player_status" json:"player_status"`
	CreatedAt    string `db:"created_at" json:"created_at"`
}

// RecentForUser returns the user's most recent archived games, newest first
func (s *Store) RecentForUser(ctx context.Context, userID string, limit int) ([]HistoryRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	rows := []HistoryRow{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, room_id, bet_amount, max_players, user_id, user_name,
		        peer_id, player_rank, winning_coin, player_status, created_at
		   FROM game_history
		  WHERE user_id = $1
		  ORDER BY id DESC
		  LIMIT $2`, userID, limit)
	return rows, err
}
