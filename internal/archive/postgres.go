package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eskrenkovic/migrate-go"
	"github.com/eskrenkovic/tql"
	_ "github.com/lib/pq"
)

// PostgresRepository stores games in the duel_games table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository opens databaseURL, applies the migrations found in
// migrationsPath (skipped when empty) and verifies the connection.
func NewPostgresRepository(ctx context.Context, databaseURL, migrationsPath string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if strings.TrimSpace(migrationsPath) != "" {
		if err := migrate.Run(ctx, db, migrationsPath); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

type gameRow struct {
	ID          string    `db:"game_id"`
	WhiteID     string    `db:"white_id"`
	WhiteName   string    `db:"white_name"`
	BlackID     string    `db:"black_id"`
	BlackName   string    `db:"black_name"`
	StartFEN    string    `db:"start_fen"`
	FEN         string    `db:"fen"`
	TimeControl string    `db:"time_control"`
	Status      string    `db:"status"`
	Reason      string    `db:"reason"`
	Winner      string    `db:"winner"`
	MovesUCI    string    `db:"moves_uci"`
	MovesSAN    string    `db:"moves_san"`
	PGN         string    `db:"pgn"`
	Seq         int64     `db:"seq"`
	StartedAt   time.Time `db:"started_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	DurationMS  int64     `db:"duration_ms"`
}

func toRow(g Game) (gameRow, error) {
	uci, err := json.Marshal(nonNil(g.MovesUCI))
	if err != nil {
		return gameRow{}, fmt.Errorf("marshal moves_uci: %w", err)
	}
	san, err := json.Marshal(nonNil(g.MovesSAN))
	if err != nil {
		return gameRow{}, fmt.Errorf("marshal moves_san: %w", err)
	}
	return gameRow{
		ID:          g.ID,
		WhiteID:     g.WhiteID,
		WhiteName:   g.WhiteName,
		BlackID:     g.BlackID,
		BlackName:   g.BlackName,
		StartFEN:    g.StartFEN,
		FEN:         g.FEN,
		TimeControl: g.TimeControl,
		Status:      g.Status,
		Reason:      g.Reason,
		Winner:      g.Winner,
		MovesUCI:    string(uci),
		MovesSAN:    string(san),
		PGN:         g.PGN,
		Seq:         int64(g.Seq),
		StartedAt:   g.StartedAt,
		UpdatedAt:   g.UpdatedAt,
		DurationMS:  g.Duration().Milliseconds(),
	}, nil
}

func (row gameRow) game() (Game, error) {
	g := Game{
		ID:          row.ID,
		WhiteID:     row.WhiteID,
		WhiteName:   row.WhiteName,
		BlackID:     row.BlackID,
		BlackName:   row.BlackName,
		StartFEN:    row.StartFEN,
		FEN:         row.FEN,
		TimeControl: row.TimeControl,
		Status:      row.Status,
		Reason:      row.Reason,
		Winner:      row.Winner,
		PGN:         row.PGN,
		Seq:         uint64(row.Seq),
		StartedAt:   row.StartedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.MovesUCI), &g.MovesUCI); err != nil {
		return Game{}, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal([]byte(row.MovesSAN), &g.MovesSAN); err != nil {
		return Game{}, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return g, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// SaveGame upserts g. Saving the same id again overwrites the previous row.
func (r *PostgresRepository) SaveGame(ctx context.Context, g Game) error {
	if strings.TrimSpace(g.ID) == "" {
		return ErrMissingID
	}
	row, err := toRow(g)
	if err != nil {
		return err
	}
	const stmt = `
		INSERT INTO duel_games (
			game_id, white_id, white_name, black_id, black_name,
			start_fen, fen, time_control, status, reason, winner,
			moves_uci, moves_san, pgn, seq, started_at, updated_at, duration_ms
		) VALUES (
			:game_id, :white_id, :white_name, :black_id, :black_name,
			:start_fen, :fen, :time_control, :status, :reason, :winner,
			:moves_uci, :moves_san, :pgn, :seq, :started_at, :updated_at, :duration_ms
		) ON CONFLICT (game_id) DO UPDATE SET
			white_name=EXCLUDED.white_name,
			black_name=EXCLUDED.black_name,
			fen=EXCLUDED.fen,
			status=EXCLUDED.status,
			reason=EXCLUDED.reason,
			winner=EXCLUDED.winner,
			moves_uci=EXCLUDED.moves_uci,
			moves_san=EXCLUDED.moves_san,
			pgn=EXCLUDED.pgn,
			seq=EXCLUDED.seq,
			updated_at=EXCLUDED.updated_at,
			duration_ms=EXCLUDED.duration_ms;`
	if _, err := tql.Exec(ctx, r.db, stmt, row); err != nil {
		return fmt.Errorf("upsert game %s: %w", g.ID, err)
	}
	return nil
}

const selectGame = `
	SELECT
		game_id, white_id, white_name, black_id, black_name,
		start_fen, fen, time_control, status, reason, winner,
		moves_uci, moves_san, pgn, seq, started_at, updated_at, duration_ms
	FROM duel_games`

func (r *PostgresRepository) LoadGame(ctx context.Context, id string) (*Game, error) {
	row, err := tql.QueryFirst[gameRow](ctx, r.db, selectGame+" WHERE game_id = $1;", strings.TrimSpace(id))
	switch {
	case err != nil && errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("select game %s: %w", id, err)
	}
	g, err := row.game()
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *PostgresRepository) RecentGames(ctx context.Context, userID string, limit int) ([]Game, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := tql.Query[gameRow](ctx, r.db,
		selectGame+" WHERE white_id = $1 OR black_id = $1 ORDER BY updated_at DESC LIMIT $2;",
		strings.TrimSpace(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("select games for %s: %w", userID, err)
	}
	games := make([]Game, 0, len(rows))
	for _, row := range rows {
		g, err := row.game()
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, nil
}
