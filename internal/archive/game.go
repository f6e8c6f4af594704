package archive

import (
	"context"
	"errors"
	"time"
)

var ErrMissingID = errors.New("game id is required")

// Game is the persisted record of one game, active or finished.
type Game struct {
	ID          string
	WhiteID     string
	WhiteName   string
	BlackID     string
	BlackName   string
	StartFEN    string
	FEN         string
	TimeControl string
	Status      string
	Reason      string
	Winner      string
	MovesUCI    []string
	MovesSAN    []string
	PGN         string
	Seq         uint64
	StartedAt   time.Time
	UpdatedAt   time.Time
}

// Finished reports whether the game reached a terminal status.
func (g Game) Finished() bool { return g.Status != "" && g.Status != "ACTIVE" }

// Duration is the wall time between creation and the last update.
func (g Game) Duration() time.Duration {
	d := g.UpdatedAt.Sub(g.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Repository persists game history. LoadGame returns (nil, nil) when the
// id is unknown.
type Repository interface {
	SaveGame(ctx context.Context, g Game) error
	LoadGame(ctx context.Context, id string) (*Game, error)
	RecentGames(ctx context.Context, userID string, limit int) ([]Game, error)
}

func cloneGame(g Game) Game {
	g.MovesUCI = append([]string(nil), g.MovesUCI...)
	g.MovesSAN = append([]string(nil), g.MovesSAN...)
	return g
}
