package chessdto

import "time"

type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Clock carries remaining time in milliseconds; zero values mean untimed.
type Clock struct {
	WhiteMs int64 `json:"white_ms"`
	BlackMs int64 `json:"black_ms"`
	// DeadlineUnixMs is when the side to move flags, if timed.
	DeadlineUnixMs int64 `json:"deadline_unix_ms,omitempty"`
}

// GameSnapshot is the full post-commit view of a session, sent on join and
// on resynchronisation.
type GameSnapshot struct {
	GameID      string      `json:"game_id"`
	Seq         uint64      `json:"seq"`
	Status      string      `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	Winner      string      `json:"winner,omitempty"`
	White       Participant `json:"white"`
	Black       Participant `json:"black"`
	Turn        string      `json:"turn"`
	FEN         string      `json:"fen"`
	InCheck     bool        `json:"in_check,omitempty"`
	MovesUCI    []string    `json:"moves_uci"`
	MovesSAN    []string    `json:"moves_san"`
	DrawOfferBy string      `json:"draw_offer_by,omitempty"`
	TimeControl string      `json:"time_control,omitempty"`
	Clock       *Clock      `json:"clock,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// GameRecord summarises an archived game for history listings.
type GameRecord struct {
	GameID      string      `json:"game_id"`
	White       Participant `json:"white"`
	Black       Participant `json:"black"`
	Status      string      `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	Winner      string      `json:"winner,omitempty"`
	Plies       int         `json:"plies"`
	TimeControl string      `json:"time_control,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	DurationMs  int64       `json:"duration_ms"`
}
