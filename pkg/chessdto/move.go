package chessdto

// Move describes an accepted move.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Piece     string `json:"piece"`
	Color     string `json:"color"`
	Captured  string `json:"captured,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	UCI       string `json:"uci"`
	SAN       string `json:"san,omitempty"`
	Castle    bool   `json:"castle,omitempty"`
	EnPassant bool   `json:"en_passant,omitempty"`
}

// LegalMoves answers a highlighting query for one square.
type LegalMoves struct {
	GameID string   `json:"game_id"`
	From   string   `json:"from"`
	To     []string `json:"to"`
	// Promotion lists destinations that need a promotion choice.
	Promotion []string `json:"promotion,omitempty"`
}
