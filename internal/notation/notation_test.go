package notation

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/duelchess/internal/board"
	"github.com/park285/duelchess/internal/rules"
)

func TestSANList(t *testing.T) {
	got, err := SANList(board.Initial(), []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "g8f6", "e1g1"})
	if err != nil {
		t.Fatalf("SANList: %v", err)
	}
	want := []string{"e4", "e5", "Nf3", "Nc6", "Bc4", "Nf6", "O-O"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("SAN mismatch (-want +got):\n%s", diff)
	}
}

func TestSANPromotionAndCheck(t *testing.T) {
	s := board.MustParseFEN("4k3/P7/8/8/8/8/8/4K3 w - - 0 1")
	res, err := rules.Validate(s, rules.Candidate{From: board.A7, To: board.A8, Promotion: board.Queen})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	san, err := SAN(s, res.Move)
	if err != nil {
		t.Fatalf("SAN: %v", err)
	}
	if san != "a8=Q+" {
		t.Fatalf("SAN = %q, want a8=Q+", san)
	}
}

func TestSANListRejectsIllegal(t *testing.T) {
	_, err := SANList(board.Initial(), []string{"e2e4", "e2e4"})
	if !errors.Is(err, rules.ErrIllegalMove) {
		t.Fatalf("err = %v, want ErrIllegalMove", err)
	}
}

func TestParseMove(t *testing.T) {
	s := board.Initial()
	tests := []struct {
		text string
		want rules.Candidate
	}{
		{"e2e4", rules.Candidate{From: board.E2, To: board.E4}},
		{"Nf3", rules.Candidate{From: board.G1, To: board.F3}},
		{"e4", rules.Candidate{From: board.E2, To: board.E4}},
	}
	for _, tt := range tests {
		got, err := ParseMove(s, tt.text)
		if err != nil {
			t.Fatalf("ParseMove(%q): %v", tt.text, err)
		}
		if got != tt.want {
			t.Fatalf("ParseMove(%q) = %+v, want %+v", tt.text, got, tt.want)
		}
	}
	if _, err := ParseMove(s, "Qh5"); !errors.Is(err, ErrUnknownNotation) {
		t.Fatalf("ParseMove(Qh5) err = %v, want ErrUnknownNotation", err)
	}
}

func TestPGN(t *testing.T) {
	h := Header{
		Event:       "Ranked",
		Date:        time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		White:       `Al "the" Pal`,
		Black:       "Bo",
		Termination: "Checkmate",
		Result:      ResultToken("black"),
	}
	pgn := PGN(h, []string{"f3", "e5", "g4", "Qh4#"})
	for _, want := range []string{
		`[Event "Ranked"]`,
		`[Date "2024.03.09"]`,
		`[White "Al 'the' Pal"]`,
		`[Termination "checkmate"]`,
		`[Result "0-1"]`,
		"1. f3 e5 2. g4 Qh4# 0-1",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("PGN missing %q:\n%s", want, pgn)
		}
	}
}

func TestResultToken(t *testing.T) {
	for in, want := range map[string]string{"white": "1-0", " Black ": "0-1", "draw": "1/2-1/2", "": "*"} {
		if got := ResultToken(in); got != want {
			t.Fatalf("ResultToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSANConcurrentGames(t *testing.T) {
	positions := []board.State{
		board.Initial(),
		board.MustParseFEN("r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1"),
		board.MustParseFEN("rnbqkb1r/pppp1ppp/5n2/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3"),
		board.MustParseFEN("4k3/P7/8/8/8/8/8/4K3 w - - 0 1"),
	}
	type job struct {
		pos  board.State
		move board.Move
		want string
	}
	var jobs []job
	for _, pos := range positions {
		for _, m := range rules.LegalMoves(pos) {
			san, err := SAN(pos, m)
			if err != nil {
				t.Fatalf("SAN(%s, %s): %v", pos.FEN(), m.UCI(), err)
			}
			jobs = append(jobs, job{pos: pos, move: m, want: san})
		}
	}

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := range jobs {
				j := jobs[(i+offset)%len(jobs)]
				got, err := SAN(j.pos, j.move)
				if err != nil || got != j.want {
					t.Errorf("SAN(%s, %s) = %q, %v; want %q", j.pos.FEN(), j.move.UCI(), got, err, j.want)
					return
				}
				c, err := ParseMove(j.pos, j.want)
				if err != nil || c.From != j.move.From || c.To != j.move.To {
					t.Errorf("ParseMove(%s, %q) = %+v, %v; want %s", j.pos.FEN(), j.want, c, err, j.move.UCI())
					return
				}
			}
		}(g * 7)
	}
	wg.Wait()
}
