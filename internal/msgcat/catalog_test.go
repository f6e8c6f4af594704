package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/park285/duelchess/internal/rules"
)

func TestEveryRejectReasonHasText(t *testing.T) {
	c := MustDefault()
	reasons := []rules.Reason{
		rules.ReasonInvalidSquare, rules.ReasonNoPieceAtSource, rules.ReasonWrongTurn,
		rules.ReasonDestinationOccupied, rules.ReasonWrongPattern, rules.ReasonBlockedPath,
		rules.ReasonCastlingUnavailable, rules.ReasonCastleThroughCheck, rules.ReasonPromotionRequired,
		rules.ReasonInvalidPromotion, rules.ReasonExposesKing,
	}
	data := map[string]string{"Move": "e2e9", "From": "e2", "To": "e4"}
	for _, r := range reasons {
		if _, err := c.Render("reject."+string(r), data); err != nil {
			t.Fatalf("reject.%s: %v", r, err)
		}
	}
}

func TestRenderMissingData(t *testing.T) {
	c := MustDefault()
	if _, err := c.Render("reject.no_piece_at_source", map[string]string{}); err == nil {
		t.Fatalf("expected missingkey error")
	}
	if got := c.Text("reject.no_piece_at_source", map[string]string{}, "fallback"); got != "fallback" {
		t.Fatalf("Text = %q", got)
	}
	if _, err := c.Render("nope.nothing", nil); err == nil {
		t.Fatalf("expected not found error")
	}
}

func TestKoreanFallsBackToEnglish(t *testing.T) {
	c, err := New("ko", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, _ := c.Render("reject.wrong_turn", nil); got != "상대 차례입니다." {
		t.Fatalf("wrong_turn = %q", got)
	}
	// not translated, English text remains
	if got, _ := c.Render("error.capacity", nil); !strings.HasPrefix(got, "Too many games") {
		t.Fatalf("capacity = %q", got)
	}
	if _, err := New("xx", ""); err == nil {
		t.Fatalf("expected error for unknown language")
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("a.yaml", "reject:\n  wrong_turn: \"Wait for {{.Name}}.\"\n")
	write("notes.txt", "ignored")

	c, err := New("en", dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("reject.wrong_turn", map[string]string{"Name": "Bob"}, ""); got != "Wait for Bob." {
		t.Fatalf("override = %q", got)
	}

	write("b.yml", "reject:\n  wrong_turn: \"dup\"\n")
	if _, err := New("en", dir); err == nil || !strings.Contains(err.Error(), "duplicate override key") {
		t.Fatalf("err = %v, want duplicate key", err)
	}
}

func TestNonStringLeafRejected(t *testing.T) {
	if _, err := parseYAMLToFlat([]byte("a:\n  b: 3\n")); err == nil {
		t.Fatalf("expected error for int leaf")
	}
}
