package tracker

import (
	"errors"
	"slices"
	"sync"
	"testing"
)

func commit(t *testing.T, tr *Tracker, name, raw string) int {
	t.Helper()

	if err := tr.StageScoreInput(name, raw); err != nil {
		t.Fatalf("stage %q for %q: %v", raw, name, err)
	}
	score, err := tr.CommitScore(name)
	if err != nil {
		t.Fatalf("commit %q for %q: %v", raw, name, err)
	}
	return score
}

func checkConsistent(t *testing.T, tr *Tracker) {
	t.Helper()

	tr.mu.RLock()
	defer tr.mu.RUnlock()

	seen := make(map[string]bool, len(tr.players))
	for _, p := range tr.players {
		if seen[p] {
			t.Fatalf("duplicate player %q in %v", p, tr.players)
		}
		seen[p] = true
		if _, ok := tr.ledger[p]; !ok {
			t.Fatalf("player %q has no ledger", p)
		}
		if _, ok := tr.pending[p]; !ok {
			t.Fatalf("player %q has no pending input", p)
		}
	}
	if len(tr.ledger) != len(tr.players) || len(tr.pending) != len(tr.players) {
		t.Fatalf("ledger/pending keys (%d/%d) do not match %d players",
			len(tr.ledger), len(tr.pending), len(tr.players))
	}
}

func TestAddPlayer(t *testing.T) {
	tr := New()

	tests := []struct {
		name string
		want AddOutcome
	}{
		{"", AddBlank},
		{"   ", AddBlank},
		{"\t\n", AddBlank},
		{"Alice", AddAdded},
		{"Alice", AddDuplicate},
		{"alice", AddAdded},
		{" Alice ", AddAdded},
	}

	for _, tc := range tests {
		if got := tr.AddPlayer(tc.name); got != tc.want {
			t.Errorf("AddPlayer(%q) = %v, want %v", tc.name, got, tc.want)
		}
		checkConsistent(t, tr)
	}

	want := []string{"Alice", "alice", " Alice "}
	if got := tr.Players(); !slices.Equal(got, want) {
		t.Fatalf("Players() = %q, want %q", got, want)
	}
}

func TestAddOutcomeClearsInput(t *testing.T) {
	if AddBlank.ClearsInput() {
		t.Error("blank add should leave the input alone")
	}
	if !AddDuplicate.ClearsInput() || !AddAdded.ClearsInput() {
		t.Error("duplicate and successful adds should clear the input")
	}
}

func TestAddPlayerTwiceKeepsOne(t *testing.T) {
	tr := New()
	tr.AddPlayer("Alice")
	tr.AddPlayer("Alice")

	if got := tr.Players(); !slices.Equal(got, []string{"Alice"}) {
		t.Fatalf("Players() = %q, want [Alice]", got)
	}
}

func TestRemovePlayerKeepsOrder(t *testing.T) {
	tr := New()
	for _, p := range []string{"a", "b", "c", "d"} {
		tr.AddPlayer(p)
	}

	tr.RemovePlayer("b")
	tr.RemovePlayer("missing")
	checkConsistent(t, tr)

	if got := tr.Players(); !slices.Equal(got, []string{"a", "c", "d"}) {
		t.Fatalf("Players() = %q, want [a c d]", got)
	}
}

func TestRemoveAndReaddStartsEmpty(t *testing.T) {
	tr := New()
	tr.AddPlayer("Bob")
	commit(t, tr, "Bob", "10")
	if err := tr.StageScoreInput("Bob", "99"); err != nil {
		t.Fatal(err)
	}

	tr.RemovePlayer("Bob")
	checkConsistent(t, tr)

	if _, err := tr.ComputeTotal("Bob"); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("ComputeTotal after remove: err = %v, want ErrUnknownPlayer", err)
	}

	tr.AddPlayer("Bob")
	entries, err := tr.Ledger("Bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("re-added player has ledger %v", entries)
	}
	if raw, _ := tr.PendingInput("Bob"); raw != "" {
		t.Fatalf("re-added player has pending input %q", raw)
	}
}

func TestCommitScoreInvalid(t *testing.T) {
	for _, raw := range []string{"abc", "", "   ", ".5", "Infinity", "1e", "--1", "99999999999999999999"} {
		t.Run(raw, func(t *testing.T) {
			tr := New()
			tr.AddPlayer("p")
			commit(t, tr, "p", "3")

			if err := tr.StageScoreInput("p", raw); err != nil {
				t.Fatal(err)
			}

			_, err := tr.CommitScore("p")

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("CommitScore(%q) err = %v, want ValidationError", raw, err)
			}
			if !errors.Is(err, ErrInvalidScore) {
				t.Fatalf("error %v does not wrap ErrInvalidScore", err)
			}
			if verr.Message() != "Please enter a valid number." {
				t.Fatalf("Message() = %q", verr.Message())
			}

			entries, _ := tr.Ledger("p")
			if !slices.Equal(entries, []int{3}) {
				t.Fatalf("ledger changed to %v", entries)
			}
			if pending, _ := tr.PendingInput("p"); pending != raw {
				t.Fatalf("pending = %q, want %q kept", pending, raw)
			}
		})
	}
}

func TestCommitScoreValid(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"12", 12},
		{" 12 ", 12},
		{"-4", -4},
		{"+7", 7},
		{"12.9", 12},
		{"-0.5", 0},
		{"1e3", 1},
		{"0x1F", 31},
		{"0b101", 0},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			tr := New()
			tr.AddPlayer("p")

			if got := commit(t, tr, "p", tc.raw); got != tc.want {
				t.Fatalf("CommitScore(%q) = %d, want %d", tc.raw, got, tc.want)
			}

			entries, _ := tr.Ledger("p")
			if !slices.Equal(entries, []int{tc.want}) {
				t.Fatalf("ledger = %v, want [%d]", entries, tc.want)
			}
			if pending, _ := tr.PendingInput("p"); pending != "" {
				t.Fatalf("pending = %q, want cleared", pending)
			}
		})
	}
}

func TestUnknownPlayer(t *testing.T) {
	tr := New()

	checks := map[string]error{
		"StageScoreInput": tr.StageScoreInput("ghost", "1"),
	}
	_, checks["CommitScore"] = tr.CommitScore("ghost")
	_, checks["ComputeTotal"] = tr.ComputeTotal("ghost")
	_, checks["RecentHistory"] = tr.RecentHistory("ghost")
	_, checks["IsEliminated"] = tr.IsEliminated("ghost")
	_, checks["PendingInput"] = tr.PendingInput("ghost")
	_, checks["Ledger"] = tr.Ledger("ghost")

	for op, err := range checks {
		var lerr *LookupError
		if !errors.As(err, &lerr) || lerr.Player != "ghost" {
			t.Errorf("%s: err = %v, want LookupError for ghost", op, err)
		}
	}

	checkConsistent(t, tr)
	if len(tr.Players()) != 0 {
		t.Fatal("lookups must not register players")
	}
}

func TestTotalsAndClear(t *testing.T) {
	tr := New()
	tr.AddPlayer("p")
	tr.AddPlayer("q")

	if total, _ := tr.ComputeTotal("p"); total != 0 {
		t.Fatalf("empty total = %d", total)
	}

	for _, s := range []string{"10", "20", "5"} {
		commit(t, tr, "p", s)
	}
	commit(t, tr, "q", "8")
	if err := tr.StageScoreInput("q", "4"); err != nil {
		t.Fatal(err)
	}
	tr.SetCutoff("30")

	if total, _ := tr.ComputeTotal("p"); total != 35 {
		t.Fatalf("total = %d, want 35", total)
	}

	tr.ClearAllScores()

	for _, p := range []string{"p", "q"} {
		if total, _ := tr.ComputeTotal(p); total != 0 {
			t.Fatalf("total for %s after clear = %d", p, total)
		}
	}
	if pending, _ := tr.PendingInput("q"); pending != "4" {
		t.Fatalf("clear touched pending input: %q", pending)
	}
	if cutoff, ok := tr.Cutoff(); !ok || cutoff != 30 {
		t.Fatalf("clear touched cutoff: %d, %v", cutoff, ok)
	}
	if got := tr.Players(); !slices.Equal(got, []string{"p", "q"}) {
		t.Fatalf("clear touched players: %q", got)
	}
}

func TestRecentHistory(t *testing.T) {
	tr := New()
	tr.AddPlayer("p")

	got, _ := tr.RecentHistory("p")
	if len(got) != 0 {
		t.Fatalf("empty history = %v", got)
	}

	for _, s := range []string{"1", "2", "3"} {
		commit(t, tr, "p", s)
	}
	got, _ = tr.RecentHistory("p")
	if !slices.Equal(got, []int{1, 2, 3}) {
		t.Fatalf("history = %v, want [1 2 3]", got)
	}

	for _, s := range []string{"4", "5", "6", "7"} {
		commit(t, tr, "p", s)
	}
	got, _ = tr.RecentHistory("p")
	if !slices.Equal(got, []int{3, 4, 5, 6, 7}) {
		t.Fatalf("history = %v, want [3 4 5 6 7]", got)
	}

	got[0] = 100
	if again, _ := tr.RecentHistory("p"); again[0] != 3 {
		t.Fatal("RecentHistory returned an alias of the ledger")
	}
}

func TestSetCutoff(t *testing.T) {
	tr := New()

	if _, ok := tr.Cutoff(); ok {
		t.Fatal("cutoff set on a new tracker")
	}

	tests := []struct {
		raw     string
		changed bool
		want    int
	}{
		{"50", true, 50},
		{"abc", false, 50},
		{"", false, 50},
		{"  -10", true, -10},
		{"75 points", true, 75},
		{"0x10", true, 16},
		{"12.5", true, 12},
		{"x1", false, 12},
	}

	for _, tc := range tests {
		if changed := tr.SetCutoff(tc.raw); changed != tc.changed {
			t.Errorf("SetCutoff(%q) = %v, want %v", tc.raw, changed, tc.changed)
		}
		if got, ok := tr.Cutoff(); !ok || got != tc.want {
			t.Errorf("after SetCutoff(%q) cutoff = %d, %v; want %d", tc.raw, got, ok, tc.want)
		}
	}
}

func TestIsEliminated(t *testing.T) {
	tr := New()
	tr.AddPlayer("p")
	commit(t, tr, "p", "49")

	if out, _ := tr.IsEliminated("p"); out {
		t.Fatal("eliminated with no cutoff")
	}

	tr.SetCutoff("50")
	if out, _ := tr.IsEliminated("p"); out {
		t.Fatal("eliminated below cutoff")
	}

	commit(t, tr, "p", "1")
	if out, _ := tr.IsEliminated("p"); !out {
		t.Fatal("not eliminated at cutoff")
	}

	tr.SetCutoff("abc")
	if out, _ := tr.IsEliminated("p"); !out {
		t.Fatal("invalid cutoff changed elimination")
	}

	tr.SetCutoff("51")
	if out, _ := tr.IsEliminated("p"); out {
		t.Fatal("elimination not recomputed after cutoff change")
	}

	tr.SetCutoff("-5")
	tr.ClearAllScores()
	if out, _ := tr.IsEliminated("p"); !out {
		t.Fatal("empty total 0 should reach a negative cutoff")
	}
}

func TestEndToEnd(t *testing.T) {
	tr := New()

	tr.AddPlayer("Bob")
	tr.SetCutoff("30")
	commit(t, tr, "Bob", "15")
	commit(t, tr, "Bob", "20")

	if total, _ := tr.ComputeTotal("Bob"); total != 35 {
		t.Fatalf("total = %d, want 35", total)
	}
	if out, _ := tr.IsEliminated("Bob"); !out {
		t.Fatal("Bob should be eliminated")
	}
}

func TestConcurrentUse(t *testing.T) {
	tr := New()
	names := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			name := names[i%len(names)]
			tr.AddPlayer(name)
			_ = tr.StageScoreInput(name, "1")
			_, _ = tr.CommitScore(name)
			_ = tr.Board()
			if i%7 == 0 {
				tr.RemovePlayer(name)
			}
		}(i)
	}
	wg.Wait()

	checkConsistent(t, tr)
}
