/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package tracker keeps score for a casual group game.
//
// A Tracker holds an ordered list of uniquely named players, a chronological
// ledger of score entries per player, the raw text each player has staged but
// not yet committed, and an optional global cutoff. Totals, recent history and
// elimination are derived from that state on every read and never cached.
//
// Blank or duplicate player names and unparseable cutoffs are ignored without
// an error. Only two things are reported: a committed score that is not a
// number (ValidationError), and a lookup of a player who is not registered
// (LookupError).
package tracker

import (
	"slices"
	"sync"
)

// HistorySize is the number of most recent entries returned by RecentHistory.
const HistorySize = 5

// AddOutcome describes what AddPlayer did with a name.
type AddOutcome int

const (
	AddBlank AddOutcome = iota
	AddDuplicate
	AddAdded
)

func (o AddOutcome) String() string {
	switch o {
	case AddBlank:
		return "blank"
	case AddDuplicate:
		return "duplicate"
	case AddAdded:
		return "added"
	}
	return "unknown"
}

// ClearsInput reports whether the new-player input field should be emptied.
// Blank names are left in place for the user to correct.
func (o AddOutcome) ClearsInput() bool {
	return o != AddBlank
}

// Tracker is safe for concurrent use; every method holds a single lock, so
// mutations are applied one at a time.
type Tracker struct {
	mu sync.RWMutex

	players []string
	ledger  map[string][]int
	pending map[string]string

	cutoff    int
	hasCutoff bool
}

func New() *Tracker {
	return &Tracker{
		ledger:  make(map[string][]int),
		pending: make(map[string]string),
	}
}

// AddPlayer registers name at the end of the player list. The name is stored
// exactly as given; surrounding whitespace only matters for the blank check.
func (t *Tracker) AddPlayer(name string) AddOutcome {
	if trimNumberSpace(name) == "" {
		return AddBlank
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.ledger[name]; ok {
		return AddDuplicate
	}

	t.players = append(t.players, name)
	t.ledger[name] = []int{}
	t.pending[name] = ""

	return AddAdded
}

// RemovePlayer drops name along with its ledger and staged input. Removing an
// unknown name does nothing.
func (t *Tracker) RemovePlayer(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.ledger[name]; !ok {
		return
	}

	t.players = slices.DeleteFunc(t.players, func(p string) bool {
		return p == name
	})
	delete(t.ledger, name)
	delete(t.pending, name)
}

// StageScoreInput replaces the text staged for name. Nothing is validated
// until CommitScore.
func (t *Tracker) StageScoreInput(name, raw string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[name]; !ok {
		return &LookupError{Player: name}
	}

	t.pending[name] = raw

	return nil
}

// CommitScore parses the text staged for name and appends it to the ledger,
// then clears the staged text. On a ValidationError neither is touched.
func (t *Tracker) CommitScore(name string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, ok := t.pending[name]
	if !ok {
		return 0, &LookupError{Player: name}
	}

	score, ok := parseScore(raw)
	if !ok {
		return 0, &ValidationError{Player: name, Input: raw}
	}

	t.ledger[name] = append(t.ledger[name], score)
	t.pending[name] = ""

	return score, nil
}

// ClearAllScores empties every ledger at once. Players, staged input and the
// cutoff are kept.
func (t *Tracker) ClearAllScores() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range t.players {
		t.ledger[p] = []int{}
	}
}

// SetCutoff parses the leading integer of raw and makes it the cutoff. If raw
// has no leading integer the cutoff is left as it was and false is returned.
// There is no way to unset a cutoff once one is set.
func (t *Tracker) SetCutoff(raw string) bool {
	cutoff, ok := leadingInt(raw)
	if !ok {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.cutoff = cutoff
	t.hasCutoff = true

	return true
}

// Cutoff returns the current cutoff, and false if none has been set.
func (t *Tracker) Cutoff() (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.cutoff, t.hasCutoff
}

// Players returns the registered names in the order they were added.
func (t *Tracker) Players() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return slices.Clone(t.players)
}

func (t *Tracker) PendingInput(name string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	raw, ok := t.pending[name]
	if !ok {
		return "", &LookupError{Player: name}
	}

	return raw, nil
}

// Ledger returns a copy of every entry recorded for name, oldest first.
func (t *Tracker) Ledger(name string) ([]int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries, ok := t.ledger[name]
	if !ok {
		return nil, &LookupError{Player: name}
	}

	return slices.Clone(entries), nil
}

func (t *Tracker) ComputeTotal(name string) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries, ok := t.ledger[name]
	if !ok {
		return 0, &LookupError{Player: name}
	}

	return sum(entries), nil
}

// RecentHistory returns up to the last HistorySize entries for name, oldest
// first.
func (t *Tracker) RecentHistory(name string) ([]int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries, ok := t.ledger[name]
	if !ok {
		return nil, &LookupError{Player: name}
	}

	return recent(entries), nil
}

// IsEliminated reports whether a cutoff is set and name's total has reached
// it.
func (t *Tracker) IsEliminated(name string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries, ok := t.ledger[name]
	if !ok {
		return false, &LookupError{Player: name}
	}

	return t.eliminatedLocked(sum(entries)), nil
}

func (t *Tracker) eliminatedLocked(total int) bool {
	return t.hasCutoff && total >= t.cutoff
}

func sum(entries []int) int {
	total := 0
	for _, e := range entries {
		total += e
	}
	return total
}

func recent(entries []int) []int {
	start := max(len(entries)-HistorySize, 0)
	return slices.Clone(entries[start:])
}
