/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tracker

import (
	"gopkg.in/yaml.v3"
)

// Row is one player's line on the scoreboard.
type Row struct {
	Name       string `json:"name" yaml:"name"`
	Recent     []int  `json:"recent" yaml:"recent,flow"`
	Total      int    `json:"total" yaml:"total"`
	Eliminated bool   `json:"eliminated" yaml:"eliminated"`
	Pending    string `json:"pending" yaml:"pending,omitempty"`
}

// Board is everything needed to redraw the scoreboard, captured under a single
// lock so rows, totals and the cutoff always agree with each other.
type Board struct {
	Cutoff *int  `json:"cutoff" yaml:"cutoff,omitempty"`
	Rows   []Row `json:"players" yaml:"players"`
}

// Status is the badge shown next to a player.
func (r Row) Status() string {
	if r.Eliminated {
		return "Eliminated"
	}
	return "In-Game"
}

func (t *Tracker) Board() Board {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b := Board{
		Rows: make([]Row, 0, len(t.players)),
	}

	if t.hasCutoff {
		cutoff := t.cutoff
		b.Cutoff = &cutoff
	}

	for _, p := range t.players {
		total := sum(t.ledger[p])
		b.Rows = append(b.Rows, Row{
			Name:       p,
			Recent:     recent(t.ledger[p]),
			Total:      total,
			Eliminated: t.eliminatedLocked(total),
			Pending:    t.pending[p],
		})
	}

	return b
}

// Row returns the row for name, if present.
func (b Board) Row(name string) (Row, bool) {
	for _, r := range b.Rows {
		if r.Name == name {
			return r, true
		}
	}
	return Row{}, false
}

// YAML renders the board as a YAML document, with each row's status
// badge spelled out.
func (b Board) YAML() ([]byte, error) {
	type exportRow struct {
		Row    `yaml:",inline"`
		Status string `yaml:"status"`
	}

	out := struct {
		Cutoff *int        `yaml:"cutoff,omitempty"`
		Rows   []exportRow `yaml:"players"`
	}{
		Cutoff: b.Cutoff,
		Rows:   make([]exportRow, 0, len(b.Rows)),
	}

	for _, r := range b.Rows {
		out.Rows = append(out.Rows, exportRow{Row: r, Status: r.Status()})
	}

	return yaml.Marshal(out)
}

// ParseBoard reads a board previously written by YAML.
func ParseBoard(data []byte) (Board, error) {
	var b Board

	err := yaml.Unmarshal(data, &b)
	if err != nil {
		return Board{}, err
	}

	return b, nil
}
