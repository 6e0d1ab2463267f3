// Package history keeps the list of a client's past sessions and reloads it
// whenever a session ends.
package history

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"fono/coach"
	"fono/report"
)

type Fetcher interface {
	History(ctx context.Context, clientID int64) ([]coach.HistoryEntry, error)
}

type Store struct {
	fetcher  Fetcher
	clientID int64

	mu        sync.Mutex
	entries   []coach.HistoryEntry
	fetchedAt time.Time
	onChange  func()
}

func NewStore(f Fetcher, clientID int64) *Store {
	return &Store{fetcher: f, clientID: clientID}
}

// OnChange registers fn to run after every successful refresh.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Refresh reloads the history. On error the previous entries are kept.
func (s *Store) Refresh(ctx context.Context) error {
	entries, err := s.fetcher.History(ctx, s.clientID)
	if err != nil {
		return fmt.Errorf("refreshing history: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartedAt.After(entries[j].StartedAt)
	})

	s.mu.Lock()
	s.entries = entries
	s.fetchedAt = time.Now()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// Entries returns the sessions, most recent first.
func (s *Store) Entries() []coach.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]coach.HistoryEntry(nil), s.entries...)
}

func (s *Store) FetchedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchedAt
}

// Point is one sample of the score evolution.
type Point struct {
	Date  time.Time
	Score int
}

// Evolution returns the rounded scores of the last n finished sessions,
// oldest first.
func (s *Store) Evolution(n int) []Point {
	entries := s.Entries()
	var pts []Point
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.Finished() || e.Score == nil {
			continue
		}
		pts = append(pts, Point{Date: e.StartedAt, Score: int(math.Round(*e.Score))})
	}
	if n > 0 && len(pts) > n {
		pts = pts[len(pts)-n:]
	}
	return pts
}

// Stats aggregates the finished sessions.
type Stats struct {
	Sessions     int
	Finished     int
	AverageScore float64
	BestScore    float64
	WordsTotal   int
	WordsCorrect int
}

func (s *Store) Stats() Stats {
	var st Stats
	var sum float64
	for _, e := range s.Entries() {
		st.Sessions++
		if !e.Finished() || e.Score == nil {
			continue
		}
		st.Finished++
		sum += *e.Score
		st.BestScore = math.Max(st.BestScore, *e.Score)
		if e.TotalWords != nil {
			st.WordsTotal += *e.TotalWords
		}
		if e.TotalCorrect != nil {
			st.WordsCorrect += *e.TotalCorrect
		}
	}
	if st.Finished > 0 {
		st.AverageScore = sum / float64(st.Finished)
	}
	return st
}

// Render writes the history as a table, most recent first.
func (s *Store) Render(w io.Writer) {
	entries := s.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(w, "Nenhuma sessão encontrada.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"", "Data", "Dificuldade", "Status", "Pontuação", "Acertos"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)

	for _, e := range entries {
		icon, score, hits := "⏳", "-", "-"
		if e.Finished() && e.Score != nil {
			icon = report.GradeOf(*e.Score).Icon()
		}
		if e.Score != nil {
			score = report.FormatScore(*e.Score)
		}
		if e.TotalCorrect != nil && e.TotalWords != nil {
			hits = fmt.Sprintf("%d/%d", *e.TotalCorrect, *e.TotalWords)
		}
		diff := string(e.Difficulty)
		if diff == "" {
			diff = "Geral"
		}
		date := "-"
		if !e.StartedAt.IsZero() {
			date = e.StartedAt.Format("02/01/2006 15:04")
		}
		table.Append([]string{icon, date, diff, statusLabel(e.Status), score, hits})
	}
	table.Render()
}

func statusLabel(s string) string {
	switch s {
	case coach.StatusFinished:
		return "finalizada"
	case coach.StatusCanceled:
		return "cancelada"
	case coach.StatusAwaiting, coach.StatusStarted, coach.StatusProcessing:
		return "em andamento"
	}
	return s
}
