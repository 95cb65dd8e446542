package scan

import (
	"sync"
)

// Board is the in-memory card layout: three columns of visit cards. Cards
// move between columns as the same value, never rebuilt, so anything attached
// to a card survives the move.
type Board struct {
	mu      sync.Mutex
	columns map[Column][]*VisitCard
}

func NewBoard() *Board {
	return &Board{
		columns: map[Column][]*VisitCard{
			ColumnUnclaimed: {},
			ColumnClaimed:   {},
			ColumnFinished:  {},
		},
	}
}

// Add places a card into its current container column.
func (b *Board) Add(card *VisitCard) {
	b.mu.Lock()
	defer b.mu.Unlock()

	card.mu.Lock()
	col := card.ContainerKey
	card.mu.Unlock()

	b.columns[col] = append(b.columns[col], card)
}

// MoveCard relocates a card to the target column and updates its container
// key. Moving to the current column is a no-op. Lock order is always board
// then card; nothing under card.mu reaches back into the board.
func (b *Board) MoveCard(card *VisitCard, target Column) {
	b.mu.Lock()
	defer b.mu.Unlock()

	card.mu.Lock()
	current := card.ContainerKey
	if current == target {
		card.mu.Unlock()
		return
	}
	card.ContainerKey = target
	card.mu.Unlock()

	from := b.columns[current]
	for i, c := range from {
		if c == card {
			b.columns[current] = append(from[:i], from[i+1:]...)
			break
		}
	}
	b.columns[target] = append(b.columns[target], card)
}

// Column returns the cards currently in a column, in board order.
func (b *Board) Column(col Column) []*VisitCard {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*VisitCard, len(b.columns[col]))
	copy(out, b.columns[col])
	return out
}

// Find returns the card for a visit id, wherever it currently sits.
func (b *Board) Find(visitID int64) *VisitCard {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cards := range b.columns {
		for _, c := range cards {
			if c.VisitID == visitID {
				return c
			}
		}
	}
	return nil
}

type AggregateState int

const (
	AggregateUnchecked AggregateState = iota
	AggregateChecked
	AggregateIndeterminate
)

// SelectionGroup models a "select all" control over member checkboxes. The
// aggregate is recomputed after every individual and bulk toggle and is
// checked iff all members are, unchecked iff none are, indeterminate
// otherwise.
type SelectionGroup struct {
	mu        sync.Mutex
	members   map[int64]bool
	aggregate AggregateState
}

func NewSelectionGroup() *SelectionGroup {
	return &SelectionGroup{members: map[int64]bool{}}
}

func (g *SelectionGroup) Register(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[id]; !ok {
		g.members[id] = false
	}
	g.recompute()
}

func (g *SelectionGroup) Remove(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, id)
	g.recompute()
}

// Toggle sets one member and recomputes the aggregate.
func (g *SelectionGroup) Toggle(id int64, checked bool) AggregateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[id]; ok {
		g.members[id] = checked
	}
	g.recompute()
	return g.aggregate
}

// ToggleAll sets every member and recomputes the aggregate.
func (g *SelectionGroup) ToggleAll(checked bool) AggregateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id := range g.members {
		g.members[id] = checked
	}
	g.recompute()
	return g.aggregate
}

func (g *SelectionGroup) Aggregate() AggregateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.aggregate
}

func (g *SelectionGroup) Selected() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := []int64{}
	for id, checked := range g.members {
		if checked {
			ids = append(ids, id)
		}
	}
	return ids
}

func (g *SelectionGroup) recompute() {
	total := len(g.members)
	checked := 0
	for _, v := range g.members {
		if v {
			checked++
		}
	}

	switch {
	case total == 0 || checked == 0:
		g.aggregate = AggregateUnchecked
	case checked == total:
		g.aggregate = AggregateChecked
	default:
		g.aggregate = AggregateIndeterminate
	}
}
