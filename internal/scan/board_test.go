package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardMovePreservesCard(t *testing.T) {
	b := NewBoard()
	card := NewVisitCard(7, "", "", "")
	card.PatientName = "Alice Bekele"
	b.Add(card)

	b.MoveCard(card, ColumnClaimed)

	assert.Empty(t, b.Column(ColumnUnclaimed))
	require.Len(t, b.Column(ColumnClaimed), 1)
	got := b.Column(ColumnClaimed)[0]
	assert.Same(t, card, got)
	assert.Equal(t, "Alice Bekele", got.PatientName)
	assert.Equal(t, ColumnClaimed, card.ContainerKey)

	// moving to the current column is a no-op, not a duplicate
	b.MoveCard(card, ColumnClaimed)
	assert.Len(t, b.Column(ColumnClaimed), 1)
}

func TestBoardFind(t *testing.T) {
	b := NewBoard()
	a := NewVisitCard(1, "", "", "")
	c := NewVisitCard(2, "", "", "")
	b.Add(a)
	b.Add(c)
	b.MoveCard(c, ColumnFinished)

	assert.Same(t, a, b.Find(1))
	assert.Same(t, c, b.Find(2))
	assert.Nil(t, b.Find(99))
}

func TestBoardColumnReturnsCopy(t *testing.T) {
	b := NewBoard()
	b.Add(NewVisitCard(1, "", "", ""))

	col := b.Column(ColumnUnclaimed)
	col[0] = nil

	require.Len(t, b.Column(ColumnUnclaimed), 1)
	assert.NotNil(t, b.Column(ColumnUnclaimed)[0])
}

func TestSelectionGroupAggregate(t *testing.T) {
	g := NewSelectionGroup()
	assert.Equal(t, AggregateUnchecked, g.Aggregate(), "empty group reads unchecked")

	g.Register(1)
	g.Register(2)
	g.Register(3)
	assert.Equal(t, AggregateUnchecked, g.Aggregate())

	assert.Equal(t, AggregateIndeterminate, g.Toggle(1, true))
	assert.Equal(t, AggregateIndeterminate, g.Toggle(2, true))
	assert.Equal(t, AggregateChecked, g.Toggle(3, true))

	assert.Equal(t, AggregateIndeterminate, g.Toggle(2, false))
	assert.Equal(t, AggregateUnchecked, g.ToggleAll(false))
	assert.Equal(t, AggregateChecked, g.ToggleAll(true))

	assert.ElementsMatch(t, []int64{1, 2, 3}, g.Selected())
}

func TestSelectionGroupRemoveRecomputes(t *testing.T) {
	g := NewSelectionGroup()
	g.Register(1)
	g.Register(2)
	g.Toggle(1, true)
	require.Equal(t, AggregateIndeterminate, g.Aggregate())

	// removing the unchecked member leaves only checked ones
	g.Remove(2)
	assert.Equal(t, AggregateChecked, g.Aggregate())

	g.Remove(1)
	assert.Equal(t, AggregateUnchecked, g.Aggregate())
}
