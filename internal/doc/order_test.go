package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortReadingOrder(t *testing.T) {
	blocks := []Block{
		{ID: "p2-top", Page: 2, Box: Box{X1: 0, Y1: 10}},
		{ID: "p1-bottom-right", Page: 1, Box: Box{X1: 500, Y1: 800}},
		{ID: "p1-top", Page: 1, Box: Box{X1: 100, Y1: 50}},
		{ID: "p1-bottom-left", Page: 1, Box: Box{X1: 20, Y1: 800}},
	}

	SortReadingOrder(blocks)

	ids := make([]string, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID
	}
	assert.Equal(t, []string{"p1-top", "p1-bottom-left", "p1-bottom-right", "p2-top"}, ids)
}

func TestSortReadingOrder_StableForEqualPositions(t *testing.T) {
	blocks := []Block{
		{ID: "first", Page: 1, Box: Box{X1: 10, Y1: 10}},
		{ID: "second", Page: 1, Box: Box{X1: 10, Y1: 10}},
	}
	SortReadingOrder(blocks)
	assert.Equal(t, "first", blocks[0].ID)
	assert.Equal(t, "second", blocks[1].ID)
}

func TestReadingOrder(t *testing.T) {
	blocks := []Block{
		{ID: "a", Page: 1, Box: Box{X1: 300, Y1: 100}},
		{ID: "b", Page: 2, Box: Box{X1: 0, Y1: 0}},
		{ID: "c", Page: 1, Box: Box{X1: 50, Y1: 100}},
		{ID: "d", Page: 1, Box: Box{X1: 0, Y1: 20}},
	}

	order := ReadingOrder(blocks, 1)

	assert.Len(t, order, 3)
	assert.Equal(t, 1, order[3]) // d: topmost
	assert.Equal(t, 2, order[2]) // c: same row as a, further left
	assert.Equal(t, 3, order[0]) // a
	_, ok := order[1]
	assert.False(t, ok, "page 2 block must not appear")
}

func TestReadingOrder_EmptyPage(t *testing.T) {
	order := ReadingOrder([]Block{{Page: 1}}, 7)
	assert.Empty(t, order)
}
