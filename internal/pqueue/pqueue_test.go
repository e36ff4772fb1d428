package pqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex_Ordering(t *testing.T) {
	idx := New[string]()
	idx.Push("c", 3)
	idx.Push("a", 1)
	idx.Push("b", 2)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, "a", idx.Top().Value)
	idx.Erase(idx.Top())
	assert.Equal(t, "b", idx.Top().Value)
	idx.Erase(idx.Top())
	assert.Equal(t, "c", idx.Top().Value)
}

func TestIndex_TiesByInsertionOrder(t *testing.T) {
	idx := New[string]()
	idx.Push("first", 0)
	idx.Push("second", 0)
	idx.Push("third", 0)
	var order []string
	for idx.Len() > 0 {
		top := idx.Top()
		order = append(order, top.Value)
		idx.Erase(top)
	}
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestIndex_Rekey(t *testing.T) {
	idx := New[string]()
	a := idx.Push("a", 0)
	b := idx.Push("b", 0)
	idx.Rekey(a, 5)
	assert.Equal(t, "b", idx.Top().Value)
	idx.Rekey(b, 10)
	assert.Equal(t, "a", idx.Top().Value)
	assert.Equal(t, 5, a.Key())
}

func TestIndex_EraseMiddle(t *testing.T) {
	idx := New[int]()
	var items []*Item[int]
	for i := 0; i < 10; i++ {
		items = append(items, idx.Push(i, i))
	}
	idx.Erase(items[4])
	idx.Erase(items[7])
	// erasing twice is a no-op
	idx.Erase(items[4])
	var got []int
	for idx.Len() > 0 {
		top := idx.Top()
		got = append(got, top.Value)
		idx.Erase(top)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 5, 6, 8, 9}, got)
}

func TestIndex_Clear(t *testing.T) {
	idx := New[int]()
	item := idx.Push(1, 1)
	idx.Push(2, 2)
	idx.Clear()
	assert.Equal(t, 0, idx.Len())
	assert.Nil(t, idx.Top())
	idx.Erase(item)
	assert.Equal(t, 0, idx.Len())
}
