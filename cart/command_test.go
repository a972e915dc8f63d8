package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id BundleID, price string, qty int) Item {
	return Item{ID: id, Title: "bundle", Price: MustDecimal(price), Quantity: qty}
}

func quantities(s State) map[BundleID]int {
	out := make(map[BundleID]int, len(s.Items))
	for _, it := range s.Items {
		out[it.ID] = it.Quantity
	}
	return out
}

// assertInvariants checks the properties every reachable State must hold.
func assertInvariants(t *testing.T, s State) {
	t.Helper()
	var want Decimal
	seen := make(map[BundleID]bool)
	for _, it := range s.Items {
		assert.Greater(t, it.Quantity, 0, "item %d has non-positive quantity", it.ID)
		assert.False(t, seen[it.ID], "duplicate item %d", it.ID)
		seen[it.ID] = true
		want = want.Add(it.Price.MulInt(it.Quantity))
	}
	assert.True(t, want.Equal(s.Total), "total %s != sum %s", s.Total, want)
}

func TestReduce_Transitions(t *testing.T) {
	base := NewState([]Item{item(1, "10.00", 2), item(2, "3.50", 1)})

	tests := []struct {
		name      string
		cmd       Command
		wantQty   map[BundleID]int
		wantTotal string
	}{
		{
			name:      "replace all",
			cmd:       ReplaceAll{Items: []Item{item(9, "1.25", 4)}},
			wantQty:   map[BundleID]int{9: 4},
			wantTotal: "5",
		},
		{
			name:      "add new item appends",
			cmd:       Add{Item: item(3, "2.00", 1)},
			wantQty:   map[BundleID]int{1: 2, 2: 1, 3: 1},
			wantTotal: "25.5",
		},
		{
			name:      "add existing item merges quantity",
			cmd:       Add{Item: item(2, "3.50", 2)},
			wantQty:   map[BundleID]int{1: 2, 2: 3},
			wantTotal: "30.5",
		},
		{
			name:      "add with non-positive quantity is ignored",
			cmd:       Add{Item: item(4, "1.00", 0)},
			wantQty:   map[BundleID]int{1: 2, 2: 1},
			wantTotal: "23.5",
		},
		{
			name:      "set quantity",
			cmd:       SetQuantity{ID: 1, Quantity: 5},
			wantQty:   map[BundleID]int{1: 5, 2: 1},
			wantTotal: "53.5",
		},
		{
			name:      "set quantity zero removes",
			cmd:       SetQuantity{ID: 1, Quantity: 0},
			wantQty:   map[BundleID]int{2: 1},
			wantTotal: "3.5",
		},
		{
			name:      "set quantity negative removes",
			cmd:       SetQuantity{ID: 1, Quantity: -3},
			wantQty:   map[BundleID]int{2: 1},
			wantTotal: "3.5",
		},
		{
			name:      "set quantity on unknown id is a no-op",
			cmd:       SetQuantity{ID: 99, Quantity: 3},
			wantQty:   map[BundleID]int{1: 2, 2: 1},
			wantTotal: "23.5",
		},
		{
			name:      "remove",
			cmd:       Remove{ID: 2},
			wantQty:   map[BundleID]int{1: 2},
			wantTotal: "20",
		},
		{
			name:      "remove unknown id is a no-op",
			cmd:       Remove{ID: 99},
			wantQty:   map[BundleID]int{1: 2, 2: 1},
			wantTotal: "23.5",
		},
		{
			name:      "clear",
			cmd:       Clear{},
			wantQty:   map[BundleID]int{},
			wantTotal: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(base, tt.cmd)
			assert.Equal(t, tt.wantQty, quantities(got))
			assert.True(t, MustDecimal(tt.wantTotal).Equal(got.Total), "total = %s, want %s", got.Total, tt.wantTotal)
			assertInvariants(t, got)

			// the input state is never modified
			assert.Equal(t, map[BundleID]int{1: 2, 2: 1}, quantities(base))
			assert.True(t, MustDecimal("23.50").Equal(base.Total))
		})
	}
}

func TestReduce_AddTwiceMergesIntoOneItem(t *testing.T) {
	s := Empty()
	s = Reduce(s, Add{Item: item(7, "4.00", 1)})
	s = Reduce(s, Add{Item: item(7, "4.00", 1)})

	require.Len(t, s.Items, 1)
	assert.Equal(t, BundleID(7), s.Items[0].ID)
	assert.Equal(t, 2, s.Items[0].Quantity)
	assert.Equal(t, "8.00", s.Total.String())
}

func TestReduce_ReplaceAllNormalizesServerPayload(t *testing.T) {
	s := Reduce(Empty(), ReplaceAll{Items: []Item{
		item(1, "2.00", 1),
		item(1, "2.00", 2),
		item(2, "5.00", 0),
		item(3, "1.00", -1),
	}})

	assert.Equal(t, map[BundleID]int{1: 3}, quantities(s))
	assertInvariants(t, s)
}

func TestReduce_DoesNotAliasInput(t *testing.T) {
	components := []BundleComponent{{ProductID: 1, Name: "apple", Quantity: 3}}
	in := item(1, "1.00", 1)
	in.Items = components

	s := Reduce(Empty(), Add{Item: in})
	components[0].Name = "pear"
	assert.Equal(t, "apple", s.Items[0].Items[0].Name)

	next := Reduce(s, SetQuantity{ID: 1, Quantity: 4})
	assert.Equal(t, 1, s.Items[0].Quantity)
	assert.Equal(t, 4, next.Items[0].Quantity)
}

func TestReduce_InvariantsHoldOverCommandSequences(t *testing.T) {
	cmds := []Command{
		Add{Item: item(1, "1.10", 1)},
		Add{Item: item(2, "0.99", 3)},
		Add{Item: item(1, "1.10", 2)},
		SetQuantity{ID: 2, Quantity: 1},
		Add{Item: item(3, "12.00", 1)},
		SetQuantity{ID: 3, Quantity: -1},
		Remove{ID: 1},
		ReplaceAll{Items: []Item{item(4, "3.33", 3), item(5, "0.01", 100)}},
		SetQuantity{ID: 4, Quantity: 0},
		Clear{},
		Add{Item: item(6, "7.77", 2)},
	}

	s := Empty()
	for _, cmd := range cmds {
		s = Reduce(s, cmd)
		assertInvariants(t, s)
	}
	assert.Equal(t, "15.54", s.Total.String())
}

func TestCommand_Names(t *testing.T) {
	names := map[string]Command{
		"replace_all":  ReplaceAll{},
		"add":          Add{},
		"set_quantity": SetQuantity{},
		"remove":       Remove{},
		"clear":        Clear{},
	}
	for want, cmd := range names {
		assert.Equal(t, want, cmd.Name())
	}
}
