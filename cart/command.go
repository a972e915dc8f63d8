package cart

// Command is one of ReplaceAll, Add, SetQuantity, Remove or Clear. The set
// is closed: only types in this package implement it.
type Command interface {
	command()
	Name() string
}

// ReplaceAll swaps every item for the server's authoritative list.
type ReplaceAll struct {
	Items []Item
}

// Add inserts Item, or increases the quantity of the item with the same id.
type Add struct {
	Item Item
}

// SetQuantity sets the quantity of an item. A quantity <= 0 removes it.
type SetQuantity struct {
	ID       BundleID
	Quantity int
}

// Remove deletes the item with the given id.
type Remove struct {
	ID BundleID
}

// Clear empties the cart.
type Clear struct{}

func (ReplaceAll) command()  {}
func (Add) command()         {}
func (SetQuantity) command() {}
func (Remove) command()      {}
func (Clear) command()       {}

func (ReplaceAll) Name() string  { return "replace_all" }
func (Add) Name() string         { return "add" }
func (SetQuantity) Name() string { return "set_quantity" }
func (Remove) Name() string      { return "remove" }
func (Clear) Name() string       { return "clear" }

// Reduce applies cmd to s and returns the resulting state. It never
// modifies s, performs no I/O and recomputes Total on every call.
//
// Items never hold a quantity <= 0 and ids stay unique: ReplaceAll folds
// duplicate ids together and drops non-positive lines, Add ignores
// non-positive quantities.
func Reduce(s State, cmd Command) State {
	var items []Item
	switch c := cmd.(type) {
	case ReplaceAll:
		items = make([]Item, 0, len(c.Items))
		for _, it := range c.Items {
			items = addItem(items, it)
		}
	case Add:
		items = cloneItems(s.Items)
		items = addItem(items, c.Item)
	case SetQuantity:
		items = make([]Item, 0, len(s.Items))
		for _, it := range s.Items {
			if it.ID == c.ID {
				if c.Quantity <= 0 {
					continue
				}
				it = it.clone()
				it.Quantity = c.Quantity
				items = append(items, it)
				continue
			}
			items = append(items, it.clone())
		}
	case Remove:
		items = make([]Item, 0, len(s.Items))
		for _, it := range s.Items {
			if it.ID != c.ID {
				items = append(items, it.clone())
			}
		}
	case Clear:
		items = []Item{}
	default:
		// unreachable: Command is sealed
		items = cloneItems(s.Items)
	}
	return State{Items: items, Total: total(items)}
}

// addItem merges it into items, which the caller owns.
func addItem(items []Item, it Item) []Item {
	if it.Quantity <= 0 {
		return items
	}
	for i := range items {
		if items[i].ID == it.ID {
			items[i].Quantity += it.Quantity
			return items
		}
	}
	return append(items, it.clone())
}

func cloneItems(in []Item) []Item {
	out := make([]Item, len(in))
	for i, it := range in {
		out[i] = it.clone()
	}
	return out
}

func total(items []Item) Decimal {
	var sum Decimal
	for _, it := range items {
		sum = sum.Add(it.Subtotal())
	}
	return sum
}
