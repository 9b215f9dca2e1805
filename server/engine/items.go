package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Item is one kind of object on the table.
type Item string

const (
	Book Item = "book"
	Hat  Item = "hat"
	Ball Item = "ball"
)

// Items is the canonical item order. Proposals must list quantities in this order.
var Items = []Item{Book, Hat, Ball}

// Plural returns the item name as it appears in prompts and proposals ("books").
func (it Item) Plural() string { return string(it) + "s" }

// Counts is how many of each item exist in a game. It is the pie to split.
type Counts map[Item]int

// Values is one agent's private point value per item.
type Values map[Item]int

// Allocation is the quantity of each item an agent claims.
type Allocation map[Item]int

// Seat identifies one of the two agents.
type Seat int

const (
	SeatA Seat = 0
	SeatB Seat = 1
)

func (s Seat) Other() Seat { return 1 - s }

func (s Seat) String() string { return "Player " + strconv.Itoa(int(s)) }

// Complement returns what remains of counts after a takes its share.
func (c Counts) Complement(a Allocation) Allocation {
	out := make(Allocation, len(c))
	for _, it := range Items {
		out[it] = c[it] - a[it]
	}
	return out
}

// Total is the number of allocations in the lattice, ∏(count_i + 1).
func (c Counts) Total() int {
	n := 1
	for _, it := range Items {
		n *= c[it] + 1
	}
	return n
}

func (c Counts) String() string { return formatTuple(c) }

func (a Allocation) String() string { return formatTuple(a) }

// formatTuple renders "(1 books, 2 hats, 3 balls)", the proposal wire format.
func formatTuple[M ~map[Item]int](m M) string {
	parts := make([]string, 0, len(Items))
	for _, it := range Items {
		parts = append(parts, fmt.Sprintf("%d %s", m[it], it.Plural()))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// checkKeys reports whether m carries exactly the canonical item set.
func checkKeys[M ~map[Item]int](m M) error {
	if len(m) != len(Items) {
		return fmt.Errorf("expected %d item kinds, got %d", len(Items), len(m))
	}
	for _, it := range Items {
		if _, ok := m[it]; !ok {
			return fmt.Errorf("missing item %q", it)
		}
	}
	return nil
}

// ParseContext parses one scenario line: counts interleaved with values,
// e.g. "1 4 4 1 1 2" means 1 book worth 4, 4 hats worth 1, 1 ball worth 2.
func ParseContext(line string) (Counts, Values, error) {
	fields := strings.Fields(line)
	if len(fields) != 2*len(Items) {
		return nil, nil, fmt.Errorf("context %q: want %d numbers, got %d", line, 2*len(Items), len(fields))
	}
	counts := make(Counts, len(Items))
	values := make(Values, len(Items))
	for i, it := range Items {
		c, err := strconv.Atoi(fields[2*i])
		if err != nil {
			return nil, nil, fmt.Errorf("context %q: count: %w", line, err)
		}
		v, err := strconv.Atoi(fields[2*i+1])
		if err != nil {
			return nil, nil, fmt.Errorf("context %q: value: %w", line, err)
		}
		if c < 0 || v < 0 {
			return nil, nil, fmt.Errorf("context %q: negative number", line)
		}
		counts[it] = c
		values[it] = v
	}
	return counts, values, nil
}
