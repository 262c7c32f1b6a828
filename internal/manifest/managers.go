package manifest

import "sort"

// table holds every known identifier of one kind plus the subset a response requires
type table[V any] struct {
	all      map[string]V
	required map[string]struct{}
}

func newTable[V any](all map[string]V) table[V] {
	if all == nil {
		all = map[string]V{}
	}
	return table[V]{all: all, required: make(map[string]struct{})}
}

// Has reports whether identifier is known
func (t *table[V]) Has(identifier string) bool {
	_, ok := t.all[identifier]
	return ok
}

// Get returns the value of identifier
func (t *table[V]) Get(identifier string) (V, bool) {
	v, ok := t.all[identifier]
	return v, ok
}

// Require marks identifier as needed for hydration. Unknown identifiers are ignored.
func (t *table[V]) Require(identifier string) {
	if _, ok := t.all[identifier]; ok {
		t.required[identifier] = struct{}{}
	}
}

// Required returns the required identifiers, sorted
func (t *table[V]) Required() []string {
	ids := make([]string, 0, len(t.required))
	for id := range t.required {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Table returns the required subset, or everything when all is set
func (t *table[V]) Table(all bool) map[string]V {
	out := make(map[string]V)
	if all {
		for id, v := range t.all {
			out[id] = v
		}
		return out
	}
	for id := range t.required {
		out[id] = t.all[id]
	}
	return out
}

// Reset clears the required set
func (t *table[V]) Reset() {
	t.required = make(map[string]struct{})
}

// RoutesManager maps route identifiers to their URL patterns
type RoutesManager struct {
	table[string]
}

// NewRoutesManager creates a manager over the application's route table
func NewRoutesManager(routes map[string]string) *RoutesManager {
	return &RoutesManager{table: newTable(routes)}
}

// MessagesManager maps message identifiers to their translated text
type MessagesManager struct {
	table[string]
}

// NewMessagesManager creates a manager over a flattened message catalog
func NewMessagesManager(messages map[string]string) *MessagesManager {
	return &MessagesManager{table: newTable(messages)}
}

// FlashMessagesManager holds the flash messages of the current request. A flash
// message is only required when the request actually carries it.
type FlashMessagesManager struct {
	table[any]
}

// NewFlashMessagesManager creates a manager over the request's flash messages
func NewFlashMessagesManager(flashMessages map[string]any) *FlashMessagesManager {
	return &FlashMessagesManager{table: newTable(flashMessages)}
}
