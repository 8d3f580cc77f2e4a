package session

import "sort"

// ChangeSet accumulates local writes between two flushes.
// A key is either pending a set or pending a removal, never both;
// the most recent operation on a key wins.
type ChangeSet struct {
	set    map[string]any
	remove map[string]struct{}
}

// NewChangeSet creates an empty ChangeSet.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		set:    map[string]any{},
		remove: map[string]struct{}{},
	}
}

// Set records a pending write of value to key, cancelling a pending removal.
func (c *ChangeSet) Set(key string, value any) {
	delete(c.remove, key)
	c.set[key] = value
}

// Remove records a pending removal of key, cancelling a pending write.
func (c *ChangeSet) Remove(key string) {
	delete(c.set, key)
	c.remove[key] = struct{}{}
}

// Empty reports whether nothing is pending.
func (c *ChangeSet) Empty() bool {
	return len(c.set) == 0 && len(c.remove) == 0
}

// Len returns the number of pending keys.
func (c *ChangeSet) Len() int {
	return len(c.set) + len(c.remove)
}

// Removing reports whether key is pending removal.
func (c *ChangeSet) Removing(key string) bool {
	_, ok := c.remove[key]
	return ok
}

// Take returns the pending writes and removals and resets the ChangeSet.
// Removals are sorted.
func (c *ChangeSet) Take() (map[string]any, []string) {
	set := c.set
	remove := make([]string, 0, len(c.remove))
	for k := range c.remove {
		remove = append(remove, k)
	}
	sort.Strings(remove)
	c.set = map[string]any{}
	c.remove = map[string]struct{}{}
	return set, remove
}
