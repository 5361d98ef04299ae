package analysis

import "sync"

// KeyedMap tracks the values stored under computed keys (obj[k] = v). Each
// distinct key, at the map's current key strength, owns a value cell. The
// key cell holds every key seen so far and is read by all lookups, so a new
// key re-runs every reader.
type KeyedMap struct {
	mu       sync.Mutex
	keys     *Cell
	strength int // key strength the index was built at
	entries  []*keyedEntry
	index    map[mergeKey]int
}

type keyedEntry struct {
	key    *Value
	values *Cell
}

// NewKeyedMap creates an empty map whose cells may escalate up to
// maxStrength.
func NewKeyedMap(maxStrength int) *KeyedMap {
	return &KeyedMap{
		keys:  NewCell(maxStrength),
		index: make(map[mergeKey]int),
	}
}

// AddTypes stores values under every key in keys and reports whether
// anything changed. Dependents of changed cells are enqueued.
func (k *KeyedMap) AddTypes(u *Unit, keys, values ValueSet) bool {
	p := u.Project()
	limits := p.Limits()
	changed := p.assign(u, k.keys, limits.DictKeyTypes, keys, "keyed map keys")

	k.mu.Lock()
	k.rebucketLocked()
	cells := make([]*Cell, 0, keys.Len())
	for _, key := range keys.Values() {
		cells = append(cells, k.entryLocked(key).values)
	}
	k.mu.Unlock()

	for _, c := range cells {
		if p.assign(u, c, limits.DictValueTypes, values, "keyed map entry") {
			changed = true
		}
	}
	if changed {
		p.EnqueueDependents(k.keys)
	}
	return changed
}

// GetValues returns the values stored under keys. Keys without a constant
// payload (or an empty key set) could be anything, so they yield every
// value in the map. u is registered on the key cell and the matching
// entries.
func (k *KeyedMap) GetValues(u *Unit, keys ValueSet) ValueSet {
	k.keys.Read(u)

	k.mu.Lock()
	k.rebucketLocked()
	var cells []*Cell
	all := keys.IsEmpty()
	for _, key := range keys.Values() {
		if _, ok := key.Constant(); !ok {
			all = true
			break
		}
		if i, ok := k.index[key.mergeKey(k.strength)]; ok {
			cells = append(cells, k.entries[i].values)
		}
	}
	if all {
		cells = cells[:0]
		for _, e := range k.entries {
			cells = append(cells, e.values)
		}
	}
	k.mu.Unlock()

	res := EmptySet()
	for _, c := range cells {
		res = res.Union(c.Read(u))
	}
	return res
}

// KeyTypes returns every key stored so far.
func (k *KeyedMap) KeyTypes() ValueSet {
	return k.keys.Types()
}

// AllValueTypes returns the union of every stored value.
func (k *KeyedMap) AllValueTypes() ValueSet {
	k.mu.Lock()
	cells := make([]*Cell, len(k.entries))
	for i, e := range k.entries {
		cells[i] = e.values
	}
	k.mu.Unlock()

	res := EmptySet()
	for _, c := range cells {
		res = res.Union(c.Types())
	}
	return res
}

// Len returns the number of distinct key buckets.
func (k *KeyedMap) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.rebucketLocked()
	return len(k.entries)
}

func (k *KeyedMap) entryLocked(key *Value) *keyedEntry {
	mk := key.mergeKey(k.strength)
	if i, ok := k.index[mk]; ok {
		return k.entries[i]
	}
	e := &keyedEntry{key: key, values: NewCell(k.keys.maxStrength)}
	k.index[mk] = len(k.entries)
	k.entries = append(k.entries, e)
	return e
}

// rebucketLocked folds entries together after the key cell escalated.
// Surviving cells inherit the values and dependents of the folded ones.
func (k *KeyedMap) rebucketLocked() {
	s := k.keys.Strength()
	if s == k.strength {
		return
	}
	k.strength = s

	entries := make([]*keyedEntry, 0, len(k.entries))
	index := make(map[mergeKey]int, len(k.entries))
	for _, e := range k.entries {
		mk := e.key.mergeKey(s)
		i, ok := index[mk]
		if !ok {
			index[mk] = len(entries)
			entries = append(entries, e)
			continue
		}
		survivor := entries[i]
		survivor.values.Write(nil, e.values.Types())
		survivor.values.adopt(e.values)
	}
	k.entries = entries
	k.index = index
}
