package occtxn

// smallMapInline is the inline capacity before a smallMap spills to a
// real map. Read/absent/write/node-scan sets are commonly tiny (spec
// §9), so a short linear-scan array avoids a hash map allocation on the
// common path.
const smallMapInline = 8

// smallMap is a small-buffer-optimized map: up to smallMapInline
// entries live in an inline array and are found by linear scan; beyond
// that it spills, once, to a real map and stays there. large mirrors
// the source's is_small_type() instrumentation.
type smallMap[K comparable, V any] struct {
	keys  [smallMapInline]K
	vals  [smallMapInline]V
	n     int
	spill map[K]V
	large bool
}

func (m *smallMap[K, V]) Get(k K) (V, bool) {
	if m.spill != nil {
		v, ok := m.spill[k]
		return v, ok
	}
	for i := 0; i < m.n; i++ {
		if m.keys[i] == k {
			return m.vals[i], true
		}
	}
	var zero V
	return zero, false
}

func (m *smallMap[K, V]) Set(k K, v V) {
	if m.spill != nil {
		m.spill[k] = v
		return
	}
	for i := 0; i < m.n; i++ {
		if m.keys[i] == k {
			m.vals[i] = v
			return
		}
	}
	if m.n < smallMapInline {
		m.keys[m.n] = k
		m.vals[m.n] = v
		m.n++
		return
	}

	// Spill once: move everything into a real map and mark large.
	m.large = true
	m.spill = make(map[K]V, m.n+1)
	for i := 0; i < m.n; i++ {
		m.spill[m.keys[i]] = m.vals[i]
	}
	m.spill[k] = v
}

// SetIfAbsent sets k to v only if k is not already present, returning
// whether the entry already existed. It preserves first-read-wins
// semantics for sets where a later write must not clobber an earlier
// observation (e.g. read_set).
func (m *smallMap[K, V]) SetIfAbsent(k K, v V) (existed bool) {
	if _, ok := m.Get(k); ok {
		return true
	}
	m.Set(k, v)
	return false
}

func (m *smallMap[K, V]) Len() int {
	if m.spill != nil {
		return len(m.spill)
	}
	return m.n
}

func (m *smallMap[K, V]) Empty() bool { return m.Len() == 0 }

// Large reports whether this set has ever spilled past its inline
// capacity, mirroring the source's is_small_type() counters.
func (m *smallMap[K, V]) Large() bool { return m.large }

// Range calls fn for every entry; iteration order is unspecified for
// the spilled case.
func (m *smallMap[K, V]) Range(fn func(k K, v V) bool) {
	if m.spill != nil {
		for k, v := range m.spill {
			if !fn(k, v) {
				return
			}
		}
		return
	}
	for i := 0; i < m.n; i++ {
		if !fn(m.keys[i], m.vals[i]) {
			return
		}
	}
}
