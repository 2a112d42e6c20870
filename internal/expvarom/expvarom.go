// Package expvarom implements small Prometheus-flavored wrappers around
// expvar, so metrics carry a label dimension without pulling in a full
// metrics client library. The teacher's internal/courier/smtp.go and
// monitoring.go both call into a package of this name and shape
// (NewMap/NewInt with "result"/"mode"-style labels); that package's source
// was not part of this repository's retrieval pack, so it is reconstructed
// here from those call sites rather than copied.
package expvarom

import (
	"bytes"
	"expvar"
	"fmt"
	"sort"
	"sync"
)

// Int is a labelless monotonic/settable counter, exported via expvar.
type Int struct {
	v    expvar.Int
	help string
}

// NewInt creates and publishes a new Int under name, with help text
// describing it (kept for parity with the call site; expvar itself has no
// concept of metric help text).
func NewInt(name, help string) *Int {
	i := &Int{help: help}
	expvar.Publish(name, &i.v)
	return i
}

// Set the counter's value.
func (i *Int) Set(v int64) { i.v.Set(v) }

// Add delta to the counter's value.
func (i *Int) Add(delta int64) { i.v.Add(delta) }

// Map is a labeled counter map: a set of named sub-counters under one
// expvar entry, keyed by a single label dimension (e.g. "result").
type Map struct {
	mu     sync.Mutex
	vals   map[string]int64
	name   string
	label  string
	help   string
}

// NewMap creates and publishes a new labeled counter map under name, with
// the given label dimension name and help text.
func NewMap(name, label, help string) *Map {
	m := &Map{vals: map[string]int64{}, name: name, label: label, help: help}
	expvar.Publish(name, m)
	return m
}

// Add delta to the counter for the given label value.
func (m *Map) Add(value string, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[value] += delta
}

// String implements expvar.Var, rendering as a small JSON object.
func (m *Map) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.vals))
	for k := range m.vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q: %d", k, m.vals[k])
	}
	buf.WriteByte('}')
	return buf.String()
}
