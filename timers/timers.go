// timers.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------

// Package timers accumulates wall-clock time per named phase of a run.
package timers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Phase identifiers used by the drivers.
const (
	Total     = "Total"
	Setup     = "Setup"
	Init      = "Initialization"
	Diffusion = "Diffusion"
	EvalGrad  = "Current Gradient"
	RatioGrad = "New Gradient"
	Update    = "Update"
	ECP       = "Pseudopotential"
	Value     = "Value"
)

// Timer accumulates elapsed time across Start/Stop pairs for one phase.
// A nil Timer is valid and does nothing, so callers can instrument
// unconditionally and let a nil manager switch the whole thing off.
type Timer struct {
	name    string
	total   time.Duration
	started time.Time
	running bool
	calls   int
}

func (t *Timer) Start() {
	if t == nil {
		return
	}
	t.started = time.Now()
	t.running = true
}

func (t *Timer) Stop() {
	if t == nil || !t.running {
		return
	}
	t.total += time.Since(t.started)
	t.running = false
	t.calls++
}

// Total returns the accumulated duration.
func (t *Timer) Total() time.Duration {
	if t == nil {
		return 0
	}
	return t.total
}

// Calls returns the number of completed Start/Stop pairs.
func (t *Timer) Calls() int {
	if t == nil {
		return 0
	}
	return t.calls
}

// Manager owns a set of named timers. Safe for concurrent Get; individual
// timers belong to one goroutine at a time.
type Manager struct {
	mu     sync.Mutex
	timers map[string]*Timer
}

func NewManager() *Manager {
	return &Manager{timers: make(map[string]*Timer)}
}

// Get returns the timer for a phase, creating it on first use.
func (m *Manager) Get(name string) *Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[name]
	if !ok {
		t = &Timer{name: name}
		m.timers[name] = t
	}
	return t
}

// Report renders the per-phase summary table.
func (m *Manager) Report() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.timers))
	for name := range m.timers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %14s %8s\n", "Timer", "Total", "Calls")
	for _, name := range names {
		t := m.timers[name]
		fmt.Fprintf(&b, "%-20s %14v %8d\n", t.name, t.total.Round(time.Microsecond), t.calls)
	}
	return b.String()
}
