/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"maps"
	"slices"
	"sync"
)

// JarState is the part of the jar every visitor may see at any time.
type JarState struct {
	Type        string `json:"type"` // "jar_state"
	Guesses     int    `json:"guesses"`
	ShowPlot    bool   `json:"show_plot"`
	RevealCount bool   `json:"reveal_count"`
}

// Jar is the single process-wide guess store. Every session may write its
// own guess; only a host may change the visibility flags or reset it.
type Jar struct {
	mu sync.RWMutex

	guesses     map[string]int
	showPlot    bool
	revealCount bool

	trueCount int
	maxGuess  int

	listeners []func(JarState)
}

func newJar(trueCount, maxGuess int) *Jar {
	return &Jar{
		guesses:   make(map[string]int),
		trueCount: trueCount,
		maxGuess:  maxGuess,
	}
}

// OnChange registers fn to receive the public state after every mutation.
// fn runs under the jar's write lock, so listeners see states in the order
// they were applied; fn must not block or call back into the jar.
func (j *Jar) OnChange(fn func(JarState)) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.listeners = append(j.listeners, fn)
}

// Submit stores value for sessionID, replacing any earlier guess. Values
// outside [0, maxGuess] are clamped. It returns the stored value.
func (j *Jar) Submit(sessionID string, value int) int {
	value = min(max(value, 0), j.maxGuess)

	j.mu.Lock()
	defer j.mu.Unlock()

	j.guesses[sessionID] = value

	metricGuessesSubmitted.Inc()
	metricGuesses.Set(float64(len(j.guesses)))
	j.notifyLocked()

	return value
}

// SetShowPlot toggles the histogram for everyone. Showing an empty jar
// returns ErrNoGuesses and leaves the flag alone.
func (j *Jar) SetShowPlot(v *Visitor, show bool) error {
	if !isHost(v) {
		return ErrNotHost
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if show && len(j.guesses) == 0 {
		return ErrNoGuesses
	}
	j.showPlot = show

	metricVisibilityChanges.WithLabelValues("show_plot", boolLabel(show)).Inc()
	j.notifyLocked()

	return nil
}

// SetRevealCount toggles the true-count marker for everyone.
func (j *Jar) SetRevealCount(v *Visitor, reveal bool) error {
	if !isHost(v) {
		return ErrNotHost
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.revealCount = reveal

	metricVisibilityChanges.WithLabelValues("reveal_count", boolLabel(reveal)).Inc()
	j.notifyLocked()

	return nil
}

// Reset drops every guess and hides the plot and the true count.
func (j *Jar) Reset(v *Visitor) error {
	if !isHost(v) {
		return ErrNotHost
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	clear(j.guesses)
	j.showPlot = false
	j.revealCount = false

	metricResets.Inc()
	metricGuesses.Set(0)
	j.notifyLocked()

	return nil
}

func (j *Jar) State() JarState {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.stateLocked()
}

// Summary reports the guesses once the plot is visible. The second result
// is false while the plot is hidden or the jar is empty.
func (j *Jar) Summary() (Summary, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.summaryLocked()
}

// JarView is one consistent snapshot of the jar as seen by a single session.
type JarView struct {
	State   JarState
	Guess   *int
	Summary *Summary
}

// View reads the public state, the session's own guess, and the summary
// under one lock.
func (j *Jar) View(sessionID string) JarView {
	j.mu.RLock()
	defer j.mu.RUnlock()

	view := JarView{State: j.stateLocked()}
	if guess, ok := j.guesses[sessionID]; ok {
		view.Guess = &guess
	}
	if summary, ok := j.summaryLocked(); ok {
		view.Summary = &summary
	}

	return view
}

func (j *Jar) summaryLocked() (Summary, bool) {
	if !j.showPlot || len(j.guesses) == 0 {
		return Summary{}, false
	}

	values := slices.Collect(maps.Values(j.guesses))

	return summarize(values, j.trueCount, j.revealCount), true
}

// stateLocked assumes j.mu is held.
func (j *Jar) stateLocked() JarState {
	return JarState{
		Type:        "jar_state",
		Guesses:     len(j.guesses),
		ShowPlot:    j.showPlot,
		RevealCount: j.revealCount,
	}
}

// notifyLocked assumes j.mu is held for writing.
func (j *Jar) notifyLocked() {
	state := j.stateLocked()
	for _, fn := range j.listeners {
		fn(state)
	}
}

func isHost(v *Visitor) bool {
	return v != nil && v.Host
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
