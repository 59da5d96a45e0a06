// Package countdown turns a target time into the text shown on contest pages.
package countdown

import (
	"fmt"
	"time"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour

	// ExpiredText is shown once the target has been reached.
	ExpiredText = "00:00:00"
)

// Parts is a whole-second duration split into display units.
type Parts struct {
	Days    int64
	Hours   int64
	Minutes int64
	Seconds int64
}

// Total reassembles the parts into seconds.
func (p Parts) Total() int64 {
	return p.Days*secondsPerDay + p.Hours*secondsPerHour + p.Minutes*secondsPerMinute + p.Seconds
}

// Decompose splits a non-negative number of seconds. Each unit is truncated
// before it is subtracted from the remainder.
func Decompose(seconds int64) Parts {
	var p Parts
	p.Days = seconds / secondsPerDay
	seconds -= p.Days * secondsPerDay
	p.Hours = seconds / secondsPerHour
	seconds -= p.Hours * secondsPerHour
	p.Minutes = seconds / secondsPerMinute
	seconds -= p.Minutes * secondsPerMinute
	p.Seconds = seconds
	return p
}

func (p Parts) String() string {
	clock := fmt.Sprintf("%02d:%02d:%02d", p.Hours, p.Minutes, p.Seconds)
	switch p.Days {
	case 0:
		return clock
	case 1:
		return "1 day " + clock
	default:
		return fmt.Sprintf("%d days %s", p.Days, clock)
	}
}

// Format renders the remaining duration, floored to whole seconds. It returns
// false when remaining is not positive.
func Format(remaining time.Duration) (string, bool) {
	if remaining <= 0 {
		return "", false
	}
	return Decompose(int64(remaining / time.Second)).String(), true
}

// Display is the element a countdown is written into.
type Display interface {
	Show(text string)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(text string)

func (f DisplayFunc) Show(text string) { f(text) }

// Frame is one rendered countdown step.
type Frame struct {
	Text    string
	Expired bool
}

// Renderer tracks a single target. It is not safe for concurrent use; the
// goroutine that owns the countdown state owns the renderer too.
type Renderer struct {
	target  time.Time
	expired bool
}

func NewRenderer(target time.Time) *Renderer {
	return &Renderer{target: target}
}

func (r *Renderer) Target() time.Time {
	return r.target
}

// Retarget replaces the target and re-arms expiry reporting.
func (r *Renderer) Retarget(target time.Time) {
	r.target = target
	r.expired = false
}

// Tick renders the frame for now. The first tick at or past the target
// returns an Expired frame; later ticks return false until Retarget.
func (r *Renderer) Tick(now time.Time) (Frame, bool) {
	if r.expired {
		return Frame{}, false
	}
	text, ok := Format(r.target.Sub(now))
	if !ok {
		r.expired = true
		return Frame{Text: ExpiredText, Expired: true}, true
	}
	return Frame{Text: text}, true
}
