package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wykoj/livewatch/go/internal/countdown"
)

type scriptedSource struct {
	mu     sync.Mutex
	calls  int
	fn     func(call int) (PollResult, error)
	called chan int
}

func newScriptedSource(fn func(call int) (PollResult, error)) *scriptedSource {
	return &scriptedSource{fn: fn, called: make(chan int, 16)}
}

func (s *scriptedSource) Fetch(ctx context.Context) (PollResult, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	s.called <- call
	return s.fn(call)
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingMetrics struct {
	polls   chan bool
	stale   chan struct{}
	reloads chan string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		polls:   make(chan bool, 16),
		stale:   make(chan struct{}, 16),
		reloads: make(chan string, 16),
	}
}

func (m *recordingMetrics) RecordPoll(kind string, success bool, d time.Duration) { m.polls <- success }
func (m *recordingMetrics) RecordStale(kind string)                               { m.stale <- struct{}{} }
func (m *recordingMetrics) RecordReload(kind string, reason string)               { m.reloads <- reason }

type recordingDisplay struct {
	mu    sync.Mutex
	texts []string
	shown chan string
}

func newRecordingDisplay() *recordingDisplay {
	return &recordingDisplay{shown: make(chan string, 64)}
}

func (d *recordingDisplay) Show(text string) {
	d.mu.Lock()
	d.texts = append(d.texts, text)
	d.mu.Unlock()
	select {
	case d.shown <- text:
	default:
	}
}

func (d *recordingDisplay) Texts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.texts...)
}

var _ countdown.Display = (*recordingDisplay)(nil)

func testConfig() Config {
	return Config{
		RenderInterval: 100 * time.Millisecond,
		PollInterval:   5 * time.Second,
		FetchTimeout:   time.Second,
		DriftTolerance: time.Second,
	}
}

type runResult struct {
	outcome Outcome
	err     error
}

func start(ctx context.Context, r *Reconciler) <-chan runResult {
	done := make(chan runResult, 1)
	go func() {
		out, err := r.Run(ctx)
		done <- runResult{out, err}
	}()
	return done
}

func waitResult(t *testing.T, done <-chan runResult) runResult {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return runResult{}
	}
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func TestRunReloadsOnStatusChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	now := clock.Now()
	runningTarget := now.Add(3 * time.Hour)

	src := newScriptedSource(func(int) (PollResult, error) {
		return PollResult{Status: StatusRunning, Target: runningTarget}, nil
	})
	display := newRecordingDisplay()
	metrics := newRecordingMetrics()
	initial := State{Status: StatusBefore, Target: now.Add(time.Hour), LastPolledAt: now}

	r := New("contest/1", "contest", src, initial, testConfig(),
		WithClock(clock), WithDisplay(display), WithMetrics(metrics))
	done := start(ctx, r)

	if err := clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatal(err)
	}
	clock.Advance(5 * time.Second)

	res := waitResult(t, done)
	if res.err != nil {
		t.Fatalf("Run() error = %v", res.err)
	}
	if res.outcome.Kind != OutcomeReload {
		t.Fatalf("outcome = %v, want reload", res.outcome.Kind)
	}
	if !strings.Contains(res.outcome.Reason, "status changed") {
		t.Errorf("reason = %q", res.outcome.Reason)
	}
	if got := src.Calls(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
	if got := len(metrics.reloads); got != 1 {
		t.Errorf("reloads recorded = %d, want 1", got)
	}

	// The running target must never be rendered; a reload replaces the view.
	runningText, _ := countdown.Format(runningTarget.Sub(clock.Now()))
	for _, text := range display.Texts() {
		if text == runningText {
			t.Errorf("display rendered the new target %q instead of reloading", text)
		}
	}
}

func TestRunExpiryTriggersReconciliationPoll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	now := clock.Now()
	target := now.Add(150 * time.Millisecond)

	src := newScriptedSource(func(int) (PollResult, error) {
		return PollResult{Status: StatusRunning, Target: now.Add(2 * time.Hour)}, nil
	})
	display := newRecordingDisplay()
	initial := State{Status: StatusBefore, Target: target, LastPolledAt: now}

	r := New("contest/2", "contest", src, initial, testConfig(),
		WithClock(clock), WithDisplay(display))
	done := start(ctx, r)

	if err := clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatal(err)
	}
	clock.Advance(100 * time.Millisecond)
	if text := waitFor(t, display.shown, "first frame"); text != "00:00:00" {
		t.Fatalf("first frame = %q, want 00:00:00", text)
	}
	if got := src.Calls(); got != 0 {
		t.Fatalf("fetch calls before expiry = %d, want 0", got)
	}

	clock.Advance(100 * time.Millisecond)

	res := waitResult(t, done)
	if res.outcome.Kind != OutcomeReload {
		t.Fatalf("outcome = %v, want reload", res.outcome.Kind)
	}
	if got := src.Calls(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (poll tick never fired)", got)
	}
}

func TestRunExpiryWithServerStillBeforeReloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	now := clock.Now()
	target := now.Add(100 * time.Millisecond)

	src := newScriptedSource(func(int) (PollResult, error) {
		return PollResult{Status: StatusBefore, Target: target}, nil
	})
	initial := State{Status: StatusBefore, Target: target, LastPolledAt: now}

	r := New("contest/3", "contest", src, initial, testConfig(),
		WithClock(clock), WithDisplay(newRecordingDisplay()))
	done := start(ctx, r)

	if err := clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatal(err)
	}
	clock.Advance(100 * time.Millisecond)

	res := waitResult(t, done)
	if res.outcome.Kind != OutcomeReload || res.outcome.Reason != "target elapsed" {
		t.Fatalf("outcome = %v (%s), want reload on elapsed target", res.outcome.Kind, res.outcome.Reason)
	}
}

func TestRunSkipsPollWhileFetchInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	now := clock.Now()
	target := now.Add(time.Hour)
	release := make(chan struct{})

	// The judge answers slower than the poll interval.
	src := newScriptedSource(func(call int) (PollResult, error) {
		if call == 1 {
			<-release
			return PollResult{Status: StatusRunning, Target: target.Add(time.Hour)}, nil
		}
		return PollResult{Status: StatusBefore, Target: target}, nil
	})
	metrics := newRecordingMetrics()
	initial := State{Status: StatusBefore, Target: target, LastPolledAt: now}

	cfg := testConfig()
	cfg.FetchTimeout = time.Minute
	r := New("contest/4", "contest", src, initial, cfg,
		WithClock(clock), WithMetrics(metrics))
	done := start(ctx, r)

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(5 * time.Second)
	waitFor(t, src.called, "first fetch")

	clock.Advance(5 * time.Second)
	clock.Advance(5 * time.Second)
	close(release)

	res := waitResult(t, done)
	if res.err != nil {
		t.Fatalf("Run() error = %v", res.err)
	}
	if res.outcome.Kind != OutcomeReload || !strings.Contains(res.outcome.Reason, "status changed") {
		t.Fatalf("outcome = %v (%s), want reload on status change", res.outcome.Kind, res.outcome.Reason)
	}
	if got := src.Calls(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
	if len(metrics.stale) != 0 {
		t.Error("slow result was discarded as stale")
	}
}

func TestRunExpiryPollSupersedesInFlightFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	now := clock.Now()
	release := make(chan struct{})

	src := newScriptedSource(func(call int) (PollResult, error) {
		if call == 1 {
			<-release
			return PollResult{Status: StatusRunning, Target: now.Add(time.Hour)}, nil
		}
		return PollResult{Status: StatusBefore, Target: now.Add(2 * time.Second)}, nil
	})
	display := newRecordingDisplay()
	metrics := newRecordingMetrics()
	initial := State{Status: StatusBefore, Target: now.Add(1500 * time.Millisecond), LastPolledAt: now}

	cfg := testConfig()
	cfg.PollInterval = time.Second
	cfg.FetchTimeout = time.Minute
	r := New("contest/4", "contest", src, initial, cfg,
		WithClock(clock), WithDisplay(display), WithMetrics(metrics))
	done := start(ctx, r)

	if err := clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatal(err)
	}
	for step := 1; step <= 15; step++ {
		clock.Advance(100 * time.Millisecond)
		waitFor(t, display.shown, "frame")
		if step == 10 {
			waitFor(t, src.called, "poll fetch")
		}
	}
	waitFor(t, src.called, "expiry fetch")
	if ok := waitFor(t, metrics.polls, "expiry result"); !ok {
		t.Fatal("expiry poll recorded as failed")
	}
	// Render resumes on the server's target.
	if err := clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatal(err)
	}

	close(release)
	waitFor(t, metrics.stale, "stale result")

	cancel()
	res := waitResult(t, done)
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled (outcome %v)", res.err, res.outcome.Kind)
	}
	if res.outcome.Kind != OutcomeNone {
		t.Errorf("outcome on cancel = %v, want none", res.outcome.Kind)
	}
	if !res.outcome.State.Target.Equal(now.Add(2 * time.Second)) {
		t.Errorf("target = %v, want the server's", res.outcome.State.Target)
	}
	if len(metrics.reloads) != 0 {
		t.Error("stale result triggered a reload")
	}
}

func TestRunKeepsCountdownWhenServerMovesTargetSlightly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	now := clock.Now()

	src := newScriptedSource(func(call int) (PollResult, error) {
		if call == 1 {
			return PollResult{Status: StatusBefore, Target: now.Add(700 * time.Millisecond)}, nil
		}
		return PollResult{Status: StatusRunning, Target: now.Add(time.Hour)}, nil
	})
	display := newRecordingDisplay()
	metrics := newRecordingMetrics()
	initial := State{Status: StatusBefore, Target: now.Add(200 * time.Millisecond), LastPolledAt: now}

	r := New("contest/7", "contest", src, initial, testConfig(),
		WithClock(clock), WithDisplay(display), WithMetrics(metrics))
	done := start(ctx, r)

	if err := clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatal(err)
	}
	clock.Advance(100 * time.Millisecond)
	waitFor(t, display.shown, "first frame")
	clock.Advance(100 * time.Millisecond)
	waitFor(t, display.shown, "expired frame")
	waitFor(t, metrics.polls, "expiry result")
	if err := clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatal(err)
	}

	for step := 3; step <= 6; step++ {
		clock.Advance(100 * time.Millisecond)
		waitFor(t, display.shown, "resumed frame")
	}
	if got := src.Calls(); got != 1 {
		t.Fatalf("fetch calls before the new target = %d, want 1", got)
	}
	clock.Advance(100 * time.Millisecond)
	waitFor(t, display.shown, "second expiry")

	res := waitResult(t, done)
	if res.outcome.Kind != OutcomeReload || !strings.Contains(res.outcome.Reason, "status changed") {
		t.Fatalf("outcome = %v (%s), want reload on status change", res.outcome.Kind, res.outcome.Reason)
	}
	if got := src.Calls(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
	if got := len(display.Texts()); got != 7 {
		t.Errorf("frames shown = %d, want 7", got)
	}
}

func TestRunToleratesFetchErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	now := clock.Now()

	src := newScriptedSource(func(call int) (PollResult, error) {
		if call == 1 {
			return PollResult{}, errors.New("connection refused")
		}
		return PollResult{Status: StatusResolved}, nil
	})
	metrics := newRecordingMetrics()
	initial := State{Status: StatusPending, LastPolledAt: now}

	r := New("submission/9", "submission", src, initial, testConfig(),
		WithClock(clock), WithMetrics(metrics))
	done := start(ctx, r)

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(5 * time.Second)
	if ok := waitFor(t, metrics.polls, "failed poll"); ok {
		t.Fatal("first poll recorded as success")
	}

	clock.Advance(5 * time.Second)
	res := waitResult(t, done)
	if res.outcome.Kind != OutcomeReload {
		t.Fatalf("outcome = %v, want reload", res.outcome.Kind)
	}
	if got := src.Calls(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestRunTerminalStateDoesNotPoll(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := newScriptedSource(func(int) (PollResult, error) {
		t.Error("terminal state fetched")
		return PollResult{}, nil
	})

	r := New("contest/5", "contest", src, State{Status: StatusEnded}, testConfig(), WithClock(clock))
	out, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Kind != OutcomeTerminal {
		t.Errorf("outcome = %v, want terminal", out.Kind)
	}
}

func TestRunAbandonsAfterStopAt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	now := clock.Now()
	src := newScriptedSource(func(int) (PollResult, error) {
		return PollResult{Status: StatusPending}, nil
	})

	cfg := testConfig()
	cfg.StopAt = now.Add(4 * time.Second)
	r := New("submission/1", "submission", src, State{Status: StatusPending}, cfg, WithClock(clock))
	done := start(ctx, r)

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(5 * time.Second)

	res := waitResult(t, done)
	if res.outcome.Kind != OutcomeAbandoned {
		t.Fatalf("outcome = %v, want abandoned", res.outcome.Kind)
	}
	if got := src.Calls(); got != 0 {
		t.Errorf("fetch calls = %d, want 0", got)
	}
}

func TestOutcomeKindZeroValue(t *testing.T) {
	var out Outcome
	if out.Kind != OutcomeNone || out.Kind.String() != "none" {
		t.Errorf("zero Outcome kind = %v", out.Kind)
	}
}

func TestAcceptOnlyLatestSequence(t *testing.T) {
	r := New("contest/6", "contest", nil, State{Status: StatusBefore}, testConfig())
	r.seq = 3
	r.inflight = true

	if r.accept(fetchResult{seq: 2}) {
		t.Error("accept(seq 2) = true with latest 3")
	}
	if r.accept(fetchResult{seq: 3, err: errors.New("boom")}) {
		t.Error("accept(failed fetch) = true")
	}
	if !r.accept(fetchResult{seq: 3}) {
		t.Error("accept(seq 3) = false with latest 3")
	}
	if r.inflight {
		t.Error("latest result left the fetch marked in flight")
	}
}
