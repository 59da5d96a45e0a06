package search

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/wykoj/livewatch/go/clients/judge_client"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	gates   map[string]chan struct{}
	started chan string
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{gates: map[string]chan struct{}{}, started: make(chan string, 8)}
}

func (f *fakeSearcher) gate(query string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[query] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeSearcher) Search(ctx context.Context, query string) (*judge_client.SearchResults, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	gate := f.gates[query]
	f.mu.Unlock()
	f.started <- query
	if gate != nil {
		<-gate
	}
	return &judge_client.SearchResults{
		Tasks: []judge_client.TaskResult{{TaskID: "T" + query, Title: "title " + query}},
	}, nil
}

func (f *fakeSearcher) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type recordingSink struct {
	mu     sync.Mutex
	clears int
	shown  []Results
}

func (s *recordingSink) Clear() {
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
}

func (s *recordingSink) Show(r Results) {
	s.mu.Lock()
	s.shown = append(s.shown, r)
	s.mu.Unlock()
}

func TestInputLengthBounds(t *testing.T) {
	searcher := newFakeSearcher()
	sink := &recordingSink{}
	box := NewBox(searcher, sink)

	if box.Input(context.Background(), "ab") {
		t.Error("Input(2 chars) issued a request")
	}
	box.Wait()
	if got := len(searcher.Queries()); got != 0 {
		t.Fatalf("searcher called %d times for a 2 character query", got)
	}

	if !box.Input(context.Background(), "abc") {
		t.Error("Input(3 chars) did not issue a request")
	}
	box.Wait()
	if got := searcher.Queries(); len(got) != 1 || got[0] != "abc" {
		t.Fatalf("queries = %v, want [abc]", got)
	}
	if len(sink.shown) != 1 || sink.shown[0].Query != "abc" {
		t.Fatalf("shown = %+v", sink.shown)
	}
	if sink.clears != 2 {
		t.Errorf("clears = %d, want 2", sink.clears)
	}

	if box.Input(context.Background(), strings.Repeat("x", 51)) {
		t.Error("Input(51 chars) issued a request")
	}
	if !box.Input(context.Background(), strings.Repeat("x", 50)) {
		t.Error("Input(50 chars) did not issue a request")
	}
	box.Wait()
}

func TestValidCountsCharacters(t *testing.T) {
	if !Valid("日本語") {
		t.Error("Valid(3 multibyte characters) = false")
	}
	if Valid("日本") {
		t.Error("Valid(2 multibyte characters) = true")
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	searcher := newFakeSearcher()
	sink := &recordingSink{}
	box := NewBox(searcher, sink)

	slow := searcher.gate("abc")
	box.Input(context.Background(), "abc")
	<-searcher.started

	box.Input(context.Background(), "abcd")
	<-searcher.started

	// Wait for the newer response to be shown before releasing the old one.
	for {
		sink.mu.Lock()
		n := len(sink.shown)
		sink.mu.Unlock()
		if n == 1 {
			break
		}
	}

	close(slow)
	box.Wait()

	if len(sink.shown) != 1 {
		t.Fatalf("shown %d result sets, want 1: %+v", len(sink.shown), sink.shown)
	}
	if sink.shown[0].Query != "abcd" {
		t.Errorf("shown query = %q, want abcd", sink.shown[0].Query)
	}
}

func TestSameQueryRetypedDiscardsEarlierResponse(t *testing.T) {
	searcher := newFakeSearcher()
	sink := &recordingSink{}
	box := NewBox(searcher, sink)

	slow := searcher.gate("abc")
	box.Input(context.Background(), "abc")
	<-searcher.started

	// The input goes away and comes back; only the latest request may show.
	box.Input(context.Background(), "ab")
	searcher.mu.Lock()
	delete(searcher.gates, "abc")
	searcher.mu.Unlock()
	box.Input(context.Background(), "abc")
	<-searcher.started

	close(slow)
	box.Wait()

	if len(sink.shown) != 1 {
		t.Fatalf("shown %d result sets, want 1", len(sink.shown))
	}
}

func TestRender(t *testing.T) {
	got := Render("sum", &judge_client.SearchResults{
		Tasks: []judge_client.TaskResult{{TaskID: "A001", Title: "A+B"}},
		Users: []judge_client.UserResult{{Username: "sum1", Name: "Summer"}},
	})
	want := []Entry{
		{Label: "A001 - A+B", Href: "/task/A001"},
		{Label: "sum1 - Summer", Href: "/user/sum1"},
	}
	if got.Empty || len(got.Entries) != len(want) {
		t.Fatalf("Render() = %+v", got)
	}
	for i := range want {
		if got.Entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got.Entries[i], want[i])
		}
	}

	empty := Render("zzz", &judge_client.SearchResults{})
	if !empty.Empty || len(empty.Entries) != 1 || empty.Entries[0].Label != NoResultsLabel {
		t.Errorf("Render(no matches) = %+v", empty)
	}
}
