// Package search implements the search-as-you-type box in the navigation bar.
package search

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/wykoj/livewatch/go/clients/judge_client"
)

// Searcher runs a query against the judge.
type Searcher interface {
	Search(ctx context.Context, query string) (*judge_client.SearchResults, error)
}

// Entry is one line of the result list.
type Entry struct {
	Label string `json:"label"`
	Href  string `json:"href,omitempty"`
}

// NoResultsLabel is shown when a query matched nothing.
const NoResultsLabel = "No results"

// Results is what the box shows for a query.
type Results struct {
	Query   string  `json:"query"`
	Entries []Entry `json:"entries"`
	Empty   bool    `json:"empty"`
}

// Sink is the result list the box writes to. Calls are serialised by the box
// and must not call back into it.
type Sink interface {
	Clear()
	Show(Results)
}

// Box tracks the current input and shows only responses that still match it.
type Box struct {
	searcher Searcher
	sink     Sink

	mu      sync.Mutex
	current string
	seq     uint64
	wg      sync.WaitGroup
}

func NewBox(searcher Searcher, sink Sink) *Box {
	return &Box{searcher: searcher, sink: sink}
}

// Valid reports whether a query is long enough and short enough to send.
// Length is counted in characters.
func Valid(query string) bool {
	n := utf8.RuneCountInString(query)
	return n >= judge_client.MinQueryLength && n <= judge_client.MaxQueryLength
}

// Input replaces the current input. The result list is cleared; a request is
// issued only for a valid query. It reports whether a request was issued.
func (b *Box) Input(ctx context.Context, text string) bool {
	b.mu.Lock()
	b.current = text
	b.seq++
	seq := b.seq
	b.sink.Clear()
	b.mu.Unlock()

	if !Valid(text) {
		return false
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.fetch(ctx, seq, text)
	}()
	return true
}

// Wait blocks until all in-flight requests have finished.
func (b *Box) Wait() {
	b.wg.Wait()
}

func (b *Box) fetch(ctx context.Context, seq uint64, query string) {
	data, err := b.searcher.Search(ctx, query)
	if err != nil {
		log.Debug().Err(err).Str("query", query).Msg("search failed")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if seq != b.seq || query != b.current {
		log.Debug().Str("query", query).Str("current", b.current).Msg("discarding stale search results")
		return
	}
	b.sink.Show(Render(query, data))
}

// Render turns a search response into the entries shown to the user.
func Render(query string, data *judge_client.SearchResults) Results {
	res := Results{Query: query}
	if data != nil {
		for _, task := range data.Tasks {
			res.Entries = append(res.Entries, Entry{
				Label: task.TaskID + " - " + task.Title,
				Href:  "/task/" + task.TaskID,
			})
		}
		for _, user := range data.Users {
			res.Entries = append(res.Entries, Entry{
				Label: user.Username + " - " + user.Name,
				Href:  "/user/" + user.Username,
			})
		}
	}
	if len(res.Entries) == 0 {
		res.Empty = true
		res.Entries = []Entry{{Label: NoResultsLabel}}
	}
	return res
}
