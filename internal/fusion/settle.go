package fusion

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/newthinker/marketlens/internal/core"
)

// Result is the outcome of one settled branch.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the branch succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Settle runs every fn concurrently, at most limit at a time (0 means no
// limit), and waits for all of them. A failing branch never cancels the
// others; results are returned in argument order.
func Settle[T any](ctx context.Context, limit int, fns ...func(context.Context) (T, error)) []Result[T] {
	results := make([]Result[T], len(fns))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, fn := range fns {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					results[i].Err = fmt.Errorf("branch %d panicked: %v", i, r)
				}
			}()
			results[i].Value, results[i].Err = fn(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// MergeNews concatenates news lists, dropping any item whose title or URL
// was already seen (first occurrence wins), and sorts newest first.
func MergeNews(lists ...[]core.NewsItem) []core.NewsItem {
	seenTitle := make(map[string]struct{})
	seenURL := make(map[string]struct{})

	var out []core.NewsItem
	for _, list := range lists {
		for _, it := range list {
			title := strings.ToLower(strings.TrimSpace(it.Title))
			u := strings.TrimSpace(it.URL)
			if _, dup := seenTitle[title]; dup && title != "" {
				continue
			}
			if _, dup := seenURL[u]; dup && u != "" {
				continue
			}
			if title != "" {
				seenTitle[title] = struct{}{}
			}
			if u != "" {
				seenURL[u] = struct{}{}
			}
			out = append(out, it)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	if out == nil {
		out = []core.NewsItem{}
	}
	return out
}
