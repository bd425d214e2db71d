package codecontext

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/changesmith/pkg/models"
)

// FileSource is the slice of the source-control collaborator the selector
// consumes: a candidate listing and per-file content fetch.
type FileSource interface {
	ListTree(ctx context.Context, ref string) ([]models.RepoEntry, error)
	GetFileContent(ctx context.Context, path, ref string) (string, error)
}

// SecretFilter vets fetched content before it can enter a prompt.
type SecretFilter interface {
	Clean(path, content string) bool
}

// Options bound the selection: how many files, how many characters, how
// large a single candidate may be, and the fetch parallelism.
type Options struct {
	MaxFiles     int
	BudgetChars  int
	MaxFileBytes int64
	FetchWorkers int
}

func (o Options) withDefaults() Options {
	if o.MaxFiles <= 0 {
		o.MaxFiles = 10
	}
	if o.BudgetChars <= 0 {
		o.BudgetChars = 24000
	}
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = 51200
	}
	if o.FetchWorkers <= 0 {
		o.FetchWorkers = 4
	}
	return o
}

// SelectedFile is one grounding-context entry.
type SelectedFile struct {
	Path    string
	Content string
}

// Stats counts what the selection did, for logging.
type Stats struct {
	Considered   int `json:"considered"`
	Scored       int `json:"scored"`
	Fetched      int `json:"fetched"`
	Skipped      int `json:"skipped"`
	ContextChars int `json:"context_chars"`
}

// Selector ranks repository candidates against a task and fetches a
// token-budgeted subset of their contents.
type Selector struct {
	source FileSource
	filter SecretFilter // nil disables secret scanning
	opts   Options
}

func NewSelector(source FileSource, filter SecretFilter, opts Options) *Selector {
	return &Selector{source: source, filter: filter, opts: opts.withDefaults()}
}

type scoredCandidate struct {
	entry models.RepoEntry
	score int
}

// Select lists the tree at ref, scores every surviving candidate against
// the task, fetches the top candidates concurrently and accumulates their
// contents up to the character budget. A single failed fetch skips that
// file; it never aborts the selection.
func (s *Selector) Select(ctx context.Context, task, ref string) ([]SelectedFile, Stats, error) {
	var stats Stats

	candidates, err := s.source.ListTree(ctx, ref)
	if err != nil {
		return nil, stats, err
	}
	stats.Considered = len(candidates)

	profile := buildTaskProfile(task)

	var ranked []scoredCandidate
	for _, entry := range candidates {
		if excluded(entry, s.opts.MaxFileBytes) {
			continue
		}
		if sc := score(entry, profile); sc > 0 {
			ranked = append(ranked, scoredCandidate{entry: entry, score: sc})
		}
	}
	stats.Scored = len(ranked)

	// Score descending, size ascending, then path so the order is total
	// and the selection deterministic for a fixed snapshot and task.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].entry.SizeBytes != ranked[j].entry.SizeBytes {
			return ranked[i].entry.SizeBytes < ranked[j].entry.SizeBytes
		}
		return ranked[i].entry.Path < ranked[j].entry.Path
	})

	if len(ranked) > s.opts.MaxFiles {
		ranked = ranked[:s.opts.MaxFiles]
	}

	contents := s.fetchAll(ctx, ranked, ref)

	var selected []SelectedFile
	for _, rc := range ranked {
		content, ok := contents[rc.entry.Path]
		if !ok {
			stats.Skipped++
			continue
		}
		if s.filter != nil && !s.filter.Clean(rc.entry.Path, content) {
			stats.Skipped++
			continue
		}
		if stats.ContextChars+len(content) > s.opts.BudgetChars {
			break
		}
		selected = append(selected, SelectedFile{Path: rc.entry.Path, Content: content})
		stats.Fetched++
		stats.ContextChars += len(content)
	}

	log.Info().
		Int("considered", stats.Considered).
		Int("scored", stats.Scored).
		Int("fetched", stats.Fetched).
		Int("skipped", stats.Skipped).
		Int("context_chars", stats.ContextChars).
		Msg("grounding context selected")

	return selected, stats, nil
}

// fetchAll retrieves candidate contents concurrently, keyed by path.
// Completion order does not matter; the caller accumulates in rank order.
func (s *Selector) fetchAll(ctx context.Context, ranked []scoredCandidate, ref string) map[string]string {
	contents := make(map[string]string, len(ranked))

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.opts.FetchWorkers)

	for _, rc := range ranked {
		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			content, err := s.source.GetFileContent(ctx, path, ref)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("context fetch failed, skipping file")
				return
			}
			mu.Lock()
			contents[path] = content
			mu.Unlock()
		}(rc.entry.Path)
	}
	wg.Wait()

	return contents
}
