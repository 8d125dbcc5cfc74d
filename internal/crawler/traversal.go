package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// TraversalState is the lifecycle state of a traversal run.
type TraversalState string

// Traversal states.
const (
	TraversalIdle      TraversalState = "idle"
	TraversalRunning   TraversalState = "running"
	TraversalCompleted TraversalState = "completed"
	TraversalAborted   TraversalState = "aborted"
)

type frontierEntry struct {
	url   string
	depth int
}

// Traversal runs bounded-depth breadth-first crawling over the frontier of
// discovered same-site links. The visited-set guarantees each normalized
// URL is fetched at most once per run; the FIFO frontier makes visitation
// order deterministic for a static page graph. Visited-set and frontier
// are owned exclusively by one run and never shared.
type Traversal struct {
	visitor  PageVisitor
	maxDepth int
	logger   *zap.Logger

	state    TraversalState
	visited  map[string]struct{}
	frontier []frontierEntry
}

// NewTraversal builds a traversal over the given visitor. Each call to Run
// starts from a fresh visited-set and frontier.
func NewTraversal(visitor PageVisitor, maxDepth int, logger *zap.Logger) *Traversal {
	return &Traversal{
		visitor:  visitor,
		maxDepth: maxDepth,
		logger:   logger,
		state:    TraversalIdle,
	}
}

// State returns the current lifecycle state.
func (t *Traversal) State() TraversalState {
	return t.state
}

// Run crawls breadth-first from seedURL down to the depth bound. A single
// page's failure never aborts the run; only cancellation does, and even
// then the results collected so far are returned. The only hard error is
// a seed that fails normalization.
func (t *Traversal) Run(ctx context.Context, seedURL string) (TraversalResult, error) {
	seed, err := Normalize(seedURL)
	if err != nil {
		return TraversalResult{}, fmt.Errorf("seed url: %w", err)
	}

	t.state = TraversalRunning
	t.visited = make(map[string]struct{})
	t.frontier = []frontierEntry{{url: seed, depth: 0}}

	var res TraversalResult
	for len(t.frontier) > 0 {
		if ctx.Err() != nil {
			t.state = TraversalAborted
			res.Aborted = true
			t.logger.Warn("traversal aborted",
				zap.String("seed", seed),
				zap.Int("pages", len(res.Results)),
			)
			return res, nil
		}

		entry := t.frontier[0]
		t.frontier = t.frontier[1:]

		if entry.depth > t.maxDepth {
			continue
		}
		if _, seen := t.visited[entry.url]; seen {
			continue
		}
		t.visited[entry.url] = struct{}{}

		result, err := t.visitor.Visit(ctx, entry.url)
		if err != nil {
			res.Failures = append(res.Failures, CrawlFailure{URL: entry.url, Err: err})
			t.logger.Debug("page visit failed",
				zap.String("url", entry.url),
				zap.Int("depth", entry.depth),
				zap.Error(err),
			)
			continue
		}

		result.Depth = entry.depth
		res.Results = append(res.Results, result)

		for _, link := range result.Links {
			if link.External {
				continue
			}
			if _, seen := t.visited[link.URL]; seen {
				continue
			}
			t.frontier = append(t.frontier, frontierEntry{url: link.URL, depth: entry.depth + 1})
		}
	}

	t.state = TraversalCompleted
	return res, nil
}
