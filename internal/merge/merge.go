// Package merge combines several characters' completion snapshots into one
// account-wide view.
package merge

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/gdg-garage/achievement-atlas-api/internal/apperr"
	"github.com/gdg-garage/achievement-atlas-api/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Fetcher returns one character's snapshot.
type Fetcher interface {
	Fetch(ctx context.Context, realm, name string) (*domain.CharacterSnapshot, error)
}

type Engine struct {
	fetcher       Fetcher
	maxCharacters int
	batchSize     int
	now           func() time.Time
}

func NewEngine(fetcher Fetcher, maxCharacters, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Engine{
		fetcher:       fetcher,
		maxCharacters: maxCharacters,
		batchSize:     batchSize,
		now:           time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Merge fetches every character in batches of batchSize and folds the
// snapshots that could be fetched. Characters that fail are skipped; only a
// merge where none succeeded fails with NO_DATA.
func (e *Engine) Merge(ctx context.Context, characters []domain.CharacterRef) (*domain.MergeResult, error) {
	if len(characters) == 0 {
		return nil, apperr.InvalidInput("No characters provided")
	}
	if len(characters) > e.maxCharacters {
		return nil, apperr.InvalidInput("Maximum %d characters allowed", e.maxCharacters)
	}
	for _, c := range characters {
		if strings.TrimSpace(c.Realm) == "" || strings.TrimSpace(c.Name) == "" {
			return nil, apperr.InvalidInput("Every character needs a realm and a name")
		}
	}

	var snapshots []*domain.CharacterSnapshot
	for batch := range slices.Chunk(characters, e.batchSize) {
		fetched := make([]*domain.CharacterSnapshot, len(batch))
		var g errgroup.Group
		for i, c := range batch {
			g.Go(func() error {
				snap, err := e.fetcher.Fetch(ctx, c.Realm, c.Name)
				if err != nil {
					log.Debug().Err(err).Str("realm", c.Realm).Str("name", c.Name).Msg("skipping character")
					return nil
				}
				fetched[i] = snap
				return nil
			})
		}
		_ = g.Wait()
		for _, snap := range fetched {
			if snap != nil {
				snapshots = append(snapshots, snap)
			}
		}
	}

	if len(snapshots) == 0 {
		return nil, apperr.NoData("Could not fetch any character data")
	}

	sources := make([]domain.CharacterRef, 0, len(snapshots))
	for _, s := range snapshots {
		sources = append(sources, s.Character)
	}
	return &domain.MergeResult{
		Merged:    Fold(snapshots),
		Sources:   sources,
		FetchedAt: e.now().UTC(),
	}, nil
}

// Fold unions completions, keeps the latest completion time and the most
// advanced progress per achievement, then drops progress for anything that
// some character completed.
func Fold(snapshots []*domain.CharacterSnapshot) domain.MergedCompletion {
	completed := map[int]bool{}
	completedAt := map[int]int64{}
	progress := map[int]domain.Progress{}

	for _, s := range snapshots {
		for _, id := range s.Completed {
			completed[id] = true
			if ts, ok := s.CompletedAt[id]; ok && ts > completedAt[id] {
				completedAt[id] = ts
			}
		}
		for id, p := range s.Progress {
			if cur, ok := progress[id]; !ok || p.CompletedCriteria > cur.CompletedCriteria {
				progress[id] = p
			}
		}
	}

	ids := make([]int, 0, len(completed))
	for id := range completed {
		ids = append(ids, id)
		delete(progress, id)
	}
	slices.Sort(ids)

	return domain.MergedCompletion{
		Completed:   ids,
		CompletedAt: completedAt,
		Progress:    progress,
	}
}
