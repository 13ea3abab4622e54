// Package manifest builds the achievement manifest incrementally. Each Step
// performs one bounded unit of work, checkpoints the build state in the
// store, and returns. A build therefore survives the process being torn
// down between steps.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdg-garage/achievement-atlas-api/internal/apperr"
	"github.com/gdg-garage/achievement-atlas-api/internal/domain"
	"github.com/gdg-garage/achievement-atlas-api/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	ManifestKey = "manifest:v1"
	StateKey    = "manifest:build-state"
	LeaseKey    = "manifest:build-lock"
)

// CatalogClient is the upstream game-data API.
type CatalogClient interface {
	FetchCategoryIndex(ctx context.Context) ([]domain.CategoryRef, error)
	FetchCategoryDetail(ctx context.Context, id int) (*domain.CategoryDetail, error)
	FetchAchievementDetail(ctx context.Context, id int) (*domain.AchievementDetail, error)
	FetchMediaAsset(ctx context.Context, id int) (string, error)
}

// Notifier is told about every finished build.
type Notifier interface {
	NotifyManifestBuilt(ctx context.Context, m *domain.Manifest) error
}

// Archiver keeps a copy of every finished manifest.
type Archiver interface {
	ArchiveManifest(ctx context.Context, m *domain.Manifest) error
}

type Options struct {
	BatchSize      int
	MediaBatchSize int
	ManifestTTL    time.Duration
	StateTTL       time.Duration
	LeaseTTL       time.Duration
}

func DefaultOptions() Options {
	return Options{
		BatchSize:      40,
		MediaBatchSize: 20,
		ManifestTTL:    24 * time.Hour,
		StateTTL:       time.Hour,
		LeaseTTL:       2 * time.Minute,
	}
}

type Builder struct {
	catalog  CatalogClient
	store    store.Store
	leaser   store.Leaser
	opts     Options
	now      func() time.Time
	notifier Notifier
	archiver Archiver
}

// NewBuilder returns a builder checkpointing into st. When st also
// implements store.Leaser, steps are serialised through a lease on LeaseKey.
func NewBuilder(catalog CatalogClient, st store.Store, opts Options) *Builder {
	b := &Builder{
		catalog: catalog,
		store:   st,
		opts:    opts,
		now:     time.Now,
	}
	if l, ok := st.(store.Leaser); ok {
		b.leaser = l
	}
	return b
}

func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithArchiver(a Archiver) *Builder {
	b.archiver = a
	return b
}

// BuildProgress is reported after every step.
type BuildProgress struct {
	Done     bool   `json:"done"`
	Phase    Phase  `json:"phase"`
	Progress string `json:"progress"`
}

// StepResult is the outcome of Advance. State is nil and Manifest set once
// the build is done.
type StepResult struct {
	State    *BuildState
	Manifest *domain.Manifest
	Message  string
	Done     bool
}

// Step loads the checkpoint, advances it by one unit of work and persists
// the result. On the final step the manifest replaces the cached one and the
// checkpoint is removed.
func (b *Builder) Step(ctx context.Context) (*BuildProgress, error) {
	if b.leaser != nil {
		owner := uuid.NewString()
		ok, err := b.leaser.TryLease(ctx, LeaseKey, owner, b.opts.LeaseTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.BuildInProgress("Another build step is running.")
		}
		defer func() {
			if err := b.leaser.ReleaseLease(context.WithoutCancel(ctx), LeaseKey, owner); err != nil {
				log.Warn().Err(err).Msg("failed to release build lease")
			}
		}()
	}

	state, err := b.loadState(ctx)
	if err != nil {
		return nil, err
	}

	res, err := b.Advance(ctx, state)
	if err != nil {
		return nil, err
	}

	if !res.Done {
		if err := store.PutJSON(ctx, b.store, StateKey, res.State, b.opts.StateTTL); err != nil {
			return nil, fmt.Errorf("save build state: %w", err)
		}
		log.Info().Str("phase", string(res.State.Phase)).Msg(res.Message)
		return &BuildProgress{Phase: res.State.Phase, Progress: res.Message}, nil
	}

	if err := store.PutJSON(ctx, b.store, ManifestKey, res.Manifest, b.opts.ManifestTTL); err != nil {
		return nil, fmt.Errorf("save manifest: %w", err)
	}
	if err := b.store.Delete(ctx, StateKey); err != nil {
		return nil, fmt.Errorf("clear build state: %w", err)
	}
	log.Info().
		Int("categories", len(res.Manifest.Categories)).
		Int("achievements", len(res.Manifest.Achievements)).
		Msg(res.Message)
	b.publish(ctx, res.Manifest)

	return &BuildProgress{Done: true, Phase: PhaseDone, Progress: res.Message}, nil
}

func (b *Builder) publish(ctx context.Context, m *domain.Manifest) {
	if b.notifier != nil {
		if err := b.notifier.NotifyManifestBuilt(ctx, m); err != nil {
			log.Warn().Err(err).Msg("failed to announce manifest build")
		}
	}
	if b.archiver != nil {
		if err := b.archiver.ArchiveManifest(ctx, m); err != nil {
			log.Warn().Err(err).Msg("failed to archive manifest")
		}
	}
}

func (b *Builder) loadState(ctx context.Context) (*BuildState, error) {
	state, err := store.GetJSON[BuildState](ctx, b.store, StateKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load build state: %w", err)
	}
	if state.CategoryData == nil {
		state.CategoryData = map[int]*CategoryEntry{}
	}
	return state, nil
}

// Advance performs one unit of work for exactly one phase. A nil state
// starts a fresh build. The given state is modified in place.
func (b *Builder) Advance(ctx context.Context, state *BuildState) (*StepResult, error) {
	if state == nil {
		state = newBuildState()
	}

	switch state.Phase {
	case PhaseIndex:
		return b.advanceIndex(ctx, state)
	case PhaseCategories:
		return b.advanceCategories(ctx, state)
	case PhaseMedia:
		if len(state.MediaQueue) > 0 {
			return b.advanceMedia(ctx, state)
		}
		state.Phase = PhaseDone
		fallthrough
	case PhaseDone:
		return b.finish(state), nil
	default:
		return nil, apperr.Internal(fmt.Sprintf("unknown build phase %q", state.Phase))
	}
}

func (b *Builder) advanceIndex(ctx context.Context, state *BuildState) (*StepResult, error) {
	roots, err := b.catalog.FetchCategoryIndex(ctx)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeUpstream {
			return nil, err
		}
		return nil, apperr.Upstream("index fetch failed: %v", err)
	}

	for _, r := range roots {
		if _, dup := state.CategoryData[r.ID]; dup {
			continue
		}
		state.RootIDs = append(state.RootIDs, r.ID)
		state.CategoryData[r.ID] = &CategoryEntry{ID: r.ID, Name: r.Name, ChildIDs: []int{}}
		state.Queue = append(state.Queue, r.ID)
	}
	state.Phase = PhaseCategories

	return &StepResult{
		State:   state,
		Message: fmt.Sprintf("Indexed %d root categories", len(state.RootIDs)),
	}, nil
}

func (b *Builder) advanceCategories(ctx context.Context, state *BuildState) (*StepResult, error) {
	if len(state.Queue) == 0 {
		state.MediaQueue = uniqueAchievementIDs(state.Achievements)
		state.Phase = PhaseMedia
		return &StepResult{
			State:   state,
			Message: fmt.Sprintf("Categories done, starting media fetch for %d achievements", len(state.MediaQueue)),
		}, nil
	}

	batch := popBatch(&state.Queue, b.opts.BatchSize)
	details := make([]*domain.CategoryDetail, len(batch))

	var g errgroup.Group
	for i, id := range batch {
		g.Go(func() error {
			detail, err := b.catalog.FetchCategoryDetail(ctx, id)
			if err != nil {
				log.Debug().Err(err).Int("category", id).Msg("dropping category")
				return nil
			}
			details[i] = detail
			return nil
		})
	}
	_ = g.Wait()

	for i, detail := range details {
		if detail == nil {
			continue
		}
		id := batch[i]
		for _, a := range detail.Achievements {
			state.Achievements = append(state.Achievements, domain.AchievementSummary{
				ID:         a.ID,
				Name:       a.Name,
				Points:     a.Points,
				CategoryID: id,
			})
		}
		parent := state.CategoryData[id]
		for _, sub := range detail.Subcategories {
			if _, known := state.CategoryData[sub.ID]; known {
				continue
			}
			state.CategoryData[sub.ID] = &CategoryEntry{ID: sub.ID, Name: sub.Name, ParentID: &id, ChildIDs: []int{}}
			if parent != nil {
				parent.ChildIDs = append(parent.ChildIDs, sub.ID)
			}
			state.Queue = append(state.Queue, sub.ID)
		}
	}

	return &StepResult{
		State: state,
		Message: fmt.Sprintf("Processed %d categories, %d remaining, %d achievements",
			len(batch), len(state.Queue), len(state.Achievements)),
	}, nil
}

type mediaResult struct {
	icon   string
	detail *domain.AchievementDetail
}

func (b *Builder) advanceMedia(ctx context.Context, state *BuildState) (*StepResult, error) {
	batch := popBatch(&state.MediaQueue, b.opts.MediaBatchSize)
	results := make([]mediaResult, len(batch))

	var g errgroup.Group
	for i, id := range batch {
		g.Go(func() error {
			icon, err := b.catalog.FetchMediaAsset(ctx, id)
			if err != nil {
				log.Debug().Err(err).Int("achievement", id).Msg("no media")
				return nil
			}
			results[i].icon = icon
			return nil
		})
		g.Go(func() error {
			detail, err := b.catalog.FetchAchievementDetail(ctx, id)
			if err != nil {
				log.Debug().Err(err).Int("achievement", id).Msg("no detail")
				return nil
			}
			results[i].detail = detail
			return nil
		})
	}
	_ = g.Wait()

	byID := make(map[int]mediaResult, len(batch))
	for i, id := range batch {
		byID[id] = results[i]
	}
	for i := range state.Achievements {
		r, ok := byID[state.Achievements[i].ID]
		if !ok {
			continue
		}
		applyMedia(&state.Achievements[i], r)
	}

	return &StepResult{
		State:   state,
		Message: fmt.Sprintf("Fetched %d details, %d remaining", len(batch), len(state.MediaQueue)),
	}, nil
}

func applyMedia(a *domain.AchievementSummary, r mediaResult) {
	if r.icon != "" {
		a.Icon = r.icon
	}
	d := r.detail
	if d == nil {
		return
	}
	a.Points = d.Points
	accountWide := d.IsAccountWide
	a.IsAccountWide = &accountWide
	if len(d.LinkedAchievementIDs) > 0 {
		a.IsMeta = true
		a.ChildAchievementIDs = append([]int(nil), d.LinkedAchievementIDs...)
	}
	if rt := classifyReward(d.RewardDescription); rt != "" {
		a.RewardType = rt
	}
}

func (b *Builder) finish(state *BuildState) *StepResult {
	m := &domain.Manifest{
		Categories:   buildTree(state.CategoryData, state.RootIDs),
		Achievements: state.Achievements,
		BuiltAt:      b.now().UTC(),
	}
	return &StepResult{
		Manifest: m,
		Done:     true,
		Message:  fmt.Sprintf("Complete: %d categories, %d achievements", len(m.Categories), len(m.Achievements)),
	}
}

func uniqueAchievementIDs(achievements []domain.AchievementSummary) []int {
	seen := make(map[int]bool, len(achievements))
	ids := make([]int, 0, len(achievements))
	for _, a := range achievements {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		ids = append(ids, a.ID)
	}
	return ids
}

// Get returns the cached manifest. It never starts a build.
func (b *Builder) Get(ctx context.Context) (*domain.Manifest, error) {
	m, err := store.GetJSON[domain.Manifest](ctx, b.store, ManifestKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotReady("Manifest is being built. Try again shortly.")
	}
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	return m, nil
}

// Seed caches m as the current manifest when none is cached yet. It reports
// whether m was stored.
func (b *Builder) Seed(ctx context.Context, m *domain.Manifest) (bool, error) {
	if _, err := b.store.Get(ctx, ManifestKey); err == nil {
		return false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if err := store.PutJSON(ctx, b.store, ManifestKey, m, b.opts.ManifestTTL); err != nil {
		return false, fmt.Errorf("seed manifest: %w", err)
	}
	return true, nil
}

// Reset drops both the checkpoint and the cached manifest.
func (b *Builder) Reset(ctx context.Context) error {
	if err := b.store.Delete(ctx, StateKey); err != nil {
		return err
	}
	return b.store.Delete(ctx, ManifestKey)
}

type Status struct {
	Building         bool       `json:"building"`
	Phase            Phase      `json:"phase,omitempty"`
	QueueLength      int        `json:"queueLength"`
	MediaQueueLength int        `json:"mediaQueueLength"`
	Categories       int        `json:"categories"`
	Achievements     int        `json:"achievements"`
	ManifestBuiltAt  *time.Time `json:"manifestBuiltAt,omitempty"`
}

// Status describes the checkpoint of a running build and the age of the
// cached manifest.
func (b *Builder) Status(ctx context.Context) (*Status, error) {
	st := &Status{}
	state, err := b.loadState(ctx)
	if err != nil {
		return nil, err
	}
	if state != nil {
		st.Building = true
		st.Phase = state.Phase
		st.QueueLength = len(state.Queue)
		st.MediaQueueLength = len(state.MediaQueue)
		st.Categories = len(state.CategoryData)
		st.Achievements = len(state.Achievements)
	}
	m, err := b.Get(ctx)
	switch {
	case err == nil:
		builtAt := m.BuiltAt
		st.ManifestBuiltAt = &builtAt
	case apperr.CodeOf(err) != apperr.CodeNotReady:
		return nil, err
	}
	return st, nil
}
