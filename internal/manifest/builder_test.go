package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdg-garage/achievement-atlas-api/internal/apperr"
	"github.com/gdg-garage/achievement-atlas-api/internal/domain"
	"github.com/gdg-garage/achievement-atlas-api/internal/models"
	"github.com/gdg-garage/achievement-atlas-api/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var builtAt = time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

// fakeCatalog serves a two-level tree: roots 1 and 2, subcategories 11, 12
// under 1 and 21 under 2, eight achievements in total.
type fakeCatalog struct {
	mu           sync.Mutex
	indexErr     error
	failCategory map[int]bool
	failMedia    map[int]bool
	failDetail   map[int]bool
	calls        map[string]int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		failCategory: map[int]bool{},
		failMedia:    map[int]bool{},
		failDetail:   map[int]bool{},
		calls:        map[string]int{},
	}
}

var fakeCategories = map[int]*domain.CategoryDetail{
	1: {
		ID:            1,
		Name:          "General",
		Achievements:  []domain.AchievementRef{{ID: 101, Name: "Meta", Points: 5}, {ID: 102, Name: "Loremaster", Points: 5}},
		Subcategories: []domain.CategoryRef{{ID: 11, Name: "Exploration"}, {ID: 12, Name: "Collections"}},
	},
	2: {
		ID:            2,
		Name:          "Quests",
		Achievements:  []domain.AchievementRef{{ID: 201, Name: "Questing", Points: 5}},
		Subcategories: []domain.CategoryRef{{ID: 21, Name: "Dailies"}},
	},
	11: {ID: 11, Name: "Exploration", Achievements: []domain.AchievementRef{{ID: 111, Name: "Explore A", Points: 5}, {ID: 112, Name: "Explore B", Points: 5}}},
	12: {ID: 12, Name: "Collections", Achievements: []domain.AchievementRef{{ID: 121, Name: "Pet Collector", Points: 5}}},
	21: {
		ID:           21,
		Name:         "Dailies",
		Achievements: []domain.AchievementRef{{ID: 211, Name: "Daily A", Points: 5}, {ID: 212, Name: "Daily B", Points: 5}},
		// Listed twice upstream; must not become its own child.
		Subcategories: []domain.CategoryRef{{ID: 21, Name: "Dailies"}},
	},
}

var fakeRewards = map[int]string{
	101: "Reward: Violet Proto-Drake mount",
	102: "Title Reward: Loremaster",
	121: "Reward: Companion pet",
}

func (f *fakeCatalog) count(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[call]++
}

func (f *fakeCatalog) FetchCategoryIndex(ctx context.Context) ([]domain.CategoryRef, error) {
	f.count("index")
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	return []domain.CategoryRef{{ID: 1, Name: "General"}, {ID: 2, Name: "Quests"}}, nil
}

func (f *fakeCatalog) FetchCategoryDetail(ctx context.Context, id int) (*domain.CategoryDetail, error) {
	f.count("category")
	if f.failCategory[id] {
		return nil, apperr.Upstream("blizzard API error: 500")
	}
	detail, ok := fakeCategories[id]
	if !ok {
		return nil, apperr.NotFound("not found upstream")
	}
	return detail, nil
}

func (f *fakeCatalog) FetchAchievementDetail(ctx context.Context, id int) (*domain.AchievementDetail, error) {
	f.count("detail")
	if f.failDetail[id] {
		return nil, apperr.Upstream("blizzard API error: 500")
	}
	d := &domain.AchievementDetail{
		ID:                id,
		Points:            10,
		IsAccountWide:     id == 201,
		RewardDescription: fakeRewards[id],
	}
	if id == 101 {
		d.LinkedAchievementIDs = []int{111, 112}
	}
	return d, nil
}

func (f *fakeCatalog) FetchMediaAsset(ctx context.Context, id int) (string, error) {
	f.count("media")
	if f.failMedia[id] {
		return "", errors.New("timeout")
	}
	return fmt.Sprintf("https://render.example/icons/%d.jpg", id), nil
}

type recordingNotifier struct {
	manifests []*domain.Manifest
}

func (n *recordingNotifier) NotifyManifestBuilt(ctx context.Context, m *domain.Manifest) error {
	n.manifests = append(n.manifests, m)
	return nil
}

func (n *recordingNotifier) ArchiveManifest(ctx context.Context, m *domain.Manifest) error {
	return errors.New("bucket unavailable")
}

func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.KVEntry{}))
	return store.NewGormStore(db)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.BatchSize = 2
	opts.MediaBatchSize = 3
	return opts
}

func newTestBuilder(t *testing.T, catalog CatalogClient) (*Builder, *store.GormStore) {
	t.Helper()
	st := newTestStore(t)
	b := NewBuilder(catalog, st, testOptions()).WithClock(func() time.Time { return builtAt })
	return b, st
}

func runToCompletion(t *testing.T, b *Builder) []*BuildProgress {
	t.Helper()
	var steps []*BuildProgress
	for i := 0; i < 50; i++ {
		p, err := b.Step(context.Background())
		require.NoError(t, err)
		steps = append(steps, p)
		if p.Done {
			return steps
		}
	}
	t.Fatal("build did not finish within 50 steps")
	return nil
}

func countCategories(cats []domain.Category) int {
	n := 0
	for _, c := range cats {
		n += 1 + countCategories(c.Children)
	}
	return n
}

func TestBuilder_FullBuild(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	b, st := newTestBuilder(t, newFakeCatalog())
	b.WithNotifier(notifier).WithArchiver(notifier)

	steps := runToCompletion(t, b)

	var phases []Phase
	for _, s := range steps {
		phases = append(phases, s.Phase)
	}
	// index, three category batches, media queue built, three media
	// batches, done.
	want := []Phase{
		PhaseCategories,
		PhaseCategories, PhaseCategories, PhaseCategories,
		PhaseMedia,
		PhaseMedia, PhaseMedia, PhaseMedia,
		PhaseDone,
	}
	if diff := cmp.Diff(want, phases); diff != "" {
		t.Errorf("phase sequence mismatch (-want +got):\n%s", diff)
	}

	m, err := b.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, countCategories(m.Categories))
	require.Len(t, m.Achievements, 8)
	require.True(t, m.BuiltAt.Equal(builtAt))

	_, err = st.Get(ctx, StateKey)
	require.ErrorIs(t, err, store.ErrNotFound, "checkpoint must be deleted")
	_, err = st.Get(ctx, LeaseKey)
	require.ErrorIs(t, err, store.ErrNotFound, "lease must be released")

	require.Len(t, notifier.manifests, 1, "archiver failure must not block the build")

	byID := map[int]domain.AchievementSummary{}
	for _, a := range m.Achievements {
		byID[a.ID] = a
	}
	meta := byID[101]
	require.True(t, meta.IsMeta)
	require.Equal(t, []int{111, 112}, meta.ChildAchievementIDs)
	require.Equal(t, domain.RewardMount, meta.RewardType)
	require.Equal(t, 10, meta.Points)
	require.Equal(t, "https://render.example/icons/101.jpg", meta.Icon)
	require.Equal(t, 1, meta.CategoryID)

	require.Equal(t, domain.RewardTitle, byID[102].RewardType)
	require.Equal(t, domain.RewardPet, byID[121].RewardType)
	require.Empty(t, byID[211].RewardType)
	require.NotNil(t, byID[201].IsAccountWide)
	require.True(t, *byID[201].IsAccountWide)
	require.False(t, byID[211].IsMeta)
	require.Equal(t, 21, byID[211].CategoryID)
}

func TestBuilder_ResumesAcrossRestarts(t *testing.T) {
	ctx := context.Background()

	// Uninterrupted: state never leaves memory.
	direct := NewBuilder(newFakeCatalog(), newTestStore(t), testOptions()).WithClock(func() time.Time { return builtAt })
	var state *BuildState
	var uninterrupted *domain.Manifest
	for i := 0; i < 50 && uninterrupted == nil; i++ {
		res, err := direct.Advance(ctx, state)
		require.NoError(t, err)
		state, uninterrupted = res.State, res.Manifest
	}
	require.NotNil(t, uninterrupted)

	// Restarted: a fresh builder per step, state round-trips through the store.
	st := newTestStore(t)
	for i := 0; i < 50; i++ {
		b := NewBuilder(newFakeCatalog(), st, testOptions()).WithClock(func() time.Time { return builtAt })
		p, err := b.Step(ctx)
		require.NoError(t, err)
		if p.Done {
			break
		}
	}
	restarted, err := NewBuilder(newFakeCatalog(), st, testOptions()).Get(ctx)
	require.NoError(t, err)

	if diff := cmp.Diff(uninterrupted, restarted); diff != "" {
		t.Errorf("manifest mismatch (-uninterrupted +restarted):\n%s", diff)
	}
}

func TestBuilder_RebuildIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t, newFakeCatalog())

	build := func() []byte {
		require.NoError(t, b.Reset(ctx))
		runToCompletion(t, b)
		m, err := b.Get(ctx)
		require.NoError(t, err)
		raw, err := json.Marshal(struct {
			Categories   []domain.Category
			Achievements []domain.AchievementSummary
		}{m.Categories, m.Achievements})
		require.NoError(t, err)
		return raw
	}

	require.Equal(t, string(build()), string(build()))
}

func TestBuilder_TreeIntegrity(t *testing.T) {
	b, _ := newTestBuilder(t, newFakeCatalog())
	runToCompletion(t, b)
	m, err := b.Get(context.Background())
	require.NoError(t, err)

	ids := map[int]int{}
	var walk func([]domain.Category)
	walk = func(cats []domain.Category) {
		for _, c := range cats {
			ids[c.ID]++
			walk(c.Children)
		}
	}
	walk(m.Categories)
	for id, n := range ids {
		require.Equal(t, 1, n, "category %d appears %d times", id, n)
	}
	for _, a := range m.Achievements {
		require.Contains(t, ids, a.CategoryID, "achievement %d has dangling category", a.ID)
	}
}

func TestBuilder_DropsFailedFetches(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog()
	catalog.failCategory[12] = true
	catalog.failMedia[102] = true
	catalog.failDetail[111] = true
	b, _ := newTestBuilder(t, catalog)

	runToCompletion(t, b)
	m, err := b.Get(ctx)
	require.NoError(t, err)

	require.Equal(t, 5, countCategories(m.Categories), "failed category stays in the tree without achievements")
	require.Len(t, m.Achievements, 7)

	byID := map[int]domain.AchievementSummary{}
	for _, a := range m.Achievements {
		byID[a.ID] = a
	}
	require.NotContains(t, byID, 121)
	require.Empty(t, byID[102].Icon)
	require.Equal(t, domain.RewardTitle, byID[102].RewardType)
	require.Equal(t, "https://render.example/icons/111.jpg", byID[111].Icon)
	require.Equal(t, 5, byID[111].Points, "list points kept when the detail fetch fails")
	require.Nil(t, byID[111].IsAccountWide)
}

func TestBuilder_IndexFailureKeepsCheckpoint(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog()
	catalog.indexErr = errors.New("connection refused")
	b, st := newTestBuilder(t, catalog)

	_, err := b.Step(ctx)
	require.Equal(t, apperr.CodeUpstream, apperr.CodeOf(err))

	_, err = st.Get(ctx, StateKey)
	require.ErrorIs(t, err, store.ErrNotFound)

	catalog.indexErr = nil
	p, err := b.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, PhaseCategories, p.Phase)
	require.Equal(t, "Indexed 2 root categories", p.Progress)
}

func TestBuilder_LeaseHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog()
	b, st := newTestBuilder(t, catalog)

	ok, err := st.TryLease(ctx, LeaseKey, "other-worker", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = b.Step(ctx)
	require.Equal(t, apperr.CodeBuildInProgress, apperr.CodeOf(err))
	require.Zero(t, catalog.calls["index"])

	require.NoError(t, st.ReleaseLease(ctx, LeaseKey, "other-worker"))
	_, err = b.Step(ctx)
	require.NoError(t, err)
}

func TestBuilder_GetResetStatus(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t, newFakeCatalog())

	_, err := b.Get(ctx)
	require.Equal(t, apperr.CodeNotReady, apperr.CodeOf(err))

	st, err := b.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, &Status{}, st)

	_, err = b.Step(ctx)
	require.NoError(t, err)
	st, err = b.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.Building)
	require.Equal(t, PhaseCategories, st.Phase)
	require.Equal(t, 2, st.QueueLength)
	require.Equal(t, 2, st.Categories)

	runToCompletion(t, b)
	st, err = b.Status(ctx)
	require.NoError(t, err)
	require.False(t, st.Building)
	require.NotNil(t, st.ManifestBuiltAt)

	require.NoError(t, b.Reset(ctx))
	_, err = b.Get(ctx)
	require.Equal(t, apperr.CodeNotReady, apperr.CodeOf(err))
}

func TestBuildTree(t *testing.T) {
	parent := 1
	data := map[int]*CategoryEntry{
		1: {ID: 1, Name: "Root", ChildIDs: []int{2, 99, 3}},
		2: {ID: 2, Name: "Child", ParentID: &parent, ChildIDs: []int{1}},
		3: {ID: 3, Name: "Other", ParentID: &parent, ChildIDs: []int{}},
	}

	got := buildTree(data, []int{1, 42})
	want := []domain.Category{{
		ID:   1,
		Name: "Root",
		Children: []domain.Category{
			{ID: 2, Name: "Child", Children: []domain.Category{}},
			{ID: 3, Name: "Other", Children: []domain.Category{}},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyReward(t *testing.T) {
	tests := []struct {
		description string
		want        domain.RewardType
	}{
		{"", ""},
		{"Reward: Reins of the Violet Proto-Drake", domain.RewardOther},
		{"Reward: Swift Spectral Mount", domain.RewardMount},
		{"Title Reward: The Insane", domain.RewardTitle},
		{"Title: Loremaster", domain.RewardTitle},
		{"Title reward: Mount Collector", domain.RewardTitle},
		{"Reward: Pet Carrier", domain.RewardPet},
		{"Reward: Companion", domain.RewardPet},
		{"Reward: Toy Train Set", domain.RewardToy},
		{"Reward: Appearance of the Wild", domain.RewardTransmog},
		{"Reward: Transmog Set", domain.RewardTransmog},
		{"Reward: the Patient title", domain.RewardTitle},
		{"Reward: Tabard of the Explorer", domain.RewardOther},
		{"Reward: Carpet of Mounting Doom", domain.RewardMount},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if got := classifyReward(tt.description); got != tt.want {
				t.Errorf("classifyReward(%q) = %q, want %q", tt.description, got, tt.want)
			}
		})
	}
}

func TestBuilder_Seed(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t, newFakeCatalog())
	archived := &domain.Manifest{
		Categories:   []domain.Category{{ID: 1, Name: "General", Children: []domain.Category{}}},
		Achievements: []domain.AchievementSummary{},
		BuiltAt:      builtAt.Add(-time.Hour),
	}

	seeded, err := b.Seed(ctx, archived)
	require.NoError(t, err)
	require.True(t, seeded)

	got, err := b.Get(ctx)
	require.NoError(t, err)
	require.True(t, got.BuiltAt.Equal(archived.BuiltAt))

	seeded, err = b.Seed(ctx, &domain.Manifest{})
	require.NoError(t, err)
	require.False(t, seeded, "an existing manifest is never replaced")
}
