package manifest

import "github.com/gdg-garage/achievement-atlas-api/internal/domain"

type Phase string

const (
	PhaseIndex      Phase = "index"
	PhaseCategories Phase = "categories"
	PhaseMedia      Phase = "media"
	PhaseDone       Phase = "done"
)

// CategoryEntry is one node of the flat category map. The tree is only
// assembled from these entries when the build finishes.
type CategoryEntry struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ParentID *int   `json:"parentId"`
	ChildIDs []int  `json:"childIds"`
}

// BuildState is the checkpoint persisted between steps. It holds every bit
// of pending work, so a step can run in a fresh process.
type BuildState struct {
	Phase        Phase                      `json:"phase"`
	Queue        []int                      `json:"queue"`
	Achievements []domain.AchievementSummary `json:"achievements"`
	CategoryData map[int]*CategoryEntry     `json:"categoryData"`
	RootIDs      []int                      `json:"rootIds"`
	MediaQueue   []int                      `json:"mediaQueue,omitempty"`
}

func newBuildState() *BuildState {
	return &BuildState{
		Phase:        PhaseIndex,
		Queue:        []int{},
		Achievements: []domain.AchievementSummary{},
		CategoryData: map[int]*CategoryEntry{},
		RootIDs:      []int{},
	}
}

// popBatch removes and returns up to n ids from the front of q.
func popBatch(q *[]int, n int) []int {
	if n <= 0 || n > len(*q) {
		n = len(*q)
	}
	batch := append([]int(nil), (*q)[:n]...)
	*q = (*q)[n:]
	return batch
}
