// Package domain holds the achievement catalog and character completion types
// shared by the builder, the merge engine, the upstream clients and the API.
package domain

import "time"

type Category struct {
	ID       int        `json:"id"`
	Name     string     `json:"name"`
	Children []Category `json:"children"`
}

type RewardType string

const (
	RewardMount    RewardType = "mount"
	RewardPet      RewardType = "pet"
	RewardToy      RewardType = "toy"
	RewardTransmog RewardType = "transmog"
	RewardTitle    RewardType = "title"
	RewardOther    RewardType = "other"
)

type AchievementSummary struct {
	ID                  int        `json:"id"`
	Name                string     `json:"name"`
	Points              int        `json:"points"`
	CategoryID          int        `json:"categoryId"`
	Icon                string     `json:"icon,omitempty"`
	IsAccountWide       *bool      `json:"isAccountWide,omitempty"`
	IsMeta              bool       `json:"isMeta,omitempty"`
	ChildAchievementIDs []int      `json:"childAchievementIds,omitempty"`
	RewardType          RewardType `json:"rewardType,omitempty"`
}

// Manifest is the complete category tree plus the flat achievement list.
// It is immutable once built.
type Manifest struct {
	Categories   []Category           `json:"categories"`
	Achievements []AchievementSummary `json:"achievements"`
	BuiltAt      time.Time            `json:"builtAt"`
}

// CategoryRef is an entry of the upstream category index or a subcategory
// reference inside a category detail.
type CategoryRef struct {
	ID   int
	Name string
}

type AchievementRef struct {
	ID     int
	Name   string
	Points int
}

type CategoryDetail struct {
	ID            int
	Name          string
	Achievements  []AchievementRef
	Subcategories []CategoryRef
}

type Criterion struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Amount      int    `json:"amount"`
}

// AchievementDetail is the full upstream record of one achievement. An empty
// RewardDescription means the achievement has no reward text.
type AchievementDetail struct {
	ID                   int         `json:"id"`
	Name                 string      `json:"name"`
	Description          string      `json:"description"`
	Points               int         `json:"points"`
	IsAccountWide        bool        `json:"isAccountWide"`
	RewardDescription    string      `json:"rewardDescription,omitempty"`
	CategoryID           int         `json:"categoryId"`
	Criteria             []Criterion `json:"criteria"`
	LinkedAchievementIDs []int       `json:"linkedAchievementIds,omitempty"`
}

type CharacterRef struct {
	Realm string `json:"realm"`
	Name  string `json:"name"`
}

type Progress struct {
	CompletedCriteria int `json:"completedCriteria"`
	TotalCriteria     int `json:"totalCriteria"`
}

// CharacterSnapshot is one character's completion state at fetch time.
// CompletedAt values are unix milliseconds. An id is never in both Completed
// and Progress.
type CharacterSnapshot struct {
	Character   CharacterRef     `json:"character"`
	Completed   []int            `json:"completed"`
	CompletedAt map[int]int64    `json:"completedAt"`
	Progress    map[int]Progress `json:"progress"`
	FetchedAt   time.Time        `json:"fetchedAt"`
}

type MergedCompletion struct {
	Completed   []int            `json:"completed"`
	CompletedAt map[int]int64    `json:"completedAt,omitempty"`
	Progress    map[int]Progress `json:"progress"`
}

type MergeResult struct {
	Merged    MergedCompletion `json:"merged"`
	Sources   []CharacterRef   `json:"sources"`
	FetchedAt time.Time        `json:"fetchedAt"`
}

// Character is an entry of the signed-in user's character list.
type Character struct {
	ID    string `json:"id"`
	Realm string `json:"realm"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}
