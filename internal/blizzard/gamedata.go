package blizzard

import (
	"context"
	"strconv"

	"github.com/gdg-garage/achievement-atlas-api/internal/domain"
	"github.com/go-resty/resty/v2"
)

// GameData is the static catalog client: category index, category detail,
// achievement detail and achievement media.
type GameData struct {
	http *resty.Client
	opts Options
}

func NewGameData(baseURL string, tokens *TokenCache, opts Options) *GameData {
	return &GameData{
		http: withClientToken(newRESTClient(baseURL, opts.Timeout), tokens),
		opts: opts,
	}
}

type categoryRefJSON struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type categoryIndexJSON struct {
	RootCategories []categoryRefJSON `json:"root_categories"`
	Categories     []categoryRefJSON `json:"categories"`
}

type categoryDetailJSON struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Achievements []struct {
		ID     int    `json:"id"`
		Name   string `json:"name"`
		Points int    `json:"points"`
	} `json:"achievements"`
	Subcategories []categoryRefJSON `json:"subcategories"`
}

type mediaJSON struct {
	Assets []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"assets"`
}

type criterionJSON struct {
	ID                int    `json:"id"`
	Description       string `json:"description"`
	Amount            int    `json:"amount"`
	LinkedAchievement *struct {
		ID int `json:"id"`
	} `json:"linked_achievement"`
}

type achievementJSON struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Points            int    `json:"points"`
	IsAccountWide     bool   `json:"is_account_wide"`
	RewardDescription string `json:"reward_description"`
	Category          struct {
		ID int `json:"id"`
	} `json:"category"`
	Criteria *struct {
		criterionJSON
		ChildCriteria []criterionJSON `json:"child_criteria"`
	} `json:"criteria"`
}

func (g *GameData) staticRequest() *resty.Request {
	return g.http.R().SetQueryParams(map[string]string{
		"namespace": g.opts.staticNamespace(),
		"locale":    g.opts.Locale,
	})
}

// FetchCategoryIndex returns the top-level achievement categories.
func (g *GameData) FetchCategoryIndex(ctx context.Context) ([]domain.CategoryRef, error) {
	var body categoryIndexJSON
	if err := get(ctx, g.staticRequest(), "/data/wow/achievement-category/index", &body); err != nil {
		return nil, err
	}
	roots := body.RootCategories
	if len(roots) == 0 {
		roots = body.Categories
	}
	return toCategoryRefs(roots), nil
}

func (g *GameData) FetchCategoryDetail(ctx context.Context, id int) (*domain.CategoryDetail, error) {
	var body categoryDetailJSON
	path := "/data/wow/achievement-category/" + strconv.Itoa(id)
	if err := get(ctx, g.staticRequest(), path, &body); err != nil {
		return nil, err
	}
	detail := &domain.CategoryDetail{
		ID:            id,
		Name:          body.Name,
		Subcategories: toCategoryRefs(body.Subcategories),
	}
	for _, a := range body.Achievements {
		if a.ID <= 0 {
			continue
		}
		detail.Achievements = append(detail.Achievements, domain.AchievementRef{ID: a.ID, Name: a.Name, Points: a.Points})
	}
	return detail, nil
}

func (g *GameData) FetchAchievementDetail(ctx context.Context, id int) (*domain.AchievementDetail, error) {
	var body achievementJSON
	path := "/data/wow/achievement/" + strconv.Itoa(id)
	if err := get(ctx, g.staticRequest(), path, &body); err != nil {
		return nil, err
	}
	detail := &domain.AchievementDetail{
		ID:                id,
		Name:              body.Name,
		Description:       body.Description,
		Points:            body.Points,
		IsAccountWide:     body.IsAccountWide,
		RewardDescription: body.RewardDescription,
		CategoryID:        body.Category.ID,
		Criteria:          []domain.Criterion{},
	}
	if c := body.Criteria; c != nil {
		if len(c.ChildCriteria) == 0 {
			detail.Criteria = append(detail.Criteria, toCriterion(c.criterionJSON))
		}
		for _, child := range c.ChildCriteria {
			detail.Criteria = append(detail.Criteria, toCriterion(child))
			if child.LinkedAchievement != nil && child.LinkedAchievement.ID > 0 {
				detail.LinkedAchievementIDs = append(detail.LinkedAchievementIDs, child.LinkedAchievement.ID)
			}
		}
	}
	return detail, nil
}

// FetchMediaAsset returns the icon URL of an achievement, or "" when the
// media record carries no icon.
func (g *GameData) FetchMediaAsset(ctx context.Context, id int) (string, error) {
	var body mediaJSON
	req := g.http.R().SetQueryParam("namespace", g.opts.staticNamespace())
	if err := get(ctx, req, "/data/wow/media/achievement/"+strconv.Itoa(id), &body); err != nil {
		return "", err
	}
	for _, asset := range body.Assets {
		if asset.Key == "icon" {
			return asset.Value, nil
		}
	}
	return "", nil
}

func toCategoryRefs(in []categoryRefJSON) []domain.CategoryRef {
	out := make([]domain.CategoryRef, 0, len(in))
	for _, c := range in {
		if c.ID <= 0 {
			continue
		}
		out = append(out, domain.CategoryRef{ID: c.ID, Name: c.Name})
	}
	return out
}

func toCriterion(c criterionJSON) domain.Criterion {
	amount := c.Amount
	if amount == 0 {
		amount = 1
	}
	return domain.Criterion{ID: c.ID, Description: c.Description, Amount: amount}
}
