package blizzard

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/gdg-garage/achievement-atlas-api/internal/apperr"
	"github.com/gdg-garage/achievement-atlas-api/internal/domain"
	"github.com/go-resty/resty/v2"
)

// Profile reads character data. Character achievements go out with the
// client-credential token, the account character list with the signed-in
// user's own token.
type Profile struct {
	app  *resty.Client
	user *resty.Client
	opts Options
	now  func() time.Time
}

func NewProfile(baseURL string, tokens *TokenCache, opts Options) *Profile {
	return &Profile{
		app:  withClientToken(newRESTClient(baseURL, opts.Timeout), tokens),
		user: newRESTClient(baseURL, opts.Timeout),
		opts: opts,
		now:  time.Now,
	}
}

type characterAchievementsJSON struct {
	Achievements []struct {
		ID                 int   `json:"id"`
		CompletedTimestamp int64 `json:"completed_timestamp"`
		Criteria           *struct {
			ChildCriteria []struct {
				ID          int  `json:"id"`
				IsCompleted bool `json:"is_completed"`
			} `json:"child_criteria"`
		} `json:"criteria"`
	} `json:"achievements"`
}

type accountProfileJSON struct {
	WowAccounts []struct {
		Characters []struct {
			Name  string `json:"name"`
			Level int    `json:"level"`
			Realm struct {
				Slug string `json:"slug"`
			} `json:"realm"`
		} `json:"characters"`
	} `json:"wow_accounts"`
}

func (p *Profile) profileRequest(c *resty.Client) *resty.Request {
	return c.R().SetQueryParams(map[string]string{
		"namespace": p.opts.profileNamespace(),
		"locale":    p.opts.Locale,
	})
}

// Fetch returns one character's completion snapshot. Errors carry
// NOT_FOUND, NOT_PUBLIC or UPSTREAM_ERROR.
func (p *Profile) Fetch(ctx context.Context, realm, name string) (*domain.CharacterSnapshot, error) {
	ref := domain.CharacterRef{Realm: NormalizeRealmSlug(realm), Name: strings.ToLower(name)}

	var body characterAchievementsJSON
	req := p.profileRequest(p.app).SetPathParams(map[string]string{
		"realm": ref.Realm,
		"name":  ref.Name,
	})
	if err := get(ctx, req, "/profile/wow/character/{realm}/{name}/achievements", &body); err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			switch appErr.Code {
			case apperr.CodeNotFound:
				return nil, apperr.NotFound("Character not found")
			case apperr.CodeNotPublic:
				return nil, apperr.NotPublic("This character's achievements are not publicly visible.")
			}
		}
		return nil, err
	}

	snap := &domain.CharacterSnapshot{
		Character:   ref,
		Completed:   []int{},
		CompletedAt: map[int]int64{},
		Progress:    map[int]domain.Progress{},
		FetchedAt:   p.now().UTC(),
	}
	for _, a := range body.Achievements {
		if a.CompletedTimestamp > 0 {
			snap.Completed = append(snap.Completed, a.ID)
			snap.CompletedAt[a.ID] = a.CompletedTimestamp
			continue
		}
		if a.Criteria == nil || len(a.Criteria.ChildCriteria) == 0 {
			continue
		}
		done := 0
		for _, c := range a.Criteria.ChildCriteria {
			if c.IsCompleted {
				done++
			}
		}
		snap.Progress[a.ID] = domain.Progress{CompletedCriteria: done, TotalCriteria: len(a.Criteria.ChildCriteria)}
	}
	return snap, nil
}

// Characters lists every character on the user's account, highest level
// first.
func (p *Profile) Characters(ctx context.Context, accessToken string) ([]domain.Character, error) {
	var body accountProfileJSON
	req := p.profileRequest(p.user).SetAuthToken(accessToken)
	if err := get(ctx, req, "/profile/user/wow", &body); err != nil {
		if apperr.CodeOf(err) == apperr.CodeUpstream {
			return nil, err
		}
		return nil, apperr.Upstream("failed to fetch characters: %v", err)
	}

	characters := make([]domain.Character, 0)
	for _, account := range body.WowAccounts {
		for _, c := range account.Characters {
			characters = append(characters, domain.Character{
				ID:    c.Realm.Slug + "/" + strings.ToLower(c.Name),
				Realm: c.Realm.Slug,
				Name:  c.Name,
				Level: c.Level,
			})
		}
	}
	slices.SortStableFunc(characters, func(a, b domain.Character) int {
		return b.Level - a.Level
	})
	return characters, nil
}
