// Package help collects strategy notes and community comments for an
// achievement. It is best effort: every provider failure degrades to empty
// lists.
package help

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

type StrategySection struct {
	Title string   `json:"title"`
	Steps []string `json:"steps"`
}

type Comment struct {
	Author string  `json:"author"`
	Text   string  `json:"text"`
	Score  *int    `json:"score"`
	Date   *string `json:"date"`
}

type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Payload struct {
	AchievementID int               `json:"achievementId"`
	Strategy      []StrategySection `json:"strategy"`
	Comments      []Comment         `json:"comments"`
	Sources       []Source          `json:"sources"`
}

// Provider returns a partial payload, or nil when it has nothing for the
// achievement.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, achievementID, top int) (*Payload, error)
}

const wowheadName = "Wowhead"

func wowheadURL(achievementID int) string {
	return fmt.Sprintf("https://www.wowhead.com/achievement=%d", achievementID)
}

type Service struct {
	strategy  []Provider
	community []Provider
}

// NewService queries strategy providers in order until one has a strategy,
// then community providers until one answers.
func NewService(strategy, community []Provider) *Service {
	return &Service{strategy: strategy, community: community}
}

func (s *Service) Fetch(ctx context.Context, achievementID, top int) *Payload {
	out := &Payload{
		AchievementID: achievementID,
		Strategy:      []StrategySection{},
		Comments:      []Comment{},
		Sources:       []Source{},
	}

	for _, p := range s.strategy {
		data, err := p.Fetch(ctx, achievementID, top)
		if err != nil {
			log.Debug().Err(err).Str("provider", p.Name()).Int("achievement", achievementID).Msg("help provider failed")
			continue
		}
		if data != nil && len(data.Strategy) > 0 {
			out.Strategy = data.Strategy
			out.Sources = append(out.Sources, data.Sources...)
			break
		}
	}

	for _, p := range s.community {
		data, err := p.Fetch(ctx, achievementID, top)
		if err != nil {
			log.Debug().Err(err).Str("provider", p.Name()).Int("achievement", achievementID).Msg("help provider failed")
			continue
		}
		if data != nil {
			if len(data.Comments) > 0 {
				out.Comments = data.Comments
			}
			out.Sources = append(out.Sources, data.Sources...)
			break
		}
	}

	if !hasSource(out.Sources, wowheadName) {
		out.Sources = append(out.Sources, Source{Name: wowheadName, URL: wowheadURL(achievementID)})
	}
	return out
}

func hasSource(sources []Source, name string) bool {
	for _, s := range sources {
		if s.Name == name {
			return true
		}
	}
	return false
}

var htmlEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// stripHTML turns a comment body into plain text.
func stripHTML(html string) string {
	s := brTag.ReplaceAllString(html, "\n")
	s = anyTag.ReplaceAllString(s, "")
	return strings.TrimSpace(htmlEntities.Replace(s))
}
