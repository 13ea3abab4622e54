package help

import (
	"context"
	"encoding/json"
	"regexp"
	"slices"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

var (
	bodyPattern   = regexp.MustCompile(`"body"\s*:\s*"([^"\\]*(?:\\.[^"\\]*)*)"`)
	userPattern   = regexp.MustCompile(`"user"\s*:\s*"([^"]+)"`)
	ratingPattern = regexp.MustCompile(`"rating"\s*:\s*(-?\d+)`)

	brTag  = regexp.MustCompile(`(?i)<br\s*/?>`)
	anyTag = regexp.MustCompile(`<[^>]+>`)
)

const (
	minCommentLength = 10
	maxCommentLength = 1000
)

// WowheadProvider scrapes community comments from the achievement page.
// Any failure yields an empty comment list with the page link as source.
type WowheadProvider struct {
	http *resty.Client
}

func NewWowheadProvider(baseURL string, timeout time.Duration) *WowheadProvider {
	return &WowheadProvider{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("User-Agent", "WoW-Achievement-Helper/1.0"),
	}
}

func (p *WowheadProvider) Name() string { return wowheadName }

func (p *WowheadProvider) Fetch(ctx context.Context, achievementID, top int) (*Payload, error) {
	out := &Payload{
		Comments: []Comment{},
		Sources:  []Source{{Name: wowheadName, URL: wowheadURL(achievementID)}},
	}
	resp, err := p.http.R().
		SetContext(ctx).
		Get("/achievement=" + strconv.Itoa(achievementID))
	if err != nil || resp.IsError() {
		return out, nil
	}
	out.Comments = extractComments(resp.String(), top)
	return out, nil
}

// extractComments pairs the n-th body with the n-th user and rating found
// in the page's embedded comment data, keeps the top entries by score.
func extractComments(html string, top int) []Comment {
	if top <= 0 {
		return []Comment{}
	}
	limit := top * 2

	var bodies []string
	for _, m := range bodyPattern.FindAllStringSubmatch(html, limit) {
		var decoded string
		if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &decoded); err != nil {
			decoded = m[1]
		}
		bodies = append(bodies, decoded)
	}
	var users []string
	for _, m := range userPattern.FindAllStringSubmatch(html, limit) {
		users = append(users, m[1])
	}
	var ratings []int
	for _, m := range ratingPattern.FindAllStringSubmatch(html, limit) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			break
		}
		ratings = append(ratings, n)
	}

	comments := []Comment{}
	for i := 0; i < min(len(bodies), len(users)); i++ {
		text := stripHTML(bodies[i])
		if r := []rune(text); len(r) > maxCommentLength {
			text = string(r[:maxCommentLength])
		}
		if utf8.RuneCountInString(text) <= minCommentLength {
			continue
		}
		author := users[i]
		if author == "" {
			author = "Anonymous"
		}
		c := Comment{Author: author, Text: text}
		if i < len(ratings) {
			score := ratings[i]
			c.Score = &score
		}
		comments = append(comments, c)
	}

	slices.SortStableFunc(comments, func(a, b Comment) int {
		return scoreOf(b) - scoreOf(a)
	})
	if len(comments) > top {
		comments = comments[:top]
	}
	return comments
}

func scoreOf(c Comment) int {
	if c.Score == nil {
		return 0
	}
	return *c.Score
}
