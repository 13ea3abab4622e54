package handlers

import (
	"context"

	"github.com/gdg-garage/achievement-atlas-api/internal/apperr"
	"github.com/gdg-garage/achievement-atlas-api/internal/domain"
	"github.com/gdg-garage/achievement-atlas-api/internal/help"
)

type AchievementFetcher interface {
	FetchAchievementDetail(ctx context.Context, id int) (*domain.AchievementDetail, error)
}

type AchievementHandler struct {
	catalog AchievementFetcher
	help    *help.Service
}

func NewAchievementHandler(catalog AchievementFetcher, help *help.Service) *AchievementHandler {
	return &AchievementHandler{catalog: catalog, help: help}
}

type AchievementInput struct {
	ID int `path:"id" minimum:"1" doc:"Achievement id"`
}

type AchievementOutput struct {
	Body *domain.AchievementDetail
}

func (h *AchievementHandler) HandleGet(ctx context.Context, input *AchievementInput) (*AchievementOutput, error) {
	detail, err := h.catalog.FetchAchievementDetail(ctx, input.ID)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return nil, apperr.NotFound("Achievement not found")
		}
		return nil, apperr.Upstream("Failed to fetch achievement %d", input.ID)
	}
	return &AchievementOutput{Body: detail}, nil
}

type HelpInput struct {
	ID  int `path:"id" minimum:"1" doc:"Achievement id"`
	Top int `query:"top" default:"5" minimum:"1" maximum:"20" doc:"Maximum number of community comments"`
}

type HelpOutput struct {
	Body *help.Payload
}

func (h *AchievementHandler) HandleHelp(ctx context.Context, input *HelpInput) (*HelpOutput, error) {
	return &HelpOutput{Body: h.help.Fetch(ctx, input.ID, input.Top)}, nil
}
