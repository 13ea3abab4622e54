package handlers

import (
	"context"

	"github.com/gdg-garage/achievement-atlas-api/internal/auth"
	"github.com/gdg-garage/achievement-atlas-api/internal/domain"
	"github.com/gdg-garage/achievement-atlas-api/internal/merge"
)

type CharacterProfile interface {
	Fetch(ctx context.Context, realm, name string) (*domain.CharacterSnapshot, error)
	Characters(ctx context.Context, accessToken string) ([]domain.Character, error)
}

type CharacterHandler struct {
	profile     CharacterProfile
	merger      *merge.Engine
	authHandler *auth.AuthHandler
}

func NewCharacterHandler(profile CharacterProfile, merger *merge.Engine, authHandler *auth.AuthHandler) *CharacterHandler {
	return &CharacterHandler{profile: profile, merger: merger, authHandler: authHandler}
}

type CharacterInput struct {
	Realm string `path:"realm" doc:"Realm name or slug"`
	Name  string `path:"name" doc:"Character name"`
}

type SnapshotOutput struct {
	Body *domain.CharacterSnapshot
}

func (h *CharacterHandler) HandleAchievements(ctx context.Context, input *CharacterInput) (*SnapshotOutput, error) {
	snap, err := h.profile.Fetch(ctx, input.Realm, input.Name)
	if err != nil {
		return nil, err
	}
	return &SnapshotOutput{Body: snap}, nil
}

type CharactersOutput struct {
	Body struct {
		Characters []domain.Character `json:"characters"`
	}
}

func (h *CharacterHandler) HandleMyCharacters(ctx context.Context, input *auth.AuthInput) (*CharactersOutput, error) {
	userID, err := h.authHandler.Authorize(ctx, input.Cookie)
	if err != nil {
		return nil, err
	}
	user, err := h.authHandler.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	characters, err := h.profile.Characters(ctx, user.AccessToken)
	if err != nil {
		return nil, err
	}
	out := &CharactersOutput{}
	out.Body.Characters = characters
	return out, nil
}

type MergeInput struct {
	auth.AuthInput
	Body struct {
		Characters []domain.CharacterRef `json:"characters" doc:"Characters to merge"`
	}
}

type MergeOutput struct {
	Body *domain.MergeResult
}

func (h *CharacterHandler) HandleMerge(ctx context.Context, input *MergeInput) (*MergeOutput, error) {
	if _, err := h.authHandler.Authorize(ctx, input.Cookie); err != nil {
		return nil, err
	}
	result, err := h.merger.Merge(ctx, input.Body.Characters)
	if err != nil {
		return nil, err
	}
	return &MergeOutput{Body: result}, nil
}
