package handlers

import (
	"context"

	"github.com/gdg-garage/achievement-atlas-api/internal/auth"
	"github.com/gdg-garage/achievement-atlas-api/internal/domain"
	"github.com/gdg-garage/achievement-atlas-api/internal/manifest"
)

type ManifestHandler struct {
	builder     *manifest.Builder
	authHandler *auth.AuthHandler
}

func NewManifestHandler(builder *manifest.Builder, authHandler *auth.AuthHandler) *ManifestHandler {
	return &ManifestHandler{builder: builder, authHandler: authHandler}
}

type ManifestOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         *domain.Manifest
}

func (h *ManifestHandler) HandleGet(ctx context.Context, _ *struct{}) (*ManifestOutput, error) {
	m, err := h.builder.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &ManifestOutput{CacheControl: "public, max-age=300", Body: m}, nil
}

type AdminInput struct {
	AdminKey string `header:"X-Admin-Key" doc:"Admin token"`
}

type BuildStepInput struct {
	AdminInput
	Reset bool `query:"reset" doc:"Clear the checkpoint and cached manifest instead of stepping"`
}

type BuildStepOutput struct {
	Body *manifest.BuildProgress
}

func (h *ManifestHandler) HandleBuildStep(ctx context.Context, input *BuildStepInput) (*BuildStepOutput, error) {
	if err := h.authHandler.CheckAdmin(input.AdminKey); err != nil {
		return nil, err
	}

	if input.Reset {
		if err := h.builder.Reset(ctx); err != nil {
			return nil, err
		}
		return &BuildStepOutput{Body: &manifest.BuildProgress{
			Phase:    manifest.PhaseIndex,
			Progress: "Build state and manifest cleared",
		}}, nil
	}

	progress, err := h.builder.Step(ctx)
	if err != nil {
		return nil, err
	}
	return &BuildStepOutput{Body: progress}, nil
}

type BuildStatusOutput struct {
	Body *manifest.Status
}

func (h *ManifestHandler) HandleBuildStatus(ctx context.Context, input *AdminInput) (*BuildStatusOutput, error) {
	if err := h.authHandler.CheckAdmin(input.AdminKey); err != nil {
		return nil, err
	}
	st, err := h.builder.Status(ctx)
	if err != nil {
		return nil, err
	}
	return &BuildStatusOutput{Body: st}, nil
}
