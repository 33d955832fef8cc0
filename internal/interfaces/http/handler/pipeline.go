package handler

import (
	"context"

	"z-novel-pipeline/internal/application/pipeline"
	"z-novel-pipeline/internal/bus"
)

// Pipeline 编排器对 HTTP 层暴露的能力
type Pipeline interface {
	Dispatch(ctx context.Context, cmd bus.Command) error
	Status() pipeline.Status
}
