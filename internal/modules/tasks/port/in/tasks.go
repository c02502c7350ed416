package in

import (
	"context"

	"taskmesh/internal/modules/tasks/dto"
)

type Usecase interface {
	TaskAdd(ctx context.Context, text string) (dto.TaskOutput, error)
	TaskEdit(ctx context.Context, taskID, text string) (dto.TaskOutput, error)
	TaskToggle(ctx context.Context, taskID string) (dto.TaskOutput, error)
	TaskRemove(ctx context.Context, taskID string) error
	TaskList(ctx context.Context) ([]dto.TaskOutput, error)

	LogExport(ctx context.Context) (dto.ExportOutput, error)
	LogImport(ctx context.Context, payload string) (dto.ImportOutput, error)

	ActivityTail(ctx context.Context, limit int) ([]dto.ActivityOutput, error)
}
