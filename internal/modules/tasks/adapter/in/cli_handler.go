package in

import (
	"context"

	"taskmesh/internal/modules/tasks/dto"
	tasksin "taskmesh/internal/modules/tasks/port/in"
)

type CLIHandler struct {
	usecase tasksin.Usecase
}

func NewCLIHandler(usecase tasksin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) TaskAdd(ctx context.Context, text string) (dto.TaskOutput, error) {
	return h.usecase.TaskAdd(ctx, text)
}

func (h CLIHandler) TaskEdit(ctx context.Context, taskID, text string) (dto.TaskOutput, error) {
	return h.usecase.TaskEdit(ctx, taskID, text)
}

func (h CLIHandler) TaskToggle(ctx context.Context, taskID string) (dto.TaskOutput, error) {
	return h.usecase.TaskToggle(ctx, taskID)
}

func (h CLIHandler) TaskRemove(ctx context.Context, taskID string) error {
	return h.usecase.TaskRemove(ctx, taskID)
}

func (h CLIHandler) TaskList(ctx context.Context) ([]dto.TaskOutput, error) {
	return h.usecase.TaskList(ctx)
}

func (h CLIHandler) LogExport(ctx context.Context) (dto.ExportOutput, error) {
	return h.usecase.LogExport(ctx)
}

func (h CLIHandler) LogImport(ctx context.Context, payload string) (dto.ImportOutput, error) {
	return h.usecase.LogImport(ctx, payload)
}

func (h CLIHandler) ActivityTail(ctx context.Context, limit int) ([]dto.ActivityOutput, error) {
	return h.usecase.ActivityTail(ctx, limit)
}
