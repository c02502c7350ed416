package usecase

import (
	"context"
	"time"

	"taskmesh/internal/modules/tasks/domain"
	"taskmesh/internal/modules/tasks/dto"
	tasksin "taskmesh/internal/modules/tasks/port/in"
)

type servicePort interface {
	Add(ctx context.Context, text string) (domain.Task, error)
	Edit(ctx context.Context, taskID, text string) (domain.Task, error)
	Toggle(ctx context.Context, taskID string) (domain.Task, error)
	Remove(ctx context.Context, taskID string) error
	List(ctx context.Context) ([]domain.Task, error)
	Export(ctx context.Context) (string, error)
	Import(ctx context.Context, payload string) (int, error)
	Activity(ctx context.Context, limit int) ([]domain.ActivityEvent, error)
}

type Interactor struct {
	svc servicePort
}

func NewInteractor(svc servicePort) tasksin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) TaskAdd(ctx context.Context, text string) (dto.TaskOutput, error) {
	task, err := i.svc.Add(ctx, text)
	if err != nil {
		return dto.TaskOutput{}, err
	}
	return mapTask(task), nil
}

func (i *Interactor) TaskEdit(ctx context.Context, taskID, text string) (dto.TaskOutput, error) {
	task, err := i.svc.Edit(ctx, taskID, text)
	if err != nil {
		return dto.TaskOutput{}, err
	}
	return mapTask(task), nil
}

func (i *Interactor) TaskToggle(ctx context.Context, taskID string) (dto.TaskOutput, error) {
	task, err := i.svc.Toggle(ctx, taskID)
	if err != nil {
		return dto.TaskOutput{}, err
	}
	return mapTask(task), nil
}

func (i *Interactor) TaskRemove(ctx context.Context, taskID string) error {
	return i.svc.Remove(ctx, taskID)
}

func (i *Interactor) TaskList(ctx context.Context) ([]dto.TaskOutput, error) {
	tasks, err := i.svc.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.TaskOutput, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, mapTask(task))
	}
	return out, nil
}

func (i *Interactor) LogExport(ctx context.Context) (dto.ExportOutput, error) {
	payload, err := i.svc.Export(ctx)
	if err != nil {
		return dto.ExportOutput{}, err
	}
	return dto.ExportOutput{Payload: payload}, nil
}

func (i *Interactor) LogImport(ctx context.Context, payload string) (dto.ImportOutput, error) {
	applied, err := i.svc.Import(ctx, payload)
	if err != nil {
		return dto.ImportOutput{}, err
	}
	return dto.ImportOutput{Applied: applied}, nil
}

func (i *Interactor) ActivityTail(ctx context.Context, limit int) ([]dto.ActivityOutput, error) {
	events, err := i.svc.Activity(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ActivityOutput, 0, len(events))
	for _, event := range events {
		out = append(out, dto.ActivityOutput{
			ID:         event.ID,
			OccurredAt: event.OccurredAt,
			Type:       string(event.Type),
			Message:    event.Message,
		})
	}
	return out, nil
}

func mapTask(task domain.Task) dto.TaskOutput {
	return dto.TaskOutput{
		ID:        task.ID,
		Text:      task.Text,
		Done:      task.Done,
		LastWrite: time.UnixMilli(task.LastWrite).UTC(),
	}
}
