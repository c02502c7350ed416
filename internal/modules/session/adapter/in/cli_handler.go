package in

import (
	"context"

	"taskmesh/internal/modules/session/dto"
	sessionin "taskmesh/internal/modules/session/port/in"
)

type CLIHandler struct {
	usecase sessionin.Usecase
}

func NewCLIHandler(usecase sessionin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) LinkOffer(ctx context.Context) (dto.BlobOutput, error) {
	return h.usecase.LinkOffer(ctx)
}

func (h CLIHandler) LinkAccept(ctx context.Context, offer string) (dto.BlobOutput, error) {
	return h.usecase.LinkAccept(ctx, offer)
}

func (h CLIHandler) LinkAnswer(ctx context.Context, answer string) error {
	return h.usecase.LinkAnswer(ctx, answer)
}

func (h CLIHandler) SessionList(ctx context.Context) ([]dto.SessionOutput, error) {
	return h.usecase.SessionList(ctx)
}
