package in

import (
	"context"

	"taskmesh/internal/modules/session/dto"
)

type Usecase interface {
	LinkOffer(ctx context.Context) (dto.BlobOutput, error)
	LinkAccept(ctx context.Context, offer string) (dto.BlobOutput, error)
	LinkAnswer(ctx context.Context, answer string) error
	SessionList(ctx context.Context) ([]dto.SessionOutput, error)
}
