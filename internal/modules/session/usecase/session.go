package usecase

import (
	"context"

	"taskmesh/internal/modules/session/domain"
	"taskmesh/internal/modules/session/dto"
	sessionin "taskmesh/internal/modules/session/port/in"
)

type servicePort interface {
	CreateOffer(ctx context.Context) (string, error)
	AcceptOffer(ctx context.Context, raw string) (string, error)
	ApplyAnswer(ctx context.Context, raw string) error
	Sessions() []domain.Session
}

type Interactor struct {
	svc servicePort
}

func NewInteractor(svc servicePort) sessionin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) LinkOffer(ctx context.Context) (dto.BlobOutput, error) {
	raw, err := i.svc.CreateOffer(ctx)
	if err != nil {
		return dto.BlobOutput{}, err
	}
	return blobOutput(raw)
}

func (i *Interactor) LinkAccept(ctx context.Context, offer string) (dto.BlobOutput, error) {
	raw, err := i.svc.AcceptOffer(ctx, offer)
	if err != nil {
		return dto.BlobOutput{}, err
	}
	return blobOutput(raw)
}

func (i *Interactor) LinkAnswer(ctx context.Context, answer string) error {
	return i.svc.ApplyAnswer(ctx, answer)
}

func (i *Interactor) SessionList(context.Context) ([]dto.SessionOutput, error) {
	sessions := i.svc.Sessions()
	out := make([]dto.SessionOutput, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, dto.SessionOutput{
			ID:    sess.ID,
			Role:  string(sess.Role),
			State: string(sess.State),
		})
	}
	return out, nil
}

func blobOutput(raw string) (dto.BlobOutput, error) {
	blob, err := domain.DecodeSignalBlob(raw)
	if err != nil {
		return dto.BlobOutput{}, err
	}
	return dto.BlobOutput{SessionID: blob.SessionID, Blob: raw}, nil
}
