package envelope

import (
	"context"

	"github.com/smallwat3r/secretlink/internal/domain"
)

// Remote is the store as seen from a client. Implementations map absence
// to domain.ErrNotFound and infrastructure failures to domain.ErrTransient.
type Remote interface {
	Create(ctx context.Context, env domain.Envelope) (domain.CreateRes, error)
	Fetch(ctx context.Context, id string) (domain.Envelope, error)
	Claim(ctx context.Context, id, password string) (domain.Envelope, error)
	Delete(ctx context.Context, id string) error
}
