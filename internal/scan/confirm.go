package scan

import (
	"context"
	"time"
)

type Decision int

const (
	Cancelled Decision = iota
	Accepted
)

// Gate presents a resolved identity to the operator and blocks until the
// operator accepts or cancels, or the context is cancelled. Implementations
// must only ever be handed Found identities; a negative lookup never opens a
// confirmation.
type Gate interface {
	Present(ctx context.Context, token string, identity PendingIdentity) (Decision, error)
}

// ClaimSession binds one visit card to one resolved identity between the
// moment confirmation opens and the operator's decision. At most one is
// active per scan session.
type ClaimSession struct {
	Token    string
	Card     *VisitCard
	Identity PendingIdentity
	OpenedAt time.Time
}
