package membership

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized is returned when the user may not act on the project.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrProjectNotFound is returned when the project does not exist.
	ErrProjectNotFound = errors.New("project not found")
)

// Capability is the kind of access a caller needs on a project.
type Capability string

const (
	// CapParticipate covers joining the project channel and sending
	// messages to it.
	CapParticipate Capability = "participate"
)

// Oracle answers whether a user is an authorized participant of a project.
// A participant is the project lead, a member of the project roster, or a
// platform administrator.
type Oracle interface {
	// IsParticipant reports whether the user may act on the project.
	// If the project does not exist, it returns ErrProjectNotFound.
	IsParticipant(ctx context.Context, projectID, userID string) (bool, error)
}

// AdminRole is the platform-wide administrator role. Administrators are
// participants of every project.
const AdminRole = "admin"

// Gate is the single authorization decision point for the gateway. It
// queries the oracle at call time, never caching the answer, since
// membership can change between a join and a later send.
type Gate struct {
	oracle  Oracle
	timeout time.Duration
}

func NewGate(oracle Oracle, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Gate{oracle: oracle, timeout: timeout}
}

// Check returns nil if the user holds the capability on the project.
// It returns ErrUnauthorized when membership is denied or the oracle does
// not answer within the gate timeout, and ErrProjectNotFound when the
// project does not exist.
func (g *Gate) Check(ctx context.Context, userID, projectID string, _ Capability) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ok, err := g.oracle.IsParticipant(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrUnauthorized
		}
		return fmt.Errorf("oracle.IsParticipant: %w", err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}
