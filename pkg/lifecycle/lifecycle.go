// Package lifecycle holds the pure status-transition rules applied on top
// of store mutations. The store itself never inspects status; every guard
// lives here so both channels enforce identical behavior.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"annotated/pkg/models"
)

var (
	// ErrAlreadyAcknowledged guards against duplicate acknowledgement.
	ErrAlreadyAcknowledged = errors.New("already acknowledged")
	// ErrReasonRequired rejects dismissals without a non-empty reason.
	ErrReasonRequired = errors.New("reason is required for dismissal")
)

// CheckAcknowledge validates the pending→acknowledged transition.
func CheckAcknowledge(a models.Annotation) error {
	if a.Status == models.StatusAcknowledged {
		return fmt.Errorf("annotation %s: %w", a.ID, ErrAlreadyAcknowledged)
	}
	return nil
}

// CheckDismiss validates a dismissal request: a non-empty reason, from any
// non-terminal state.
func CheckDismiss(a models.Annotation, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	if Terminal(a.Status) {
		return fmt.Errorf("annotation %s is already %s", a.ID, a.Status)
	}
	return nil
}

// CheckResolve validates the transition to resolved. Resolve is callable
// from any state; this leniency is deliberate (the agent decides when a
// thread is done, e.g. resolving straight after an approved diff).
func CheckResolve(a models.Annotation) error {
	return nil
}

// CheckProposeDiff validates attaching a diff proposal. Like resolve it is
// not gated on the current status, so the agent can re-propose after a
// rejection without an intermediate transition.
func CheckProposeDiff(a models.Annotation, diff string) error {
	if strings.TrimSpace(diff) == "" {
		return errors.New("diff text is required")
	}
	return nil
}

// Terminal reports whether no defined operation transitions out of the
// given status.
func Terminal(s models.AnnotationStatus) bool {
	return s == models.StatusResolved || s == models.StatusDismissed
}
