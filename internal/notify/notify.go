// Package notify publishes promotion outcomes to external alerting/audit
// tooling. Publishing is fire-and-forget from the promoter's perspective:
// a failed publish is logged, never folded into the promotion result.
package notify

import (
	"context"

	"github.com/voislab/soundflow/internal/model"
)

// Notifier is the promoter's output port for promotion outcomes.
type Notifier interface {
	Publish(ctx context.Context, outcome model.Outcome) error
}

// Noop drops every message. Used where no channel is configured.
type Noop struct{}

// Publish implements Notifier.
func (Noop) Publish(context.Context, model.Outcome) error { return nil }
