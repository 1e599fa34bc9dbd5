package orchestrator

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
	"github.com/pitchaya-w/coachflow/pkg/qstash"
)

// LogNotifier records approval requests in the log only. Used when no
// operator channel is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyApprovalRequested(ctx context.Context, req contractx.ApprovalRequest) error {
	log.Info().
		Str("run_id", req.RunID).
		Float64("confidence", req.Confidence).
		Msg("approval requested")
	return nil
}

// QStashNotifier pushes approval requests to an operator webhook via QStash.
type QStashNotifier struct {
	client      *qstash.Client
	destination string
}

func NewQStashNotifier(client *qstash.Client, destination string) *QStashNotifier {
	return &QStashNotifier{client: client, destination: destination}
}

func (n *QStashNotifier) NotifyApprovalRequested(ctx context.Context, req contractx.ApprovalRequest) error {
	return n.client.PublishJSON(ctx, n.destination, req)
}
