package mqtt

import (
	"go.uber.org/zap"

	"github.com/sweeney/aquarium-controller/internal/status"
)

// Sink forwards every status update to a Publisher.
type Sink struct {
	Publisher Publisher
	Log       *zap.Logger
}

// StatusUpdated publishes u. Errors are logged, never propagated.
func (s Sink) StatusUpdated(u status.Update, _ status.Snapshot) {
	if err := s.Publisher.PublishStatus(u); err != nil && s.Log != nil {
		s.Log.Error("status publish failed", zap.String("source", u.Source), zap.Error(err))
	}
}
