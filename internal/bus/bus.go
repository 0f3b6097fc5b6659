package bus

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Bus kinds accepted by New.
const (
	KindChannel = "channel"
	KindNATS    = "nats"
)

// New creates the event bus selected by cfg.Type. An empty type means the
// in-process channel bus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch strings.ToLower(cfg.Type) {
	case KindChannel, "":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case KindNATS:
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
