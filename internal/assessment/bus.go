package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// busReply is the payload a responder sends back.
type busReply struct {
	Assessment json.RawMessage `json:"assessment,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// BusProvider requests assessments over the event bus, so a separate
// process can host the reasoning capability.
type BusProvider struct {
	bus   domain.EventBus
	topic string
}

// NewBusProvider creates a provider on the default assessment topic.
func NewBusProvider(bus domain.EventBus) *BusProvider {
	return &BusProvider{bus: bus, topic: domain.TopicAssessmentRequest}
}

// Name implements domain.Assessor.
func (p *BusProvider) Name() string { return "bus" }

// Assess implements domain.Assessor.
func (p *BusProvider) Assess(ctx context.Context, req domain.AssessmentRequest) (*domain.Assessment, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode assessment request: %w", err)
	}

	raw, err := p.bus.Request(ctx, p.topic, payload)
	if err != nil {
		return nil, Classify(ctx, p.Name(), err)
	}

	var reply busReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, malformed(p.Name(), err)
	}
	if reply.Error != "" {
		return nil, &domain.AssessmentError{
			Reason:   domain.AssessUnavailable,
			Provider: p.Name(),
			Err:      errors.New(reply.Error),
		}
	}
	if len(reply.Assessment) == 0 {
		return nil, malformed(p.Name(), errors.New("reply carries no assessment"))
	}
	a, err := Decode(p.Name(), reply.Assessment)
	if err != nil {
		return nil, err
	}
	a.Provider = p.Name()
	return a, nil
}

// Responder answers bus assessment requests with a local assessor.
type Responder struct {
	bus      domain.EventBus
	assessor domain.Assessor
	sub      domain.Subscription
}

// NewResponder creates a responder backed by assessor.
func NewResponder(bus domain.EventBus, assessor domain.Assessor) *Responder {
	return &Responder{bus: bus, assessor: assessor}
}

// Start subscribes to the assessment topic.
func (r *Responder) Start(ctx context.Context) error {
	sub, err := r.bus.Subscribe(ctx, domain.TopicAssessmentRequest, r.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to assessment requests: %w", err)
	}
	r.sub = sub
	slog.Info("assessment responder started", "provider", r.assessor.Name())
	return nil
}

// Stop unsubscribes.
func (r *Responder) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}

func (r *Responder) handle(ctx context.Context, msg *domain.Message) error {
	var reply busReply

	var req domain.AssessmentRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		reply.Error = "invalid assessment request: " + err.Error()
	} else if a, err := r.assessor.Assess(ctx, req); err != nil {
		reply.Error = err.Error()
	} else if raw, err := encodeAssessment(a); err != nil {
		reply.Error = "failed to encode assessment: " + err.Error()
	} else {
		reply.Assessment = raw
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return r.bus.Reply(ctx, msg, payload)
}

func encodeAssessment(a *domain.Assessment) ([]byte, error) {
	out := *a
	if out.Concerns == nil {
		out.Concerns = []string{}
	}
	return json.Marshal(out)
}
