package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DecisionSubject receives decisions from external tools.
const DecisionSubject = "autopatch.approvals.decisions"

// DecisionMessage is the payload accepted on DecisionSubject.
type DecisionMessage struct {
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
	By        string `json:"by"`
}

type decisionReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type resultMessage struct {
	TicketID  string    `json:"ticketId"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NATSBridge publishes requests and results to NATS and accepts decisions
// on DecisionSubject.
//
// Subjects:
//
//	autopatch.approvals.{ticket_id}.requested
//	autopatch.approvals.{ticket_id}.result
type NATSBridge struct {
	nc      *nats.Conn
	decider Decider
	logger  *zap.Logger
	sub     *nats.Subscription
}

var _ Notifier = (*NATSBridge)(nil)

// NewNATSBridge creates a bridge over an existing connection.
func NewNATSBridge(nc *nats.Conn, decider Decider, logger *zap.Logger) *NATSBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSBridge{nc: nc, decider: decider, logger: logger}
}

func (b *NATSBridge) Name() string { return "nats" }

// SubjectToken makes s safe to use as one NATS subject token.
func SubjectToken(s string) string {
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}

func (b *NATSBridge) NotifyRequest(_ context.Context, req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	subject := fmt.Sprintf("autopatch.approvals.%s.requested", SubjectToken(req.TicketID))
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	return nil
}

func (b *NATSBridge) NotifyResult(_ context.Context, ticketID string, success bool, message string) error {
	data, err := json.Marshal(resultMessage{TicketID: ticketID, Success: success, Message: message, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	subject := fmt.Sprintf("autopatch.approvals.%s.result", SubjectToken(ticketID))
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

// Subscribe starts accepting decisions. Messages with a reply subject get a
// {"ok":bool,"error":string} answer.
func (b *NATSBridge) Subscribe(ctx context.Context) error {
	sub, err := b.nc.Subscribe(DecisionSubject, func(m *nats.Msg) {
		reply := decisionReply{OK: true}

		var dm DecisionMessage
		if err := json.Unmarshal(m.Data, &dm); err != nil || dm.RequestID == "" {
			reply = decisionReply{Error: "invalid decision payload"}
		} else {
			by := dm.By
			if by == "" {
				by = "nats"
			}
			if _, err := b.decider.Decide(ctx, dm.RequestID, dm.Approved, by); err != nil {
				reply = decisionReply{Error: err.Error()}
				b.logger.Warn("nats decision rejected", zap.String("request_id", dm.RequestID), zap.Error(err))
			}
		}

		if m.Reply != "" {
			data, _ := json.Marshal(reply)
			if err := m.Respond(data); err != nil {
				b.logger.Debug("responding to decision failed", zap.Error(err))
			}
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", DecisionSubject, err)
	}
	b.sub = sub
	return nil
}

// Close stops the decision subscription.
func (b *NATSBridge) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}
