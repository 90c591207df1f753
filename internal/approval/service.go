package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
)

const instrumentationName = "github.com/fyrsmithlabs/autopatchd/internal/approval"

// Config configures the approval service.
type Config struct {
	// Timeout bounds each wait. Zero means DefaultTimeout.
	Timeout time.Duration

	// ReuseWindow is how long a recorded decision for the same ticket and
	// operation answers new requests without asking again. Zero means Timeout.
	ReuseWindow time.Duration
}

type pendingEntry struct {
	req      Request
	done     chan struct{}
	decision Decision
	waiters  int
}

// Service is the in-process Gate. Decisions arrive through Decide.
type Service struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry // request id
	byKey   map[string]*pendingEntry // ticket id + instruction type

	events    EventStore
	notifiers []Notifier
	timeout   time.Duration
	reuse     time.Duration
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

var _ Gate = (*Service)(nil)

// NewService creates an approval service. events may be nil, in which case
// nothing is recorded on tickets.
func NewService(cfg Config, events EventStore, logger *zap.Logger, notifiers ...Notifier) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ReuseWindow <= 0 {
		cfg.ReuseWindow = cfg.Timeout
	}
	return &Service{
		pending:   make(map[string]*pendingEntry),
		byKey:     make(map[string]*pendingEntry),
		events:    events,
		notifiers: notifiers,
		timeout:   cfg.Timeout,
		reuse:     cfg.ReuseWindow,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		now:       time.Now,
	}
}

// AddNotifier registers an additional notifier.
func (s *Service) AddNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

func pendingKey(ticketID string, t instruction.Type) string {
	return ticketID + "|" + string(t)
}

// Await announces req and blocks until it is decided, times out or ctx ends.
// Concurrent requests for the same ticket and instruction type share one
// announcement and one decision.
func (s *Service) Await(ctx context.Context, req Request) (Decision, error) {
	ctx, span := s.tracer.Start(ctx, "approval.await",
		trace.WithAttributes(
			attribute.String("ticket.id", req.TicketID),
			attribute.String("instruction.type", string(req.InstructionType)),
		))
	defer span.End()

	if d, ok := s.recentDecision(ctx, req); ok {
		DecisionsTotal.WithLabelValues("reused").Inc()
		span.SetAttributes(attribute.Bool("approval.reused", true))
		return d, nil
	}

	entry, created := s.register(req)
	if created {
		if err := s.announce(ctx, entry.req); err != nil {
			s.drop(entry)
			span.RecordError(err)
			span.SetStatus(codes.Error, "notify failed")
			return Decision{}, err
		}
	} else {
		s.logger.Info("approval already pending, waiting on existing request",
			zap.String("ticket_id", req.TicketID),
			zap.String("request_id", entry.req.ID))
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-entry.done:
		d := entry.decision
		span.SetAttributes(attribute.Bool("approval.approved", d.Approved))
		return d, nil

	case <-timer.C:
		d := Decision{
			RequestID:       entry.req.ID,
			TicketID:        req.TicketID,
			InstructionType: req.InstructionType,
			Approved:        false,
			By:              "timeout",
			TimedOut:        true,
			DecidedAt:       s.now(),
		}
		if s.resolve(entry, d) {
			DecisionsTotal.WithLabelValues("timeout").Inc()
			s.recordDecision(ctx, entry.req, d)
			s.logger.Warn("approval timed out",
				zap.String("ticket_id", req.TicketID),
				zap.Duration("timeout", s.timeout))
		}
		<-entry.done
		return entry.decision, nil

	case <-ctx.Done():
		s.leave(entry)
		span.SetStatus(codes.Error, "cancelled")
		return Decision{RequestID: entry.req.ID, TicketID: req.TicketID, InstructionType: req.InstructionType}, ctx.Err()
	}
}

// Decide resolves a pending request.
func (s *Service) Decide(ctx context.Context, requestID string, approved bool, by string) (Decision, error) {
	s.mu.Lock()
	entry, ok := s.pending[requestID]
	s.mu.Unlock()
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}

	d := Decision{
		RequestID:       requestID,
		TicketID:        entry.req.TicketID,
		InstructionType: entry.req.InstructionType,
		Approved:        approved,
		By:              by,
		DecidedAt:       s.now(),
	}
	if !s.resolve(entry, d) {
		return Decision{}, fmt.Errorf("%w: %s already decided", ErrUnknownRequest, requestID)
	}

	outcome := "denied"
	if approved {
		outcome = "approved"
	}
	DecisionsTotal.WithLabelValues(outcome).Inc()
	s.recordDecision(ctx, entry.req, d)
	s.logger.Info("approval decided",
		zap.String("ticket_id", d.TicketID),
		zap.String("request_id", requestID),
		zap.Bool("approved", approved),
		zap.String("by", by))
	return d, nil
}

// DecideTicket resolves the pending request for a ticket and instruction
// type. An empty type matches the oldest pending request of the ticket.
func (s *Service) DecideTicket(ctx context.Context, ticketID string, t instruction.Type, approved bool, by string) (Decision, error) {
	var id string
	s.mu.Lock()
	if t != "" {
		if e, ok := s.byKey[pendingKey(ticketID, t)]; ok {
			id = e.req.ID
		}
	} else {
		var oldest time.Time
		for _, e := range s.pending {
			if e.req.TicketID == ticketID && (id == "" || e.req.RequestedAt.Before(oldest)) {
				id, oldest = e.req.ID, e.req.RequestedAt
			}
		}
	}
	s.mu.Unlock()

	if id == "" {
		return Decision{}, fmt.Errorf("%w: no pending request for ticket %s", ErrUnknownRequest, ticketID)
	}
	return s.Decide(ctx, id, approved, by)
}

// Pending lists requests waiting for a decision, oldest first.
func (s *Service) Pending() []Request {
	s.mu.Lock()
	out := make([]Request, 0, len(s.pending))
	for _, e := range s.pending {
		out = append(out, e.req)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

// HasPending reports whether the ticket has a request waiting in this process.
func (s *Service) HasPending(ticketID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.pending {
		if e.req.TicketID == ticketID {
			return true
		}
	}
	return false
}

// NotifyResult forwards an execution result to every notifier. Failures are
// logged and otherwise ignored.
func (s *Service) NotifyResult(ctx context.Context, ticketID string, success bool, message string) {
	s.mu.Lock()
	notifiers := append([]Notifier(nil), s.notifiers...)
	s.mu.Unlock()

	for _, n := range notifiers {
		if err := n.NotifyResult(ctx, ticketID, success, message); err != nil {
			s.logger.Warn("result notification failed",
				zap.String("notifier", n.Name()),
				zap.String("ticket_id", ticketID),
				zap.Error(err))
		}
	}
}

func (s *Service) register(req Request) (*pendingEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pendingKey(req.TicketID, req.InstructionType)
	if e, ok := s.byKey[key]; ok {
		e.waiters++
		return e, false
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = s.now()
	}
	e := &pendingEntry{req: req, done: make(chan struct{}), waiters: 1}
	s.pending[req.ID] = e
	s.byKey[key] = e
	PendingRequests.Inc()
	return e, true
}

// resolve stores d on entry and wakes waiters. It returns false if the entry
// was already resolved.
func (s *Service) resolve(entry *pendingEntry, d Decision) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[entry.req.ID]; !ok {
		return false
	}
	entry.decision = d
	s.unlinkLocked(entry)
	close(entry.done)
	return true
}

func (s *Service) drop(entry *pendingEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[entry.req.ID]; ok {
		s.unlinkLocked(entry)
		close(entry.done)
	}
}

// leave drops a waiter; the last waiter to give up withdraws the request.
func (s *Service) leave(entry *pendingEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.waiters--
	if entry.waiters > 0 {
		return
	}
	if _, ok := s.pending[entry.req.ID]; ok {
		entry.decision = Decision{
			RequestID:       entry.req.ID,
			TicketID:        entry.req.TicketID,
			InstructionType: entry.req.InstructionType,
			DecidedAt:       s.now(),
		}
		s.unlinkLocked(entry)
		close(entry.done)
	}
}

func (s *Service) unlinkLocked(entry *pendingEntry) {
	delete(s.pending, entry.req.ID)
	key := pendingKey(entry.req.TicketID, entry.req.InstructionType)
	if s.byKey[key] == entry {
		delete(s.byKey, key)
	}
	PendingRequests.Dec()
}

func (s *Service) announce(ctx context.Context, req Request) error {
	RequestsTotal.WithLabelValues(string(req.InstructionType)).Inc()

	if s.events != nil {
		err := s.events.RecordEvent(ctx, RequestEvent(req))
		if err != nil {
			s.logger.Warn("recording approval request failed", zap.String("ticket_id", req.TicketID), zap.Error(err))
		}
	}

	s.mu.Lock()
	notifiers := append([]Notifier(nil), s.notifiers...)
	s.mu.Unlock()

	if len(notifiers) == 0 {
		s.logger.Warn("no approval notifier configured, waiting for a decision via API",
			zap.String("ticket_id", req.TicketID))
		return nil
	}

	var errs []error
	for _, n := range notifiers {
		if err := n.NotifyRequest(ctx, req); err != nil {
			s.logger.Warn("approval notification failed",
				zap.String("notifier", n.Name()),
				zap.String("ticket_id", req.TicketID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	if len(errs) == len(notifiers) {
		return fmt.Errorf("%w: %w", ErrNotifyFailed, errors.Join(errs...))
	}
	s.logger.Info("approval requested",
		zap.String("ticket_id", req.TicketID),
		zap.String("request_id", req.ID),
		zap.String("instruction_type", string(req.InstructionType)))
	return nil
}

func (s *Service) recordDecision(ctx context.Context, req Request, d Decision) {
	if s.events == nil {
		return
	}
	err := s.events.RecordEvent(ctx, DecisionEvent(req, d))
	if err != nil {
		s.logger.Warn("recording approval decision failed", zap.String("ticket_id", req.TicketID), zap.Error(err))
	}
}

// recentDecision returns a stored decision for the same ticket and operation
// made within the reuse window.
func (s *Service) recentDecision(ctx context.Context, req Request) (Decision, bool) {
	if s.events == nil {
		return Decision{}, false
	}
	ev, err := s.events.LatestEvent(ctx, req.TicketID, EventDecision)
	if err != nil || ev == nil {
		return Decision{}, false
	}
	if s.now().Sub(ev.CreatedAt) > s.reuse {
		return Decision{}, false
	}

	p := ev.Payload
	approved, ok := p["approved"].(bool)
	if !ok {
		return Decision{}, false
	}
	if timedOut, _ := p["timedOut"].(bool); timedOut {
		return Decision{}, false
	}
	if t, _ := p["instructionType"].(string); t != string(req.InstructionType) {
		return Decision{}, false
	}
	if cmd, _ := p["command"].(string); cmd != req.Command {
		return Decision{}, false
	}
	if sql, _ := p["sql"].(string); sql != req.SQL {
		return Decision{}, false
	}

	id, _ := p["requestId"].(string)
	return Decision{
		RequestID:       id,
		TicketID:        req.TicketID,
		InstructionType: req.InstructionType,
		Approved:        approved,
		By:              ev.Actor,
		DecidedAt:       ev.CreatedAt,
	}, true
}
