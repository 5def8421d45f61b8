package core

import (
	"context"
	"errors"
	"time"

	"orgdirectory/internal/infra/persistence/memory"
	"orgdirectory/pkg/domain"
)

// Logger is the structured logging surface used by the service. Arguments
// after msg are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes the outcome and latency of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span around a service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// AuditStatus is the outcome recorded for a mutating operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one mutating operation.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  int64
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives an entry for every create, update and delete.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

type auditTarget struct {
	entity EntityType
	action Action
}

// auditedOperations maps mutating operation names to their audit subject.
// Reads are traced and measured but not audited.
var auditedOperations = map[string]auditTarget{
	"create_building":     {EntityBuilding, ActionCreate},
	"update_building":     {EntityBuilding, ActionUpdate},
	"delete_building":     {EntityBuilding, ActionDelete},
	"create_activity":     {EntityActivity, ActionCreate},
	"update_activity":     {EntityActivity, ActionUpdate},
	"delete_activity":     {EntityActivity, ActionDelete},
	"create_organization": {EntityOrganization, ActionCreate},
	"update_organization": {EntityOrganization, ActionUpdate},
	"delete_organization": {EntityOrganization, ActionDelete},
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for audit timestamps and exports.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditRecorder installs an audit recorder.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithTreeLevels sets the depth used by DefaultActivityTree.
func WithTreeLevels(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.treeLevels = n
		}
	}
}

// Service exposes the directory operations. Every write runs inside a single
// unit of work on the underlying PersistentStore.
type Service struct {
	store      PersistentStore
	logger     Logger
	clock      Clock
	metrics    MetricsRecorder
	tracer     Tracer
	audit      AuditRecorder
	treeLevels int
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:      store,
		logger:     noopLogger{},
		clock:      ClockFunc(func() time.Time { return time.Now().UTC() }),
		metrics:    noopMetrics{},
		tracer:     noopTracer{},
		audit:      noopAudit{},
		treeLevels: domain.DefaultTreeLevels,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine selects NewDefaultRulesEngine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	svc := NewService(nil, opts...)
	svc.store = memory.NewStore(engine, memory.WithClock(svc.clock.Now))
	return svc
}

// Store returns the underlying persistent store.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run wraps an operation with tracing, metrics, logging and auditing. fn
// returns the id of the affected entity, or zero when there is none.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) (int64, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	id, err := fn(ctx)
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)

	_, mutating := auditedOperations[op]
	switch {
	case err == nil && mutating:
		s.logger.Info("directory operation", "operation", op, "entity_id", id, "duration_ms", elapsed.Milliseconds())
		s.recordAuditSuccess(ctx, op, id, elapsed)
	case err == nil:
		s.logger.Debug("directory query", "operation", op, "duration_ms", elapsed.Milliseconds())
	case isBusinessError(err):
		s.logger.Warn("directory operation rejected", "operation", op, "error", err)
		s.recordAuditError(ctx, op, id, elapsed, err)
	default:
		s.logger.Error("directory operation failed", "operation", op, "error", err)
		s.recordAuditError(ctx, op, id, elapsed, err)
	}
	return err
}

func (s *Service) recordAuditSuccess(ctx context.Context, op string, id int64, d time.Duration) {
	s.recordAudit(ctx, op, id, d, nil)
}

func (s *Service) recordAuditError(ctx context.Context, op string, id int64, d time.Duration, err error) {
	s.recordAudit(ctx, op, id, d, err)
}

func (s *Service) recordAudit(ctx context.Context, op string, id int64, d time.Duration, err error) {
	target, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    target.entity,
		Action:    target.action,
		EntityID:  id,
		Status:    AuditStatusSuccess,
		Duration:  d,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

func isBusinessError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation)
}

// view runs fn against a consistent read snapshot.
func (s *Service) view(ctx context.Context, fn func(TransactionView) error) error {
	return s.store.View(ctx, fn)
}

// write runs fn inside one unit of work.
func (s *Service) write(ctx context.Context, fn func(Transaction) error) (Result, error) {
	return s.store.RunInTransaction(ctx, fn)
}
