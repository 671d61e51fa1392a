package core

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"splitescrow/core/events"
	"splitescrow/core/state"
	"splitescrow/core/types"
	"splitescrow/native/arbitrator"
	"splitescrow/native/bank"
	"splitescrow/native/claim"
	nativecommon "splitescrow/native/common"
	"splitescrow/native/dispute"
	"splitescrow/native/escrow"
	"splitescrow/observability"
	"splitescrow/storage"
)

var errNilProcessor = errors.New("core: processor not initialised")

// PredictAddresses derives the module addresses a deployer creates from nonce
// onwards, in deployment order: ledger, claim, dispute, arbitrator.
func PredictAddresses(deployer common.Address, nonce uint64) escrow.Addresses {
	return escrow.Addresses{
		Ledger:     crypto.CreateAddress(deployer, nonce),
		Claim:      crypto.CreateAddress(deployer, nonce+1),
		Dispute:    crypto.CreateAddress(deployer, nonce+2),
		Arbitrator: crypto.CreateAddress(deployer, nonce+3),
	}
}

// Option customises a Processor.
type Option func(*Processor)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithNowFunc overrides the clock shared by every module.
func WithNowFunc(now func() int64) Option {
	return func(p *Processor) { p.nowFn = now }
}

// WithSink registers a subscriber for committed events.
func WithSink(sink events.Sink) Option {
	return func(p *Processor) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// WithMetrics toggles prometheus instrumentation.
func WithMetrics(enabled bool) Option {
	return func(p *Processor) {
		if enabled {
			p.metrics = observability.Escrow()
		} else {
			p.metrics = nil
		}
	}
}

// Processor is the single writer of escrow state. Every call runs inside a
// journal: it either commits with all of its events or leaves no trace.
type Processor struct {
	mu      sync.Mutex
	db      storage.Database
	addrs   escrow.Addresses
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.EscrowMetrics
	sinks   []events.Sink
	nowFn   func() int64

	EscrowEngine     *escrow.Engine
	ClaimEngine      *claim.Engine
	DisputeEngine    *dispute.Engine
	ArbitratorEngine *arbitrator.Engine
	Bank             *bank.Keeper
}

// NewProcessor builds the four modules at the addresses deployer would create
// starting at nonce, then binds them to each other.
func NewProcessor(db storage.Database, deployer common.Address, nonce uint64, opts ...Option) *Processor {
	addrs := PredictAddresses(deployer, nonce)
	p := &Processor{
		db:     db,
		addrs:  addrs,
		logger: slog.Default(),
		tracer: otel.Tracer("splitescrow/core"),

		EscrowEngine:     escrow.NewEngine(addrs.Ledger),
		ClaimEngine:      claim.NewEngine(addrs.Claim),
		DisputeEngine:    dispute.NewEngine(addrs.Dispute),
		ArbitratorEngine: arbitrator.NewEngine(addrs.Arbitrator),
		Bank:             bank.NewKeeper(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.EscrowEngine.Bind(addrs, p.Bank, p.ArbitratorEngine, p.ClaimEngine)
	p.ClaimEngine.Bind(addrs, p.EscrowEngine, p.ArbitratorEngine)
	p.DisputeEngine.Bind(p.EscrowEngine, p.ArbitratorEngine, p.ClaimEngine)
	p.ArbitratorEngine.Bind(addrs, p.EscrowEngine, p.ClaimEngine)

	if p.nowFn != nil {
		p.EscrowEngine.SetNowFunc(p.nowFn)
		p.ClaimEngine.SetNowFunc(p.nowFn)
		p.DisputeEngine.SetNowFunc(p.nowFn)
	}
	return p
}

// Addresses returns the module address book.
func (p *Processor) Addresses() escrow.Addresses { return p.addrs }

func (p *Processor) configure(manager *state.Manager, emitter events.Emitter) {
	p.EscrowEngine.SetState(manager)
	p.EscrowEngine.SetEmitter(emitter)
	p.DisputeEngine.SetState(manager)
	p.DisputeEngine.SetEmitter(emitter)
	p.ArbitratorEngine.SetState(manager)
	p.ArbitratorEngine.SetEmitter(emitter)
	p.ClaimEngine.SetEmitter(emitter)
	p.Bank.SetState(manager)
	p.Bank.SetEmitter(emitter)
}

// Apply runs fn as one atomic state transition named op.
func (p *Processor) Apply(ctx context.Context, op string, fn func() error) error {
	return p.apply(ctx, op, func(*state.Manager) error { return fn() })
}

func (p *Processor) apply(ctx context.Context, op string, fn func(*state.Manager) error) error {
	if p == nil || p.db == nil {
		return errNilProcessor
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	_, span := p.tracer.Start(ctx, "escrow."+op)
	defer span.End()
	started := time.Now()

	journal := state.NewJournal(p.db)
	manager := state.NewManager(journal)
	buffer := &events.Buffer{}
	p.configure(manager, buffer)

	err := fn(manager)
	if err == nil {
		err = journal.Commit()
	}
	elapsed := time.Since(started)
	if err != nil {
		journal.Discard()
		buffer.Reset()
		code := string(nativecommon.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("escrow.error_code", code))
		p.metrics.ObserveCall(op, err, code, elapsed)
		p.logger.Info("escrow call rejected",
			slog.String("operation", op),
			slog.String("code", code),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed))
		return err
	}

	published := buffer.Drain()
	span.SetAttributes(attribute.Int("escrow.events", len(published)))
	p.metrics.ObserveCall(op, nil, "", elapsed)
	for _, evt := range published {
		p.record(evt)
		for _, sink := range p.sinks {
			sink.Publish(evt.Clone())
		}
	}
	p.logger.Debug("escrow call committed",
		slog.String("operation", op),
		slog.Int("events", len(published)),
		slog.Duration("elapsed", elapsed))
	return nil
}

// View runs fn against committed state. Anything fn writes is discarded.
func (p *Processor) View(fn func() error) error {
	if p == nil || p.db == nil {
		return errNilProcessor
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	journal := state.NewJournal(p.db)
	p.configure(state.NewManager(journal), events.NoopEmitter{})
	defer journal.Discard()
	return fn()
}

func (p *Processor) record(evt *types.Event) {
	if p.metrics == nil || evt == nil {
		return
	}
	p.metrics.RecordEvent(evt.Type)
	switch evt.Type {
	case claim.EventTypeClaimed:
		total := big.NewInt(0)
		for key, value := range evt.Attributes {
			if !strings.HasPrefix(key, "amount.") {
				continue
			}
			if amt, ok := new(big.Int).SetString(value, 10); ok {
				total.Add(total, amt)
			}
		}
		p.metrics.RecordPayout(evt.Attributes["reason"], evt.Attributes["currency"], total)
	case escrow.EventTypeDepositPauseUpdated:
		p.metrics.SetPaused(evt.Attributes["paused"] == "true")
	}
}
