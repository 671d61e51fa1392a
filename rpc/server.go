package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"splitescrow/core"
	"splitescrow/indexer"
	"splitescrow/observability"
)

const (
	maxRequestBytes = 1 << 20 // 1 MiB
	requestIDHeader = "X-Request-ID"
)

const contextKeyMethod contextKey = "escrow.rpc_method"

// History answers event archive queries.
type History interface {
	Find(ctx context.Context, q indexer.Query) ([]indexer.EventRecord, error)
}

// Config bundles the HTTP surface settings.
type Config struct {
	Auth      AuthConfig
	RateLimit RateLimit
	Metrics   bool
}

// Server exposes the processor over JSON-RPC, a websocket event stream and a
// small REST history endpoint.
type Server struct {
	proc    *core.Processor
	auth    *Authenticator
	limiter *RateLimiter
	hub     *Hub
	history History
	logger  *slog.Logger
	metrics bool
}

// NewServer wires the HTTP surface. hub and history are optional.
func NewServer(proc *core.Processor, cfg Config, logger *slog.Logger, hub *Hub, history History) (*Server, error) {
	if proc == nil {
		return nil, errors.New("rpc: processor required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	auth, err := NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		return nil, fmt.Errorf("rpc: %w", err)
	}
	return &Server{
		proc:    proc,
		auth:    auth,
		limiter: NewRateLimiter(cfg.RateLimit),
		hub:     hub,
		history: history,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// Router returns the route tree without transport instrumentation.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.observe)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Use(s.auth.Middleware)
		r.Post("/rpc", s.handle)
		r.Get("/ws", s.handleEventsWS)
		r.Get("/escrows/{id}/events", s.handleHistory)
	})
	return r
}

// Handler returns the instrumented handler served by escrowd.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Router(), "escrow-rpc")
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := new(string)
		r = r.WithContext(context.WithValue(r.Context(), contextKeyMethod, method))
		m := httpsnoop.CaptureMetrics(next, w, r)

		module, label := "http", r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			label = rctx.RoutePattern()
		}
		if *method != "" {
			label = *method
			if prefix, _, ok := strings.Cut(*method, "_"); ok {
				module = prefix
			}
		}
		if s.metrics {
			observability.ModuleMetrics().Observe(module, label, m.Code, m.Duration)
		}
		s.logger.Debug("rpc request",
			slog.String("request_id", w.Header().Get(requestIDHeader)),
			slog.String("path", r.URL.Path),
			slog.String("method", label),
			slog.Int("status", m.Code),
			slog.Duration("elapsed", m.Duration))
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer r.Body.Close()

	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to parse request", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if strings.TrimSpace(req.Method) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	if label, ok := r.Context().Value(contextKeyMethod).(*string); ok {
		*label = req.Method
	}

	switch req.Method {
	case "escrow_pay":
		s.handleEscrowPay(w, r, &req)
	case "escrow_release":
		s.handleEscrowRelease(w, r, &req)
	case "escrow_refund":
		s.handleEscrowRefund(w, r, &req)
	case "escrow_get":
		s.handleEscrowGet(w, r, &req)
	case "escrow_count":
		s.handleEscrowCount(w, r, &req)
	case "escrow_params":
		s.handleEscrowParams(w, r, &req)
	case "escrow_updateProtocolFee":
		s.handleUpdateProtocolFee(w, r, &req)
	case "escrow_updateGovernance":
		s.handleUpdateGovernance(w, r, &req)
	case "escrow_setPaused":
		s.handleSetPaused(w, r, &req)
	case "escrow_history":
		s.handleEscrowHistory(w, r, &req)
	case "dispute_challenge":
		s.handleChallenge(w, r, &req)
	case "dispute_offerSettlement":
		s.handleOfferSettlement(w, r, &req)
	case "dispute_approveSettlement":
		s.handleApproveSettlement(w, r, &req)
	case "dispute_getSettlement":
		s.handleGetSettlement(w, r, &req)
	case "arbitrator_propose":
		s.handleProposeArbitrator(w, r, &req)
	case "arbitrator_approve":
		s.handleApproveArbitrator(w, r, &req)
	case "arbitrator_arbitrate":
		s.handleArbitrate(w, r, &req)
	case "arbitrator_get":
		s.handleGetArbitrator(w, r, &req)
	case "claim_claim":
		s.handleClaim(w, r, &req)
	case "claim_single":
		s.handleSingleClaim(w, r, &req)
	case "claim_preview":
		s.handlePreviewClaim(w, r, &req)
	case "bank_approve":
		s.handleBankApprove(w, r, &req)
	case "bank_transfer":
		s.handleBankTransfer(w, r, &req)
	case "bank_balance":
		s.handleBankBalance(w, r, &req)
	case "bank_allowance":
		s.handleBankAllowance(w, r, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, nil, codeServerError, "event history unavailable", nil)
		return
	}
	id, err := parseEscrowID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	q := indexer.Query{EscrowID: &id, Type: r.URL.Query().Get("type")}
	if raw := r.URL.Query().Get("after"); raw != "" {
		if q.AfterSeq, err = strconv.ParseUint(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, nil, codeInvalidParams, "invalid_params", "after must be a sequence number")
			return
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if q.Limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, nil, codeInvalidParams, "invalid_params", "limit must be a number")
			return
		}
	}
	records, err := s.history.Find(r.Context(), q)
	if err != nil {
		s.logger.Error("rpc: history query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, nil, codeServerError, "history query failed", nil)
		return
	}
	_ = json.NewEncoder(w).Encode(formatRecords(records))
}

func formatRecords(records []indexer.EventRecord) []eventPayload {
	out := make([]eventPayload, 0, len(records))
	for _, rec := range records {
		recordedAt := rec.RecordedAt.UTC()
		out = append(out, eventPayload{Seq: rec.Seq, Type: rec.Type, Attributes: rec.Attributes, RecordedAt: &recordedAt})
	}
	return out
}

// decodeParams reads the single params object of req into dst. Unknown
// fields are rejected.
func decodeParams(req *RPCRequest, dst interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single params object")
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeInvalidParams(w http.ResponseWriter, id interface{}, err error) {
	writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid_params", err.Error())
}
