package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/warden-platform/warden-core/internal/domain/audit"
	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/threat"
	"github.com/warden-platform/warden-core/internal/service"
)

// decisionRequest is the wire form of one authorization request. Unlike the
// service type it accepts the raw API key as a body field: the key arrives
// exactly once, is handed to the decision pipeline, and is never echoed.
type decisionRequest struct {
	APIKey     string         `json:"api_key,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	ExternalID string         `json:"external_id,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource,omitempty"`
	Permission string         `json:"permission"`
	Actor      string         `json:"actor,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	DataBytes  int            `json:"data_bytes,omitempty"`
	Source     string         `json:"source,omitempty"`
	Channel    string         `json:"channel,omitempty"`
}

// handleDecide decides one ingress action. When the body names no source,
// the caller's real IP (X-Forwarded-For aware) is stamped in so a gateway
// that forwards end-user traffic gets per-client threat tracking for free.
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(s.logger, w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	source := req.Source
	if source == "" {
		source = RealIPFromContext(r.Context())
	}

	auth, err := s.decisions.Authorize(r.Context(), service.AuthorizeRequest{
		APIKey:     req.APIKey,
		UserID:     req.UserID,
		ExternalID: req.ExternalID,
		Action:     req.Action,
		Resource:   req.Resource,
		Permission: req.Permission,
		Actor:      audit.Actor(req.Actor),
		Tool:       req.Tool,
		Args:       req.Args,
		DataBytes:  req.DataBytes,
		Source:     source,
		Channel:    req.Channel,
	})
	if err != nil {
		respondFault(s.logger, w, err)
		return
	}

	respondJSON(s.logger, w, http.StatusOK, auth)
}

func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", 50)
	entries, err := s.ledger.Recent(r.Context(), n)
	if err != nil {
		respondFault(s.logger, w, err)
		return
	}
	respondJSON(s.logger, w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleAuditVerify re-walks the hash chain. With ?date= it verifies one
// day file; without, the full chain across all days.
func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	var (
		valid  bool
		detail string
		err    error
		scope  = "chain"
	)

	if raw := r.URL.Query().Get("date"); raw != "" {
		date, perr := time.Parse("2006-01-02", raw)
		if perr != nil {
			respondError(s.logger, w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		scope = "day"
		valid, detail, err = s.ledger.VerifyDay(r.Context(), date)
	} else {
		valid, detail, err = s.ledger.VerifyChain(r.Context())
	}
	if err != nil {
		respondFault(s.logger, w, err)
		return
	}

	respondJSON(s.logger, w, http.StatusOK, map[string]any{
		"scope":  scope,
		"valid":  valid,
		"detail": detail,
	})
}

func (s *Server) handleAuditSummary(w http.ResponseWriter, r *http.Request) {
	var date time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		var err error
		date, err = time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(s.logger, w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}

	sum, err := s.ledger.Summary(r.Context(), date)
	if err != nil {
		respondFault(s.logger, w, err)
		return
	}
	respondJSON(s.logger, w, http.StatusOK, sum)
}

func (s *Server) handleThreatSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(s.logger, w, http.StatusOK, s.threats.Summary())
}

func (s *Server) handleThreatRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	level := threat.LevelInfo
	if raw := r.URL.Query().Get("level"); raw != "" {
		level = threat.Level(raw)
		if level.Rank() < 0 {
			respondError(s.logger, w, http.StatusBadRequest, "unknown level "+strconv.Quote(raw))
			return
		}
	}

	events := s.threats.Recent(limit, level)
	respondJSON(s.logger, w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleThreatUnblock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(s.logger, w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Source == "" {
		respondError(s.logger, w, http.StatusBadRequest, "source is required")
		return
	}

	removed := s.threats.Unblock(r.Context(), req.Source)
	respondJSON(s.logger, w, http.StatusOK, map[string]any{
		"source":    req.Source,
		"unblocked": removed,
	})
}

func (s *Server) handleCompliancePosture(w http.ResponseWriter, r *http.Request) {
	respondJSON(s.logger, w, http.StatusOK, s.compliance.Posture(r.Context()))
}

func (s *Server) handleComplianceOWASP(w http.ResponseWriter, r *http.Request) {
	respondJSON(s.logger, w, http.StatusOK, s.compliance.OWASP())
}

func (s *Server) handleComplianceSOC2(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	respondJSON(s.logger, w, http.StatusOK, s.compliance.SOC2(days))
}

func (s *Server) handleComplianceISO(w http.ResponseWriter, r *http.Request) {
	respondJSON(s.logger, w, http.StatusOK, s.compliance.ISO27001())
}

func (s *Server) handleComplianceIncident(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type        string `json:"type"`
		Severity    string `json:"severity"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(s.logger, w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Type == "" {
		respondError(s.logger, w, http.StatusBadRequest, "incident type is required")
		return
	}

	respondJSON(s.logger, w, http.StatusOK, s.compliance.Incident(req.Type, req.Severity, req.Description))
}

// --- JSON helpers ---

// respondJSON writes a JSON response with the given status code and data.
func respondJSON(logger *slog.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status and message.
func respondError(logger *slog.Logger, w http.ResponseWriter, status int, message string) {
	respondJSON(logger, w, status, map[string]string{"error": message})
}

// respondFault maps a service error onto an HTTP status through its fault
// kind and writes it as an error response.
func respondFault(logger *slog.Logger, w http.ResponseWriter, err error) {
	respondError(logger, w, kindStatus(fault.KindOf(err)), err.Error())
}

// kindStatus maps the error taxonomy onto HTTP statuses. Unknown kinds are
// server faults; ChainBroken is deliberately a 500 because a tampered
// ledger is a core failure, not a caller mistake.
func kindStatus(k fault.Kind) int {
	switch k {
	case fault.InvalidArgument:
		return http.StatusBadRequest
	case fault.NotFound:
		return http.StatusNotFound
	case fault.AlreadyExists:
		return http.StatusConflict
	case fault.PermissionDenied, fault.Blocked:
		return http.StatusForbidden
	case fault.Expired:
		return http.StatusUnauthorized
	case fault.LimitExceeded:
		return http.StatusTooManyRequests
	case fault.Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// queryInt reads an integer query parameter, falling back to def when the
// parameter is absent or unparseable.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
