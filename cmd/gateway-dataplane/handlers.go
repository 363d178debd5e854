package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ar-io/gateway-dataplane/pkg/gwerrors"
	"github.com/ar-io/gateway-dataplane/pkg/ratelimit"
	"github.com/ar-io/gateway-dataplane/pkg/wireformat"
)

// handleChunk serves GET /chunk/<absoluteOffset>, running the rate
// limiter's predictive/corrective phases (§4.J) around the retrieval
// service's pipeline (§4.H) and encoding a hit in the §6 wire format.
func (s *server) handleChunk(w http.ResponseWriter, r *http.Request) {
	offsetStr := strings.TrimPrefix(r.URL.Path, "/chunk/")
	offset, err := strconv.ParseUint(offsetStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}

	candidateIPs := ratelimit.CandidateIPs(r.Header.Values("X-Forwarded-For"), r.RemoteAddr)
	clientIP := ratelimit.CanonicalClientIP(r.Header.Values("X-Forwarded-For"), r.RemoteAddr)

	decision, err := s.limiter.CheckRequest(r.Context(), r.Method, r.Host, "/chunk", r.URL.Path, r.Host, candidateIPs, clientIP)
	if err != nil {
		s.log.Error().Err(err).Msg("rate limiter check failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !decision.Allowed {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	result, err := s.retrieval.RetrieveChunk(r.Context(), offset)
	if err != nil {
		var retrievalErr *gwerrors.RetrievalError
		if errors.As(err, &retrievalErr) {
			http.Error(w, retrievalErr.Error(), http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Uint64("offset", offset).Msg("chunk retrieval failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	payload, err := wireformat.EncodeChunk(result.Chunk)
	if err != nil {
		s.log.Error().Err(err).Msg("chunk encode failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.limiter.FinishRequest(r.Context(), decision, int64(len(payload)))

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// handleArNS serves GET /arns/<name>, resolving through the ArNS cache
// (§4.K).
func (s *server) handleArNS(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/arns/")
	if name == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}

	record, ok, err := s.arns.Get(r.Context(), name)
	if err != nil {
		s.log.Error().Err(err).Str("name", name).Msg("arns lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "name not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}
