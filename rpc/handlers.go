package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lottochain/core"
	"lottochain/core/beacon"
	"lottochain/core/types"
	"lottochain/crypto"
	"lottochain/history"
	"lottochain/native/lottery"
)

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "failed to read request body", err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, codeInvalidRequest, "request body too large", nil)
		return
	}
	var tx types.Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		writeError(w, http.StatusBadRequest, codeParseError, "invalid transaction format", err.Error())
		return
	}
	receipt, err := s.node.Submit(r.Context(), &tx)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeResult(w, invokeResult(receipt))
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	reason := core.RejectReason(err)
	switch {
	case errors.Is(err, types.ErrMissingSignature), errors.Is(err, crypto.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, codeUnauthorized, err.Error(), reason)
	case errors.Is(err, lottery.ErrUnauthorized):
		writeError(w, http.StatusForbidden, codeRejected, err.Error(), reason)
	case reason == "other":
		s.logger.Error("invocation failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, codeServerError, "invocation failed", nil)
	default:
		writeError(w, http.StatusBadRequest, codeRejected, err.Error(), reason)
	}
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	store := s.node.History()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "transaction history disabled", nil)
		return
	}
	params := r.URL.Query()
	q := history.Query{
		TxType: params.Get("tx-type"),
		Method: params.Get("method"),
		Sender: params.Get("address"),
		Next:   params.Get("next"),
	}
	var err error
	if q.AppID, err = optionalUint(params.Get("application-id")); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParams, "invalid application-id", err.Error())
		return
	}
	if q.MinRound, err = optionalUint(params.Get("min-round")); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParams, "invalid min-round", err.Error())
		return
	}
	if q.MaxRound, err = optionalUint(params.Get("max-round")); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParams, "invalid max-round", err.Error())
		return
	}
	limit, err := optionalUint(params.Get("limit"))
	if err != nil || limit > history.MaxLimit {
		writeError(w, http.StatusBadRequest, codeInvalidParams, "limit must be between 1 and 1000", params.Get("limit"))
		return
	}
	q.Limit = int(limit)

	rows, next, err := store.Query(r.Context(), q)
	if err != nil {
		if errors.Is(err, history.ErrInvalidNext) {
			writeError(w, http.StatusBadRequest, codeInvalidParams, "invalid next token", q.Next)
			return
		}
		s.logger.Error("history query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, codeServerError, "history query failed", nil)
		return
	}
	writeResult(w, history.IndexerPage(rows, next, s.node.Round()))
}

func (s *Server) handleCycle(w http.ResponseWriter, _ *http.Request) {
	cycle, err := s.node.Cycle()
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeResult(w, cycleResult(cycle, s.node.Round()))
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	cycleID, err := strconv.ParseUint(chi.URLParam(r, "cycle"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParams, "invalid cycle", chi.URLParam(r, "cycle"))
		return
	}
	reg, err := s.node.Registry(cycleID)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeResult(w, registryResult(reg))
}

func (s *Server) handleEntrant(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParams, "invalid address", err.Error())
		return
	}
	entrant, err := s.node.Entrant(addr)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	acct, err := s.node.Account(addr)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeResult(w, entrantResult(entrant, acct))
}

func (s *Server) handleBeacon(w http.ResponseWriter, r *http.Request) {
	round, err := strconv.ParseUint(chi.URLParam(r, "round"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParams, "invalid round", chi.URLParam(r, "round"))
		return
	}
	value, err := s.cfg.Beacon.Value(r.Context(), round)
	if err != nil {
		if errors.Is(err, beacon.ErrRoundNotAvailable) {
			writeError(w, http.StatusTooEarly, codeUnavailable, "round not available", round)
			return
		}
		s.logger.Error("beacon value failed", slog.Uint64("round", round), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, codeServerError, "beacon unavailable", nil)
		return
	}
	writeResult(w, beacon.Response{Round: round, Value: hex.EncodeToString(value)})
}

func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found", nil)
	case errors.Is(err, lottery.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, err.Error(), nil)
	default:
		s.logger.Error("state query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, codeServerError, "state query failed", nil)
	}
}

func optionalUint(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
