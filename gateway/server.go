package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crossvault/bridge"
	"crossvault/native/vault"
)

// Server exposes the read-only query surface, the local operation entrypoints
// and the inbound bridge delivery endpoint over HTTP.
type Server struct {
	engine    *vault.Engine
	router    *bridge.Router
	feeBudget *big.Int
	log       *slog.Logger
}

// NewServer wires the HTTP layer. feeBudget is the per-dispatch transport
// budget applied to operations submitted through this surface.
func NewServer(engine *vault.Engine, router *bridge.Router, feeBudget *big.Int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if feeBudget == nil {
		feeBudget = big.NewInt(0)
	}
	return &Server{engine: engine, router: router, feeBudget: feeBudget, log: log}
}

// Handler builds the chi route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pool", s.handlePool)
		r.Get("/assets", s.handleAssets)
		r.Route("/accounts/{account}", func(r chi.Router) {
			r.Get("/", s.handleAccountStatus)
			r.Get("/position", s.handlePosition)
			r.Get("/remote/{instance}", s.handleRemoteView)
		})
		r.Route("/vault", func(r chi.Router) {
			r.Post("/deposit", s.handleOp(opDeposit))
			r.Post("/withdraw", s.handleOp(opWithdraw))
			r.Post("/borrow", s.handleOp(opBorrow))
			r.Post("/repay", s.handleOp(opRepay))
			r.Post("/supply", s.handleOp(opSupply))
			r.Post("/withdraw-supply", s.handleOp(opWithdrawSupply))
			r.Post("/resync", s.handleResync)
		})
		r.Post("/bridge/receive", s.handleReceive)
	})
	return r
}

type errorResponse struct {
	Error          string `json:"error"`
	LocalCommitted bool   `json:"localCommitted,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseAccount(r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "account")
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

type poolResponse struct {
	Instance           string `json:"instance"`
	TotalLiquidity     string `json:"totalLiquidity"`
	TotalUtilized      string `json:"totalUtilized"`
	AvailableLiquidity string `json:"availableLiquidity"`
	UtilizationRate    string `json:"utilizationRate"`
	SupplyAPY          string `json:"supplyAPY"`
	BorrowAPY          string `json:"borrowAPY"`
}

func ratString(r *big.Rat) string {
	if r == nil {
		return ""
	}
	return r.FloatString(6)
}

func (s *Server) handlePool(w http.ResponseWriter, _ *http.Request) {
	status, err := s.engine.PoolStatus()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, poolResponse{
		Instance:           status.Pool.Instance,
		TotalLiquidity:     status.Pool.TotalLiquidity.String(),
		TotalUtilized:      status.Pool.TotalUtilized.String(),
		AvailableLiquidity: status.AvailableLiquidity.String(),
		UtilizationRate:    ratString(status.Utilization),
		SupplyAPY:          ratString(status.SupplyAPY),
		BorrowAPY:          ratString(status.BorrowAPY),
	})
}

func (s *Server) handleAssets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"assets": s.engine.SupportedAssets()})
}

type accountResponse struct {
	Account         string `json:"account"`
	TotalCollateral string `json:"totalCollateral"`
	TotalBorrowed   string `json:"totalBorrowed"`
	TotalSupplied   string `json:"totalSupplied"`
	CreditLine      string `json:"creditLine"`
	HealthFactor    string `json:"healthFactor,omitempty"`
}

func (s *Server) handleAccountStatus(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAccount(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid account address"})
		return
	}
	status, err := s.engine.AccountStatus(account)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	resp := accountResponse{
		Account:         status.Aggregate.Account.Hex(),
		TotalCollateral: status.Aggregate.TotalCollateral.String(),
		TotalBorrowed:   status.Aggregate.TotalBorrowed.String(),
		TotalSupplied:   status.Aggregate.TotalSupplied.String(),
		CreditLine:      status.CreditLine.String(),
		HealthFactor:    ratString(status.HealthFactor),
	}
	writeJSON(w, http.StatusOK, resp)
}

type positionResponse struct {
	Account     string `json:"account"`
	Instance    string `json:"instance"`
	Collateral  string `json:"collateral"`
	Borrowed    string `json:"borrowed"`
	Supplied    string `json:"supplied"`
	LastAccrual int64  `json:"lastAccrual"`
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAccount(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid account address"})
		return
	}
	pos, err := s.engine.PositionOf(account)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		Account:     pos.Account.Hex(),
		Instance:    pos.Instance,
		Collateral:  pos.Collateral.String(),
		Borrowed:    pos.Borrowed.String(),
		Supplied:    pos.Supplied.String(),
		LastAccrual: pos.LastAccrual,
	})
}

func (s *Server) handleRemoteView(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAccount(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid account address"})
		return
	}
	view, err := s.engine.RemoteViewOf(account, chi.URLParam(r, "instance"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		Account:    view.Account.Hex(),
		Instance:   view.Instance,
		Collateral: view.Collateral.String(),
		Borrowed:   view.Borrowed.String(),
		Supplied:   view.Supplied.String(),
	})
}

type operation int

const (
	opDeposit operation = iota
	opWithdraw
	opBorrow
	opRepay
	opSupply
	opWithdrawSupply
)

type opRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type opResponse struct {
	Applied    string            `json:"applied,omitempty"`
	Deliveries map[string]string `json:"deliveries"`
	Failures   map[string]string `json:"failures,omitempty"`
}

func receiptResponse(applied *big.Int, receipt *vault.BroadcastReceipt) opResponse {
	resp := opResponse{Deliveries: map[string]string{}}
	if applied != nil {
		resp.Applied = applied.String()
	}
	if receipt != nil {
		resp.Deliveries = receipt.Deliveries
		if len(receipt.Failures) > 0 {
			resp.Failures = make(map[string]string, len(receipt.Failures))
			for peer, failure := range receipt.Failures {
				resp.Failures[peer] = failure.Error()
			}
		}
	}
	return resp
}

func (s *Server) handleOp(op operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req opRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
			return
		}
		if !common.IsHexAddress(req.Account) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid account address"})
			return
		}
		amount, ok := new(big.Int).SetString(req.Amount, 10)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid amount"})
			return
		}
		account := common.HexToAddress(req.Account)

		var (
			applied *big.Int
			receipt *vault.BroadcastReceipt
			err     error
		)
		switch op {
		case opDeposit:
			receipt, err = s.engine.DepositCollateral(account, amount, s.feeBudget)
		case opWithdraw:
			receipt, err = s.engine.WithdrawCollateral(account, amount, s.feeBudget)
		case opBorrow:
			receipt, err = s.engine.Borrow(account, amount, s.feeBudget)
		case opRepay:
			applied, receipt, err = s.engine.Repay(account, amount, s.feeBudget)
		case opSupply:
			receipt, err = s.engine.Supply(account, amount, s.feeBudget)
		case opWithdrawSupply:
			receipt, err = s.engine.WithdrawSupply(account, amount, s.feeBudget)
		}
		if err != nil {
			s.writeOpError(w, err, receipt, applied)
			return
		}
		writeJSON(w, http.StatusOK, receiptResponse(applied, receipt))
	}
}

// writeOpError distinguishes validation failures (nothing happened) from
// transport failures (the local ledger moved, peers were not told).
func (s *Server) writeOpError(w http.ResponseWriter, err error, receipt *vault.BroadcastReceipt, applied *big.Int) {
	var transport *bridge.TransportError
	if errors.As(err, &transport) {
		resp := receiptResponse(applied, receipt)
		writeJSON(w, http.StatusBadGateway, struct {
			opResponse
			errorResponse
		}{resp, errorResponse{Error: err.Error(), LocalCommitted: true}})
		return
	}
	if vault.IsValidation(err) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.log.Error("vault operation failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func (s *Server) handleResync(w http.ResponseWriter, _ *http.Request) {
	receipt, err := s.engine.Resync(s.feeBudget)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, struct {
			opResponse
			errorResponse
		}{receiptResponse(nil, receipt), errorResponse{Error: err.Error(), LocalCommitted: true}})
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse(nil, receipt))
}

type receiveRequest struct {
	Source  string `json:"source"`
	Adapter string `json:"adapter"`
	Payload string `json:"payload"`
}

func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "bridge router not configured"})
		return
	}
	var req receiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "payload must be base64"})
		return
	}
	if err := s.router.Receive(raw, req.Source, req.Adapter); err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, bridge.ErrUnknownInstance),
			errors.Is(err, bridge.ErrAdapterMismatch),
			errors.Is(err, bridge.ErrUntrustedSource):
			status = http.StatusUnauthorized
		case errors.Is(err, bridge.ErrMalformedPayload),
			errors.Is(err, bridge.ErrWrongDestination):
			status = http.StatusBadRequest
		default:
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}
