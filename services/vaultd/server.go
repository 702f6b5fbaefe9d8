package vaultd

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	nativecommon "github.com/zhanglu0523/rifi-vault/native/common"
	"github.com/zhanglu0523/rifi-vault/native/vault"
	"github.com/zhanglu0523/rifi-vault/native/vesting"
	"github.com/zhanglu0523/rifi-vault/state"
)

// Server exposes the node over an HTTP JSON API.
type Server struct {
	node    *Node
	logger  *slog.Logger
	metrics *Metrics

	router http.Handler
}

// NewServer builds the configured router around the node.
func NewServer(node *Node, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{node: node, logger: logger, metrics: NewMetrics()}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.Healthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Get("/pool", s.GetPool)
		api.Get("/accounts/{address}", s.GetPosition)
		api.Get("/accounts/{address}/vesting/{asset}", s.GetVesting)
		api.Get("/balances/{asset}/{address}", s.GetBalance)

		api.Post("/deposits", s.PostDeposit)
		api.Post("/withdrawals", s.PostWithdrawal)
		api.Post("/harvests", s.PostHarvest)
		api.Post("/vestings", s.PostVesting)

		api.Route("/admin", func(admin chi.Router) {
			admin.Post("/reward-rate", s.PostRewardRate)
			admin.Post("/owner/proposals", s.PostOwnerProposal)
			admin.Post("/owner/accept", s.PostOwnerAccept)
			admin.Post("/pauses", s.PostPause)
		})
	})
	return r
}

// Healthz reports liveness and the node clock.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"tick":   s.node.CurrentTick(),
	})
}

// GetPool returns the pool snapshot.
func (s *Server) GetPool(w http.ResponseWriter, _ *http.Request) {
	pool, err := s.node.Pool()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"deposit_asset":    pool.DepositAsset,
		"reward_asset":     pool.RewardAsset,
		"total_deposit":    pool.TotalDeposit.String(),
		"total_share":      pool.TotalShare.String(),
		"reward_index":     pool.RewardIndex.String(),
		"reward_per_tick":  pool.RewardPerTick.String(),
		"last_reward_tick": pool.LastRewardTick,
		"bootstrap_rate":   pool.BootstrapRate,
	})
}

// GetPosition returns the account's projected standing.
func (s *Server) GetPosition(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	position, err := s.node.Position(account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"share":              position.Share.String(),
		"redeemable":         position.Redeemable.String(),
		"pending_reward":     position.PendingReward.String(),
		"unclaimed_dividend": position.UnclaimedDividend.String(),
	})
}

// GetVesting returns the grant schedule and aggregates for an asset.
func (s *Server) GetVesting(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	asset := chi.URLParam(r, "asset")
	schedule, err := s.node.Schedule(account, asset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	totals, err := s.node.Totals(account, asset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	grants := make([]map[string]interface{}, 0, len(schedule.Grants))
	now := s.node.CurrentTick()
	for i, g := range schedule.Grants {
		grants = append(grants, map[string]interface{}{
			"index":      i,
			"start_tick": g.StartTick,
			"end_tick":   g.EndTick,
			"quantity":   g.Quantity.String(),
			"vested":     g.Vested.String(),
			"vestable":   vesting.Vestable(g, now).String(),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset":    asset,
		"grants":   grants,
		"escrowed": totals.Escrowed.String(),
		"vested":   totals.Vested.String(),
	})
}

// GetBalance returns a holder's token balance.
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	asset := chi.URLParam(r, "asset")
	balance, err := s.node.Balance(asset, account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset":   asset,
		"balance": balance.String(),
	})
}

// PostDeposit pulls funds in and mints shares.
func (s *Server) PostDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Amount  string `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	account, amount, ok := s.accountAmount(w, req.Account, req.Amount)
	if !ok {
		return
	}
	start := time.Now()
	minted, err := s.node.Deposit(account, amount)
	s.metrics.Observe("deposit", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"shares": minted.String()})
}

// PostWithdrawal redeems part or all of a position.
func (s *Server) PostWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Amount  string `json:"amount"`
		All     bool   `json:"all"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	account, err := ParseAddress(req.Account)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	start := time.Now()
	if req.All {
		err = s.node.WithdrawAll(account)
		s.metrics.Observe("withdraw_all", start, err)
	} else {
		var amount *big.Int
		if amount, err = ParseAmount(req.Amount); err != nil {
			s.badRequest(w, err)
			return
		}
		err = s.node.Withdraw(account, amount)
		s.metrics.Observe("withdraw", start, err)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// PostHarvest settles rewards and pays out dividends.
func (s *Server) PostHarvest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	account, err := ParseAddress(req.Account)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	start := time.Now()
	paid, shortfall, err := s.node.Harvest(account)
	s.metrics.Observe("harvest", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"paid":      paid.String(),
		"shortfall": shortfall.String(),
	})
}

// PostVesting releases unlocked grants. With indices it targets specific
// grants; without, it releases everything unlocked for the asset.
func (s *Server) PostVesting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string   `json:"account"`
		Asset   string   `json:"asset"`
		Indices []uint64 `json:"indices"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	account, err := ParseAddress(req.Account)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	start := time.Now()
	var released *big.Int
	if len(req.Indices) > 0 {
		released, err = s.node.Vest(account, req.Asset, req.Indices)
		s.metrics.Observe("vest", start, err)
	} else {
		released, err = s.node.VestAll(account, req.Asset)
		s.metrics.Observe("vest_all", start, err)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"released": released.String()})
}

// PostRewardRate updates the emission rate. Owner only.
func (s *Server) PostRewardRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
		Rate   string `json:"rate"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, rate, ok := s.accountAmount(w, req.Caller, req.Rate)
	if !ok {
		return
	}
	start := time.Now()
	err := s.node.SetRewardPerTick(caller, rate)
	s.metrics.Observe("set_reward_per_tick", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// PostOwnerProposal starts an ownership handover.
func (s *Server) PostOwnerProposal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller   string `json:"caller"`
		Proposed string `json:"proposed"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := ParseAddress(req.Caller)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	proposed, err := ParseAddress(req.Proposed)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	start := time.Now()
	err = s.node.ProposeOwner(caller, proposed)
	s.metrics.Observe("propose_owner", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "proposed"})
}

// PostOwnerAccept completes a pending handover.
func (s *Server) PostOwnerAccept(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := ParseAddress(req.Caller)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	start := time.Now()
	err = s.node.AcceptOwner(caller)
	s.metrics.Observe("accept_owner", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "accepted"})
}

// PostPause halts or resumes a module.
func (s *Server) PostPause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
		Module string `json:"module"`
		Paused bool   `json:"paused"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := ParseAddress(req.Caller)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	start := time.Now()
	err = s.node.SetPaused(caller, req.Module, req.Paused)
	s.metrics.Observe("set_paused", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request, param string) ([20]byte, bool) {
	account, err := ParseAddress(chi.URLParam(r, param))
	if err != nil {
		s.badRequest(w, err)
		return account, false
	}
	return account, true
}

func (s *Server) accountAmount(w http.ResponseWriter, rawAccount, rawAmount string) ([20]byte, *big.Int, bool) {
	account, err := ParseAddress(rawAccount)
	if err != nil {
		s.badRequest(w, err)
		return account, nil, false
	}
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		s.badRequest(w, err)
		return account, nil, false
	}
	return account, amount, true
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("operation failed", "error", err)
	}
	s.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// statusFor maps engine sentinels to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrInvalidAsset),
		errors.Is(err, vault.ErrZeroAddress),
		errors.Is(err, vault.ErrRateTooLarge),
		errors.Is(err, vesting.ErrInvalidGrant),
		errors.Is(err, vesting.ErrInvalidIndex),
		errors.Is(err, state.ErrInvalidTransfer):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrUnauthorized),
		errors.Is(err, vault.ErrNotPendingOwner),
		errors.Is(err, vesting.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrInsufficientFunds),
		errors.Is(err, state.ErrInsufficientFunds),
		errors.Is(err, vault.ErrNoPendingOwner),
		errors.Is(err, vault.ErrAlreadyInitialized),
		errors.Is(err, vesting.ErrNoOpVesting):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
