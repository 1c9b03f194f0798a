// File: internal/infra/web/handlers.go
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
	"telegram-group-access/internal/infra/sched"
	"telegram-group-access/internal/usecase"
)

// sessionCreateHandler exchanges the shared admin secret for a session token.
func (s *Server) sessionCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Secret string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.secret)) != 1 {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		token, err := s.auth.Mint(w)
		if err != nil {
			http.Error(w, "Failed to mint session", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"token": token})
	}
}

func (s *Server) sessionDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.auth.Clear(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// jobTriggerHandler kicks a reconciliation job asynchronously. A distributed
// lock rejects concurrent triggers from another process; within this process
// the reconciler's own re-entrancy guard still applies.
func (s *Server) jobTriggerHandler() http.HandlerFunc {
	jobs := map[string]func(context.Context){
		sched.JobSweep:    s.recon.RunSweep,
		sched.JobAudit:    s.recon.RunAudit,
		sched.JobPoll:     s.recon.RunPoll,
		sched.JobRemind3D: s.recon.RunRemind3D,
		sched.JobRemind1D: s.recon.RunRemind1D,
		sched.JobStale:    s.recon.RunStale,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "job")
		run, ok := jobs[name]
		if !ok {
			http.Error(w, "Unknown job", http.StatusNotFound)
			return
		}

		// Detached from the request context: the job outlives the response.
		jobCtx := context.WithoutCancel(r.Context())

		if s.locker != nil {
			key := "job_lock:" + name
			token, err := s.locker.TryLock(r.Context(), key, 15*time.Minute)
			if errors.Is(err, domain.ErrJobAlreadyRunning) {
				http.Error(w, "Job already running", http.StatusConflict)
				return
			}
			if err != nil {
				http.Error(w, "Failed to acquire job lock", http.StatusInternalServerError)
				return
			}
			go func() {
				defer func() {
					if uerr := s.locker.Unlock(jobCtx, key, token); uerr != nil {
						s.log.Warn().Err(uerr).Str("job", name).Msg("job lock release failed")
					}
				}()
				run(jobCtx)
			}()
		} else {
			go run(jobCtx)
		}

		s.log.Info().Str("job", name).Msg("job triggered via web")
		writeJSON(w, http.StatusAccepted, map[string]string{"job": name, "status": "triggered"})
	}
}

type paymentView struct {
	InvoiceID string     `json:"invoice_id"`
	UserID    int64      `json:"user_id"`
	PlanCode  string     `json:"plan_code"`
	Amount    int64      `json:"amount_minor"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

func toPaymentView(p *model.Payment) paymentView {
	return paymentView{
		InvoiceID: p.InvoiceID,
		UserID:    p.UserID,
		PlanCode:  string(p.PlanCode),
		Amount:    p.Amount,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		PaidAt:    p.PaidAt,
	}
}

func paymentsRecentHandler(payments usecase.PaymentUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		items, err := payments.ListRecent(r.Context(), limit)
		if err != nil {
			http.Error(w, "Failed to list payments", http.StatusInternalServerError)
			return
		}
		views := make([]paymentView, 0, len(items))
		for _, p := range items {
			views = append(views, toPaymentView(p))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func statsHandler(users repository.UserRepository, subs usecase.SubscriptionUseCase, payments usecase.PaymentUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		totalUsers, err := users.CountUsers(ctx, nil)
		if err != nil {
			http.Error(w, "Failed to count users", http.StatusInternalServerError)
			return
		}
		activeSubs, err := subs.CountActive(ctx)
		if err != nil {
			http.Error(w, "Failed to count subscriptions", http.StatusInternalServerError)
			return
		}
		month, err := payments.SumByPeriod(ctx, "month")
		if err != nil {
			http.Error(w, "Failed to get revenue", http.StatusInternalServerError)
			return
		}
		year, err := payments.SumByPeriod(ctx, "year")
		if err != nil {
			http.Error(w, "Failed to get revenue", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			TotalUsers   int `json:"total_users"`
			ActiveSubs   int `json:"active_subscriptions"`
			RevenueMinor struct {
				Month int64 `json:"month"`
				Year  int64 `json:"year"`
			} `json:"revenue_minor"`
		}{
			TotalUsers: totalUsers,
			ActiveSubs: activeSubs,
			RevenueMinor: struct {
				Month int64 `json:"month"`
				Year  int64 `json:"year"`
			}{Month: month, Year: year},
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
