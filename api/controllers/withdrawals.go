package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexavest/nexavest-backend/api/responses"
	"github.com/nexavest/nexavest-backend/api/validators"
	"github.com/nexavest/nexavest-backend/internal/ledger"
	pkgerrors "github.com/nexavest/nexavest-backend/pkg/errors"
	"github.com/nexavest/nexavest-backend/pkg/logger"
)

type reserveWithdrawalRequest struct {
	UserID string `json:"user_id" validate:"required,uuid4"`
	Amount string `json:"amount" validate:"required"`
	Ref    string `json:"ref" validate:"required,min=1,max=128"`
}

type withdrawalResponse struct {
	Ref       string `json:"ref"`
	Duplicate bool   `json:"duplicate"`
	Status    string `json:"status"`
}

// ReserveWithdrawal moves funds from available into pending for an external
// payout flow identified by ref.
func ReserveWithdrawal(svc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reserveWithdrawalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id"))
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		result, err := svc.ReserveWithdrawal(r.Context(), userID, amount, req.Ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, withdrawalResponse{
			Ref:       req.Ref,
			Duplicate: result.Duplicate,
			Status:    "reserved",
		})
	}
}

// FinalizeWithdrawal settles a reserved withdrawal.
func FinalizeWithdrawal(svc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "ref")
		result, err := svc.FinalizeWithdrawal(r.Context(), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, withdrawalResponse{
			Ref:       ref,
			Duplicate: result.Duplicate,
			Status:    "finalized",
		})
	}
}

// RejectWithdrawal returns a reserved withdrawal to the available bucket.
func RejectWithdrawal(svc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "ref")
		result, err := svc.RejectWithdrawal(r.Context(), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, withdrawalResponse{
			Ref:       ref,
			Duplicate: result.Duplicate,
			Status:    "rejected",
		})
	}
}
