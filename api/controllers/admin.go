package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexavest/nexavest-backend/api/responses"
	"github.com/nexavest/nexavest-backend/api/validators"
	"github.com/nexavest/nexavest-backend/internal/ledger"
	"github.com/nexavest/nexavest-backend/internal/specialbonus"
	"github.com/nexavest/nexavest-backend/pkg/enums"
	pkgerrors "github.com/nexavest/nexavest-backend/pkg/errors"
	"github.com/nexavest/nexavest-backend/pkg/logger"
)

type adminAdjustRequest struct {
	UserID         string `json:"user_id" validate:"required,uuid4"`
	Amount         string `json:"amount" validate:"required"`
	Direction      string `json:"direction" validate:"required,oneof=credit debit"`
	Bucket         string `json:"bucket" validate:"omitempty,oneof=available pending frozen commission"`
	IdempotencyKey string `json:"idempotency_key" validate:"required,min=1,max=256"`
	Reason         string `json:"reason" validate:"required,min=3,max=512"`
	Actor          string `json:"actor" validate:"required,min=1,max=128"`
}

// AdminAdjust applies a manual ledger correction.
func AdminAdjust(svc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adminAdjustRequest
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

		result, err := svc.AdminAdjust(r.Context(), ledger.AdminAdjustInput{
			UserID:         userID,
			Amount:         amount,
			Direction:      enums.LedgerDirection(req.Direction),
			Bucket:         enums.BalanceBucket(req.Bucket),
			IdempotencyKey: req.IdempotencyKey,
			Reason:         req.Reason,
			Actor:          req.Actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type assignRoleRequest struct {
	UserID string `json:"user_id" validate:"required,uuid4"`
	Role   string `json:"role" validate:"required,oneof=leader parent"`
}

// AssignSpecialRole activates the leader or parent role for a user.
func AssignSpecialRole(svc *specialbonus.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignRoleRequest
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

		account, err := svc.Assign(r.Context(), userID, enums.SpecialRole(req.Role))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}

type deactivateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=leader parent"`
}

// DeactivateSpecialRole retires the active account for a role.
func DeactivateSpecialRole(svc *specialbonus.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deactivateRoleRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Deactivate(r.Context(), enums.SpecialRole(req.Role)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"role": req.Role, "status": "deactivated"})
	}
}
