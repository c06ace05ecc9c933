package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexavest/nexavest-backend/api/responses"
	"github.com/nexavest/nexavest-backend/api/validators"
	"github.com/nexavest/nexavest-backend/internal/ledger"
	"github.com/nexavest/nexavest-backend/pkg/enums"
	pkgerrors "github.com/nexavest/nexavest-backend/pkg/errors"
	"github.com/nexavest/nexavest-backend/pkg/logger"
	"github.com/nexavest/nexavest-backend/pkg/pagination"
)

type ledgerEntriesResponse struct {
	Entries    any    `json:"entries"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ListLedgerEntries serves the filtered, cursor-paginated ledger listing.
func ListLedgerEntries(svc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := entryFilterFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, next, err := svc.ListEntries(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ledgerEntriesResponse{Entries: entries, NextCursor: next})
	}
}

func entryFilterFromQuery(r *http.Request) (ledger.EntryFilter, error) {
	var filter ledger.EntryFilter

	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	filter.Cursor = validators.SanitizeString(r.URL.Query().Get("cursor"), 256)

	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id")
		}
		filter.UserID = &id
	}
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind, err := enums.ParseLedgerEntryKind(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind")
		}
		filter.Kind = &kind
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := enums.LedgerEntryStatus(raw)
		if !status.IsValid() {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
		}
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from timestamp")
		}
		filter.From = &from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to timestamp")
		}
		filter.To = &to
	}
	return filter, nil
}

// UserBalance serves the per-bucket balance for one user.
func UserBalance(svc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}
		balance, err := svc.GetBalance(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}
