package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/identity"
)

// registerActorHandler is the unauthenticated entry point. New actors stay
// unapproved until an admin approves them.
func registerActorHandler(svc ActorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterActorRequest
		if !decode(w, r, &req) {
			return
		}

		acc, err := svc.Register(r.Context(), access.Role(req.Role), req.Name, req.Email)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, actorResponse(acc))
	}
}

func listActorsHandler(svc ActorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}

		f := identity.ListFilter{Role: access.Role(r.URL.Query().Get("role"))}
		if v := r.URL.Query().Get("approved"); v != "" {
			approved, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_approved", "approved must be true or false")
				return
			}
			f.Approved = &approved
		}
		f.Limit, f.Offset = paging(r)

		accounts, err := svc.List(r.Context(), actor, f)
		if err != nil {
			handleError(w, r, err)
			return
		}
		resp := make([]ActorResponse, 0, len(accounts))
		for i := range accounts {
			resp = append(resp, actorResponse(&accounts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func approveActorHandler(svc ActorService) http.HandlerFunc {
	return manageActorHandler(svc.Approve)
}

func disableActorHandler(svc ActorService) http.HandlerFunc {
	return manageActorHandler(svc.Disable)
}

func manageActorHandler(fn func(ctx context.Context, admin access.Actor, id uuid.UUID) (*identity.Account, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		acc, err := fn(r.Context(), actor, id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, actorResponse(acc))
	}
}
