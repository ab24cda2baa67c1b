package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xelth-com/commissariat/internal/models"
	"github.com/xelth-com/commissariat/internal/services/accounts"
	"github.com/xelth-com/commissariat/internal/services/stations"
	"github.com/xelth-com/commissariat/internal/store"
)

// --- stations ---

func (r *Router) listStations(w http.ResponseWriter, req *http.Request) {
	list, err := r.stations.List(req.Context())
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (r *Router) getStation(w http.ResponseWriter, req *http.Request) {
	st, err := r.stations.Get(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (r *Router) createStation(w http.ResponseWriter, req *http.Request) {
	var in stations.Input
	if err := decodeJSON(req, &in); err != nil {
		r.fail(w, req, err)
		return
	}
	st, err := r.stations.Create(req.Context(), actor(req), in)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, st)
}

func (r *Router) updateStation(w http.ResponseWriter, req *http.Request) {
	var in stations.Input
	if err := decodeJSON(req, &in); err != nil {
		r.fail(w, req, err)
		return
	}
	st, err := r.stations.Update(req.Context(), actor(req), mux.Vars(req)["id"], in)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (r *Router) deleteStation(w http.ResponseWriter, req *http.Request) {
	if err := r.stations.Delete(req.Context(), actor(req), mux.Vars(req)["id"]); err != nil {
		r.fail(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- accounts ---

func (r *Router) listUsers(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	list, err := r.accounts.List(req.Context(), actor(req), store.AccountFilter{
		Role:      models.Role(q.Get("role")),
		StationID: q.Get("station"),
	})
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (r *Router) getUser(w http.ResponseWriter, req *http.Request) {
	a, err := r.accounts.Get(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (r *Router) createUser(w http.ResponseWriter, req *http.Request) {
	var in accounts.CreateInput
	if err := decodeJSON(req, &in); err != nil {
		r.fail(w, req, err)
		return
	}
	a, err := r.accounts.Create(req.Context(), actor(req), in)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

func (r *Router) updateUser(w http.ResponseWriter, req *http.Request) {
	var in accounts.UpdateInput
	if err := decodeJSON(req, &in); err != nil {
		r.fail(w, req, err)
		return
	}
	a, err := r.accounts.Update(req.Context(), actor(req), mux.Vars(req)["id"], in)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (r *Router) deleteUser(w http.ResponseWriter, req *http.Request) {
	if err := r.accounts.Delete(req.Context(), actor(req), mux.Vars(req)["id"]); err != nil {
		r.fail(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
