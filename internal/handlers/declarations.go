package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/models"
	"github.com/xelth-com/commissariat/internal/services/declarations"
)

// DeclarationRequest is the body of a new declaration. Exactly the details
// object matching kind may be present.
type DeclarationRequest struct {
	StationID     string          `json:"stationId"`
	Kind          string          `json:"kind"`
	IncidentDate  time.Time       `json:"incidentDate"`
	Location      string          `json:"location"`
	Description   string          `json:"description"`
	Photos        []string        `json:"photos"`
	ObjectDetails json.RawMessage `json:"objectDetails"`
	PersonDetails json.RawMessage `json:"personDetails"`
}

// DeclarationPatch is the body of a partial update. Absent or null fields
// are left unchanged.
type DeclarationPatch struct {
	IncidentDate  *time.Time      `json:"incidentDate"`
	Location      *string         `json:"location"`
	Description   *string         `json:"description"`
	Photos        *[]string       `json:"photos"`
	ObjectDetails json.RawMessage `json:"objectDetails"`
	PersonDetails json.RawMessage `json:"personDetails"`
	ReceiptNumber *string         `json:"receiptNumber"`
	ReceiptURL    *string         `json:"receiptUrl"`
	Notes         *string         `json:"notes"`
}

// StatusRequest is the body of a status change
type StatusRequest struct {
	Status       string  `json:"status"`
	RejectReason string  `json:"rejectReason"`
	AgentID      *string `json:"agentId"`
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func (p DeclarationPatch) details() (models.Details, error) {
	switch {
	case present(p.ObjectDetails) && present(p.PersonDetails):
		return nil, apperrors.Validation("only one of objectDetails and personDetails may be sent")
	case present(p.ObjectDetails):
		return models.DetailsFromJSON(models.KindObject, p.ObjectDetails, nil)
	case present(p.PersonDetails):
		return models.DetailsFromJSON(models.KindPerson, nil, p.PersonDetails)
	default:
		return nil, nil
	}
}

func (r *Router) createDeclaration(w http.ResponseWriter, req *http.Request) {
	var body DeclarationRequest
	if err := decodeJSON(req, &body); err != nil {
		r.fail(w, req, err)
		return
	}
	kind, err := models.ParseKind(body.Kind)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	details, err := models.DetailsFromJSON(kind, body.ObjectDetails, body.PersonDetails)
	if err != nil {
		r.fail(w, req, err)
		return
	}

	d, err := r.declarations.Create(req.Context(), actor(req), declarations.CreateInput{
		StationID:    body.StationID,
		Kind:         kind,
		IncidentDate: body.IncidentDate,
		Location:     body.Location,
		Description:  body.Description,
		Photos:       body.Photos,
		Details:      details,
	})
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

// listDeclarations is the admin view with optional status, kind and station filters
func (r *Router) listDeclarations(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	list, err := r.declarations.ListAll(req.Context(), actor(req), declarations.Filter{
		StationID: q.Get("station"),
		Status:    models.Status(q.Get("status")),
		Kind:      models.Kind(q.Get("kind")),
	})
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (r *Router) listMyDeclarations(w http.ResponseWriter, req *http.Request) {
	list, err := r.declarations.ListOwn(req.Context(), actor(req))
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (r *Router) listStationDeclarations(w http.ResponseWriter, req *http.Request) {
	list, err := r.declarations.ListByStation(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (r *Router) stationStats(w http.ResponseWriter, req *http.Request) {
	stats, err := r.declarations.Stats(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (r *Router) getDeclaration(w http.ResponseWriter, req *http.Request) {
	d, err := r.declarations.Get(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (r *Router) updateDeclaration(w http.ResponseWriter, req *http.Request) {
	var body DeclarationPatch
	if err := decodeJSON(req, &body); err != nil {
		r.fail(w, req, err)
		return
	}
	details, err := body.details()
	if err != nil {
		r.fail(w, req, err)
		return
	}

	d, err := r.declarations.UpdateContent(req.Context(), actor(req), mux.Vars(req)["id"], declarations.Patch{
		IncidentDate:  body.IncidentDate,
		Location:      body.Location,
		Description:   body.Description,
		Photos:        body.Photos,
		Details:       details,
		ReceiptNumber: body.ReceiptNumber,
		ReceiptURL:    body.ReceiptURL,
		Notes:         body.Notes,
	})
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (r *Router) updateDeclarationStatus(w http.ResponseWriter, req *http.Request) {
	var body StatusRequest
	if err := decodeJSON(req, &body); err != nil {
		r.fail(w, req, err)
		return
	}
	d, err := r.declarations.UpdateStatus(req.Context(), actor(req), mux.Vars(req)["id"], declarations.StatusInput{
		Status:       models.Status(body.Status),
		RejectReason: body.RejectReason,
		AgentID:      body.AgentID,
	})
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (r *Router) hideDeclaration(w http.ResponseWriter, req *http.Request) {
	d, err := r.declarations.Hide(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (r *Router) deleteDeclaration(w http.ResponseWriter, req *http.Request) {
	if err := r.declarations.Delete(req.Context(), actor(req), mux.Vars(req)["id"]); err != nil {
		r.fail(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
