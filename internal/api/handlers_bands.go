package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sydlexius/clearwater/internal/crm"
	"github.com/sydlexius/clearwater/internal/event"
)

func (r *Router) handleListBands(w http.ResponseWriter, req *http.Request) {
	bands, err := r.bands.ListBands(req.Context())
	if err != nil {
		r.logger.Error("listing bands", "error", err)
		writeError(w, http.StatusBadGateway, "failed to list bands")
		return
	}
	if bands == nil {
		bands = []crm.Band{}
	}
	writeJSON(w, http.StatusOK, bands)
}

func (r *Router) handleCreateBand(w http.ResponseWriter, req *http.Request) {
	var band crm.Band
	if err := json.NewDecoder(req.Body).Decode(&band); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if band.Name == "" {
		writeError(w, http.StatusBadRequest, "bandName is required")
		return
	}
	// new contacts always start unmessaged regardless of what the client sent
	band.Status = crm.DefaultStatus

	created, err := r.bands.CreateBand(req.Context(), band)
	if err != nil {
		r.logger.Error("creating band", "band", band.Name, "error", err)
		writeError(w, http.StatusBadGateway, "failed to create band")
		return
	}

	r.bus.Publish(event.Event{
		Type:      event.BandCreated,
		Timestamp: r.now(),
		Data:      map[string]any{"bandId": created.ID, "bandName": created.Name},
	})
	writeJSON(w, http.StatusCreated, created)
}

func (r *Router) handleUpdateBand(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	var update crm.BandUpdate
	if err := json.NewDecoder(req.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	existing, err := r.bands.GetBand(req.Context(), id)
	if err != nil {
		var nf *crm.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, "band not found")
			return
		}
		r.logger.Error("fetching band", "band", id, "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch band")
		return
	}

	updated, err := r.bands.UpdateBand(req.Context(), id, update)
	if err != nil {
		var nf *crm.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, "band not found")
			return
		}
		r.logger.Error("updating band", "band", id, "error", err)
		writeError(w, http.StatusBadGateway, "failed to update band")
		return
	}

	if update.Status != nil && *update.Status == "messaged" && existing.Status != "messaged" {
		r.bus.Publish(event.Event{
			Type:      event.BandMessaged,
			Timestamp: r.now(),
			Data:      map[string]any{"bandId": updated.ID, "bandName": updated.Name},
		})
	}
	writeJSON(w, http.StatusOK, updated)
}

func (r *Router) handleDeleteBand(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.bands.DeleteBand(req.Context(), id); err != nil {
		var nf *crm.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, "band not found")
			return
		}
		r.logger.Error("deleting band", "band", id, "error", err)
		writeError(w, http.StatusBadGateway, "failed to delete band")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
