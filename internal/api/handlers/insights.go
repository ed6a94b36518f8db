package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pysugar/roleplay-nexus/internal/insights"
	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

func (a *API) ListInsights(w http.ResponseWriter, r *http.Request) {
	all, err := a.Insights.List()
	if err != nil {
		a.insightFailed(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, all)
}

func (a *API) StoreInsight(w http.ResponseWriter, r *http.Request) {
	item := insights.Insight{}
	if err := decodeJSON(w, r, &item); err != nil {
		util.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	saved, err := a.Insights.Add(item)
	if err != nil {
		a.insightFailed(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, map[string]any{"message": "Insight saved to file", "data": saved})
}

func (a *API) UpdateInsight(w http.ResponseWriter, r *http.Request) {
	item := insights.Insight{}
	if err := decodeJSON(w, r, &item); err != nil {
		util.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	updated, err := a.Insights.Update(chi.URLParam(r, "id"), item)
	switch {
	case errors.Is(err, insights.ErrIDMismatch):
		util.WriteMessage(w, http.StatusBadRequest, "Mismatched item ID in request.")
	case errors.Is(err, insights.ErrNotFound):
		util.WriteMessage(w, http.StatusNotFound, "Insight not found for update.")
	case err != nil:
		a.insightFailed(w, r, err)
	default:
		util.WriteJSON(w, http.StatusOK, map[string]any{"message": "Insight updated successfully", "data": updated})
	}
}

func (a *API) DestroyInsight(w http.ResponseWriter, r *http.Request) {
	err := a.Insights.Delete(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, insights.ErrNotFound):
		util.WriteMessage(w, http.StatusNotFound, "Insight not found.")
	case err != nil:
		a.insightFailed(w, r, err)
	default:
		util.WriteMessage(w, http.StatusOK, "Insight deleted successfully")
	}
}

func (a *API) insightFailed(w http.ResponseWriter, r *http.Request, err error) {
	var verr *insights.ValidationError
	if errors.As(err, &verr) {
		fields := make(map[string]string, len(verr.Fields))
		for _, f := range verr.Fields {
			fields[f] = "The " + f + " field is invalid."
		}
		util.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The given data was invalid.",
			"errors":  fields,
		})
		return
	}
	logging.FromContext(r.Context()).Error("insight store failed", "error", err)
	util.WriteError(w, http.StatusInternalServerError, "Insight storage failed")
}
