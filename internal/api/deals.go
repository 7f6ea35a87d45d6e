package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sponsortracker/internal/middleware"
	"sponsortracker/internal/models"
	"sponsortracker/internal/service"
	"sponsortracker/internal/util"
)

func currentUserID(r *http.Request) string {
	u, _ := middleware.User(r.Context())
	return u.ID
}

func (h *Handlers) ListBrands(w http.ResponseWriter, r *http.Request) {
	q := models.BrandQuery{
		Search:   r.URL.Query().Get("search"),
		Category: models.BrandCategory(r.URL.Query().Get("category")),
	}
	items, err := h.svc.ListBrands(r.Context(), currentUserID(r), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []models.Brand{}
	}
	util.WriteJSON(w, http.StatusOK, items)
}

func (h *Handlers) BrandOptions(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.BrandOptions(r.Context(), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []models.BrandOption{}
	}
	util.WriteJSON(w, http.StatusOK, items)
}

func (h *Handlers) CreateBrand(w http.ResponseWriter, r *http.Request) {
	var in service.BrandInput
	if err := util.DecodeJSON(w, r, &in); err != nil {
		h.badJSON(w, r)
		return
	}
	b, err := h.svc.CreateBrand(r.Context(), currentUserID(r), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handlers) GetBrand(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetBrand(r.Context(), currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, b)
}

func (h *Handlers) UpdateBrand(w http.ResponseWriter, r *http.Request) {
	var in service.BrandInput
	if err := util.DecodeJSON(w, r, &in); err != nil {
		h.badJSON(w, r)
		return
	}
	b, err := h.svc.UpdateBrand(r.Context(), currentUserID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, b)
}

func (h *Handlers) DeleteBrand(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteBrand(r.Context(), currentUserID(r), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListDeals(w http.ResponseWriter, r *http.Request) {
	q := models.DealQuery{
		Status:  models.DealStatus(r.URL.Query().Get("status")),
		BrandID: r.URL.Query().Get("brand_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			q.Limit = min(n, 100)
		}
	}
	items, err := h.svc.ListDeals(r.Context(), currentUserID(r), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []models.Deal{}
	}
	util.WriteJSON(w, http.StatusOK, items)
}

func (h *Handlers) CreateDeal(w http.ResponseWriter, r *http.Request) {
	var in service.DealInput
	if err := util.DecodeJSON(w, r, &in); err != nil {
		h.badJSON(w, r)
		return
	}
	d, err := h.svc.CreateDeal(r.Context(), currentUserID(r), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handlers) GetDeal(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetDeal(r.Context(), currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, d)
}

func (h *Handlers) UpdateDeal(w http.ResponseWriter, r *http.Request) {
	var in service.DealInput
	if err := util.DecodeJSON(w, r, &in); err != nil {
		h.badJSON(w, r)
		return
	}
	d, err := h.svc.UpdateDeal(r.Context(), currentUserID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, d)
}

func (h *Handlers) DeleteDeal(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteDeal(r.Context(), currentUserID(r), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) MoveDeal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.DealStatus `json:"status"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		h.badJSON(w, r)
		return
	}
	u, _ := middleware.User(r.Context())
	d, err := h.svc.MoveDeal(r.Context(), u, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, d)
}

func (h *Handlers) Board(w http.ResponseWriter, r *http.Request) {
	cols, err := h.svc.Board(r.Context(), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, cols)
}

func (h *Handlers) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Summary(r.Context(), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) AnalyticsMonthly(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.MonthlyRevenue(r.Context(), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) AnalyticsBrands(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.RevenueByBrand(r.Context(), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) AnalyticsStatuses(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.DealsByStatus(r.Context(), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Dashboard(r.Context(), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, out)
}
