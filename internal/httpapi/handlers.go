package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fuelshift/backend/internal/domain"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleShift(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.CurrentShift())
}

func (a *API) handleShiftStart(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftStartRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.StartShift(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) handleShiftCancel(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.CancelShift(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleReadingUpdate(w http.ResponseWriter, r *http.Request) {
	nozzleID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || nozzleID < 1 {
		a.writeError(w, http.StatusBadRequest, errors.New("invalid nozzle id"))
		return
	}

	var req domain.ReadingUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.UpdateReading(r.Context(), nozzleID, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleFinancialsUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.FinancialsUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.UpdateFinancials(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleAdvance(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.AdvanceStage()
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleRetreat(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.RetreatStage()
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSummary never fails because the summarizer did; an unavailable
// summary is reported in the body with status 200.
func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GenerateSummary(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	entry, err := a.service.CloseShift(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.ShiftCloseResponse{Entry: entry})
}

func (a *API) handlePrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.Prices())
}

func (a *API) handlePricesUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.PricesUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.writeError(w, http.StatusBadRequest, errors.New(validationMessage(err)))
		return
	}

	prices, err := a.service.UpdatePrices(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := domain.HistoryQuery{
		Search: r.URL.Query().Get("q"),
		Period: domain.Period(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("period")))),
	}
	if err := a.validate.Struct(query); err != nil {
		a.writeError(w, http.StatusBadRequest, errors.New(validationMessage(err)))
		return
	}

	report, err := a.service.QueryHistory(r.Context(), query)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=shift-history-%s.csv", strings.ToLower(string(report.Period))))
		w.WriteHeader(http.StatusOK)
		if err := writeHistoryCSV(w, report); err != nil {
			a.logger.Warn("history csv write failed", zap.Error(err))
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}
