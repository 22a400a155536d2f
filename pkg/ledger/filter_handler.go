package ledger

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/klokku/fintrack/internal/rest"
)

const dateLayout = "2006-01-02"

// FilterDTO bounds are YYYY-MM-DD dates. In a PUT an absent bound is left as is
// and a null bound is removed.
type FilterDTO struct {
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

type FilterResponseDTO struct {
	Filter       FilterDTO `json:"filter"`
	RefreshError string    `json:"refresh_error,omitempty"`
}

// GetFilter godoc
// @Summary Get the date filter
// @Tags Filter
// @Produce json
// @Success 200 {object} FilterResponseDTO
// @Router /api/filter [get]
// @Security XUserId
func (handler *Handler) GetFilter(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	rest.WriteJSON(w, http.StatusOK, FilterResponseDTO{Filter: filterToDTO(session.Filter())})
}

// SetFilter godoc
// @Summary Replace filter bounds
// @Tags Filter
// @Accept json
// @Produce json
// @Param filter body FilterDTO true "Bounds to replace"
// @Success 200 {object} FilterResponseDTO
// @Router /api/filter [put]
// @Security XUserId
func (handler *Handler) SetFilter(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	type change struct {
		bound Bound
		value *time.Time
	}
	var changes []change
	bounds := []struct {
		key   string
		bound Bound
	}{{"start_date", StartBound}, {"end_date", EndBound}}
	for _, b := range bounds {
		key, bound := b.key, b.bound
		value, present := raw[key]
		if !present {
			continue
		}
		parsed, err := parseBound(value)
		if err != nil {
			rest.WriteError(w, http.StatusBadRequest, "Invalid "+key, err.Error())
			return
		}
		changes = append(changes, change{bound: bound, value: parsed})
	}

	var refreshErr error
	for _, c := range changes {
		if err := session.SetFilterBound(r.Context(), c.bound, c.value); err != nil {
			refreshErr = err
		}
	}
	rest.WriteJSON(w, http.StatusOK, filterResponse(session.Filter(), refreshErr))
}

// ClearFilter godoc
// @Summary Clear the date filter
// @Tags Filter
// @Produce json
// @Success 200 {object} FilterResponseDTO
// @Router /api/filter [delete]
// @Security XUserId
func (handler *Handler) ClearFilter(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	err := session.ClearFilter(r.Context())
	rest.WriteJSON(w, http.StatusOK, filterResponse(session.Filter(), err))
}

func parseBound(raw json.RawMessage) (*time.Time, error) {
	var value *string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	if value == nil || *value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, *value)
	if err != nil {
		return nil, fmt.Errorf("date must be in YYYY-MM-DD format: %w", err)
	}
	return &parsed, nil
}

func filterToDTO(f Filter) FilterDTO {
	return FilterDTO{StartDate: dateString(f.Start), EndDate: dateString(f.End)}
}

func filterResponse(f Filter, refreshErr error) FilterResponseDTO {
	response := FilterResponseDTO{Filter: filterToDTO(f)}
	if refreshErr != nil {
		response.RefreshError = refreshErr.Error()
	}
	return response
}
