package api

import (
	"net/http"

	"github.com/hallmont/identity-core/internal/audit"
	"github.com/hallmont/identity-core/internal/query"
)

// handleListAudit returns a filtered, paginated slice of the audit trail,
// newest first. Admin only; the router enforces the role gate.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	page, err := query.ParsePagination(r.URL.Query(), query.Limits{})
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	filter := audit.Filter{Pagination: page}
	if raw := r.URL.Query().Get("filter"); raw != "" {
		where, err := query.ParseFilter([]byte(raw))
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		// Compile here so an unknown field answers 400 instead of 500.
		if _, _, err := where.Compile(audit.FilterColumns()); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		filter.Where = where
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit listing failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": result.Entries,
		"page": map[string]int{
			"skip":  result.Page.Skip,
			"limit": result.Page.Limit,
			"total": result.Total,
		},
	})
}
