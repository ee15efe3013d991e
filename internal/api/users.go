package api

import (
	"net/http"
	"time"

	"github.com/hallmont/identity-core/internal/query"
)

// userFilterColumns lists the columns user list filters may reference.
var userFilterColumns = query.Columns{
	"email": "email",
	"name":  "name",
	"role":  "role",
	"phone": "phone",
}

// deviceResponse is the public projection of a device ledger row.
type deviceResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleMe returns the authenticated caller's own account.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if id.User == nil {
		writeUnauthorized(w, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": publicUser(id.User)})
}

// handleMyDevices lists the caller's device ledger rows. Refresh tokens are
// never included in the response.
func (s *Server) handleMyDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := identityFrom(ctx)
	if id.User == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	devices, err := s.devices.ListByUser(ctx, id.User.ID)
	if err != nil {
		s.logger.Error("device listing failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceResponse{
			ID:        d.ID,
			Code:      d.Code,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// handleListUsers returns a filtered, paginated user listing. Admin only;
// the router enforces the role gate.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := query.ParsePagination(r.URL.Query(), query.Limits{})
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var clause string
	var args []any
	if raw := r.URL.Query().Get("filter"); raw != "" {
		where, err := query.ParseFilter([]byte(raw))
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		clause, args, err = where.Compile(userFilterColumns)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	total, err := s.users.Count(ctx, clause, args)
	if err != nil {
		s.logger.Error("user count failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	users, err := s.users.List(ctx, clause, args, page.Limit, page.Skip)
	if err != nil {
		s.logger.Error("user listing failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, publicUser(&users[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": out,
		"page": map[string]int{
			"skip":  page.Skip,
			"limit": page.Limit,
			"total": total,
		},
	})
}
