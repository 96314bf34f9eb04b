package api

import (
	"bytes"
	"net/http"
	"strconv"

	"saunafreunde/internal/models"
	"saunafreunde/shared/audit"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleExport streams the monthly Excel report.
// GET /api/v1/admin/export?month=YYYY-MM
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.svc.Audit == nil {
		writeError(w, http.StatusNotFound, "export is not enabled")
		return
	}
	if _, err := s.svc.Access.RequirePermission(r.Context(), currentUser(r), models.PermissionExport); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	month, err := audit.ParseMonth(r.URL.Query().Get("month"), s.opts.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	var buf bytes.Buffer
	if err := s.svc.Audit.ExportMonth(r.Context(), month, &buf); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+audit.GenerateFilename(month)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
