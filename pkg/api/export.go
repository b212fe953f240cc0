package api

import (
	"encoding/csv"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/beacon/pkg/analytics"
)

var sessionCSVHeader = []string{"session_id", "timestamp", "success", "os", "duration_seconds"}

// writeSessionsCSV renders recent sessions as CSV
func writeSessionsCSV(out io.Writer, sessions []analytics.RecentSession) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(sessionCSVHeader); err != nil {
		return err
	}
	for _, s := range sessions {
		record := []string{
			s.SessionID,
			s.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatBool(s.Success),
			s.OS,
			strconv.FormatFloat(s.DurationSeconds, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// exportSessions handles GET /api/telemetry/export/sessions.csv
func (h *TelemetryHandlers) exportSessions(w http.ResponseWriter, r *http.Request) {
	q, ok := h.recentQuery(w, r)
	if !ok {
		return
	}

	sessions, err := h.service.GetRecentSessions(r.Context(), q)
	if err != nil {
		h.writeError(w, r, "export sessions", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="sessions.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := writeSessionsCSV(w, sessions); err != nil {
		h.requestLogger(r).WithError(err).Warn("Failed to write CSV export")
	}
}
