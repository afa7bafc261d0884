package api

import (
	"net/http"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// summaryHandler serves the admin dashboard. The actor counts are admin only,
// so they are read first and decide access for the whole response.
func summaryHandler(actors ActorService, scheduling SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}

		counts, err := actors.Stats(r.Context(), actor)
		if err != nil {
			handleError(w, r, err)
			return
		}
		ov, err := scheduling.Overview(r.Context(), actor, time.Now())
		if err != nil {
			handleError(w, r, err)
			return
		}

		recent := ov.Recent
		if recent == nil {
			recent = []appointment.Appointment{}
		}
		writeJSON(w, http.StatusOK, SummaryResponse{
			Doctors:            counts.Doctors,
			Patients:           counts.Patients,
			PendingApprovals:   counts.PendingApprovals,
			TodayAppointments:  ov.Today,
			RecentAppointments: recent,
		})
	}
}
