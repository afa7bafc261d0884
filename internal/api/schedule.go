package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

func listWindowsHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		doctorID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		windows, err := svc.ListWindows(r.Context(), actor, doctorID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		resp := make([]WindowResponse, 0, len(windows))
		for _, win := range windows {
			resp = append(resp, windowResponse(win))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func addWindowHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		doctorID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req WindowRequest
		if !decode(w, r, &req) {
			return
		}
		start, end, ok := clockRange(w, req.StartTime, req.EndTime)
		if !ok {
			return
		}

		win, err := svc.AddWindow(r.Context(), actor, availability.Window{
			DoctorID:    doctorID,
			Weekday:     time.Weekday(req.Weekday),
			StartMinute: start,
			EndMinute:   end,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, windowResponse(*win))
	}
}

func removeWindowHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		doctorID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		windowID, ok := pathUUID(w, r, "windowID")
		if !ok {
			return
		}

		if err := svc.RemoveWindow(r.Context(), actor, doctorID, windowID); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listExceptionsHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		doctorID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		from, to, ok := dateRange(w, r)
		if !ok {
			return
		}

		exceptions, err := svc.ListExceptions(r.Context(), actor, doctorID, from, to)
		if err != nil {
			handleError(w, r, err)
			return
		}
		resp := make([]ExceptionResponse, 0, len(exceptions))
		for _, e := range exceptions {
			resp = append(resp, exceptionResponse(e))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func addExceptionHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		doctorID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req ExceptionRequest
		if !decode(w, r, &req) {
			return
		}
		start, end, ok := clockRange(w, req.StartTime, req.EndTime)
		if !ok {
			return
		}

		e, err := svc.AddException(r.Context(), actor, availability.Exception{
			DoctorID:    doctorID,
			Date:        req.Date,
			Kind:        availability.ExceptionKind(req.Kind),
			StartMinute: start,
			EndMinute:   end,
			Reason:      req.Reason,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, exceptionResponse(*e))
	}
}

func removeExceptionHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		doctorID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		exceptionID, ok := pathUUID(w, r, "exceptionID")
		if !ok {
			return
		}

		if err := svc.RemoveException(r.Context(), actor, doctorID, exceptionID); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func openSlotsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		doctorID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		from, to, ok := dateRange(w, r)
		if !ok {
			return
		}

		seq, err := svc.OpenSlots(r.Context(), actor, doctorID, from, to)
		if err != nil {
			handleError(w, r, err)
			return
		}
		slots := slices.Collect(seq)
		if slots == nil {
			slots = []availability.Slot{}
		}
		writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: doctorID, From: from, To: to, Slots: slots})
	}
}

func patientsOfHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		doctorID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		patients, err := svc.PatientsOf(r.Context(), actor, doctorID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, patients)
	}
}

func clockRange(w http.ResponseWriter, startStr, endStr string) (int, int, bool) {
	start, err := parseClock(startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
		return 0, 0, false
	}
	end, err := parseClock(endStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_time", err.Error())
		return 0, 0, false
	}
	return start, end, true
}

// dateRange reads the required from and to query dates (YYYY-MM-DD).
func dateRange(w http.ResponseWriter, r *http.Request) (availability.Date, availability.Date, bool) {
	from, err := availability.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
		return availability.Date{}, availability.Date{}, false
	}
	to, err := availability.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
		return availability.Date{}, availability.Date{}, false
	}
	return from, to, true
}
