package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/records"
)

func assignPatientHandler(svc RecordService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}

		var req AssignmentRequest
		if !decode(w, r, &req) {
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		a, err := svc.AssignPatient(r.Context(), actor, doctorID, patientID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func createRecordHandler(svc RecordService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}

		var req RecordRequest
		if !decode(w, r, &req) {
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		rec, err := svc.CreateMedicalRecord(r.Context(), actor, records.NewRecord{
			PatientID:     patientID,
			AppointmentID: req.AppointmentID,
			Diagnosis:     req.Diagnosis,
			Notes:         req.Notes,
			Symptoms:      req.Symptoms,
			Vitals:        req.Vitals,
			FollowUpDate:  req.FollowUpDate,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func listRecordsHandler(svc RecordService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}

		var f records.ListFilter
		var err error
		if f.PatientID, err = optionalUUID(r.URL.Query().Get("patient_id")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		f.Limit, f.Offset = paging(r)

		recs, err := svc.ListRecordsFor(r.Context(), actor, f)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if recs == nil {
			recs = []records.MedicalRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func getRecordHandler(svc RecordService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		rec, err := svc.GetRecord(r.Context(), actor, id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func addPrescriptionHandler(svc RecordService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		recordID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req PrescriptionRequest
		if !decode(w, r, &req) {
			return
		}

		p, err := svc.AddPrescription(r.Context(), actor, recordID, records.Prescription{
			MedicationName: req.MedicationName,
			Dosage:         req.Dosage,
			Frequency:      req.Frequency,
			Duration:       req.Duration,
			Instructions:   req.Instructions,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}
