package daemon

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"qline/internal/api"
	"qline/internal/jobs"
)

func (d *Daemon) handleHealthz(w http.ResponseWriter, r *http.Request) {
	d.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := d.Status()
	d.writeJSON(w, http.StatusOK, map[string]any{
		"running":     status.Running,
		"pid":         status.PID,
		"dbPath":      status.DBPath,
		"lockPath":    status.LockFilePath,
		"bindAddress": status.BindAddress,
	})
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := d.service.Health(r.Context())
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, health)
}

func (d *Daemon) handleScan(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		d.writeError(w, http.StatusBadRequest, "code query parameter is required")
		return
	}
	view, container, err := d.service.Resolve(r.Context(), code)
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, map[string]any{
		"job":         view,
		"containerId": container,
	})
}

func (d *Daemon) handleIntake(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor == "" {
		d.writeError(w, http.StatusBadRequest, "X-Qline-Actor header is required")
		return
	}
	var req api.IntakeRequest
	if err := decodeBody(r, &req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Actor = actor
	view, err := d.service.Intake(r.Context(), req)
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.collector.JobCreated()
	d.writeJSON(w, http.StatusCreated, api.JobResponse{Job: view})
}

func (d *Daemon) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var states []jobs.State
	for _, raw := range r.URL.Query()["state"] {
		state, ok := jobs.ParseState(raw)
		if !ok {
			d.writeError(w, http.StatusBadRequest, "unknown state "+strconv.Quote(raw))
			return
		}
		states = append(states, state)
	}
	views, err := d.service.List(r.Context(), states...)
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: views})
}

func (d *Daemon) handleGetJob(w http.ResponseWriter, r *http.Request) {
	view, err := d.service.Get(r.Context(), chi.URLParam(r, "qlid"))
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, api.JobResponse{Job: view})
}

func (d *Daemon) handleAdvance(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor == "" {
		d.writeError(w, http.StatusBadRequest, "X-Qline-Actor header is required")
		return
	}
	var req api.AdvanceRequest
	if err := decodeBody(r, &req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Actor = actor
	view, err := d.service.Advance(r.Context(), chi.URLParam(r, "qlid"), req)
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.collector.TransitionApplied(req.Action)
	d.writeJSON(w, http.StatusOK, api.JobResponse{Job: view})
}

func (d *Daemon) handleRecordStep(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor == "" {
		d.writeError(w, http.StatusBadRequest, "X-Qline-Actor header is required")
		return
	}
	var req api.StepRequest
	if err := decodeBody(r, &req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Actor = actor
	view, err := d.service.RecordStep(r.Context(), chi.URLParam(r, "qlid"), req)
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, view)
}

func (d *Daemon) handleHistory(w http.ResponseWriter, r *http.Request) {
	views, err := d.service.History(r.Context(), chi.URLParam(r, "qlid"))
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, map[string]any{"transitions": views})
}

func (d *Daemon) handleReport(w http.ResponseWriter, r *http.Request) {
	bundle, err := d.service.Report(r.Context(), chi.URLParam(r, "qlid"))
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, bundle)
}

func (d *Daemon) handleOpenDiagnosis(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor == "" {
		d.writeError(w, http.StatusBadRequest, "X-Qline-Actor header is required")
		return
	}
	var req api.DiagnosisRequest
	if err := decodeBody(r, &req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Actor = actor
	view, err := d.service.OpenDiagnosis(r.Context(), chi.URLParam(r, "qlid"), req)
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusCreated, view)
}

func (d *Daemon) handleListDiagnoses(w http.ResponseWriter, r *http.Request) {
	views, err := d.service.Diagnoses(r.Context(), chi.URLParam(r, "qlid"))
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, map[string]any{"diagnoses": views})
}

func (d *Daemon) handleUpdateRepair(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor == "" {
		d.writeError(w, http.StatusBadRequest, "X-Qline-Actor header is required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid diagnosis id")
		return
	}
	var req api.RepairUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Actor = actor
	view, err := d.service.UpdateRepair(r.Context(), id, req)
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, view)
}

func (d *Daemon) handleIssueCertification(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor == "" {
		d.writeError(w, http.StatusBadRequest, "X-Qline-Actor header is required")
		return
	}
	var req api.CertifyRequest
	if err := decodeBody(r, &req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Actor = actor
	resp, err := d.service.IssueCertification(r.Context(), chi.URLParam(r, "qlid"), req)
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
		d.collector.CertificationIssued()
	}
	d.writeJSON(w, status, resp)
}

func (d *Daemon) handleListCertifications(w http.ResponseWriter, r *http.Request) {
	views, err := d.service.Certifications(r.Context(), chi.URLParam(r, "qlid"))
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, map[string]any{"certifications": views})
}

func (d *Daemon) handleGetCertification(w http.ResponseWriter, r *http.Request) {
	view, err := d.service.Certification(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, view)
}

func (d *Daemon) handleRevokeCertification(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor == "" {
		d.writeError(w, http.StatusBadRequest, "X-Qline-Actor header is required")
		return
	}
	var req api.RevokeRequest
	if err := decodeBody(r, &req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Actor = actor
	view, err := d.service.RevokeCertification(r.Context(), chi.URLParam(r, "serial"), req)
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.collector.CertificationRevoked()
	d.writeJSON(w, http.StatusOK, view)
}
