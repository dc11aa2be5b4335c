package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"petshop_backend/internal/autosales/scorer"
	"petshop_backend/internal/autosales/sequence"
	"petshop_backend/internal/autosales/transport"
	leadsrepo "petshop_backend/internal/leads/repository"
	"petshop_backend/platform/httpkit"
	"petshop_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid sequence ID"
	msgInvalidLeadID    = "invalid lead ID"
)

// Handler handles HTTP requests for the automated outreach engine.
type Handler struct {
	sequences *sequence.Service
	profiles  *scorer.Service
	leads     *leadsrepo.Repository
	val       *validator.Validator
}

func New(sequences *sequence.Service, profiles *scorer.Service, leads *leadsrepo.Repository, val *validator.Validator) *Handler {
	return &Handler{sequences: sequences, profiles: profiles, leads: leads, val: val}
}

// CreateSequence starts (or restarts) the outreach sequence for a lead.
// POST /api/v1/autosales/sequences
func (h *Handler) CreateSequence(c *gin.Context) {
	var req transport.CreateSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	seq, _, err := h.sequences.CreateSequence(c.Request.Context(), req.LeadID, req.BypassHuman)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.FromSequence(seq))
}

// ExecuteStep runs the pending step of a sequence right now. A sequence that
// is not in the scheduled state is left untouched.
// POST /api/v1/autosales/sequences/:id/execute
func (h *Handler) ExecuteStep(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	result, err := h.sequences.ExecuteStep(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromStepResult(result))
}

// MarkHuman hands the sequence over to a person and stops automation.
// POST /api/v1/autosales/sequences/:id/handoff
func (h *Handler) MarkHuman(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	if err := h.sequences.MarkHuman(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}

	seq, err := h.sequences.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromSequence(seq))
}

// ProcessQueue sweeps due sequences once, bounded by the limit query param.
// POST /api/v1/autosales/queue/process
func (h *Handler) ProcessQueue(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			httpkit.Error(c, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		limit = parsed
	}

	processed, err := h.sequences.ProcessDueQueue(c.Request.Context(), limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ProcessQueueResponse{Processed: processed})
}

// GetByID retrieves a sequence with its strategy and metrics.
// GET /api/v1/autosales/sequences/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	seq, err := h.sequences.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromSequence(seq))
}

// GetByLead retrieves the sequence attached to a lead.
// GET /api/v1/autosales/leads/:leadId/sequence
func (h *Handler) GetByLead(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return
	}

	seq, err := h.sequences.GetByLeadID(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromSequence(seq))
}

// ListLogs retrieves all messages sent by a sequence, oldest first.
// GET /api/v1/autosales/sequences/:id/logs
func (h *Handler) ListLogs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	logs, err := h.sequences.Logs(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.LogResponse, 0, len(logs))
	for _, log := range logs {
		out = append(out, transport.FromLog(log))
	}
	httpkit.OK(c, out)
}

// RecordConversion credits a sale to an outreach step and completes the
// sequence.
// POST /api/v1/autosales/conversions
func (h *Handler) RecordConversion(c *gin.Context) {
	var req transport.RecordConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	seq, err := h.sequences.RecordConversion(c.Request.Context(), req.LeadID, req.StepType)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromSequence(seq))
}

// GetProfile retrieves the scored profile for a lead, computing it if needed.
// GET /api/v1/autosales/leads/:leadId/profile
func (h *Handler) GetProfile(c *gin.Context) {
	h.profileFor(c, false)
}

// Reanalyze recomputes the lead profile, ignoring cached results.
// POST /api/v1/autosales/leads/:leadId/reanalyze
func (h *Handler) Reanalyze(c *gin.Context) {
	h.profileFor(c, true)
}

func (h *Handler) profileFor(c *gin.Context, force bool) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return
	}

	lead, err := h.leads.GetByID(c.Request.Context(), leadID)
	if err != nil {
		if errors.Is(err, leadsrepo.ErrNotFound) {
			httpkit.Error(c, http.StatusNotFound, "lead not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	var profile scorer.Profile
	if force {
		profile, err = h.profiles.Reanalyze(c.Request.Context(), lead)
	} else {
		profile, err = h.profiles.ProfileFor(c.Request.Context(), lead)
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromProfile(profile))
}
