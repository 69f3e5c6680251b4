package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cbc-interpretation-server/internal/domain"
	"github.com/cbc-interpretation-server/internal/extraction"
	"github.com/cbc-interpretation-server/internal/feedback"
	"github.com/cbc-interpretation-server/internal/narrative"
)

// FingerprintHeader carries the report fingerprint that feedback submissions refer to.
const FingerprintHeader = "X-Report-Fingerprint"

type readingRequest struct {
	Parameter string  `json:"parameter" binding:"required"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
}

type patientRequest struct {
	Age *int   `json:"age"`
	Sex string `json:"sex"`
}

type interpretRequest struct {
	Readings []readingRequest `json:"readings" binding:"required,dive"`
	Patient  *patientRequest  `json:"patient"`
}

type textRequest struct {
	Text    string          `json:"text" binding:"required"`
	Patient *patientRequest `json:"patient"`
}

type feedbackRequest struct {
	Fingerprint         string  `json:"fingerprint" binding:"required"`
	Diagnosis           string  `json:"diagnosis" binding:"required"`
	SuggestedConfidence float64 `json:"suggested_confidence"`
	Verdict             string  `json:"verdict" binding:"required"`
	Notes               string  `json:"notes"`
}

func (p *patientRequest) toDomain() (*domain.PatientContext, error) {
	if p == nil {
		return nil, nil
	}
	if p.Age == nil {
		return nil, domain.NewValidationError("patient.age", "age is required when a patient context is given", nil)
	}
	if *p.Age < 0 || *p.Age > 130 {
		return nil, domain.NewValidationError("patient.age", "age must be between 0 and 130", *p.Age)
	}
	sex, err := domain.ParseSex(p.Sex)
	if err != nil {
		return nil, domain.NewValidationError("patient.sex", err.Error(), p.Sex)
	}
	return &domain.PatientContext{Age: *p.Age, Sex: sex}, nil
}

func (r *interpretRequest) toDomain() (domain.InterpretationRequest, error) {
	patient, err := r.Patient.toDomain()
	if err != nil {
		return domain.InterpretationRequest{}, err
	}
	readings := make([]domain.RawReading, len(r.Readings))
	for i, rd := range r.Readings {
		readings[i] = domain.RawReading{Parameter: domain.Parameter(rd.Parameter), Value: rd.Value, Unit: rd.Unit}
	}
	return domain.InterpretationRequest{Readings: readings, Patient: patient}, nil
}

// respondReport writes a report with 200 when finalized and 422 otherwise.
func respondReport(c *gin.Context, report *domain.Report) {
	c.Header(FingerprintHeader, report.Fingerprint())
	if report.IsFinalized() {
		c.JSON(http.StatusOK, report)
		return
	}
	c.JSON(http.StatusUnprocessableEntity, report)
}

func (s *Server) bindInterpretRequest(c *gin.Context) (domain.InterpretationRequest, bool) {
	var body interpretRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "invalid request body", err.Error())
		return domain.InterpretationRequest{}, false
	}
	req, err := body.toDomain()
	if err != nil {
		abort(c, http.StatusBadRequest, domain.ErrCodeValidation, "invalid patient context", err.Error())
		return domain.InterpretationRequest{}, false
	}
	return req, true
}

func (s *Server) handleInterpret(c *gin.Context) {
	req, ok := s.bindInterpretRequest(c)
	if !ok {
		return
	}
	respondReport(c, s.interpreter.Interpret(req))
}

func (s *Server) handleInterpretText(c *gin.Context) {
	if s.extractor == nil {
		abort(c, http.StatusServiceUnavailable, domain.ErrCodeServiceUnhealthy, "text extraction is not configured", "")
		return
	}

	var body textRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "invalid request body", err.Error())
		return
	}
	patient, err := body.Patient.toDomain()
	if err != nil {
		abort(c, http.StatusBadRequest, domain.ErrCodeValidation, "invalid patient context", err.Error())
		return
	}

	readings, err := s.extractor.Extract(c.Request.Context(), body.Text)
	if errors.Is(err, extraction.ErrNoReadings) {
		abort(c, http.StatusUnprocessableEntity, domain.ErrCodeExtraction, "no CBC readings found in text", "")
		return
	}
	if err != nil {
		abort(c, http.StatusInternalServerError, domain.ErrCodeExtraction, "failed to extract readings", err.Error())
		return
	}

	respondReport(c, s.interpreter.Interpret(domain.InterpretationRequest{Readings: readings, Patient: patient}))
}

func (s *Server) handleReferenceRanges(c *gin.Context) {
	table := s.interpreter.Table()
	c.JSON(http.StatusOK, gin.H{
		"version":   table.Version(),
		"intervals": table.Intervals(),
	})
}

func (s *Server) handleRules(c *gin.Context) {
	rules := s.interpreter.Rules()
	c.JSON(http.StatusOK, gin.H{
		"version": rules.Version(),
		"rules":   rules.Rules(),
	})
}

func (s *Server) handleNarrative(c *gin.Context) {
	if s.narrator == nil {
		abort(c, http.StatusServiceUnavailable, domain.ErrCodeNarrativeOff, "narrative generation is disabled", "")
		return
	}
	req, ok := s.bindInterpretRequest(c)
	if !ok {
		return
	}

	report := s.interpreter.Interpret(req)
	c.Header(FingerprintHeader, report.Fingerprint())
	if !report.IsFinalized() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":   domain.ErrCodeNotFinalized,
			"report": report,
		})
		return
	}

	text, err := s.narrator.GenerateNarrative(c.Request.Context(), report)
	switch {
	case errors.Is(err, narrative.ErrUnavailable):
		abort(c, http.StatusServiceUnavailable, domain.ErrCodeNarrative, "narrative endpoint temporarily unavailable", "")
		return
	case err != nil:
		abort(c, http.StatusBadGateway, domain.ErrCodeNarrative, "failed to generate narrative", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"report":    report,
		"narrative": text,
	})
}

func (s *Server) handleSubmitFeedback(c *gin.Context) {
	if s.feedbackStore == nil {
		abort(c, http.StatusServiceUnavailable, domain.ErrCodeFeedback, "feedback storage is disabled", "")
		return
	}

	var body feedbackRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "invalid request body", err.Error())
		return
	}

	fb := &feedback.Feedback{
		Fingerprint:         body.Fingerprint,
		Diagnosis:           body.Diagnosis,
		SuggestedConfidence: body.SuggestedConfidence,
		Verdict:             feedback.Verdict(body.Verdict),
		Notes:               body.Notes,
	}
	err := s.feedbackStore.Save(c.Request.Context(), fb)
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		abort(c, http.StatusBadRequest, domain.ErrCodeValidation, verr.Message, verr.Field)
		return
	case err != nil:
		s.logger.WithError(err).Error("Failed to save feedback")
		abort(c, http.StatusInternalServerError, domain.ErrCodeFeedback, "failed to save feedback", "")
		return
	}

	c.JSON(http.StatusCreated, fb)
}

func (s *Server) handleListFeedback(c *gin.Context) {
	if s.feedbackStore == nil {
		abort(c, http.StatusServiceUnavailable, domain.ErrCodeFeedback, "feedback storage is disabled", "")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		abort(c, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "limit must be between 1 and 500", c.Query("limit"))
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		abort(c, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "offset must not be negative", c.Query("offset"))
		return
	}

	ctx := c.Request.Context()
	items, err := s.feedbackStore.List(ctx, limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list feedback")
		abort(c, http.StatusInternalServerError, domain.ErrCodeFeedback, "failed to list feedback", "")
		return
	}
	total, err := s.feedbackStore.Count(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to count feedback")
		abort(c, http.StatusInternalServerError, domain.ErrCodeFeedback, "failed to count feedback", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleFeedbackStats(c *gin.Context) {
	if s.feedbackStore == nil {
		abort(c, http.StatusServiceUnavailable, domain.ErrCodeFeedback, "feedback storage is disabled", "")
		return
	}

	stats, err := s.feedbackStore.Stats(c.Request.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to aggregate feedback")
		abort(c, http.StatusInternalServerError, domain.ErrCodeFeedback, "failed to aggregate feedback", "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"diagnoses": stats})
}
