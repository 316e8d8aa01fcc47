package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/rental/backend/internal/application/billing"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/domain/shared"
	"github.com/rental/backend/internal/infrastructure/scheduler"
	"github.com/rental/backend/internal/interfaces/http/dto"
	"github.com/rental/backend/internal/interfaces/http/router"
)

// BillingService is the part of the billing application service the HTTP
// layer calls
type BillingService interface {
	GenerateBill(ctx context.Context, req billingapp.GenerateBillRequest) (*billingapp.BillResponse, error)
	RecordPayment(ctx context.Context, id uuid.UUID, req billingapp.RecordPaymentRequest) (*billingapp.PaymentResult, error)
	RecordReminder(ctx context.Context, id uuid.UUID) (*billingapp.BillResponse, error)
	UpdateReadings(ctx context.Context, id uuid.UUID, req billingapp.UpdateReadingsRequest) (*billingapp.BillResponse, error)
	UpdateCharges(ctx context.Context, id uuid.UUID, req billingapp.UpdateChargesRequest) (*billingapp.BillResponse, error)
	ApplyDiscount(ctx context.Context, id uuid.UUID, req billingapp.ApplyDiscountRequest) (*billingapp.BillResponse, error)
	AdjustPreviousBalance(ctx context.Context, id uuid.UUID, req billingapp.AdjustPreviousBalanceRequest) (*billingapp.BillResponse, error)
	Activate(ctx context.Context, id uuid.UUID) (*billingapp.BillResponse, error)
	Cancel(ctx context.Context, id uuid.UUID, req billingapp.CancelBillRequest) (*billingapp.BillResponse, error)
	GetBill(ctx context.Context, id uuid.UUID) (*billingapp.BillResponse, error)
	GetBillByPeriod(ctx context.Context, accommodationID uuid.UUID, year, month int) (*billingapp.BillResponse, error)
	ListBills(ctx context.Context, req billingapp.ListBillsRequest) (shared.Paginated[billingapp.BillResponse], error)
	GetPeriodSummary(ctx context.Context, year, month int) (*billingapp.PeriodSummaryResponse, error)
	ExportPeriod(ctx context.Context, year, month int) ([]byte, string, error)
	ExportContentType() string
}

// JobRunner triggers and reports the scheduled billing jobs
type JobRunner interface {
	TriggerGeneration() (scheduler.JobRun, error)
	TriggerOverdueSweep() (scheduler.JobRun, error)
	Status() []scheduler.JobStatus
}

// BillingHandler handles billing record API endpoints
type BillingHandler struct {
	BaseHandler
	service BillingService
	jobs    JobRunner
}

// NewBillingHandler creates a new BillingHandler. jobs may be nil when the
// scheduler is disabled; the job routes are then not registered.
func NewBillingHandler(service BillingService, jobs JobRunner) *BillingHandler {
	return &BillingHandler{
		service: service,
		jobs:    jobs,
	}
}

// Routes builds the billing route group
func (h *BillingHandler) Routes() *router.Group {
	g := router.NewGroup("/billing")
	g.POST("/records", h.Generate)
	g.GET("/records", h.List)
	g.GET("/records/export", h.Export)
	g.GET("/records/:id", h.Get)
	g.PUT("/records/:id/readings", h.UpdateReadings)
	g.PUT("/records/:id/charges", h.UpdateCharges)
	g.POST("/records/:id/discount", h.ApplyDiscount)
	g.PUT("/records/:id/previous-balance", h.AdjustPreviousBalance)
	g.POST("/records/:id/activate", h.Activate)
	g.POST("/records/:id/payments", h.RecordPayment)
	g.POST("/records/:id/reminders", h.RecordReminder)
	g.POST("/records/:id/cancel", h.Cancel)
	g.GET("/accommodations/:id/records/:period", h.GetByPeriod)
	g.GET("/summary", h.Summary)

	if h.jobs != nil {
		jobs := g.Group("/jobs")
		jobs.GET("", h.JobStatus)
		jobs.POST("/generation", h.RunGeneration)
		jobs.POST("/overdue-sweep", h.RunOverdueSweep)
	}
	return g
}

// Mount implements router.Mounter
func (h *BillingHandler) Mount(parent gin.IRouter) {
	h.Routes().Mount(parent)
}

// Generate godoc
// @ID           generateBill
// @Summary      Generate a bill
// @Description  Creates the bill of one accommodation for one billing period
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body billingapp.GenerateBillRequest true "Bill generation request"
// @Success      201 {object} Envelope[billingapp.BillResponse]
// @Failure      400 {object} Failure
// @Failure      409 {object} Failure
// @Router       /billing/records [post]
func (h *BillingHandler) Generate(c *gin.Context) {
	var req billingapp.GenerateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	req.IsAutoGenerated = false

	bill, err := h.service.GenerateBill(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, bill)
}

// List godoc
// @ID           listBills
// @Summary      List bills
// @Tags         billing
// @Produce      json
// @Param        accommodation_id query string false "Accommodation ID"
// @Param        tenant_id        query string false "Tenant ID"
// @Param        landlord_id      query string false "Landlord ID"
// @Param        period           query string false "Billing period (YYYY-MM)"
// @Param        status           query string false "Bill status"
// @Param        page             query int    false "Page number" default(1)
// @Param        page_size        query int    false "Page size" default(20)
// @Success      200 {object} Envelope[[]billingapp.BillResponse]
// @Failure      400 {object} Failure
// @Router       /billing/records [get]
func (h *BillingHandler) List(c *gin.Context) {
	var req billingapp.ListBillsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	result, err := h.service.ListBills(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Page(c, result.Items, dto.PageMeta(result))
}

// Get godoc
// @ID           getBill
// @Summary      Get a bill by ID
// @Tags         billing
// @Produce      json
// @Param        id path string true "Bill ID"
// @Success      200 {object} Envelope[billingapp.BillResponse]
// @Failure      404 {object} Failure
// @Router       /billing/records/{id} [get]
func (h *BillingHandler) Get(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}

	bill, err := h.service.GetBill(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// GetByPeriod godoc
// @ID           getBillByPeriod
// @Summary      Get the bill of an accommodation for a period
// @Tags         billing
// @Produce      json
// @Param        id     path string true "Accommodation ID"
// @Param        period path string true "Billing period (YYYY-MM)"
// @Success      200 {object} Envelope[billingapp.BillResponse]
// @Failure      400 {object} Failure
// @Failure      404 {object} Failure
// @Router       /billing/accommodations/{id}/records/{period} [get]
func (h *BillingHandler) GetByPeriod(c *gin.Context) {
	accommodationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid accommodation ID format")
		return
	}
	year, month, err := billing.ParsePeriod(c.Param("period"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	bill, err := h.service.GetBillByPeriod(c.Request.Context(), accommodationID, year, month)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// UpdateReadings godoc
// @ID           updateBillReadings
// @Summary      Replace the meter readings of a bill
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        id      path string                          true "Bill ID"
// @Param        request body billingapp.UpdateReadingsRequest true "Meter readings"
// @Success      200 {object} Envelope[billingapp.BillResponse]
// @Failure      400 {object} Failure
// @Failure      422 {object} Failure
// @Router       /billing/records/{id}/readings [put]
func (h *BillingHandler) UpdateReadings(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}
	var req billingapp.UpdateReadingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	bill, err := h.service.UpdateReadings(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// UpdateCharges godoc
// @ID           updateBillCharges
// @Summary      Replace the rent and flat fees of a bill
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        id      path string                         true "Bill ID"
// @Param        request body billingapp.UpdateChargesRequest true "Charges"
// @Success      200 {object} Envelope[billingapp.BillResponse]
// @Failure      400 {object} Failure
// @Failure      422 {object} Failure
// @Router       /billing/records/{id}/charges [put]
func (h *BillingHandler) UpdateCharges(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}
	var req billingapp.UpdateChargesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	bill, err := h.service.UpdateCharges(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// ApplyDiscount godoc
// @ID           applyBillDiscount
// @Summary      Set the discount of a bill
// @Description  The discount may not exceed the subtotal
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        id      path string                         true "Bill ID"
// @Param        request body billingapp.ApplyDiscountRequest true "Discount"
// @Success      200 {object} Envelope[billingapp.BillResponse]
// @Failure      400 {object} Failure
// @Failure      404 {object} Failure
// @Failure      422 {object} Failure
// @Router       /billing/records/{id}/discount [post]
func (h *BillingHandler) ApplyDiscount(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}
	var req billingapp.ApplyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	bill, err := h.service.ApplyDiscount(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// AdjustPreviousBalance godoc
// @ID           adjustBillPreviousBalance
// @Summary      Correct the balance carried into a bill
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        id      path string                                 true "Bill ID"
// @Param        request body billingapp.AdjustPreviousBalanceRequest true "Carried balance"
// @Success      200 {object} Envelope[billingapp.BillResponse]
// @Failure      400 {object} Failure
// @Failure      404 {object} Failure
// @Failure      422 {object} Failure
// @Router       /billing/records/{id}/previous-balance [put]
func (h *BillingHandler) AdjustPreviousBalance(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}
	var req billingapp.AdjustPreviousBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	bill, err := h.service.AdjustPreviousBalance(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// Activate godoc
// @ID           activateBill
// @Summary      Issue a draft bill to the tenant
// @Tags         billing
// @Produce      json
// @Param        id path string true "Bill ID"
// @Success      200 {object} Envelope[billingapp.BillResponse]
// @Failure      400 {object} Failure
// @Failure      404 {object} Failure
// @Failure      422 {object} Failure
// @Router       /billing/records/{id}/activate [post]
func (h *BillingHandler) Activate(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}

	bill, err := h.service.Activate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// RecordPayment godoc
// @ID           recordBillPayment
// @Summary      Apply a confirmed payment to a bill
// @Description  A repeated reference returns the bill unchanged with already_processed set
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        id      path string                         true "Bill ID"
// @Param        request body billingapp.RecordPaymentRequest true "Payment"
// @Success      200 {object} Envelope[billingapp.PaymentResult]
// @Failure      400 {object} Failure
// @Failure      404 {object} Failure
// @Failure      422 {object} Failure
// @Router       /billing/records/{id}/payments [post]
func (h *BillingHandler) RecordPayment(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}
	var req billingapp.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	if req.Reference == "" {
		req.Reference = c.GetHeader("Idempotency-Key")
	}

	result, err := h.service.RecordPayment(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RecordReminder godoc
// @ID           recordBillReminder
// @Summary      Count a reminder the notification service delivered
// @Tags         billing
// @Produce      json
// @Param        id path string true "Bill ID"
// @Success      200 {object} Envelope[billingapp.BillResponse]
// @Failure      400 {object} Failure
// @Failure      404 {object} Failure
// @Router       /billing/records/{id}/reminders [post]
func (h *BillingHandler) RecordReminder(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}

	bill, err := h.service.RecordReminder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// Cancel godoc
// @ID           cancelBill
// @Summary      Cancel a bill
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        id      path string                      true "Bill ID"
// @Param        request body billingapp.CancelBillRequest true "Cancellation"
// @Success      200 {object} Envelope[billingapp.BillResponse]
// @Failure      400 {object} Failure
// @Failure      422 {object} Failure
// @Router       /billing/records/{id}/cancel [post]
func (h *BillingHandler) Cancel(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}
	var req billingapp.CancelBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	bill, err := h.service.Cancel(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// PeriodQuery selects one billing period
type PeriodQuery struct {
	Period string `form:"period" binding:"required,billing_period"`
}

// Summary godoc
// @ID           getBillingSummary
// @Summary      Aggregate the bills of a period
// @Tags         billing
// @Produce      json
// @Param        period query string true "Billing period (YYYY-MM)"
// @Success      200 {object} Envelope[billingapp.PeriodSummaryResponse]
// @Failure      400 {object} Failure
// @Router       /billing/summary [get]
func (h *BillingHandler) Summary(c *gin.Context) {
	year, month, ok := h.period(c)
	if !ok {
		return
	}

	summary, err := h.service.GetPeriodSummary(c.Request.Context(), year, month)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// Export godoc
// @ID           exportBills
// @Summary      Download the statement of a period
// @Tags         billing
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        period query string true "Billing period (YYYY-MM)"
// @Success      200 {file} file
// @Failure      400 {object} Failure
// @Failure      422 {object} Failure
// @Router       /billing/records/export [get]
func (h *BillingHandler) Export(c *gin.Context) {
	year, month, ok := h.period(c)
	if !ok {
		return
	}

	data, filename, err := h.service.ExportPeriod(c.Request.Context(), year, month)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, h.service.ExportContentType(), data)
}

// JobStatus godoc
// @ID           listBillingJobs
// @Summary      List the billing jobs with their schedule and last run
// @Tags         billing-jobs
// @Produce      json
// @Success      200 {object} Envelope[[]scheduler.JobStatus]
// @Router       /billing/jobs [get]
func (h *BillingHandler) JobStatus(c *gin.Context) {
	h.Success(c, h.jobs.Status())
}

// RunGeneration godoc
// @ID           runBillGeneration
// @Summary      Run the monthly generation job now
// @Tags         billing-jobs
// @Produce      json
// @Success      200 {object} Envelope[scheduler.JobRun]
// @Failure      409 {object} Failure
// @Failure      503 {object} Failure
// @Router       /billing/jobs/generation [post]
func (h *BillingHandler) RunGeneration(c *gin.Context) {
	h.runJob(c, h.jobs.TriggerGeneration)
}

// RunOverdueSweep godoc
// @ID           runOverdueSweep
// @Summary      Run the overdue sweep now
// @Tags         billing-jobs
// @Produce      json
// @Success      200 {object} Envelope[scheduler.JobRun]
// @Failure      409 {object} Failure
// @Failure      503 {object} Failure
// @Router       /billing/jobs/overdue-sweep [post]
func (h *BillingHandler) RunOverdueSweep(c *gin.Context) {
	h.runJob(c, h.jobs.TriggerOverdueSweep)
}

func (h *BillingHandler) runJob(c *gin.Context, trigger func() (scheduler.JobRun, error)) {
	run, err := trigger()
	switch {
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, err.Error())
	case run.Error == scheduler.ErrJobAlreadyRunning.Error():
		h.Error(c, http.StatusConflict, dto.ErrCodeConflict, run.Error)
	case err != nil:
		h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, run.Error)
	default:
		h.Success(c, run)
	}
}

// billID parses the :id path parameter, answering 400 when it is malformed
func (h *BillingHandler) billID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid bill ID format")
		return uuid.Nil, false
	}
	return id, true
}

// period binds the period query parameter
func (h *BillingHandler) period(c *gin.Context) (int, int, bool) {
	var q PeriodQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return 0, 0, false
	}
	year, month, err := billing.ParsePeriod(q.Period)
	if err != nil {
		h.HandleError(c, err)
		return 0, 0, false
	}
	return year, month, true
}
