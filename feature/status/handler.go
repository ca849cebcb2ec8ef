package status

import (
	"bufio"
	"errors"
	"strconv"
	"time"

	"payout-reconciler/core/logger"
	"payout-reconciler/core/reconcile"
	"payout-reconciler/core/store"
	"payout-reconciler/core/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for reconciliation status.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the status routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	tx := app.Group("/transactions")
	tx.Get("/", h.HandleList)
	tx.Get("/summary", h.HandleSummary)
	tx.Get("/export", h.HandleExport)
	tx.Get("/:id", h.HandleGet)
	tx.Post("/:id/requeue", h.HandleRequeue)
	tx.Post("/:id/correct", h.HandleCorrect)

	runs := app.Group("/runs")
	runs.Post("/", h.HandleTrigger)
	runs.Get("/last", h.HandleLastRun)

	exports := app.Group("/exports")
	exports.Get("/", h.HandleListExports)
	exports.Post("/", h.HandleUpload)
}

// HandleList lists transactions.
// @Summary List Transactions
// @Description Lists reconciliation transactions ordered by payout id. Use next_cursor as cursor to fetch the following page.
// @Tags transactions
// @Produce json
// @Param status query string false "PENDING, MATCHED, VARIANCE or FAILED"
// @Param from query string false "Payout date lower bound (inclusive, YYYY-MM-DD)"
// @Param to query string false "Payout date upper bound (exclusive, YYYY-MM-DD)"
// @Param cursor query string false "Keyset cursor"
// @Param limit query int false "Page size (max 1000)"
// @Success 200 {object} store.Page
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /transactions [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	f, err := parseFilter(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	page, err := h.service.List(c.Context(), f)
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Failed to list transactions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(page)
}

// HandleSummary returns the audit summary.
// @Summary Reconciliation Summary
// @Description Counts and variance totals per status, plus the last run.
// @Tags transactions
// @Produce json
// @Success 200 {object} SummaryReport
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /transactions/summary [get]
func (h *Handler) HandleSummary(c *fiber.Ctx) error {
	report, err := h.service.Summary(c.Context())
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Failed to build summary", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

// HandleExport streams transactions as CSV.
// @Summary Export Transactions
// @Description Streams every transaction matching the filters as CSV.
// @Tags transactions
// @Produce text/csv
// @Param status query string false "PENDING, MATCHED, VARIANCE or FAILED"
// @Param from query string false "Payout date lower bound (inclusive, YYYY-MM-DD)"
// @Param to query string false "Payout date upper bound (exclusive, YYYY-MM-DD)"
// @Success 200 {string} string "CSV"
// @Failure 400 {object} map[string]string "Bad Request"
// @Router /transactions/export [get]
func (h *Handler) HandleExport(c *fiber.Ctx) error {
	f, err := parseFilter(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	f.After = ""

	l := logger.WithRayID(h.service.logger, c)
	name := "reconciliation-" + time.Now().UTC().Format("20060102T150405Z") + ".csv"
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		rows, err := h.service.WriteCSV(w, f)
		if err != nil {
			// Headers are gone already; the client sees a truncated file.
			l.Error("Export stream failed", zap.Int("rows", rows), zap.Error(err))
			return
		}
		if err := w.Flush(); err != nil {
			l.Warn("Export flush failed", zap.Error(err))
			return
		}
		l.Info("Export streamed", zap.Int("rows", rows))
	})
	return nil
}

// HandleGet returns one transaction.
// @Summary Get Transaction
// @Tags transactions
// @Produce json
// @Param id path string true "Payout ID"
// @Success 200 {object} reconcile.Transaction
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /transactions/{id} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	tx, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(tx)
}

// HandleRequeue moves a FAILED transaction back to PENDING.
// @Summary Requeue Transaction
// @Description Returns a FAILED transaction to PENDING so the next run retries it.
// @Tags transactions
// @Produce json
// @Param id path string true "Payout ID"
// @Success 200 {object} reconcile.Transaction
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 409 {object} map[string]string "Not FAILED"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /transactions/{id}/requeue [post]
func (h *Handler) HandleRequeue(c *fiber.Ctx) error {
	id := c.Params("id")
	tx, err := h.service.Requeue(c.Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	logger.WithRayID(h.service.logger, c).Info("Transaction requeued", zap.String("payout_id", id))
	return c.JSON(tx)
}

// HandleCorrect posts the correction of one VARIANCE transaction.
// @Summary Correct Transaction
// @Description Posts the ledger correction of a VARIANCE transaction immediately. The result is MATCHED when the ledger accepts the entry and FAILED when it rejects it.
// @Tags transactions
// @Produce json
// @Param id path string true "Payout ID"
// @Success 200 {object} reconcile.Transaction
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 409 {object} map[string]string "Not VARIANCE or run in progress"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /transactions/{id}/correct [post]
func (h *Handler) HandleCorrect(c *fiber.Ctx) error {
	id := c.Params("id")
	tx, err := h.service.Correct(c.Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	logger.WithRayID(h.service.logger, c).Info("Manual correction processed",
		zap.String("payout_id", id), zap.String("status", string(tx.Status)))
	return c.JSON(tx)
}

// HandleTrigger starts a run.
// @Summary Trigger Run
// @Description Requests a reconciliation run. The run starts asynchronously.
// @Tags runs
// @Produce json
// @Success 202 {object} map[string]string "Accepted"
// @Failure 409 {object} map[string]string "Run in progress"
// @Router /runs [post]
func (h *Handler) HandleTrigger(c *fiber.Ctx) error {
	if err := h.service.Trigger(); err != nil {
		if errors.Is(err, reconcile.ErrRunInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	logger.WithRayID(h.service.logger, c).Info("Reconciliation run requested")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

// HandleLastRun returns the summary of the most recent run.
// @Summary Last Run
// @Tags runs
// @Produce json
// @Success 200 {object} reconcile.RunSummary
// @Failure 404 {object} map[string]string "No run yet"
// @Router /runs/last [get]
func (h *Handler) HandleLastRun(c *fiber.Ctx) error {
	last := h.service.LastRun()
	if last == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no run has completed yet"})
	}
	return c.JSON(last)
}

// HandleListExports lists uploaded exports.
// @Summary List Exports
// @Tags exports
// @Produce json
// @Success 200 {array} export.Object
// @Failure 503 {object} map[string]string "Exports disabled"
// @Router /exports [get]
func (h *Handler) HandleListExports(c *fiber.Ctx) error {
	objects, err := h.service.Exports(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(objects)
}

// HandleUpload uploads a CSV export to the bucket.
// @Summary Upload Export
// @Tags exports
// @Produce json
// @Param status query string false "PENDING, MATCHED, VARIANCE or FAILED"
// @Success 201 {object} export.Result
// @Failure 503 {object} map[string]string "Exports disabled"
// @Router /exports [post]
func (h *Handler) HandleUpload(c *fiber.Ctx) error {
	f, err := parseFilter(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	f.After = ""

	res, err := h.service.Upload(c.Context(), f)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, store.ErrNotRequeueable),
		errors.Is(err, reconcile.ErrNotCorrectable),
		errors.Is(err, reconcile.ErrRunInProgress):
		status = fiber.StatusConflict
	case errors.Is(err, ErrExportsDisabled):
		status = fiber.StatusServiceUnavailable
	default:
		logger.WithRayID(h.service.logger, c).Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func parseFilter(c *fiber.Ctx) (store.Filter, error) {
	var f store.Filter
	if raw := c.Query("status"); raw != "" {
		s, err := reconcile.ParseStatus(raw)
		if err != nil {
			return f, err
		}
		f.Status = s
	}
	if raw := c.Query("from"); raw != "" {
		t, err := utils.ToTime(raw)
		if err != nil {
			return f, errors.New("invalid from date")
		}
		f.PayoutFrom = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := utils.ToTime(raw)
		if err != nil {
			return f, errors.New("invalid to date")
		}
		f.PayoutTo = t
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = n
	}
	f.After = c.Query("cursor")
	return f, nil
}
