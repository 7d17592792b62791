package api

import (
	models "CostPull/internal/domain/models"
	"CostPull/internal/usecase"
	xhttp "CostPull/pkg/http"
	xlogger "CostPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CostsEchoHandler exposes the query boundary over Echo.
type CostsEchoHandler struct {
	logger  *xlogger.Logger
	queries *usecase.QueryService
}

func NewCostsEchoHandler(logger *xlogger.Logger, queries *usecase.QueryService) *CostsEchoHandler {
	return &CostsEchoHandler{logger: logger, queries: queries}
}

func (h *CostsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/costs/summary", h.Summary)
	g.GET("/forecast", h.Forecast)
	g.GET("/anomalies", h.Anomalies)
	g.GET("/recommendations", h.Recommendations)
	g.GET("/health/pipeline", h.PipelineHealth)
}

func (h *CostsEchoHandler) Summary(c echo.Context) error {
	req := &models.CostSummaryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.queries.GetCostSummary(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("cost summary query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CostsEchoHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.queries.GetForecast(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("forecast query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CostsEchoHandler) Anomalies(c echo.Context) error {
	req := &models.AnomaliesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.queries.GetAnomalies(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("anomalies query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CostsEchoHandler) Recommendations(c echo.Context) error {
	res, err := h.queries.GetRecommendations(c.Request().Context())
	if err != nil {
		h.logger.Error("recommendations query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CostsEchoHandler) PipelineHealth(c echo.Context) error {
	res, err := h.queries.GetPipelineHealth(c.Request().Context())
	if err != nil {
		h.logger.Error("pipeline health query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}
