package export

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hisync/hisync/internal/platform/wire"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/sync", h.SyncAll)
	api.POST("/medicine-lines/export", h.BatchExport)
	api.POST("/medicine-lines/actual-export", h.BatchActualExport)
	api.GET("/export-documents/:hisId", h.GetDocumentTree)
}

type syncAllRequest struct {
	Document       map[string]interface{}   `json:"document"`
	Slips          []map[string]interface{} `json:"slips,omitempty"`
	Lines          []map[string]interface{} `json:"lines,omitempty"`
	ActorID        string                   `json:"actorId"`
	WorkingStateID *string                  `json:"workingStateId,omitempty"`
}

type batchTransitionRequest struct {
	LineIDs   []interface{} `json:"lineIds"`
	Timestamp interface{}   `json:"timestamp,omitempty"`
	ActorID   string        `json:"actorId"`
}

func (h *Handler) SyncAll(c echo.Context) error {
	var body syncAllRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.ActorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "actorId is required")
	}

	req := SyncAllRequest{
		Document:       wire.Payload(body.Document),
		ActorID:        body.ActorID,
		WorkingStateID: body.WorkingStateID,
	}
	for _, sp := range body.Slips {
		req.Slips = append(req.Slips, wire.Payload(sp))
	}
	for _, lp := range body.Lines {
		req.Lines = append(req.Lines, wire.Payload(lp))
	}

	result, err := h.svc.SyncAll(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) BatchExport(c echo.Context) error {
	return h.batchTransition(c, TransitionExport)
}

func (h *Handler) BatchActualExport(c echo.Context) error {
	return h.batchTransition(c, TransitionActualExport)
}

func (h *Handler) batchTransition(c echo.Context, kind TransitionKind) error {
	var body batchTransitionRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.ActorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "actorId is required")
	}

	req := BatchTransitionRequest{
		LineIDs:   body.LineIDs,
		Timestamp: body.Timestamp,
		ActorID:   body.ActorID,
	}

	var (
		result *BatchTransitionResult
		err    error
	)
	if kind == TransitionActualExport {
		result, err = h.svc.BatchActualExport(c.Request().Context(), req)
	} else {
		result, err = h.svc.BatchExport(c.Request().Context(), req)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) GetDocumentTree(c echo.Context) error {
	hisID, err := strconv.ParseInt(c.Param("hisId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hisId")
	}
	tree, err := h.svc.GetDocumentTree(c.Request().Context(), hisID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, tree)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
