package apihost

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/forensics/cgnatlog/internal/helpers"
	"github.com/forensics/cgnatlog/internal/query"
)

// dateTimeLayout is the same layout internal/query renders result
// timestamps in. start_dt/end_dt are parsed in the local time zone,
// while result timestamps are rendered in UTC, so a search's own output
// reads back as the same instant only when the local zone is UTC.
const dateTimeLayout = "2006-01-02 15:04:05"

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// handler holds the dependencies the four query endpoints share.
type handler struct {
	eng    *query.Engine
	logger *slog.Logger
}

func newHandler(eng *query.Engine, logger *slog.Logger) *handler {
	return &handler{eng: eng, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
}

// search handles GET /api/v1/search.
func (h *handler) search(c *gin.Context) {
	startDT, err := parseDateTimeParam(c, "start_dt")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	endDT, err := parseDateTimeParam(c, "end_dt")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	filter := query.Filter{
		StartDT:     startDT,
		EndDT:       endDT,
		SrcIPPriv:   c.Query("src_ip_priv"),
		SrcPortPriv: c.Query("src_port_priv"),
		NATIPPub:    c.Query("nat_ip_pub"),
		NATPortPub:  c.Query("nat_port_pub"),
		DstIP:       c.Query("dst_ip"),
		DstPort:     c.Query("dst_port"),
	}

	page := helpers.ClampInt(queryInt(c, "page", 0), 0, 1<<31-1)
	pageSize := queryInt(c, "page_size", defaultPageSize)
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	pageSize = helpers.ClampInt(pageSize, 1, maxPageSize)

	rows, total, truncated, err := h.eng.Search(c.Request.Context(), filter, pageSize, page)
	if err != nil {
		var ferr *query.FilterError
		if errors.As(err, &ferr) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("search failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rows":      rows,
		"total":     total,
		"truncated": truncated,
		"page":      page,
		"page_size": pageSize,
	})
}

// dailySummary handles GET /api/v1/daily-summary/:date.
func (h *handler) dailySummary(c *gin.Context) {
	date := c.Param("date")
	summary, err := h.eng.DailySummary(c.Request.Context(), date)
	if err != nil {
		h.logger.Error("daily summary failed", "date", date, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "daily summary failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// availableDates handles GET /api/v1/dates.
func (h *handler) availableDates(c *gin.Context) {
	dates, err := h.eng.AvailableDates()
	if err != nil {
		h.logger.Error("available dates failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "available dates failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dates": dates})
}

// chartAggregates handles GET /api/v1/chart-aggregates/:date.
func (h *handler) chartAggregates(c *gin.Context) {
	date := c.Param("date")
	agg, err := h.eng.ChartAggregates(c.Request.Context(), date)
	if err != nil {
		h.logger.Error("chart aggregates failed", "date", date, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "chart aggregates failed"})
		return
	}
	c.JSON(http.StatusOK, agg)
}

func parseDateTimeParam(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, errors.New(name + " is required")
	}
	t, err := time.ParseInLocation(dateTimeLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, errors.New(name + ` must be formatted "2006-01-02 15:04:05"`)
	}
	return t, nil
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
