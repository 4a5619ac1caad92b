package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/futures-journal/analytics"
	"github.com/rustyeddy/futures-journal/ingest"
	"github.com/rustyeddy/futures-journal/journal"
	"github.com/rustyeddy/futures-journal/pkg/id"
)

type createUserRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if req.ID == "" {
		req.ID = id.New()
	}

	u := journal.User{ID: req.ID, DisplayName: req.DisplayName, CreatedAt: time.Now().UTC()}
	if err := s.deps.Store.CreateUser(c.Request.Context(), u); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": u})
}

func (s *Server) handleListAccounts(c *gin.Context) {
	accounts, err := s.deps.Store.ListAccounts(c.Request.Context(), c.Param("user"))
	if err != nil {
		s.fail(c, err)
		return
	}
	successResponse(c, accounts)
}

// handleImport accepts a JSON array of rows, a {"trades": [...]} object, or
// a CSV export when the content type is text/csv.
func (s *Server) handleImport(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody)

	var (
		rows []ingest.Row
		err  error
	)
	switch c.ContentType() {
	case "text/csv", "application/csv":
		rows, err = ingest.ReadCSVRows(body)
	default:
		rows, err = ingest.ReadJSONRows(body)
	}
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			errorResponse(c, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	res, err := s.deps.Pipeline.Ingest(c.Request.Context(), ingest.Request{
		UserID:    c.Param("user"),
		Platform:  c.Param("platform"),
		AccountID: c.Query("account_id"),
		Rows:      rows,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	successResponse(c, res)
}

// handleListTrades filters by trade_date when from or to is given and
// renders json, csv or org.
func (s *Server) handleListTrades(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("user")

	from, to := c.Query("from"), c.Query("to")
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(journal.DateLayout, d); err != nil {
			errorResponse(c, http.StatusBadRequest, fmt.Sprintf("Invalid date %q, want YYYY-MM-DD", d))
			return
		}
	}

	var (
		trades []journal.Trade
		err    error
	)
	if from == "" && to == "" {
		trades, err = s.deps.Store.ListTrades(ctx, userID)
	} else {
		if from == "" {
			from = "0001-01-01"
		}
		if to == "" {
			to = "9999-12-31"
		}
		trades, err = s.deps.Store.ListTradesBetween(ctx, userID, from, to)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		if trades == nil {
			trades = []journal.Trade{}
		}
		successResponse(c, trades)
	case "csv":
		var buf bytes.Buffer
		w, err := journal.NewCSVWriter(&buf)
		if err == nil {
			err = w.WriteTrades(trades)
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	case "org":
		c.String(http.StatusOK, journal.FormatTradesOrg(trades))
	default:
		errorResponse(c, http.StatusBadRequest, "format must be json, csv or org")
	}
}

func (s *Server) handleGetTrade(c *gin.Context) {
	if !id.Valid(c.Param("id")) {
		errorResponse(c, http.StatusNotFound, fmt.Sprintf("trade %q: %s", c.Param("id"), journal.ErrNotFound))
		return
	}
	t, err := s.deps.Store.GetTrade(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	// other users' trades look the same as missing ones
	if t.UserID != c.Param("user") {
		errorResponse(c, http.StatusNotFound, fmt.Sprintf("trade %q: %s", c.Param("id"), journal.ErrNotFound))
		return
	}
	successResponse(c, t)
}

func (s *Server) handleDeleteTrade(c *gin.Context) {
	res, err := s.deps.Pipeline.DeleteTrade(c.Request.Context(), c.Param("user"), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	successResponse(c, res)
}

func (s *Server) handleGetAnalytics(c *gin.Context) {
	snap, err := s.deps.Analytics.Load(c.Request.Context(), c.Param("user"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.renderSnapshot(c, snap)
}

func (s *Server) handleRecompute(c *gin.Context) {
	snap, err := s.deps.Analytics.Recompute(c.Request.Context(), c.Param("user"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.renderSnapshot(c, snap)
}

func (s *Server) renderSnapshot(c *gin.Context, snap *analytics.Snapshot) {
	if c.Query("format") != "org" {
		successResponse(c, snap)
		return
	}
	var buf bytes.Buffer
	if err := analytics.WriteOrg(&buf, snap); err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}
