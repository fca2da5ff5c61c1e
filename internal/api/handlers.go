package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RonoHenry/AgentICTrader/internal/engine"
	"github.com/RonoHenry/AgentICTrader/internal/journal"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"symbols": len(s.engine.Symbols()),
	})
}

func (s *Server) handleSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": s.engine.Symbols()})
}

// handleContext serves the live context, or the last persisted one for a
// symbol this process has not seen yet.
func (s *Server) handleContext(c *gin.Context) {
	symbol := c.Param("symbol")
	sc, err := s.engine.Snapshot(symbol)
	if err == nil {
		c.JSON(http.StatusOK, sc)
		return
	}
	if !errors.Is(err, engine.ErrUnknownSymbol) {
		errorResponse(c, statusOf(err), err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	stored, ok, serr := s.store.LatestContext(ctx, symbol)
	switch {
	case serr != nil:
		errorResponse(c, http.StatusInternalServerError, serr.Error())
	case !ok:
		errorResponse(c, http.StatusNotFound, err.Error())
	default:
		c.Header("X-Context-Source", "store")
		c.JSON(http.StatusOK, stored)
	}
}

func (s *Server) handleCandles(c *gin.Context) {
	tf, err := model.ParseTimeframe(c.Param("timeframe"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intQuery(c, "limit", 500)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	candles, err := s.engine.Candles(c.Param("symbol"), tf, limit)
	if err != nil {
		errorResponse(c, statusOf(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": candles})
}

// handleHistory queries the in-memory journal, or the persistent store
// with source=store.
func (s *Server) handleHistory(c *gin.Context) {
	var tf model.Timeframe
	if raw := c.Param("timeframe"); raw != "" {
		parsed, err := model.ParseTimeframe(raw)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		tf = parsed
	}
	q, err := parseQuery(c)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	symbol := c.Param("symbol")
	var events []model.Event
	if c.Query("source") == "store" {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()
		events, err = s.store.QueryEvents(ctx, symbol, tf, q)
	} else {
		events, err = s.engine.History(symbol, tf, q)
	}
	if err != nil {
		errorResponse(c, statusOf(err), err.Error())
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) handlePhases(c *gin.Context) {
	tf, err := model.ParseTimeframe(c.Param("timeframe"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	q, err := parseQuery(c)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	transitions, err := s.engine.Phases(c.Param("symbol"), tf, q.From, q.To)
	if err != nil {
		errorResponse(c, statusOf(err), err.Error())
		return
	}
	if transitions == nil {
		transitions = []model.PhaseTransition{}
	}
	c.JSON(http.StatusOK, gin.H{"transitions": transitions})
}

// handleStructure includes filled gaps, swept pools and invalidated zones.
func (s *Server) handleStructure(c *gin.Context) {
	tf, err := model.ParseTimeframe(c.Param("timeframe"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.engine.Structure(c.Param("symbol"), tf)
	if err != nil {
		errorResponse(c, statusOf(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, st)
}

// parseQuery reads from, to (RFC 3339), kind (comma separated) and limit.
func parseQuery(c *gin.Context) (journal.Query, error) {
	var q journal.Query
	for name, dst := range map[string]*time.Time{"from": &q.From, "to": &q.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, fmt.Errorf("%s: %w", name, err)
		}
		*dst = t.UTC()
	}
	if raw := c.Query("kind"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				q.Kinds = append(q.Kinds, model.EventKind(k))
			}
		}
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		return q, err
	}
	q.Limit = limit
	return q, nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
