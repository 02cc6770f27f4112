package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mantonx/tunecast/internal/database"
	"github.com/mantonx/tunecast/internal/mediaurl"
	"github.com/mantonx/tunecast/internal/metadata"
	"github.com/mantonx/tunecast/internal/modules/castmodule"
	"github.com/mantonx/tunecast/internal/modules/queuemodule"
)

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status":  "ok",
		"service": "tunecast",
		"events":  s.bus.GetStats(),
	}
	if err := s.bus.Health(); err != nil {
		resp["status"] = "degraded"
		resp["events_error"] = err.Error()
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		resp["memory_used_percent"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp["cpu_percent"] = percents[0]
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}

	results, err := s.provider.Search(c.Request.Context(), query)
	if err != nil {
		s.logger.Error("search failed", "query", query, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": results})
}

func (s *Server) handleDevices(c *gin.Context) {
	devices, err := s.cast.Devices(c.Request.Context())
	if err != nil && len(devices) == 0 {
		c.JSON(http.StatusBadGateway, gin.H{"error": "device scan failed"})
		return
	}
	if devices == nil {
		devices = []castmodule.Device{}
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (s *Server) handleHistory(c *gin.Context) {
	filter := database.HistoryFilter{Target: c.Query("target")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	entries, err := s.history.Recent(filter)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}
	if entries == nil {
		entries = []database.PlayHistory{}
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

type playRequest struct {
	Target string `json:"target" binding:"required"`
	URL    string `json:"url"`
	ListID string `json:"list_id"`
}

// handleQueuePlay classifies the submitted URL, expands playlists into
// tracks, and starts a queue on the target device.
func (s *Server) handleQueuePlay(c *gin.Context) {
	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target is required"})
		return
	}
	if req.URL == "" && req.ListID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url or list_id is required"})
		return
	}

	tracks, err := s.resolveTracks(c, req)
	if err != nil {
		return // response already written
	}

	if err := s.queues.Start(c.Request.Context(), req.Target, tracks); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, castmodule.ErrDeviceNotFound) {
			status = http.StatusNotFound
		}
		s.logger.Error("queue start failed", "target", req.Target, "error", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"target": req.Target,
		"tracks": len(tracks),
		"status": "playing",
	})
}

func (s *Server) resolveTracks(c *gin.Context, req playRequest) ([]metadata.Track, error) {
	listID := req.ListID
	if req.URL != "" {
		parsed := mediaurl.Parse(req.URL)
		switch parsed.Kind {
		case mediaurl.KindVideo:
			return []metadata.Track{{VideoID: parsed.VideoID}}, nil
		case mediaurl.KindPlaylist:
			listID = parsed.ListID
		case mediaurl.KindAlbum:
			listID = parsed.BrowseID
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unrecognized media URL"})
			return nil, errors.New("unrecognized media URL")
		}
	}

	tracks, err := s.provider.GetTracks(c.Request.Context(), listID)
	if err != nil {
		s.logger.Error("playlist resolution failed", "list_id", listID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "playlist resolution failed"})
		return nil, err
	}
	return tracks, nil
}

type stopRequest struct {
	Target string `json:"target" binding:"required"`
}

func (s *Server) handleQueueStop(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target is required"})
		return
	}

	if err := s.queues.Stop(req.Target); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"target": req.Target, "status": "stopped"})
}

func (s *Server) handleQueueGet(c *gin.Context) {
	snap, err := s.queues.Get(c.Param("target"))
	if err != nil {
		if errors.Is(err, queuemodule.ErrNoActiveQueue) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}
