package handlers

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/langchou/tesbridge/internal/coordinator"
	"github.com/langchou/tesbridge/internal/entity"
)

// siteView 能源站点概要
type siteView struct {
	ID             int64             `json:"id"`
	Device         entity.DeviceInfo `json:"device"`
	WallConnectors []string          `json:"wall_connectors"`
}

func newSiteView(s *entity.Energy) siteView {
	view := siteView{
		ID:             s.ID,
		Device:         entity.NewEnergyInfoEntity(s, "site_name").Device(),
		WallConnectors: []string{},
	}
	wcs, _ := s.LiveCoordinator.Read(coordinator.KeyWallConnectors, nil).(map[string]interface{})
	for din := range wcs {
		view.WallConnectors = append(view.WallConnectors, din)
	}
	sort.Strings(view.WallConnectors)
	return view
}

// ListSites 获取能源站点列表
func (h *Handler) ListSites(c *gin.Context) {
	sites := h.entry.EnergySites()
	views := make([]siteView, 0, len(sites))
	for _, s := range sites {
		views = append(views, newSiteView(s))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

// GetSite 获取站点详情
func (h *Handler) GetSite(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid site ID"})
		return
	}

	s, err := h.entry.EnergySite(id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newSiteView(s)})
}
