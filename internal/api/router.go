package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/LJTian/newswatch/internal/config"
	"github.com/LJTian/newswatch/internal/logger"
	"github.com/LJTian/newswatch/internal/storage"
	"github.com/gin-gonic/gin"
)

// DeliveryLister 查询某个收件人的投递记录
type DeliveryLister interface {
	ListDeliveries(ctx context.Context, recipient string, limit int) ([]storage.DeliveryMarker, error)
}

// Triggers 手动触发抓取/清理；返回 false 表示已有待执行的同类任务
type Triggers interface {
	TriggerCycle() bool
	TriggerCleanup() bool
}

type Server struct {
	store    DeliveryLister
	triggers Triggers
	cfg      *config.Config
}

func NewServer(store DeliveryLister, triggers Triggers, cfg *config.Config) *Server {
	return &Server{store: store, triggers: triggers, cfg: cfg}
}

const healthPath = "/health"

// PublicPaths 启用 Basic Auth 时仍免认证的路由
var PublicPaths = []string{healthPath}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET(healthPath, s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/subscriptions", s.listSubscriptions)
		v1.GET("/deliveries", s.listDeliveries)
		v1.POST("/cycles", s.triggerCycle)
		v1.POST("/cleanup", s.triggerCleanup)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type subscriptionView struct {
	Recipient string   `json:"recipient"`
	Companies []string `json:"companies"`
}

// listSubscriptions 收件人地址只返回前缀
func (s *Server) listSubscriptions(c *gin.Context) {
	out := make([]subscriptionView, 0, len(s.cfg.Subscriptions))
	for _, sub := range s.cfg.Subscriptions {
		out = append(out, subscriptionView{Recipient: logger.MaskRecipient(sub.Email), Companies: sub.Targets})
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    out,
	})
}

func (s *Server) listDeliveries(c *gin.Context) {
	recipient := c.Query("recipient")
	if recipient == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_argument",
			"message": "recipient is required",
		})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	items, err := s.store.ListDeliveries(c.Request.Context(), recipient, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

func (s *Server) triggerCycle(c *gin.Context) {
	respondTrigger(c, s.triggers.TriggerCycle())
}

func (s *Server) triggerCleanup(c *gin.Context) {
	respondTrigger(c, s.triggers.TriggerCleanup())
}

func respondTrigger(c *gin.Context, accepted bool) {
	if accepted {
		c.JSON(http.StatusAccepted, gin.H{"code": "accepted", "message": "job queued"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "coalesced", "message": "job already pending"})
}
