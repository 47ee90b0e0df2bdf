package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vielimo/service-booking/internal/application"
	"github.com/vielimo/service-booking/pkg/auth"
	"github.com/vielimo/service-booking/pkg/middleware"
	"github.com/vielimo/service-booking/pkg/response"
)

// RoomHandler handles HTTP requests for rooms and the pricing calendar.
type RoomHandler struct {
	service *application.RoomService
}

// NewRoomHandler creates a new RoomHandler.
func NewRoomHandler(service *application.RoomService) *RoomHandler {
	return &RoomHandler{service: service}
}

// RegisterRoutes registers public and admin room routes.
func (h *RoomHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	rooms := r.Group("/rooms")
	{
		rooms.GET("", h.ListActiveRooms)
		rooms.GET("/:id/quote", h.Quote)
	}

	admin := r.Group("/admin/rooms")
	admin.Use(middleware.AuthMiddleware(jwtManager))
	{
		manageRooms := middleware.RequireCapability(auth.CapManageRooms)
		admin.GET("", manageRooms, h.ListRooms)
		admin.POST("", manageRooms, h.CreateRoom)
		admin.GET("/:id", manageRooms, h.GetRoom)
		admin.PUT("/:id", manageRooms, h.UpdateRoom)
		admin.DELETE("/:id", manageRooms, h.DeleteRoom)

		managePricing := middleware.RequireCapability(auth.CapManagePricing)
		admin.GET("/:id/prices", managePricing, h.Calendar)
		admin.PUT("/:id/prices", managePricing, h.SetPrices)
		admin.DELETE("/:id/prices", managePricing, h.ClearPrices)
	}
}

// ListActiveRooms handles GET /api/v1/rooms.
func (h *RoomHandler) ListActiveRooms(c *gin.Context) {
	rooms, err := h.service.ListRooms(c.Request.Context(), true)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rooms)
}

// Quote handles GET /api/v1/rooms/:id/quote?check_in=&check_out=&guests=.
func (h *RoomHandler) Quote(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	var req application.QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	quote, err := h.service.Quote(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, quote)
}

// ListRooms handles GET /api/v1/admin/rooms.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.service.ListRooms(c.Request.Context(), false)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rooms)
}

// CreateRoom handles POST /api/v1/admin/rooms.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req application.RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	room, err := h.service.CreateRoom(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, room)
}

// GetRoom handles GET /api/v1/admin/rooms/:id.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	room, err := h.service.GetRoom(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, room)
}

// UpdateRoom handles PUT /api/v1/admin/rooms/:id.
func (h *RoomHandler) UpdateRoom(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	var req application.RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	room, err := h.service.UpdateRoom(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, room)
}

// DeleteRoom handles DELETE /api/v1/admin/rooms/:id.
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteRoom(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// Calendar handles GET /api/v1/admin/rooms/:id/prices?month=YYYY-MM.
func (h *RoomHandler) Calendar(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	cal, err := h.service.Calendar(c.Request.Context(), id, c.Query("month"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cal)
}

// SetPrices handles PUT /api/v1/admin/rooms/:id/prices.
func (h *RoomHandler) SetPrices(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	var req application.SetPricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	result, err := h.service.SetPrices(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// ClearPrices handles DELETE /api/v1/admin/rooms/:id/prices?from=&to=.
func (h *RoomHandler) ClearPrices(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	var req application.ClearPricesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	result, err := h.service.ClearPrices(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

func roomID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room ID")
		return uuid.Nil, false
	}
	return id, true
}
