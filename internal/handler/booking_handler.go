package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vielimo/service-booking/internal/application"
	"github.com/vielimo/service-booking/pkg/auth"
	"github.com/vielimo/service-booking/pkg/middleware"
	"github.com/vielimo/service-booking/pkg/response"
)

// BookingHandler handles HTTP requests for booking operations.
type BookingHandler struct {
	service *application.BookingService
	nonces  *auth.NonceManager
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service *application.BookingService, nonces *auth.NonceManager) *BookingHandler {
	return &BookingHandler{service: service, nonces: nonces}
}

// RegisterRoutes registers public and admin booking routes.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	bookings := r.Group("/bookings")
	{
		bookings.POST("",
			middleware.OptionalAuth(jwtManager),
			middleware.RequireNonce(h.nonces, auth.ActionCreateBooking),
			h.CreateBooking,
		)
		bookings.GET("/lookup/:code", h.LookupBooking)
	}

	admin := r.Group("/admin/bookings")
	admin.Use(middleware.AuthMiddleware(jwtManager), middleware.RequireCapability(auth.CapManageBookings))
	{
		admin.GET("", h.ListBookings)
		admin.GET("/:id", h.GetBooking)
		admin.PATCH("/:id/status", h.UpdateStatus)
		admin.POST("/:id/notes", h.AddNote)
	}
}

// CreateBooking handles POST /api/v1/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req application.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	summary, err := h.service.CreateBooking(c.Request.Context(), c.ClientIP(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, summary)
}

// LookupBooking handles GET /api/v1/bookings/lookup/:code.
func (h *BookingHandler) LookupBooking(c *gin.Context) {
	summary, err := h.service.LookupByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summary)
}

// ListBookings handles GET /api/v1/admin/bookings?status=&room_id=&page=&limit=.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	page, limit := pagination(c)

	var roomID *uuid.UUID
	if raw := c.Query("room_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid room ID")
			return
		}
		roomID = &id
	}

	bookings, total, err := h.service.ListBookings(c.Request.Context(), c.Query("status"), roomID, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, bookings, total, page, limit)
}

// GetBooking handles GET /api/v1/admin/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	dto, err := h.service.GetBooking(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// UpdateStatus handles PATCH /api/v1/admin/bookings/:id/status.
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req application.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	actor, _ := middleware.GetUserID(c)

	dto, err := h.service.UpdateStatus(c.Request.Context(), id, actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// AddNote handles POST /api/v1/admin/bookings/:id/notes.
func (h *BookingHandler) AddNote(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req application.AddNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	dto, err := h.service.AddNote(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

func bookingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return uuid.Nil, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
