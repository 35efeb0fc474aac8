package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yixuanzhou/student-portal-server/internal/models"
	"github.com/yixuanzhou/student-portal-server/internal/service"
)

// Handler holds the HTTP handlers for all portal endpoints
type Handler struct {
	svc service.Service
}

// NewHandler creates a new API handler
func NewHandler(svc service.Service) *Handler {
	return &Handler{svc: svc}
}

// SetupRoutes registers all routes on the given router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	base := router.Group("/api/student-portal")

	auth := base.Group("/auth")
	{
		auth.POST("/register", h.signUp)
		auth.POST("/login", h.login)
		auth.POST("/forgot-password", h.forgotPassword)
	}

	idea := base.Group("/idea", AuthMiddleware(h.svc))
	{
		idea.GET("/all", h.listIdeas)
		idea.POST("/create", h.createIdea)
		idea.PUT("/:id", h.updateIdea)
		idea.DELETE("/:id", h.deleteIdea)
		idea.POST("/:id/give-rose", h.giveRoses)
	}

	marketplace := base.Group("/marketplace", AuthMiddleware(h.svc))
	{
		marketplace.GET("/items", h.listItems)
		marketplace.POST("/item/:id/exchange", h.exchangeItem)
		marketplace.GET("/exchange-history", h.exchangeHistory)

		admin := marketplace.Group("", AdminRequired())
		{
			admin.POST("/item", h.createItem)
			admin.PUT("/item/:id", h.updateItem)
			admin.DELETE("/item/:id", h.deleteItem)
		}
	}
}

// Authentication handlers
func (h *Handler) signUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.svc.SignUp(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Status:  "error",
			Code:    "INVALID_CREDENTIALS",
			Message: "Invalid username or password",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) forgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.svc.ResetPassword(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "Password updated",
	})
}

// Ideas board handlers
func (h *Handler) listIdeas(c *gin.Context) {
	ideas, err := h.svc.ListIdeas(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ideas)
}

func (h *Handler) createIdea(c *gin.Context) {
	var req models.CreateIdeaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if !h.requireActingUser(c, req.Username) {
		return
	}

	idea, err := h.svc.CreateIdea(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, idea)
}

func (h *Handler) updateIdea(c *gin.Context) {
	ideaID, ok := pathID(c)
	if !ok {
		return
	}

	var req models.UpdateIdeaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if !h.requireActingUser(c, req.Username) {
		return
	}

	idea, err := h.svc.UpdateIdea(c.Request.Context(), ideaID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, idea)
}

func (h *Handler) deleteIdea(c *gin.Context) {
	ideaID, ok := pathID(c)
	if !ok {
		return
	}

	username := c.Query("username")
	if username == "" {
		respondValidation(c, "username is required")
		return
	}

	if !h.requireActingUser(c, username) {
		return
	}

	if err := h.svc.DeleteIdea(c.Request.Context(), ideaID, username); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "Idea deleted",
	})
}

func (h *Handler) giveRoses(c *gin.Context) {
	ideaID, ok := pathID(c)
	if !ok {
		return
	}

	username := c.Query("username")
	if username == "" {
		respondValidation(c, "username is required")
		return
	}

	roses, err := strconv.ParseInt(c.Query("roses"), 10, 64)
	if err != nil || roses <= 0 {
		respondValidation(c, "roses must be a positive integer")
		return
	}

	if !h.requireActingUser(c, username) {
		return
	}

	if err := h.svc.GiveRoses(c.Request.Context(), ideaID, username, roses); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "Roses given",
	})
}

// Marketplace handlers
func (h *Handler) listItems(c *gin.Context) {
	items, err := h.svc.ListItems(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

func (h *Handler) createItem(c *gin.Context) {
	input, ok := itemInputFromForm(c)
	if !ok {
		return
	}

	dto, err := h.svc.CreateItem(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto)
}

func (h *Handler) updateItem(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}

	input, ok := itemInputFromForm(c)
	if !ok {
		return
	}

	dto, err := h.svc.UpdateItem(c.Request.Context(), itemID, input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto)
}

func (h *Handler) deleteItem(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteItem(c.Request.Context(), itemID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "Item deleted",
	})
}

func (h *Handler) exchangeItem(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}

	username := c.Query("username")
	if username == "" {
		respondValidation(c, "username is required")
		return
	}

	quantity, err := strconv.ParseInt(c.Query("quantity"), 10, 64)
	if err != nil || quantity <= 0 {
		respondValidation(c, "quantity must be a positive integer")
		return
	}

	if !h.requireActingUser(c, username) {
		return
	}

	record, err := h.svc.ExchangeItem(c.Request.Context(), itemID, username, quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) exchangeHistory(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		respondValidation(c, "username is required")
		return
	}

	if !h.requireActingUser(c, username) {
		return
	}

	records, err := h.svc.GetExchangeHistory(c.Request.Context(), username)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// requireActingUser rejects requests whose acting username does not match
// the authenticated principal. The client-supplied parameter is kept for
// contract compatibility but is never trusted on its own.
func (h *Handler) requireActingUser(c *gin.Context, username string) bool {
	if username != c.GetString("username") {
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Status:  "error",
			Code:    "FORBIDDEN",
			Message: "Acting user does not match authenticated user",
		})
		return false
	}
	return true
}

// itemInputFromForm reads the multipart form fields shared by item create
// and update. The image part is optional.
func itemInputFromForm(c *gin.Context) (models.ItemInput, bool) {
	input := models.ItemInput{
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
		Category:    c.PostForm("category"),
	}

	if input.Name == "" || input.Description == "" {
		respondValidation(c, "name and description are required")
		return input, false
	}

	quantity, err := strconv.ParseInt(c.PostForm("quantity"), 10, 64)
	if err != nil || quantity < 0 {
		respondValidation(c, "quantity must be a non-negative integer")
		return input, false
	}
	input.Quantity = quantity

	price, err := strconv.ParseInt(c.PostForm("price"), 10, 64)
	if err != nil || price < 0 {
		respondValidation(c, "price must be a non-negative integer")
		return input, false
	}
	input.Price = price

	if fileHeader, err := c.FormFile("image"); err == nil {
		file, err := fileHeader.Open()
		if err != nil {
			respondValidation(c, "could not read image")
			return input, false
		}
		defer file.Close()

		image, err := io.ReadAll(file)
		if err != nil {
			respondValidation(c, "could not read image")
			return input, false
		}
		input.Image = image
	}

	return input, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondValidation(c, "invalid id")
		return 0, false
	}
	return id, true
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:  "error",
		Code:    "VALIDATION_ERROR",
		Message: err.Error(),
	})
}

func respondValidation(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:  "error",
		Code:    "VALIDATION_ERROR",
		Message: message,
	})
}

// respondError maps business errors to distinct statuses and error codes.
// Insufficient balance in particular is a tagged 422, not a success-shaped
// body with a magic substring.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		respondValidation(c, "invalid input")
	case errors.Is(err, models.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Status:  "error",
			Code:    "INSUFFICIENT_BALANCE",
			Message: "Insufficient rose balance",
		})
	case errors.Is(err, models.ErrSelfGift):
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Status:  "error",
			Code:    "SELF_GIFT",
			Message: "Cannot give roses to your own idea",
		})
	case errors.Is(err, models.ErrOutOfStock):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Status:  "error",
			Code:    "OUT_OF_STOCK",
			Message: "Requested quantity exceeds available stock",
		})
	case errors.Is(err, models.ErrDuplicateUser):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Status:  "error",
			Code:    "DUPLICATE_USERNAME",
			Message: "Username already taken",
		})
	case errors.Is(err, models.ErrAmbiguousName):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Status:  "error",
			Code:    "AMBIGUOUS_NAME",
			Message: "Display name matches more than one user",
		})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Status:  "error",
			Code:    "FORBIDDEN",
			Message: "Operation not permitted",
		})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Status:  "error",
			Code:    "NOT_FOUND",
			Message: "Resource not found",
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Status:  "error",
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		})
	}
}
