package models

// Request models
type SignUpRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ForgotPasswordRequest struct {
	Name        string `json:"name" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

type CreateIdeaRequest struct {
	Username    string  `json:"username" binding:"required"`
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description" binding:"required"`
	CreatedAt   string  `json:"createdAt"`
	Sdgs        []int64 `json:"sdgs" binding:"omitempty,dive,min=1,max=17"`
}

type UpdateIdeaRequest struct {
	Username    string  `json:"username" binding:"required"`
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description" binding:"required"`
	Sdgs        []int64 `json:"sdgs" binding:"omitempty,dive,min=1,max=17"`
}

// ItemInput carries the multipart form fields for creating or updating a
// marketplace item. A nil Image on update leaves the stored image untouched.
type ItemInput struct {
	Name        string
	Description string
	Quantity    int64
	Price       int64
	Category    string
	Image       []byte
}

// Response models
type AuthResponse struct {
	Status    string `json:"status"`
	Username  string `json:"username,omitempty"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

// MarketplaceItemDto is the wire form of an item; the stored image bytes are
// surfaced base64-encoded.
type MarketplaceItemDto struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"price"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	Category    string `json:"category"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
