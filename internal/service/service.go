package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
	"github.com/yixuanzhou/student-portal-server/internal/messaging"
	"github.com/yixuanzhou/student-portal-server/internal/models"
	"github.com/yixuanzhou/student-portal-server/internal/repository"
	"github.com/yixuanzhou/student-portal-server/internal/repository/mongodb"
	"github.com/yixuanzhou/student-portal-server/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

// Service defines all the business logic operations
type Service interface {
	// Authentication
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	ResetPassword(ctx context.Context, req models.ForgotPasswordRequest) error
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	GetUser(ctx context.Context, username string) (*models.User, error)

	// Ideas board
	ListIdeas(ctx context.Context) ([]models.Idea, error)
	CreateIdea(ctx context.Context, req models.CreateIdeaRequest) (*models.Idea, error)
	UpdateIdea(ctx context.Context, ideaID int64, req models.UpdateIdeaRequest) (*models.Idea, error)
	DeleteIdea(ctx context.Context, ideaID int64, username string) error
	GiveRoses(ctx context.Context, ideaID int64, fromUsername string, roses int64) error

	// Marketplace
	ListItems(ctx context.Context) ([]models.MarketplaceItemDto, error)
	CreateItem(ctx context.Context, input models.ItemInput) (*models.MarketplaceItemDto, error)
	UpdateItem(ctx context.Context, itemID int64, input models.ItemInput) (*models.MarketplaceItemDto, error)
	DeleteItem(ctx context.Context, itemID int64) error
	ExchangeItem(ctx context.Context, itemID int64, username string, quantity int64) (*models.ExchangeRecord, error)
	GetExchangeHistory(ctx context.Context, username string) ([]models.ExchangeRecord, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo            repository.Repository
	activity        mongodb.ActivityRepository
	producer        messaging.Producer
	logger          *utils.Logger
	jwtSecret       []byte
	tokenDuration   time.Duration
	signupRoseGrant int64
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(
	repo repository.Repository,
	activity mongodb.ActivityRepository,
	producer messaging.Producer,
	logger *utils.Logger,
	jwtSecret string,
	signupRoseGrant int64,
) Service {
	return &DefaultService{
		repo:            repo,
		activity:        activity,
		producer:        producer,
		logger:          logger,
		jwtSecret:       []byte(jwtSecret),
		tokenDuration:   24 * time.Hour, // 24 hours token validity
		signupRoseGrant: signupRoseGrant,
	}
}

// Authentication methods
func (s *DefaultService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error) {
	// Check if user already exists
	existingUser, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("error checking user existence: %w", err)
	}

	if existingUser != nil {
		return nil, models.ErrDuplicateUser
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	// Create the user with the signup rose grant
	user := &models.User{
		Username:    req.Username,
		Name:        req.Name,
		Password:    string(hashedPassword),
		Role:        models.RoleStudent,
		RoseBalance: s.signupRoseGrant,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return &models.AuthResponse{
		Status:   "success",
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
	}, nil
}

func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	// Generate JWT token
	token, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	return &models.AuthResponse{
		Status:    "success",
		Username:  user.Username,
		Role:      user.Role,
		Token:     token,
		ExpiresIn: int(s.tokenDuration.Seconds()),
	}, nil
}

// ResetPassword replaces the password of the user with the given display
// name. No challenge is performed; the portal treats the name as the reset
// handle.
func (s *DefaultService) ResetPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	updated, err := s.repo.UpdatePasswordByName(ctx, req.Name, string(hashedPassword))
	if err != nil {
		return fmt.Errorf("error updating password: %w", err)
	}

	if !updated {
		return models.ErrNotFound
	}

	return nil
}

// Authenticate verifies a username/password pair. Used both by login and by
// the Basic auth middleware.
func (s *DefaultService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	if user == nil {
		return nil, errors.New("invalid username or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, errors.New("invalid username or password")
	}

	return user, nil
}

func (s *DefaultService) GetUser(ctx context.Context, username string) (*models.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	if user == nil {
		return nil, models.ErrNotFound
	}

	return user, nil
}

// Ideas board methods
func (s *DefaultService) ListIdeas(ctx context.Context) ([]models.Idea, error) {
	ideas, err := s.repo.ListIdeas(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing ideas: %w", err)
	}

	return ideas, nil
}

func (s *DefaultService) CreateIdea(ctx context.Context, req models.CreateIdeaRequest) (*models.Idea, error) {
	idea := &models.Idea{
		Title:       req.Title,
		Description: req.Description,
		IdeaOwner:   req.Username,
		Sdgs:        normalizeSdgs(req.Sdgs),
		CreatedAt:   parseClientTime(req.CreatedAt),
	}

	if err := s.repo.CreateIdea(ctx, idea); err != nil {
		return nil, fmt.Errorf("error creating idea: %w", err)
	}

	return idea, nil
}

func (s *DefaultService) UpdateIdea(ctx context.Context, ideaID int64, req models.UpdateIdeaRequest) (*models.Idea, error) {
	idea, err := s.repo.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, fmt.Errorf("error getting idea: %w", err)
	}

	if idea == nil {
		return nil, models.ErrNotFound
	}

	// Only the owner may change the idea
	if idea.IdeaOwner != req.Username {
		return nil, models.ErrForbidden
	}

	idea.Title = req.Title
	idea.Description = req.Description
	idea.Sdgs = normalizeSdgs(req.Sdgs)

	if err := s.repo.UpdateIdea(ctx, idea); err != nil {
		return nil, fmt.Errorf("error updating idea: %w", err)
	}

	return idea, nil
}

func (s *DefaultService) DeleteIdea(ctx context.Context, ideaID int64, username string) error {
	idea, err := s.repo.GetIdea(ctx, ideaID)
	if err != nil {
		return fmt.Errorf("error getting idea: %w", err)
	}

	if idea == nil {
		return models.ErrNotFound
	}

	if idea.IdeaOwner != username {
		return models.ErrForbidden
	}

	if err := s.repo.DeleteIdea(ctx, ideaID); err != nil {
		return fmt.Errorf("error deleting idea: %w", err)
	}

	return nil
}

// GiveRoses runs the gift as one atomic ledger transaction. Self-gifts and
// overdrafts are rejected inside the transaction, after the rows are locked.
func (s *DefaultService) GiveRoses(ctx context.Context, ideaID int64, fromUsername string, roses int64) error {
	if roses <= 0 {
		return models.ErrValidation
	}

	txn, err := s.repo.GiveRoses(ctx, ideaID, fromUsername, roses)
	if err != nil {
		return err
	}

	s.recordTransaction(ctx, txn, fmt.Sprintf("gifted %d roses to idea %d", roses, ideaID))
	return nil
}

// Marketplace methods
func (s *DefaultService) ListItems(ctx context.Context) ([]models.MarketplaceItemDto, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing items: %w", err)
	}

	dtos := make([]models.MarketplaceItemDto, 0, len(items))
	for i := range items {
		dtos = append(dtos, toItemDto(&items[i]))
	}

	return dtos, nil
}

func (s *DefaultService) CreateItem(ctx context.Context, input models.ItemInput) (*models.MarketplaceItemDto, error) {
	if input.Quantity < 0 || input.Price < 0 {
		return nil, models.ErrValidation
	}

	item := &models.MarketplaceItem{
		Name:        input.Name,
		Description: input.Description,
		Quantity:    input.Quantity,
		Price:       input.Price,
		Category:    input.Category,
		Image:       input.Image,
	}

	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("error creating item: %w", err)
	}

	dto := toItemDto(item)
	return &dto, nil
}

func (s *DefaultService) UpdateItem(ctx context.Context, itemID int64, input models.ItemInput) (*models.MarketplaceItemDto, error) {
	if input.Quantity < 0 || input.Price < 0 {
		return nil, models.ErrValidation
	}

	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("error getting item: %w", err)
	}

	if item == nil {
		return nil, models.ErrNotFound
	}

	item.Name = input.Name
	item.Description = input.Description
	item.Quantity = input.Quantity
	item.Price = input.Price
	item.Category = input.Category
	item.Image = input.Image // nil keeps the stored image

	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("error updating item: %w", err)
	}

	updated, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("error reloading item: %w", err)
	}

	dto := toItemDto(updated)
	return &dto, nil
}

func (s *DefaultService) DeleteItem(ctx context.Context, itemID int64) error {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("error getting item: %w", err)
	}

	if item == nil {
		return models.ErrNotFound
	}

	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		return fmt.Errorf("error deleting item: %w", err)
	}

	return nil
}

// ExchangeItem runs the exchange as one atomic ledger transaction: debit,
// stock decrement and history append all commit together or not at all.
func (s *DefaultService) ExchangeItem(ctx context.Context, itemID int64, username string, quantity int64) (*models.ExchangeRecord, error) {
	if quantity <= 0 {
		return nil, models.ErrValidation
	}

	record, txn, err := s.repo.ExchangeItem(ctx, itemID, username, quantity)
	if err != nil {
		return nil, err
	}

	s.recordTransaction(ctx, txn,
		fmt.Sprintf("exchanged %d x %s for %d roses", record.QuantityExchanged, record.ItemName, record.TotalRosesSpent))
	return record, nil
}

func (s *DefaultService) GetExchangeHistory(ctx context.Context, username string) ([]models.ExchangeRecord, error) {
	records, err := s.repo.GetExchangeHistory(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("error getting exchange history: %w", err)
	}

	return records, nil
}

// recordTransaction writes the audit record and publishes the stream event
// for a committed ledger transaction. Both are best-effort.
func (s *DefaultService) recordTransaction(ctx context.Context, txn *models.RoseTransaction, detail string) {
	if err := s.activity.SaveActivity(&models.ActivityRecord{
		Username:  txn.Username,
		Action:    txn.TxType,
		Detail:    detail,
		Amount:    txn.Amount,
		Timestamp: txn.CreatedAt,
	}); err != nil {
		s.logger.Error("failed to record activity for transaction %s: %v", txn.ID, err)
	}

	event := &models.RoseTransactionEvent{
		ID:        txn.ID,
		Type:      txn.TxType,
		Username:  txn.Username,
		Amount:    txn.Amount,
		IdeaID:    txn.IdeaID.Int64,
		ItemID:    txn.ItemID.Int64,
		Timestamp: txn.CreatedAt,
	}

	if err := s.producer.PublishTransactionEvent(ctx, event); err != nil {
		s.logger.Error("failed to publish event for transaction %s: %v", txn.ID, err)
	}
}

// Helper methods
func (s *DefaultService) generateJWT(user *models.User) (string, error) {
	expirationTime := time.Now().Add(s.tokenDuration)

	claims := jwt.MapClaims{
		"sub":  user.Username, // subject
		"role": user.Role,
		"exp":  expirationTime.Unix(),
		"iat":  time.Now().Unix(), // issued at
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// normalizeSdgs sorts and de-duplicates the SDG tags
func normalizeSdgs(sdgs []int64) pq.Int64Array {
	seen := make(map[int64]bool, len(sdgs))
	out := pq.Int64Array{}
	for _, sdg := range sdgs {
		if !seen[sdg] {
			seen[sdg] = true
			out = append(out, sdg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// parseClientTime accepts the RFC3339 timestamp the client sends on idea
// creation, falling back to the server clock
func parseClientTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

func toItemDto(item *models.MarketplaceItem) models.MarketplaceItemDto {
	dto := models.MarketplaceItemDto{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Quantity:    item.Quantity,
		Price:       item.Price,
		Category:    item.Category,
	}
	if len(item.Image) > 0 {
		dto.ImageBase64 = base64.StdEncoding.EncodeToString(item.Image)
	}
	return dto
}
