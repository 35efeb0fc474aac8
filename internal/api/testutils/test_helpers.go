package testutils

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/yixuanzhou/student-portal-server/internal/api"
	"github.com/yixuanzhou/student-portal-server/internal/config"
	"github.com/yixuanzhou/student-portal-server/internal/messaging"
	"github.com/yixuanzhou/student-portal-server/internal/models"
	"github.com/yixuanzhou/student-portal-server/internal/repository"
	"github.com/yixuanzhou/student-portal-server/internal/repository/mongodb"
	"github.com/yixuanzhou/student-portal-server/internal/service"
	"github.com/yixuanzhou/student-portal-server/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

// TestPassword is the password every test user is created with
const TestPassword = "testpassword"

// TestContext holds all dependencies for tests
type TestContext struct {
	Router       *gin.Engine
	Repository   repository.Repository
	Service      service.Service
	JWTSecret    []byte
	DB           *sqlx.DB
	StudentUser  string
	StudentJWT   string
	AdminUser    string
	AdminJWT     string
	jwtSecretRaw string
}

// SetupTestContext creates a new test context with initialized dependencies
func SetupTestContext(t *testing.T) *TestContext {
	// Load configuration from environment
	cfg := config.LoadConfig()

	// Override with test-specific config
	if cfg.Database.DBName == "studentportal" && cfg.Database.TestDBName != "" {
		cfg.Database.DBName = cfg.Database.TestDBName
	} else if cfg.Database.TestDBName == "" {
		// Fallback to hardcoded test DB if not in environment
		cfg.Database.DBName = "studentportal_test"
	}

	// Use a test JWT secret
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "test-secret-key"
	}

	// Set up database
	db, err := config.SetupDatabase(cfg)
	assert.NoError(t, err, "Failed to set up test database")

	// Create repository
	repo := repository.NewPostgresRepository(db)

	// Create service; audit trail and event stream stay disabled in tests
	logger := utils.NewLogger()
	svc := service.NewDefaultService(repo, mongodb.NewNopActivityRepository(),
		messaging.NewNopProducer(), logger, cfg.Auth.JWTSecret, cfg.Ledger.SignupRoseGrant)

	// Create API handler
	handler := api.NewHandler(svc)

	// Set up Gin router
	gin.SetMode(gin.TestMode)
	router := gin.Default()

	// Add middleware for JWT secret
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", []byte(cfg.Auth.JWTSecret))
		c.Next()
	})

	// Set up routes
	handler.SetupRoutes(router)

	testCtx := &TestContext{
		Router:       router,
		Repository:   repo,
		Service:      svc,
		JWTSecret:    []byte(cfg.Auth.JWTSecret),
		DB:           db,
		jwtSecretRaw: cfg.Auth.JWTSecret,
	}

	cleanupTestDatabase(t, testCtx)

	testCtx.StudentUser = "teststudent"
	testCtx.StudentJWT = testCtx.CreateTestUser(t, testCtx.StudentUser, "Test Student", models.RoleStudent, 100)
	testCtx.AdminUser = "testadmin"
	testCtx.AdminJWT = testCtx.CreateTestUser(t, testCtx.AdminUser, "Test Admin", models.RoleAdmin, 100)

	return testCtx
}

// CleanupTestContext cleans up test resources
func CleanupTestContext(t *TestContext) {
	if t.DB != nil {
		cleanupTestDatabase(nil, t)
		t.DB.Close()
	}
}

// cleanupTestDatabase removes any existing test users and data
func cleanupTestDatabase(t *testing.T, testCtx *TestContext) {
	tables := []string{"rose_transactions", "exchange_history", "ideas", "marketplace_items", "users"}
	for _, table := range tables {
		_, err := testCtx.DB.Exec("DELETE FROM " + table)
		if t != nil && err != nil {
			t.Logf("Warning: Failed to clean %s: %v", table, err)
		}
	}
}

// CreateTestUser inserts a user with the given role and rose balance and
// returns a valid JWT for it. The password is always TestPassword.
func (tc *TestContext) CreateTestUser(t *testing.T, username, name, role string, balance int64) string {
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.DefaultCost)

	user := &models.User{
		Username:    username,
		Name:        name,
		Password:    string(hashedPassword),
		Role:        role,
		RoseBalance: balance,
	}

	err := tc.Repository.CreateUser(context.Background(), user)
	assert.NoError(t, err, "Failed to create test user %s", username)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  username,
		"role": role,
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	})

	tokenString, err := token.SignedString([]byte(tc.jwtSecretRaw))
	assert.NoError(t, err, "Failed to generate JWT token")

	return tokenString
}

// SetRoseBalance overwrites a user's balance directly, bypassing the ledger
func (tc *TestContext) SetRoseBalance(t *testing.T, username string, balance int64) {
	_, err := tc.DB.Exec(`UPDATE users SET rose_balance = $1 WHERE username = $2`, balance, username)
	assert.NoError(t, err, "Failed to set rose balance for %s", username)
}

// GetRoseBalance reads a user's current balance
func (tc *TestContext) GetRoseBalance(t *testing.T, username string) int64 {
	user, err := tc.Repository.GetUserByUsername(context.Background(), username)
	assert.NoError(t, err)
	assert.NotNil(t, user)
	return user.RoseBalance
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// PerformMultipartRequest executes a multipart form request against the
// router, as the portal sends for item create/update
func PerformMultipartRequest(r http.Handler, method, path string, fields map[string]string, image []byte, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if image != nil {
		part, _ := writer.CreateFormFile("image", "item.png")
		part.Write(image)
	}
	writer.Close()

	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with a Bearer token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}

// BasicAuthHeaders returns headers with the Basic token the original portal
// client constructs (base64 of username:password)
func BasicAuthHeaders(username, password string) map[string]string {
	encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return map[string]string{
		"Authorization": "Basic " + encoded,
	}
}
