package api_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yixuanzhou/student-portal-server/internal/api/testutils"
	"github.com/yixuanzhou/student-portal-server/internal/models"
)

func TestRegister(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Test case 1: Successful registration
	signupReq := models.SignUpRequest{
		Username: "newstudent",
		Password: "Password123",
		Name:     "New Student",
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/auth/register",
		signupReq,
		nil,
	)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp models.AuthResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, models.RoleStudent, resp.Role)

	// New accounts start with the signup rose grant
	assert.Equal(t, int64(100), testCtx.GetRoseBalance(t, "newstudent"))

	// Test case 2: Duplicate username
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/auth/register",
		signupReq,
		nil,
	)

	assert.Equal(t, http.StatusConflict, w.Code)

	// Test case 3: Invalid request (missing required fields)
	invalidReq := models.SignUpRequest{
		Username: "incomplete",
		// Missing password and name
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/auth/register",
		invalidReq,
		nil,
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Test case 1: Successful login returns role and token
	loginReq := models.LoginRequest{
		Username: testCtx.StudentUser,
		Password: testutils.TestPassword,
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/auth/login",
		loginReq,
		nil,
	)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.AuthResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, models.RoleStudent, resp.Role)
	assert.NotEmpty(t, resp.Token)

	// Test case 2: Invalid credentials
	invalidLoginReq := models.LoginRequest{
		Username: testCtx.StudentUser,
		Password: "wrongpassword",
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/auth/login",
		invalidLoginReq,
		nil,
	)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Test case 3: User not found
	nonExistentUserReq := models.LoginRequest{
		Username: "nosuchuser",
		Password: testutils.TestPassword,
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/auth/login",
		nonExistentUserReq,
		nil,
	)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestForgotPassword(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Test case 1: Reset by display name, then login with the new password
	resetReq := models.ForgotPasswordRequest{
		Name:        "Test Student",
		NewPassword: "freshpassword",
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/auth/forgot-password",
		resetReq,
		nil,
	)

	assert.Equal(t, http.StatusOK, w.Code)

	loginReq := models.LoginRequest{
		Username: testCtx.StudentUser,
		Password: "freshpassword",
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/auth/login",
		loginReq,
		nil,
	)

	assert.Equal(t, http.StatusOK, w.Code)

	// Test case 2: Unknown name
	unknownReq := models.ForgotPasswordRequest{
		Name:        "Nobody Here",
		NewPassword: "whatever123",
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/auth/forgot-password",
		unknownReq,
		nil,
	)

	assert.Equal(t, http.StatusNotFound, w.Code)

	// Test case 3: Two accounts share the display name. The reset is
	// ambiguous, so it is rejected and neither password changes.
	testCtx.CreateTestUser(t, "twinone", "Shared Name", models.RoleStudent, 100)
	testCtx.CreateTestUser(t, "twintwo", "Shared Name", models.RoleStudent, 100)

	ambiguousReq := models.ForgotPasswordRequest{
		Name:        "Shared Name",
		NewPassword: "hijacked123",
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/auth/forgot-password",
		ambiguousReq,
		nil,
	)

	assert.Equal(t, http.StatusConflict, w.Code)

	var errResp models.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &errResp)
	assert.NoError(t, err)
	assert.Equal(t, "AMBIGUOUS_NAME", errResp.Code)

	for _, username := range []string{"twinone", "twintwo"} {
		w = testutils.PerformRequest(
			testCtx.Router,
			http.MethodPost,
			"/api/student-portal/auth/login",
			models.LoginRequest{Username: username, Password: testutils.TestPassword},
			nil,
		)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestBearerRejectedForRemovedAccount(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	ghostJWT := testCtx.CreateTestUser(t, "ghoststudent", "Ghost Student", models.RoleStudent, 100)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/student-portal/idea/all",
		nil,
		testutils.AuthHeaders(ghostJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)

	// A still-valid token must stop working once the account is gone
	_, err := testCtx.DB.Exec(`DELETE FROM users WHERE username = $1`, "ghoststudent")
	assert.NoError(t, err)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/student-portal/idea/all",
		nil,
		testutils.AuthHeaders(ghostJWT),
	)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBasicAuthAccepted(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// The original portal client sends base64(username:password) on
	// marketplace calls; the same token must work on idea routes too.
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/student-portal/idea/all",
		nil,
		testutils.BasicAuthHeaders(testCtx.StudentUser, testutils.TestPassword),
	)

	assert.Equal(t, http.StatusOK, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/student-portal/marketplace/items",
		nil,
		testutils.BasicAuthHeaders(testCtx.StudentUser, "wrongpassword"),
	)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
