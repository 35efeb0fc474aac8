package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yixuanzhou/student-portal-server/internal/api/testutils"
	"github.com/yixuanzhou/student-portal-server/internal/models"
)

func TestCreateIdea(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Test case 1: Successful idea creation
	createReq := models.CreateIdeaRequest{
		Username:    testCtx.StudentUser,
		Title:       "Solar Charging Benches",
		Description: "Install solar-powered charging benches around campus",
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Sdgs:        []int64{7, 11, 7, 13},
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/idea/create",
		createReq,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusCreated, w.Code)

	var idea models.Idea
	err := json.Unmarshal(w.Body.Bytes(), &idea)
	assert.NoError(t, err)
	assert.NotZero(t, idea.ID)
	assert.Equal(t, testCtx.StudentUser, idea.IdeaOwner)
	assert.Equal(t, int64(0), idea.RoseCount)
	// SDG tags come back sorted and de-duplicated
	assert.Equal(t, []int64{7, 11, 13}, []int64(idea.Sdgs))

	// Test case 2: Missing title
	invalidReq := models.CreateIdeaRequest{
		Username:    testCtx.StudentUser,
		Description: "No title given",
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/idea/create",
		invalidReq,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Test case 3: Unauthorized request (no token)
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/idea/create",
		createReq,
		nil,
	)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Test case 4: Acting username does not match the authenticated user
	mismatchReq := createReq
	mismatchReq.Username = testCtx.AdminUser

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/idea/create",
		mismatchReq,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListIdeas(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// An empty board serializes as an empty JSON array, never null; the
	// portal client maps over the response without a null check
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/student-portal/idea/all",
		nil,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	for i := 1; i <= 3; i++ {
		createReq := models.CreateIdeaRequest{
			Username:    testCtx.StudentUser,
			Title:       fmt.Sprintf("Idea %d", i),
			Description: "Listing test",
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		}

		w := testutils.PerformRequest(
			testCtx.Router,
			http.MethodPost,
			"/api/student-portal/idea/create",
			createReq,
			testutils.AuthHeaders(testCtx.StudentJWT),
		)
		assert.Equal(t, http.StatusCreated, w.Code)
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/student-portal/idea/all",
		nil,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)

	var ideas []models.Idea
	err := json.Unmarshal(w.Body.Bytes(), &ideas)
	assert.NoError(t, err)
	assert.Len(t, ideas, 3)
	// Newest first
	assert.Equal(t, "Idea 3", ideas[0].Title)
	assert.Equal(t, "Idea 1", ideas[2].Title)
}

func TestUpdateIdea(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	otherJWT := testCtx.CreateTestUser(t, "otherstudent", "Other Student", models.RoleStudent, 100)

	ideaID := createTestIdea(t, testCtx, testCtx.StudentUser, testCtx.StudentJWT, "Original Title")

	// Test case 1: Owner updates the idea
	updateReq := models.UpdateIdeaRequest{
		Username:    testCtx.StudentUser,
		Title:       "Updated Title",
		Description: "Updated description",
		Sdgs:        []int64{3},
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		fmt.Sprintf("/api/student-portal/idea/%d", ideaID),
		updateReq,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)

	var idea models.Idea
	err := json.Unmarshal(w.Body.Bytes(), &idea)
	assert.NoError(t, err)
	assert.Equal(t, "Updated Title", idea.Title)

	// Test case 2: Non-owner is rejected
	foreignReq := models.UpdateIdeaRequest{
		Username:    "otherstudent",
		Title:       "Hijacked",
		Description: "Should not apply",
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		fmt.Sprintf("/api/student-portal/idea/%d", ideaID),
		foreignReq,
		testutils.AuthHeaders(otherJWT),
	)

	assert.Equal(t, http.StatusForbidden, w.Code)

	// Test case 3: Unknown idea
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		"/api/student-portal/idea/999999",
		updateReq,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteIdea(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	otherJWT := testCtx.CreateTestUser(t, "otherstudent", "Other Student", models.RoleStudent, 100)

	ideaID := createTestIdea(t, testCtx, testCtx.StudentUser, testCtx.StudentJWT, "Idea to Delete")

	// Test case 1: Non-owner cannot delete
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodDelete,
		fmt.Sprintf("/api/student-portal/idea/%d?username=otherstudent", ideaID),
		nil,
		testutils.AuthHeaders(otherJWT),
	)

	assert.Equal(t, http.StatusForbidden, w.Code)

	// Test case 2: Owner deletes, list no longer contains the idea
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodDelete,
		fmt.Sprintf("/api/student-portal/idea/%d?username=%s", ideaID, testCtx.StudentUser),
		nil,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/student-portal/idea/all",
		nil,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)

	var ideas []models.Idea
	err := json.Unmarshal(w.Body.Bytes(), &ideas)
	assert.NoError(t, err)
	for _, idea := range ideas {
		assert.NotEqual(t, ideaID, idea.ID)
	}

	// Test case 3: Deleting again is a 404
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodDelete,
		fmt.Sprintf("/api/student-portal/idea/%d?username=%s", ideaID, testCtx.StudentUser),
		nil,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// createTestIdea creates an idea through the API and returns its ID
func createTestIdea(t *testing.T, testCtx *testutils.TestContext, username, token, title string) int64 {
	createReq := models.CreateIdeaRequest{
		Username:    username,
		Title:       title,
		Description: "Test idea",
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/student-portal/idea/create",
		createReq,
		testutils.AuthHeaders(token),
	)

	assert.Equal(t, http.StatusCreated, w.Code)

	var idea models.Idea
	err := json.Unmarshal(w.Body.Bytes(), &idea)
	assert.NoError(t, err)
	assert.NotZero(t, idea.ID)

	return idea.ID
}
