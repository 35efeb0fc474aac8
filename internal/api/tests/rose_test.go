package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yixuanzhou/student-portal-server/internal/api/testutils"
	"github.com/yixuanzhou/student-portal-server/internal/models"
)

func TestGiveRoses(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	ownerJWT := testCtx.CreateTestUser(t, "ideaowner", "Idea Owner", models.RoleStudent, 100)
	ideaID := createTestIdea(t, testCtx, "ideaowner", ownerJWT, "Rain Gardens")

	// Test case 1: Successful gift debits the giver and credits the idea
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		fmt.Sprintf("/api/student-portal/idea/%d/give-rose?username=%s&roses=30", ideaID, testCtx.StudentUser),
		nil,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(70), testCtx.GetRoseBalance(t, testCtx.StudentUser))
	assert.Equal(t, int64(30), getRoseCount(t, testCtx, ideaID))

	// Test case 2: Insufficient balance leaves both sides untouched
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		fmt.Sprintf("/api/student-portal/idea/%d/give-rose?username=%s&roses=71", ideaID, testCtx.StudentUser),
		nil,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var errResp models.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &errResp)
	assert.NoError(t, err)
	assert.Equal(t, "INSUFFICIENT_BALANCE", errResp.Code)
	assert.Equal(t, "Insufficient rose balance", errResp.Message)

	assert.Equal(t, int64(70), testCtx.GetRoseBalance(t, testCtx.StudentUser))
	assert.Equal(t, int64(30), getRoseCount(t, testCtx, ideaID))

	// Test case 3: Gifting to your own idea is rejected regardless of balance
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		fmt.Sprintf("/api/student-portal/idea/%d/give-rose?username=ideaowner&roses=1", ideaID),
		nil,
		testutils.AuthHeaders(ownerJWT),
	)

	assert.Equal(t, http.StatusForbidden, w.Code)

	err = json.Unmarshal(w.Body.Bytes(), &errResp)
	assert.NoError(t, err)
	assert.Equal(t, "SELF_GIFT", errResp.Code)
	assert.Equal(t, int64(30), getRoseCount(t, testCtx, ideaID))

	// Test case 4: Non-positive rose amounts are rejected before any work
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		fmt.Sprintf("/api/student-portal/idea/%d/give-rose?username=%s&roses=0", ideaID, testCtx.StudentUser),
		nil,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Test case 5: Unknown idea
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		fmt.Sprintf("/api/student-portal/idea/999999/give-rose?username=%s&roses=1", testCtx.StudentUser),
		nil,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusNotFound, w.Code)

	// Test case 6: Spending someone else's roses is rejected
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		fmt.Sprintf("/api/student-portal/idea/%d/give-rose?username=ideaowner&roses=1", ideaID),
		nil,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGiveRosesDrainsBalanceExactly(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	ownerJWT := testCtx.CreateTestUser(t, "ideaowner", "Idea Owner", models.RoleStudent, 100)
	ideaID := createTestIdea(t, testCtx, "ideaowner", ownerJWT, "Compost Program")

	testCtx.SetRoseBalance(t, testCtx.StudentUser, 5)

	// Five single-rose gifts succeed, the sixth hits the floor
	for i := 0; i < 5; i++ {
		w := testutils.PerformRequest(
			testCtx.Router,
			http.MethodPost,
			fmt.Sprintf("/api/student-portal/idea/%d/give-rose?username=%s&roses=1", ideaID, testCtx.StudentUser),
			nil,
			testutils.AuthHeaders(testCtx.StudentJWT),
		)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		fmt.Sprintf("/api/student-portal/idea/%d/give-rose?username=%s&roses=1", ideaID, testCtx.StudentUser),
		nil,
		testutils.AuthHeaders(testCtx.StudentJWT),
	)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, int64(0), testCtx.GetRoseBalance(t, testCtx.StudentUser))
	assert.Equal(t, int64(5), getRoseCount(t, testCtx, ideaID))
}

// getRoseCount reads an idea's accrued rose count through the repository
func getRoseCount(t *testing.T, testCtx *testutils.TestContext, ideaID int64) int64 {
	idea, err := testCtx.Repository.GetIdea(context.Background(), ideaID)
	assert.NoError(t, err)
	assert.NotNil(t, idea)
	return idea.RoseCount
}
