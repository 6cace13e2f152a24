package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-frontdesk-server/internal/config"
	"clinic-frontdesk-server/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:                 "access-secret-access-secret-access",
		JWTRefreshSecret:          "refresh-secret-refresh-secret-refr",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 24,
	}
}

func TestGenerateAndValidateTokens(t *testing.T) {
	cfg := testConfig()
	user := &models.User{Username: "desk", Role: models.RoleReceptionist}
	user.ID = 7

	access, refresh, err := GenerateTokens(user, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, access, refresh)

	claims, err := ValidateToken(access, cfg.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "desk", claims.Username)
	assert.Equal(t, models.RoleReceptionist, claims.Role)
	assert.Equal(t, "7", claims.Subject)

	_, err = ValidateToken(access, cfg.JWTRefreshSecret)
	assert.Error(t, err, "access tokens are not refresh tokens")

	rc, err := ValidateToken(refresh, cfg.JWTRefreshSecret)
	require.NoError(t, err)
	assert.NotEmpty(t, rc.ID)

	_, again, err := GenerateTokens(user, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, refresh, again, "token IDs make every token unique")
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	_, err := ValidateToken("not-a-token", "secret")
	assert.Error(t, err)
}

type bookingRequest struct {
	Date     string   `json:"appointmentDate" binding:"required,clinicdate"`
	Time     string   `json:"appointmentTime" binding:"required,clinictime"`
	Duration int      `json:"duration" binding:"omitempty,gt=0"`
	Days     []string `json:"availableDays" binding:"omitempty,dive,weekday"`
}

func bind(body string) (*httptest.ResponseRecorder, bool) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	var req bookingRequest
	return w, BindAndValidate(c, &req)
}

func TestBindAndValidate(t *testing.T) {
	_, ok := bind(`{"appointmentDate":"2024-01-10","appointmentTime":"09:30:00","availableDays":["monday"]}`)
	assert.True(t, ok)

	w, ok := bind(`{"appointmentDate":"10/01/2024","appointmentTime":"9:30","availableDays":["funday"]}`)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ResponseData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Contains(t, resp.Error, "appointmentDate must be a date (YYYY-MM-DD)")
	assert.Contains(t, resp.Error, "appointmentTime must be a time of day (HH:MM)")
	assert.Contains(t, resp.Error, "must be a weekday name")

	w, ok = bind(`{not json`)
	assert.False(t, ok)
	assert.Contains(t, w.Body.String(), "Invalid request payload")
}

func TestResponses(t *testing.T) {
	for _, tc := range []struct {
		send func(*gin.Context)
		code int
	}{
		{func(c *gin.Context) { Success(c, "ok", gin.H{"id": 1}) }, http.StatusOK},
		{func(c *gin.Context) { Created(c, "made", nil) }, http.StatusCreated},
		{func(c *gin.Context) { Conflict(c, "taken") }, http.StatusConflict},
		{func(c *gin.Context) { UnprocessableEntity(c, "nope") }, http.StatusUnprocessableEntity},
		{func(c *gin.Context) { TooManyRequests(c, "slow down") }, http.StatusTooManyRequests},
		{func(c *gin.Context) { NotFound(c, "gone") }, http.StatusNotFound},
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		tc.send(c)

		var resp ResponseData
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tc.code, w.Code)
		assert.Equal(t, tc.code, resp.Status)
		if tc.code >= http.StatusBadRequest {
			assert.Equal(t, http.StatusText(tc.code), resp.Message)
			assert.True(t, c.IsAborted())
		}
	}
}
