package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/familyledger/ledger/shared/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key any, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, Claims{
		UserID: "usr-001",
		Email:  "p@x.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(testSecret))
	r.GET("/whoami", func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.String(http.StatusOK, userID)
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		header         string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "success - valid token",
			header:         "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, time.Now().Add(time.Hour)),
			expectedStatus: http.StatusOK,
			expectedBody:   "usr-001",
		},
		{name: "unauthorized - missing header", header: "", expectedStatus: http.StatusUnauthorized},
		{name: "unauthorized - wrong scheme", header: "Basic abc", expectedStatus: http.StatusUnauthorized},
		{
			name:           "unauthorized - expired token",
			header:         "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, time.Now().Add(-time.Hour)),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unauthorized - wrong secret",
			header:         "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), time.Now().Add(time.Hour)),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unauthorized - other hmac algorithm",
			header:         "Bearer " + signToken(t, jwt.SigningMethodHS512, testSecret, time.Now().Add(time.Hour)),
			expectedStatus: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			newAuthRouter().ServeHTTP(w, req)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedBody != "" && w.Body.String() != tt.expectedBody {
				t.Errorf("[%s] expected body %q got %q", tt.name, tt.expectedBody, w.Body.String())
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	type request struct {
		Email string `json:"email" validate:"required,email"`
		Role  string `json:"role" validate:"required,oneof=parent child"`
	}

	if errs := ValidateRequest(request{Email: "p@x.com", Role: "parent"}); errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}

	errs := ValidateRequest(request{Email: "nope", Role: "admin"})
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
	if errs[0].Type != "email" || errs[1].Type != "oneof" {
		t.Errorf("unexpected error types: %+v", errs)
	}
	if errs[0].Field != "email" || errs[1].Field != "role" {
		t.Errorf("expected json field names, got %+v", errs)
	}
}

func TestRespondWithValidationError(t *testing.T) {
	type request struct {
		AccountID string `form:"accountId" validate:"required"`
		Email     string `json:"email" validate:"omitempty,email"`
		Role      string `json:"role" validate:"omitempty,oneof=parent child"`
	}
	tests := []struct {
		name            string
		req             request
		expectedMessage string
	}{
		{name: "missing field", req: request{Email: "nope"}, expectedMessage: models.MissingFieldsMessage},
		{name: "invalid email", req: request{AccountID: "a1", Email: "nope"}, expectedMessage: "email: Invalid email format"},
		{name: "invalid role", req: request{AccountID: "a1", Role: "admin"}, expectedMessage: "role: Value must be one of: parent child"},
	}
	gin.SetMode(gin.TestMode)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			RespondWithValidationError(c, ValidateRequest(tt.req))

			var resp BadRequestErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if w.Code != http.StatusBadRequest || resp.Message != tt.expectedMessage {
				t.Errorf("expected 400 %q, got %d %q", tt.expectedMessage, w.Code, resp.Message)
			}
		})
	}
}
