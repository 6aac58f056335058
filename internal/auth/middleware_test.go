package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, subject string, audience ...string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  audience,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newRouter(audience string, denied *[]string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/media", MediaAccessMiddleware(testSecret, audience, func(reason string) {
		*denied = append(*denied, reason)
	}), func(c *gin.Context) {
		subject, _ := GetSubject(c.Request.Context())
		c.String(http.StatusOK, subject)
	})
	return router
}

func TestMediaAccessGranted(t *testing.T) {
	var denied []string
	router := newRouter("media-library", &denied)

	req := httptest.NewRequest(http.MethodGet, "/media", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "device-1", "media-library"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || resp.Body.String() != "device-1" {
		t.Fatalf("expected access, got %d %s", resp.Code, resp.Body.String())
	}
	if len(denied) != 0 {
		t.Fatalf("unexpected denials %v", denied)
	}
}

func TestMediaAccessUnauthenticated(t *testing.T) {
	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"bad token":      "Bearer not-a-jwt",
		"no subject":     "Bearer " + signToken(t, "", "media-library"),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			var denied []string
			router := newRouter("media-library", &denied)

			req := httptest.NewRequest(http.MethodGet, "/media", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.Code)
			}
			if len(denied) != 0 {
				t.Fatalf("unauthenticated requests must not be reported as denials, got %v", denied)
			}
		})
	}
}

func TestMediaAccessDeniedWithoutAudience(t *testing.T) {
	var denied []string
	router := newRouter("media-library", &denied)

	req := httptest.NewRequest(http.MethodGet, "/media", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "device-1", "other"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
	if len(denied) != 1 || denied[0] != "media access not granted to device-1" {
		t.Fatalf("expected one denial for device-1, got %v", denied)
	}
}
