package middleware_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"appideas.app/engine/internal/http/middleware"
)

var _ = Describe("RateLimiter", func() {
	var router *gin.Engine

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		// One token per caller with a negligible refill rate.
		limiter := middleware.NewRateLimiter(0.0001, 1)
		router = gin.New()
		router.GET("/open", limiter.Handler(), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		router.GET("/authed", middleware.RequireUser(), limiter.Handler(), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
	})

	get := func(path, userID, remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = remoteAddr
		if userID != "" {
			req.Header.Set(middleware.UserIDHeader, userID)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("limits anonymous callers by IP", func() {
		Expect(get("/open", "", "10.0.0.1:1234").Code).To(Equal(http.StatusNoContent))

		w := get("/open", "", "10.0.0.1:5678")
		Expect(w.Code).To(Equal(http.StatusTooManyRequests))
		Expect(w.Header().Get("Retry-After")).To(Equal("1"))

		Expect(get("/open", "", "10.0.0.2:1234").Code).To(Equal(http.StatusNoContent))
	})

	It("limits authenticated callers by user regardless of IP", func() {
		Expect(get("/authed", "1", "10.0.0.1:1").Code).To(Equal(http.StatusNoContent))
		Expect(get("/authed", "1", "10.0.0.9:1").Code).To(Equal(http.StatusTooManyRequests))
		Expect(get("/authed", "2", "10.0.0.1:1").Code).To(Equal(http.StatusNoContent))
	})
})
