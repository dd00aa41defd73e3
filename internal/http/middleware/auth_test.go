package middleware_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"appideas.app/engine/internal/http/middleware"
)

var _ = Describe("RequireUser", func() {
	var (
		router *gin.Engine
		seen   int64
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		seen = 0
		router = gin.New()
		router.GET("/me", middleware.RequireUser(), func(c *gin.Context) {
			seen, _ = middleware.UserID(c)
			c.Status(http.StatusNoContent)
		})
	})

	DescribeTable("header handling",
		func(header string, wantCode int, wantUser int64) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set(middleware.UserIDHeader, header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(wantCode))
			Expect(seen).To(Equal(wantUser))
		},
		Entry("valid id", "15", http.StatusNoContent, int64(15)),
		Entry("surrounding whitespace", " 15 ", http.StatusNoContent, int64(15)),
		Entry("missing", "", http.StatusUnauthorized, int64(0)),
		Entry("not a number", "abc", http.StatusUnauthorized, int64(0)),
		Entry("zero", "0", http.StatusUnauthorized, int64(0)),
		Entry("negative", "-4", http.StatusUnauthorized, int64(0)),
	)
})

var _ = Describe("RequireAdminKey", func() {
	serve := func(adminKey, header string) int {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.POST("/admin", middleware.RequireAdminKey(adminKey), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		if header != "" {
			req.Header.Set(middleware.AdminKeyHeader, header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	It("is unavailable when no key is configured", func() {
		Expect(serve("", "anything")).To(Equal(http.StatusServiceUnavailable))
	})

	It("rejects a missing key", func() {
		Expect(serve("secret", "")).To(Equal(http.StatusUnauthorized))
	})

	It("passes a matching key", func() {
		Expect(serve("secret", "secret")).To(Equal(http.StatusNoContent))
	})
})
