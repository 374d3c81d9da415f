package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// The filter-parse rejections fire before any store access, so a nil
// store is fine here.
func listRouter() *gin.Engine {
	r := gin.New()
	r.GET("/v1/detections", NewDetectionHandler(nil).List)
	r.GET("/v1/events", NewEventHandler(nil, nil).List)
	return r
}

func getList(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListRejectsInvalidBranchID(t *testing.T) {
	r := listRouter()

	w := getList(r, "/v1/detections?branch_id=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = getList(r, "/v1/events?branch_id=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRejectsInvalidTimeRange(t *testing.T) {
	r := listRouter()

	for _, path := range []string{
		"/v1/detections?from=yesterday",
		"/v1/detections?to=2026-13-99",
		"/v1/events?from=yesterday",
		"/v1/events?to=2026-13-99",
	} {
		w := getList(r, path)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Contains(t, w.Body.String(), "RFC3339", path)
	}
}
