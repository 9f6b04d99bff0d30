package console

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseNavigator(t *testing.T) {
	t.Run("immediate navigation is a redirect", func(t *testing.T) {
		nav := &ResponseNavigator{}
		nav.Navigate("/Unauthorized.html")

		rr := httptest.NewRecorder()
		nav.Write(rr, httptest.NewRequest(http.MethodGet, "/", nil), "")

		assert.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "/Unauthorized.html", rr.Header().Get("Location"))
	})

	t.Run("delayed navigation renders a refresh page", func(t *testing.T) {
		nav := &ResponseNavigator{}
		nav.NavigateAfter("/Logout.html", 2500*time.Millisecond)

		rr := httptest.NewRecorder()
		nav.Write(rr, httptest.NewRequest(http.MethodGet, "/", nil), "Sign-in failed.")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "3;url=/Logout.html", rr.Header().Get("Refresh"))
		assert.Contains(t, rr.Body.String(), "Sign-in failed.")
		assert.Contains(t, rr.Body.String(), `http-equiv="refresh"`)
	})

	t.Run("last call wins", func(t *testing.T) {
		nav := &ResponseNavigator{}
		nav.NavigateAfter("/Logout.html", time.Second)
		nav.Navigate("/orders")

		require.NotNil(t, nav.Pending())
		assert.Equal(t, "/orders", nav.Pending().URL)
		assert.Zero(t, nav.Pending().DelayMs)
	})

	t.Run("nothing pending writes nothing", func(t *testing.T) {
		rr := httptest.NewRecorder()
		(&ResponseNavigator{}).Write(rr, httptest.NewRequest(http.MethodGet, "/", nil), "")
		assert.Empty(t, rr.Header().Get("Location"))
		assert.Zero(t, rr.Body.Len())
	})
}

func TestDeferredNavigatorIsTakenOnce(t *testing.T) {
	nav := &DeferredNavigator{}
	assert.Nil(t, nav.Take())

	nav.NavigateAfter("/Logout.html", 3*time.Second)
	next := nav.Take()
	require.NotNil(t, next)
	assert.Equal(t, "/Logout.html", next.URL)
	assert.Equal(t, int64(3000), next.DelayMs)
	assert.Nil(t, nav.Take())
}
