package console

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"conductor-console/pkg/requestcontext"
)

// DeviceCookie names the cookie that ties a browser to its storage namespace.
const DeviceCookie = "conductor_device"

const deviceCookieMaxAge = 365 * 24 * time.Hour

// DeviceMiddleware reads the device cookie, issuing a fresh one when it is
// absent or not a UUID, and stores the device ID in the request context.
func DeviceMiddleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := ""
			if c, err := r.Cookie(DeviceCookie); err == nil {
				if id, err := uuid.Parse(c.Value); err == nil {
					deviceID = id.String()
				}
			}
			if deviceID == "" {
				deviceID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     DeviceCookie,
					Value:    deviceID,
					Path:     "/",
					MaxAge:   int(deviceCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithDeviceID(r.Context(), deviceID)))
		})
	}
}
