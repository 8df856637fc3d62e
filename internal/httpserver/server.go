// Package httpserver wires the voice transports onto a single echo server.
package httpserver

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/rtc"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/telephony"
)

// Options carries the transports to expose. Nil fields disable their routes.
type Options struct {
	RTC          *rtc.Handler
	Twilio       *telephony.Service
	AuthPassword string
}

// Server bundles the configured echo instance.
type Server struct {
	Echo *echo.Echo
}

// New builds the route table: health, WebRTC signaling and, when configured,
// the Twilio webhooks.
func New(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-Auth-Token"},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.POST("/call", func(c echo.Context) error {
		if !authOK(c.Request(), opts.AuthPassword) {
			return c.String(http.StatusUnauthorized, "unauthorized")
		}
		var offer rtc.SessionDescription
		if err := c.Bind(&offer); err != nil {
			log.Printf("invalid offer: %v", err)
			return c.String(http.StatusBadRequest, "invalid offer")
		}
		if opts.RTC == nil {
			return c.String(http.StatusServiceUnavailable, "webrtc disabled")
		}
		answer, err := opts.RTC.HandleOffer(c.Request().Context(), offer)
		if err != nil {
			log.Printf("webrtc handle offer failed: %v", err)
			return c.String(http.StatusInternalServerError, "failed to handle offer")
		}
		return c.JSON(http.StatusOK, answer)
	})

	if opts.Twilio != nil {
		opts.Twilio.RegisterHandlers(e)
	}

	return &Server{Echo: e}
}

// authOK accepts the shared call password from the password query parameter,
// a bearer token or the X-Auth-Token header. An empty expected password
// disables the check.
func authOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if r.URL.Query().Get("password") == expected {
		return true
	}
	if r.Header.Get("X-Auth-Token") == expected {
		return true
	}
	auth := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):]) == expected
	}
	return false
}
