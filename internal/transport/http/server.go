// Package http provides the HTTP server implementation for the consultation service.
package http

import (
	"log/slog"
	"net"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xiaot623/gogo/consult/internal/config"
	"github.com/xiaot623/gogo/consult/internal/service"
	v1 "github.com/xiaot623/gogo/consult/internal/transport/http/v1"
	"github.com/xiaot623/gogo/consult/internal/transport/ws"
)

// NewServer creates and configures the HTTP server: the consultation API,
// the WebSocket endpoint, health and metrics.
func NewServer(svc *service.Service, wsServer *ws.Server, gatherer prometheus.Gatherer, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = ipExtractor(cfg.TrustedProxies)

	// Middleware
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error.Error())
			}
			slog.Info("http request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc, cfg.SessionCookie)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	e.GET("/v1/consultations/ws", wsServer.HandleWebSocket)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return e
}

// ipExtractor trusts X-Forwarded-For only when it arrives from one of the
// configured proxy ranges. Without proxies the socket peer is the client.
func ipExtractor(trustedProxies []string) echo.IPExtractor {
	var options []echo.TrustOption
	for _, cidr := range trustedProxies {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy range", "cidr", cidr, "error", err)
			continue
		}
		options = append(options, echo.TrustIPRange(network))
	}
	if len(options) == 0 {
		return echo.ExtractIPDirect()
	}
	options = append(options,
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	)
	return echo.ExtractIPFromXFFHeader(options...)
}
