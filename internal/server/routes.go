package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	coreactor "github.com/LaStrada/airthings2mqtt/internal/core/actor"
	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
	"github.com/LaStrada/airthings2mqtt/internal/core/flow"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.POST("/pairing/scan", s.PairingScanHandler)
	e.POST("/pairing/confirm", s.PairingConfirmHandler)
	e.DELETE("/pairing/:address", s.PairingRemoveHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

type pairingStepBody struct {
	State        string            `json:"state"`
	Reason       string            `json:"reason,omitempty"`
	Placeholders map[string]string `json:"placeholders,omitempty"`
	Choices      map[string]string `json:"choices,omitempty"`
	Entry        *domain.ConfigEntry `json:"entry,omitempty"`
}

func (s *Server) PairingScanHandler(c echo.Context) error {
	return s.pairingRequest(c, coreactor.StartScanRequest{})
}

func (s *Server) PairingConfirmHandler(c echo.Context) error {
	address := c.QueryParam("address")
	if address == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "address is required"})
	}
	return s.pairingRequest(c, coreactor.ConfirmPairingRequest{Address: address})
}

func (s *Server) PairingRemoveHandler(c echo.Context) error {
	address := c.Param("address")
	res, err := s.rootContext.RequestFuture(s.masterActor, coreactor.RemoveEntryRequest{Address: address}, 25*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
	response, ok := res.(coreactor.RemoveEntryResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": response.GetResponseError().Error()})
	}
	if !response.Removed {
		return c.JSON(http.StatusNotFound, map[string]bool{"removed": false})
	}
	return c.JSON(http.StatusOK, map[string]bool{"removed": true})
}

func (s *Server) pairingRequest(c echo.Context, request any) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, request, 25*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
	response, ok := res.(coreactor.PairingStepResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": response.GetResponseError().Error()})
	}

	status := http.StatusOK
	if response.Result.State == flow.StateAborted {
		status = http.StatusConflict
	}
	return c.JSON(status, pairingStepBody{
		State:        string(response.Result.State),
		Reason:       string(response.Result.Reason),
		Placeholders: response.Result.Placeholders,
		Choices:      response.Result.Choices,
		Entry:        response.Result.Entry,
	})
}
