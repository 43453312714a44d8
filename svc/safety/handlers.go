package main

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/txsvc/apikit/api"

	"github.com/safetrack-gps/safetrack/internal/safety"
)

// statusFromError maps the core's error taxonomy to http status codes so
// callers can tell a business-rule rejection from a retryable upstream
// failure.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, safety.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, safety.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, safety.ErrPreconditionFailed):
		return http.StatusConflict
	case errors.Is(err, safety.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func vehicleID(c echo.Context) (string, error) {
	id := c.Param("vehicleid")
	if id == "" {
		return "", api.ErrInvalidRoute
	}
	return id, nil
}

type (
	registerRequest struct {
		ContractID string `json:"contractId"`
		DeviceKey  string `json:"deviceKey,omitempty"`
	}

	deactivateRequest struct {
		Reason string `json:"reason"`
	}

	incidentRequest struct {
		Cause   string `json:"cause"`
		Channel string `json:"channel"`
	}

	closeIncidentRequest struct {
		Outcome string `json:"outcome"`
	}
)

func registerVehicleEndpoint(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "payload")
	}

	v, err := manager.RegisterVehicle(c.Request().Context(), req.ContractID, req.DeviceKey)
	if err != nil {
		return api.ErrorResponse(c, statusFromError(err), err, "")
	}
	return api.StandardResponse(c, http.StatusCreated, v)
}

func getStateEndpoint(c echo.Context) error {
	id, err := vehicleID(c)
	if err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "vehicleid")
	}

	v, err := manager.GetState(c.Request().Context(), id)
	if err != nil {
		return api.ErrorResponse(c, statusFromError(err), err, "")
	}
	return api.StandardResponse(c, http.StatusOK, v)
}

func reactivateEndpoint(c echo.Context) error {
	id, err := vehicleID(c)
	if err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "vehicleid")
	}

	v, err := manager.ReactivateVehicle(c.Request().Context(), id)
	if err != nil {
		return api.ErrorResponse(c, statusFromError(err), err, "")
	}
	return api.StandardResponse(c, http.StatusOK, v)
}

func deactivateEndpoint(c echo.Context) error {
	id, err := vehicleID(c)
	if err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "vehicleid")
	}

	var req deactivateRequest
	if err := c.Bind(&req); err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "payload")
	}

	v, err := manager.DeactivateVehicle(c.Request().Context(), id, safety.InactivationReason(req.Reason))
	if err != nil {
		return api.ErrorResponse(c, statusFromError(err), err, "")
	}
	return api.StandardResponse(c, http.StatusOK, v)
}

func releaseDeviceEndpoint(c echo.Context) error {
	id, err := vehicleID(c)
	if err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "vehicleid")
	}

	v, err := manager.ReleaseDevice(c.Request().Context(), id)
	if err != nil {
		return api.ErrorResponse(c, statusFromError(err), err, "")
	}
	return api.StandardResponse(c, http.StatusOK, v)
}

func configureZoneEndpoint(c echo.Context) error {
	id, err := vehicleID(c)
	if err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "vehicleid")
	}

	var cfg safety.ZoneConfig
	if err := c.Bind(&cfg); err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "payload")
	}
	overwrite := c.QueryParam("overwrite") == "true"

	res, err := manager.ConfigureZone(c.Request().Context(), id, cfg, overwrite)
	if err != nil {
		return api.ErrorResponse(c, statusFromError(err), err, "")
	}
	if res.Conflict {
		// the existing enabled zone is returned for confirmation
		return api.StandardResponse(c, http.StatusConflict, res)
	}
	return api.StandardResponse(c, http.StatusCreated, res)
}

func activateZoneEndpoint(c echo.Context) error {
	id, err := vehicleID(c)
	if err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "vehicleid")
	}

	if err := manager.ActivateZone(c.Request().Context(), id); err != nil {
		return api.ErrorResponse(c, statusFromError(err), err, "")
	}
	return api.StandardResponse(c, http.StatusOK, nil)
}

func deactivateZoneEndpoint(c echo.Context) error {
	id, err := vehicleID(c)
	if err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "vehicleid")
	}

	if err := manager.DeactivateZone(c.Request().Context(), id); err != nil {
		return api.ErrorResponse(c, statusFromError(err), err, "")
	}
	return api.StandardResponse(c, http.StatusOK, nil)
}

func checkZoneEndpoint(c echo.Context) error {
	id, err := vehicleID(c)
	if err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "vehicleid")
	}

	eval, err := manager.CheckZoneNow(c.Request().Context(), id)
	if err != nil {
		return api.ErrorResponse(c, statusFromError(err), err, "")
	}
	return api.StandardResponse(c, http.StatusOK, eval)
}

func cutoffEndpoint(c echo.Context) error {
	id, err := vehicleID(c)
	if err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "vehicleid")
	}

	res, err := manager.Cutoff(c.Request().Context(), id)
	if err != nil {
		return api.ErrorResponse(c, statusFromError(err), err, "")
	}
	return api.StandardResponse(c, http.StatusOK, res)
}

func resumeEndpoint(c echo.Context) error {
	id, err := vehicleID(c)
	if err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "vehicleid")
	}

	res, err := manager.Resume(c.Request().Context(), id)
	if err != nil {
		return api.ErrorResponse(c, statusFromError(err), err, "")
	}
	return api.StandardResponse(c, http.StatusOK, res)
}

func openIncidentEndpoint(c echo.Context) error {
	id, err := vehicleID(c)
	if err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "vehicleid")
	}

	var req incidentRequest
	if err := c.Bind(&req); err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "payload")
	}

	rec, err := manager.OpenIncident(c.Request().Context(), id, req.Cause, req.Channel)
	if err != nil {
		return api.ErrorResponse(c, statusFromError(err), err, "")
	}
	return api.StandardResponse(c, http.StatusCreated, rec)
}

func closeIncidentEndpoint(c echo.Context) error {
	id, err := vehicleID(c)
	if err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "vehicleid")
	}

	var req closeIncidentRequest
	if err := c.Bind(&req); err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, err, "payload")
	}

	rec, err := manager.CloseIncident(c.Request().Context(), id, safety.IncidentOutcome(req.Outcome))
	if err != nil {
		return api.ErrorResponse(c, statusFromError(err), err, "")
	}
	return api.StandardResponse(c, http.StatusOK, rec)
}
