package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vitaspro/storefront/internal/domain"
	"github.com/vitaspro/storefront/internal/webserver"
)

type settingsView struct {
	domain.DriveSettings
	FileID        string `json:"fileId"`
	WriteEndpoint string `json:"writeEndpoint"`
	ReadEndpoint  string `json:"readEndpoint"`
}

func viewOf(s domain.DriveSettings) settingsView {
	return settingsView{
		DriveSettings: s,
		FileID:        s.FileID(),
		WriteEndpoint: s.WriteEndpoint(),
		ReadEndpoint:  s.ReadEndpoint(),
	}
}

func registerSettingsRoutes() {
	webserver.ApiGET("/settings", GetSettings)
	webserver.ApiPUT("/settings", SaveSettings)
	webserver.ApiPATCH("/settings", PatchSettings)
	webserver.ApiDELETE("/settings", ResetSettings)
}

// GetSettings returns the drive connection settings
// @Summary get drive settings
// @Tags Settings
// @Success 200 {object} settingsView
// @Router /api/v1/admin/settings [get]
func GetSettings(c echo.Context) error {
	return ok(c, viewOf(GetAppContext(c).Settings().Get()))
}

// SaveSettings replaces the drive connection settings
// @Summary save drive settings
// @Tags Settings
// @Param settings body domain.DriveSettings true "Drive settings"
// @Success 200 {object} settingsView
// @Router /api/v1/admin/settings [put]
func SaveSettings(c echo.Context) error {
	var payload domain.DriveSettings
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse settings", err.Error())
	}
	saved, err := GetAppContext(c).Settings().Save(payload)
	if err != nil {
		return failFor(c, err, "Invalid settings")
	}
	return ok(c, viewOf(saved))
}

// PatchSettings changes some of the drive connection settings
// @Summary patch drive settings
// @Tags Settings
// @Param settings body object true "Fields to change"
// @Success 200 {object} settingsView
// @Router /api/v1/admin/settings [patch]
func PatchSettings(c echo.Context) error {
	fields := map[string]interface{}{}
	if err := c.Bind(&fields); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse settings", err.Error())
	}
	saved, err := GetAppContext(c).Settings().Patch(fields)
	if err != nil {
		return failFor(c, err, "Invalid settings")
	}
	return ok(c, viewOf(saved))
}

// ResetSettings drops runtime changes and returns to the config file values
// @Summary reset drive settings
// @Tags Settings
// @Success 200 {object} settingsView
// @Router /api/v1/admin/settings [delete]
func ResetSettings(c echo.Context) error {
	saved, err := GetAppContext(c).Settings().Reset()
	if err != nil {
		return failFor(c, err, "Failed to reset settings")
	}
	return ok(c, viewOf(saved))
}
