package backend

import (
	"errors"
	"fmt"

	"ledgerlens/internal/config"
)

// FromAppConfig builds the config for the serving backend.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}
	return fromAppConfig(appConfig, appConfig.DataBackend)
}

// UpstreamFromAppConfig builds the config for the backend the worker
// pulls from.
func UpstreamFromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}
	return fromAppConfig(appConfig, appConfig.UpstreamBackend)
}

func fromAppConfig(appConfig *config.Config, backend string) (Config, error) {
	backendType := BackendType(backend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", backend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,

		GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
		GoogleSheetName:       appConfig.GoogleSheetName,
		GoogleReportSheetName: appConfig.GoogleReportSheetName,

		APIBaseURL:  appConfig.APIBaseURL,
		APIToken:    appConfig.APIToken,
		APIEmail:    appConfig.APIEmail,
		APIPassword: appConfig.APIPassword,

		DataDirectory: appConfig.DataDir,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets backend")
		}
	case RemoteBackend:
		if c.APIBaseURL == "" {
			return errors.New("API base URL is required for remote backend")
		}
		if c.APIToken == "" && (c.APIEmail == "" || c.APIPassword == "") {
			return errors.New("API token or email and password are required for remote backend")
		}
	case MemoryBackend:
		// DataDirectory defaults to "data" if empty
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, SheetsBackend, RemoteBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
