package common

import (
	"os"
	"strings"

	"github.com/ternarybob/canon/internal/models"
)

// deploymentMarkers are variables whose presence means the process runs
// inside a hosted deployment. Not configurable.
var deploymentMarkers = []string{
	"VERCEL",
	"RAILWAY_ENVIRONMENT",
	"RENDER",
	"DYNO",
	"FLY_APP_NAME",
	"NETLIFY",
	"AWS_LAMBDA_FUNCTION_NAME",
	"K_SERVICE",
}

// productionVariables are variables that block when set to "production"
var productionVariables = []string{"NODE_ENV", "APP_ENV", "ENVIRONMENT"}

// CheckEnvironment refuses deployment contexts. lookup defaults to
// os.LookupEnv. The returned error is *models.EnvironmentBlocked.
func CheckEnvironment(config *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	for _, name := range deploymentMarkers {
		if _, ok := lookup(name); ok {
			return &models.EnvironmentBlocked{Signal: name + " is set"}
		}
	}

	for _, name := range productionVariables {
		if value, ok := lookup(name); ok && strings.EqualFold(strings.TrimSpace(value), "production") {
			return &models.EnvironmentBlocked{Signal: name + "=production"}
		}
	}

	if config != nil && config.IsProduction() {
		return &models.EnvironmentBlocked{Signal: "environment = " + config.Environment}
	}

	return nil
}
