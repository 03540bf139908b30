// Package config provides Viper-backed configuration helpers.
package config

import (
	"os"

	"github.com/spf13/viper"

	"github.com/ligrlabs/crmsync/pkg/errors"
)

// TokenEnvVar names the environment variable holding the CRM credential.
const TokenEnvVar = "PIPEDRIVE_API_TOKEN"

// GetString is a helper to get string values from Viper.
// It checks both OS environment variables and Viper configuration.
func GetString(key string) string {
	osValue := os.Getenv(key)
	viperValue := viper.GetString(key)

	// If Viper doesn't have it but OS does, return OS value
	if viperValue == "" && osValue != "" {
		return osValue
	}
	return viperValue
}

// Token retrieves the required CRM API token. Its absence is a fatal,
// immediate startup error.
func Token() (string, error) {
	token := GetString(TokenEnvVar)
	if token == "" {
		return "", &errors.ConfigError{
			Component: "credentials",
			Message:   "environment variable " + TokenEnvVar + " not set",
			Err:       errors.ErrAPITokenRequired,
		}
	}
	return token, nil
}
