// Package config wires the tracker from its environment.
//
// LoadConfig reads an optional YAML file named by DELTATRACKER_CONFIG_FILE, then an optional .env file,
// then DELTATRACKER_* environment variables, applies defaults and validates the result.
// The remaining files open the source and snapshot store connections, resolve DSNs from AWS Secrets Manager
// and set up the OpenTelemetry providers.
//
// This package is part of the shell layer, the deltatracker packages never import it.
package config
