// Package config loads AgencyKit configuration: process-level settings from
// the environment (with optional .env bootstrap) and agency topologies from
// YAML files.
package config
