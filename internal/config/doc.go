// Package config provides configuration loading and validation for the
// car-marketplace backend. Configuration is read from a YAML file with
// environment variable substitution, and can be watched for changes at
// runtime.
package config
