// Package config implements the process configuration as specified in section 6.6
// of the design specification. It handles parsing and validation of the env-sourced
// parameters every component needs: the remote archive credential, the mirror
// object store credentials, and process-level operational knobs.
package config

import (
	"fmt"
	"time"
)

// Config holds the environment-sourced configuration as defined in section 6.3
// and section 6.6 of the design specification.
type Config struct {
	EarthdataToken     string // Bearer token for the remote archive, env EARTHDATA_TOKEN
	R2Path             string // Mirror object store endpoint/bucket descriptor, env R2_PATH
	R2Region           string // Mirror object store region, env R2_REGION
	AWSAccessKeyID     string // env AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // env AWS_SECRET_ACCESS_KEY

	RuntimeAddr        string        // bind address for the runtime registration surface, default 0.0.0.0:9080
	FacadeAddr         string        // bind address for the query API façade, default 0.0.0.0:3010
	ShutdownTimeout    time.Duration // graceful shutdown timeout
	HTTPIdleConnTimeout time.Duration // idle connection timeout setting; not passed to remotearchive.NewClient, whose transport keeps its defaults
}

// Validate implements the validation requirements from section 6.6 of the spec.
// It ensures all required environment parameters are present.
func (c *Config) Validate() error {
	if c.EarthdataToken == "" {
		return fmt.Errorf("EARTHDATA_TOKEN is required")
	}
	if c.R2Path == "" {
		return fmt.Errorf("R2_PATH is required")
	}
	if c.R2Region == "" {
		return fmt.Errorf("R2_REGION is required")
	}
	if c.AWSAccessKeyID == "" {
		return fmt.Errorf("AWS_ACCESS_KEY_ID is required")
	}
	if c.AWSSecretAccessKey == "" {
		return fmt.Errorf("AWS_SECRET_ACCESS_KEY is required")
	}
	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second")
	}
	return nil
}
