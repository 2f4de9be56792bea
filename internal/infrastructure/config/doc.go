// Package config provides configuration loading for Fleetlink Core.
//
// Configuration is loaded from a YAML file with environment variable
// overrides, then validated before use. The loading order is:
//
//  1. Hardcoded defaults
//  2. YAML file values
//  3. FLEETLINK_* environment variables
//
// Secrets (operator password, JWT signing secret, broker credentials) should
// always be supplied via environment variables in production rather than
// committed to the config file.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Server.Port)
package config
