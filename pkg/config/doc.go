/*
Package config provides configuration loading and validation for Ganymede.

Configuration is read from a YAML file, overridden by GANYMEDE_* environment
variables, and validated before use:

	cfg, err := config.Load("config.yaml")
	if err != nil {
		return err
	}

All durations use Go duration syntax in YAML ("5s", "1m30s"). Missing
settings fall back to DefaultConfig values, so a minimal deployment only
needs to set the rule artifact and state paths:

	policy:
	  rules_path: /etc/ganymede/rules.yaml
	state:
	  path: /var/lib/ganymede/governance.db
*/
package config
