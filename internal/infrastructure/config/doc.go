// Package config handles loading and validating signalhub configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (platform tokens, broker passwords) should be set via
//     environment variables or a config file with restricted permissions (0600)
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, a := range cfg.EnabledAdapters() {
//	    fmt.Println(a.Name, a.Type)
//	}
package config
