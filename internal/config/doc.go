// Package config provides configuration management for the sandbox worker
// and the sandboxctl CLI.
//
// Configuration is loaded from environment variables, optionally seeded from
// a .env file in the working directory, and validated on startup. All
// options have defaults suitable for local development. A worker with an
// empty SANDBOX_NAME is the baseline worker.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Role(), cfg.RoutesAPI.ServerAddr)
package config
