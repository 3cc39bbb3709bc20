// Package config handles configuration loading for sage-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults for
// every timing knob the retry and polling layers use.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	genie:
//	  token: "${DATABRICKS_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	genie:
//	  call_timeout: "30s"
//	  poll_initial: "1s"
//	  poll_max: "60s"
//	  deadline: "10m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: ":8080"
//
// Remote query service connection and timing:
//
//	genie:
//	  host: "https://workspace.cloud.databricks.com"
//	  space_id: "01ef..."
//	  token: "${DATABRICKS_TOKEN}"
//	  max_retries: 3
//	  retry_base_delay: "1s"
//
// Ownership database:
//
//	database:
//	  path: "./data/sage.db"
//
// Authentication (empty secret trusts the forwarded identity headers):
//
//	auth:
//	  jwt_secret: "${SAGE_JWT_SECRET}"
package config
