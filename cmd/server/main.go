/*
main.go - Application entry point

PURPOSE:
  Starts the current-account ledger CLI. All work happens in the cobra
  commands:

  serve      HTTP API with graceful shutdown
  migrate    Apply the database schema
  reconcile  Repair stored balances from the ledger
  seed       Load demo scenarios

CONFIGURATION:
  --config points at an optional YAML file. Every key can be overridden
  with a LEDGER_* environment variable (server.port -> LEDGER_SERVER_PORT).
  A .env file in the working directory is loaded first.

EXAMPLES:
  # Run with the default SQLite file
  ./server serve

  # Run against PostgreSQL with Redis caching
  LEDGER_DATABASE_DRIVER=postgres \
  LEDGER_DATABASE_URL=postgres://ledger@localhost/ledger \
  LEDGER_REDIS_ENABLED=true ./server serve

  # Repair one customer's balance
  ./server reconcile --customer 5f0c...

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Keys and defaults
*/
package main

func main() {
	Execute()
}
