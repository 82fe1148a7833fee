package migrations

import (
	_ "embed"
)

//go:embed 0002_create_sessions.sql
var createSessionsSQL string

func init() {
	Migrations.MustRegister(exec(createSessionsSQL), exec(`DROP TABLE IF EXISTS sessions`))
}
