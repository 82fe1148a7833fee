package migrations

import (
	_ "embed"
)

//go:embed 0003_create_submissions.sql
var createSubmissionsSQL string

func init() {
	Migrations.MustRegister(exec(createSubmissionsSQL), exec(`DROP TABLE IF EXISTS submissions`))
}
