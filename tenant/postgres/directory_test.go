package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_AppliesDefaults(t *testing.T) {
	d := New(nil, Config{DSNTemplate: "postgres://u:p@db/{database}"})

	assert.Equal(t, "tenants", d.config.Table)
}

func TestTarget_FillsTemplate(t *testing.T) {
	d := New(nil, Config{DSNTemplate: "postgres://u:p@db:5432/{database}?sslmode=disable"})

	target := d.Target("tenant_acme")

	assert.Equal(t, "postgres://u:p@db:5432/tenant_acme?sslmode=disable", target.DSN)
	assert.Equal(t, "tenant_acme", target.Database)
}

func TestMigrationSQL(t *testing.T) {
	up := MigrationUp("org_tenants")

	assert.Contains(t, up, "CREATE TABLE org_tenants")
	assert.Contains(t, up, "modules TEXT[]")
	assert.Contains(t, up, "CREATE INDEX idx_org_tenants_active")
	assert.Equal(t, "DROP TABLE IF EXISTS org_tenants;\n", MigrationDown("org_tenants"))
}
