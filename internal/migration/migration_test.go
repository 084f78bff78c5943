package migration

import (
	"io/fs"
	"strings"
	"sync"
	"testing"

	"github.com/smallbiznis/quotaguard/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestRunAutoMigratesNonPostgres(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, Run(conn))
	// Running twice is a no-op.
	require.NoError(t, Run(conn))

	for _, table := range []string{
		"customers", "products", "daily_quotas", "quota_consumptions", "quota_warnings",
		"transactions", "transaction_items", "receipt_sequences", "orders", "order_items", "audit_logs",
	} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestRunRequiresConnection(t *testing.T) {
	assert.Error(t, Run(nil))
	assert.Error(t, RunMigrations(nil))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	entries, err := fs.ReadDir(sub, ".")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestInitMigrationCoversModels(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_init.up.sql")
	require.NoError(t, err)
	cache := &sync.Map{}
	for _, model := range Models() {
		parsed, err := schema.Parse(model, cache, schema.NamingStrategy{})
		require.NoError(t, err)
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+parsed.Table+" (")
		for _, field := range parsed.Fields {
			if field.DBName == "" {
				continue
			}
			assert.Contains(t, string(body), "    "+field.DBName+" ", "%s.%s", parsed.Table, field.DBName)
		}
	}
}
