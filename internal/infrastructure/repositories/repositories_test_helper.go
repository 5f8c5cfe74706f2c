package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	return db
}

func mustExec(t *testing.T, db *gorm.DB, q string, args ...interface{}) {
	t.Helper()
	require.NoError(t, db.Exec(q, args...).Error, "exec failed: query=%s", q)
}

func createPaymentRecordTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE payment_records (
		id TEXT PRIMARY KEY,
		payer_id TEXT NOT NULL,
		payee_id TEXT NOT NULL,
		payer_address TEXT NOT NULL,
		payee_address TEXT NOT NULL,
		amount TEXT NOT NULL,
		token_contract TEXT NOT NULL,
		token_symbol TEXT NOT NULL,
		chain_id TEXT NOT NULL,
		transaction_id TEXT,
		transaction_hash TEXT,
		message TEXT,
		status TEXT NOT NULL,
		failure_reason TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		confirmed_at DATETIME
	);`)
}
