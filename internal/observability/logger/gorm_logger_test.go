package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM cautions":                                 "SELECT",
		"  insert into balances (client_code) values (?)":        "INSERT",
		"WITH x AS (SELECT 1) UPDATE document_sequences SET a=1": "SELECT",
		"SAVEPOINT sp1":                                          "SAVEPOINT",
		"":                                                       "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}

func TestLogModeDoesNotMutateReceiver(t *testing.T) {
	base := NewGormLogger(DefaultGormLoggerConfig())
	silent := base.LogMode(gormlogger.Silent).(*GormLogger)

	assert.Equal(t, gormlogger.Silent, silent.cfg.Level)
	assert.Equal(t, gormlogger.Warn, base.cfg.Level)
}
