package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"volitus/server/internal/config"
)

func TestDSN(t *testing.T) {
	req := require.New(t)

	dsn := DSN(config.MySQLConfig{
		Host:     "db",
		Port:     3306,
		Username: "volitus",
		Password: "secret",
		Database: "drama",
	})

	req.Equal("volitus:secret@tcp(db:3306)/drama?charset=utf8mb4&parseTime=True&loc=Local", dsn)
}
