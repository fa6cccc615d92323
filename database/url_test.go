package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructDatabaseURL(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		dbName   string
		expected string
	}{
		{
			name:     "no database name",
			baseURL:  "postgres://u:p@localhost:5432/kuji",
			dbName:   "",
			expected: "postgres://u:p@localhost:5432/kuji",
		},
		{
			name:     "appends name and sslmode",
			baseURL:  "postgres://u:p@localhost:5432/",
			dbName:   "kuji",
			expected: "postgres://u:p@localhost:5432/kuji?sslmode=disable",
		},
		{
			name:     "keeps existing query",
			baseURL:  "postgres://u:p@localhost:5432?connect_timeout=5",
			dbName:   "kuji",
			expected: "postgres://u:p@localhost:5432/kuji?connect_timeout=5&sslmode=disable",
		},
		{
			name:     "keeps explicit sslmode",
			baseURL:  "postgres://u:p@localhost:5432?sslmode=require",
			dbName:   "kuji",
			expected: "postgres://u:p@localhost:5432/kuji?sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ConstructDatabaseURL(tt.baseURL, tt.dbName))
		})
	}
}
