package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSchemaCompatibility(t *testing.T) {
	tests := []struct {
		name          string
		engineVersion string
		schemaVersion string
		expectError   bool
		errorContains string
	}{
		// Compatible cases
		{
			name:          "exact match",
			engineVersion: "1.2.0",
			schemaVersion: "1.2.0",
			expectError:   false,
		},
		{
			name:          "older schema minor",
			engineVersion: "1.2.0",
			schemaVersion: "1.1.0",
			expectError:   false,
		},
		{
			name:          "patch differs",
			engineVersion: "1.2.1",
			schemaVersion: "1.2.5",
			expectError:   false,
		},
		{
			name:          "partial schema version",
			engineVersion: "1.2.0",
			schemaVersion: "1.2",
			expectError:   false,
		},
		{
			name:          "empty schema version accepted",
			engineVersion: "1.2.0",
			schemaVersion: "",
			expectError:   false,
		},

		// Incompatible cases
		{
			name:          "schema minor newer",
			engineVersion: "1.2.0",
			schemaVersion: "1.3.0",
			expectError:   true,
			errorContains: "newer than engine version",
		},
		{
			name:          "major version differs",
			engineVersion: "2.0.0",
			schemaVersion: "1.2.0",
			expectError:   true,
			errorContains: "major version mismatch",
		},
		{
			name:          "schema major newer",
			engineVersion: "1.2.0",
			schemaVersion: "2.0.0",
			expectError:   true,
			errorContains: "major version mismatch",
		},

		// Development builds skip the check
		{
			name:          "engine is main",
			engineVersion: "main",
			schemaVersion: "9.9.9",
			expectError:   false,
		},

		// Edge cases with v prefix
		{
			name:          "v prefix on engine",
			engineVersion: "v1.2.0",
			schemaVersion: "1.2.0",
			expectError:   false,
		},
		{
			name:          "v prefix on schema",
			engineVersion: "1.2.0",
			schemaVersion: "v1.2.0",
			expectError:   false,
		},

		// Edge cases with prerelease and metadata
		{
			name:          "prerelease version",
			engineVersion: "1.2.0-alpha",
			schemaVersion: "1.2.0",
			expectError:   false,
		},
		{
			name:          "build metadata",
			engineVersion: "1.2.0+build123",
			schemaVersion: "1.2.0",
			expectError:   false,
		},

		// Invalid versions
		{
			name:          "invalid engine version",
			engineVersion: "not-a-version",
			schemaVersion: "1.2.0",
			expectError:   true,
			errorContains: "invalid engine version",
		},
		{
			name:          "invalid schema version",
			engineVersion: "1.2.0",
			schemaVersion: "not-a-version",
			expectError:   true,
			errorContains: "invalid schema version",
		},
		{
			name:          "empty engine version",
			engineVersion: "",
			schemaVersion: "1.2.0",
			expectError:   true,
			errorContains: "invalid engine version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSchemaCompatibility(tt.engineVersion, tt.schemaVersion)

			if tt.expectError {
				require.Error(t, err)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	assert.Equal(t, Version, v)
}
