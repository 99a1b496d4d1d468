package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CheckSchemaCompatibility checks whether a config file's schema_version can
// be consumed by this engine build. Returns nil if compatible, an error with
// details if not.
//
// Compatibility Rules:
//   - An empty schema version is accepted (the config predates versioning)
//   - If the engine version is "main" (development build), the check is skipped
//   - Major versions must match exactly
//   - The schema's minor version must not exceed the engine's minor version
//   - Patch versions are ignored
//
// Examples:
//   - Engine 1.2.0, Schema 1.2.0 -> OK (exact match)
//   - Engine 1.2.0, Schema 1.1.0 -> OK (older schema)
//   - Engine 1.2.0, Schema 1.3.0 -> ERROR (schema newer than engine)
//   - Engine 2.0.0, Schema 1.2.0 -> ERROR (major differs)
//   - Engine main, Schema 1.2.0 -> OK (dev build, skip check)
func CheckSchemaCompatibility(engineVersion, schemaVersion string) error {
	// Strip 'v' prefix if present for consistency
	engineVersion = strings.TrimPrefix(engineVersion, "v")
	schemaVersion = strings.TrimPrefix(schemaVersion, "v")

	// Unversioned configs are accepted
	if schemaVersion == "" {
		return nil
	}

	// Skip version check for "main" (development builds)
	if engineVersion == "main" {
		return nil
	}

	// Parse engine version
	engineSemver, err := semver.NewVersion(engineVersion)
	if err != nil {
		return fmt.Errorf("invalid engine version '%s': %w", engineVersion, err)
	}

	// Parse schema version
	schemaSemver, err := semver.NewVersion(schemaVersion)
	if err != nil {
		return fmt.Errorf("invalid schema version '%s': %w", schemaVersion, err)
	}

	// Check major version match
	if engineSemver.Major() != schemaSemver.Major() {
		return fmt.Errorf("major version mismatch: engine is %d.x but config schema requires %d.x",
			engineSemver.Major(), schemaSemver.Major())
	}

	// A schema newer than the engine may use fields the engine does not know
	if schemaSemver.Minor() > engineSemver.Minor() {
		return fmt.Errorf("schema version %d.%d is newer than engine version %d.%d",
			schemaSemver.Major(), schemaSemver.Minor(),
			engineSemver.Major(), engineSemver.Minor())
	}

	// Patch versions are irrelevant for config compatibility
	return nil
}
