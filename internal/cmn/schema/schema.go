// Package schema provides the embedded schedule JSON schema for use across
// the codebase.
package schema

import _ "embed"

//go:embed schedule.schema.json
var ScheduleSchemaJSON []byte
