package schema

import _ "embed"

// FleetV1Schema contains the JSON schema for fleet manifests.
//
//go:embed fleet.v1.json
var FleetV1Schema []byte
