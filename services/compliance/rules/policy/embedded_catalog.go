// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package policy bakes the rule catalog into the binary. The catalog documents
each stage and risk factor for the rules CLI and the HTTP API; the chain itself
does not read it.
*/
package policy

import (
	_ "embed"
)

// RuleCatalog holds the raw content of rule_catalog.yaml.
//
// Usage:
//
//	err := yaml.Unmarshal(policy.RuleCatalog, &target)
//
//go:embed rule_catalog.yaml
var RuleCatalog []byte
