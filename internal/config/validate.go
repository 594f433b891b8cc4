// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"regexp"

	"yatra.is/crowdwatch/internal/errors"
)

var areaIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Validate checks the configuration for structural problems: duplicate or
// malformed area ids, adjacency references to unknown areas, non-ascending
// default thresholds, and unknown API key permissions.
func (c *Config) Validate() error {
	if len(c.Areas) == 0 {
		return errors.New(errors.KindValidation, "at least one area block is required")
	}

	seen := make(map[string]bool, len(c.Areas))
	for _, a := range c.Areas {
		if !areaIDRegex.MatchString(a.ID) {
			return errors.Errorf(errors.KindValidation, "invalid area id: %q (alphanumeric with -_, max 64 chars)", a.ID)
		}
		if seen[a.ID] {
			return errors.Errorf(errors.KindValidation, "duplicate area id: %s", a.ID)
		}
		seen[a.ID] = true

		if a.Name == "" {
			return errors.Errorf(errors.KindValidation, "area %s: name is required", a.ID)
		}
		if a.Capacity <= 0 {
			return errors.Errorf(errors.KindValidation, "area %s: capacity must be positive", a.ID)
		}
	}

	for _, a := range c.Areas {
		for _, adj := range a.Adjacent {
			if !seen[adj] {
				return errors.Errorf(errors.KindValidation, "area %s: adjacent area %q is not defined", a.ID, adj)
			}
			if adj == a.ID {
				return errors.Errorf(errors.KindValidation, "area %s: cannot be adjacent to itself", a.ID)
			}
		}
	}

	if t := c.Thresholds; t != nil {
		if !(t.Warning < t.Critical && t.Critical < t.Emergency) {
			return errors.Errorf(errors.KindValidation,
				"default thresholds must be strictly ascending: warning %.1f < critical %.1f < emergency %.1f",
				t.Warning, t.Critical, t.Emergency)
		}
	}

	for _, k := range c.APIKeys {
		if k.Key == "" {
			return errors.Errorf(errors.KindValidation, "api_key %s: key is required", k.Name)
		}
		if len(k.Permissions) == 0 {
			return errors.Errorf(errors.KindValidation, "api_key %s: at least one permission is required", k.Name)
		}
		for _, p := range k.Permissions {
			switch p {
			case PermViewOnly, PermConfigureThresholds, PermAdmin:
			default:
				return errors.Errorf(errors.KindValidation, "api_key %s: unknown permission %q", k.Name, p)
			}
		}
	}

	return nil
}
