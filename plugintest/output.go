/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package plugintest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/joho/godotenv"
)

var (
	ansiPattern        = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)
	showVersionPattern = regexp.MustCompile(`version\s+:\s+(\S+)`)
)

// StripANSI removes terminal escape sequences.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// ExtractVersion finds the installed version of projectLink in package
// manager output. It understands the "version : X" line of a package listing
// and the resolver failure "depends on <project> (^X), version solving
// failed.". A version that is not semver is reported as nil.
func ExtractVersion(output, projectLink string) *semver.Version {
	output = StripANSI(output)

	if m := showVersionPattern.FindStringSubmatch(output); m != nil {
		return parseVersion(m[1])
	}

	// Many projects register with underscores while the resolver prints dashes.
	name := strings.ReplaceAll(projectLink, "_", "-")
	re := regexp.MustCompile(`depends on ` + regexp.QuoteMeta(name) + ` \(\^(\S+)\), version solving failed\.`)
	if m := re.FindStringSubmatch(output); m != nil {
		return parseVersion(m[1])
	}
	return nil
}

func parseVersion(s string) *semver.Version {
	v, err := semver.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return v
}

// ParseConfig parses a dotenv style plugin configuration block.
func ParseConfig(block string) (map[string]string, error) {
	if strings.TrimSpace(block) == "" {
		return map[string]string{}, nil
	}
	env, err := godotenv.Unmarshal(block)
	if err != nil {
		return nil, fmt.Errorf("parsing plugin config: %w", err)
	}
	return env, nil
}
