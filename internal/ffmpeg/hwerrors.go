// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package ffmpeg

import (
	"errors"
	"strings"
)

// hardwarePatterns is the closed set of stderr substrings that indicate
// a hardware-retryable encoder failure. Anything else propagates.
var hardwarePatterns = []string{
	"hwaccel initialisation returned error",
	"Impossible to convert between the formats",
	"Failed setup for format vaapi",
	"Failed setup for format cuda",
	"Failed setup for format qsv",
	"hwaccel_retrieve_data failed",
	"No hw frames available",
	"hardware accelerator failed to decode picture",
}

// IsHardwareError reports whether the stderr output matches a known
// hardware failure. Call sites retry such failures once on the software
// encoder profile.
func IsHardwareError(stderr string) bool {
	for _, p := range hardwarePatterns {
		if strings.Contains(stderr, p) {
			return true
		}
	}
	return false
}

// IsHardwareToolError unwraps a *ToolError and classifies its stderr.
func IsHardwareToolError(err error) bool {
	var te *ToolError
	if errors.As(err, &te) {
		return IsHardwareError(te.Stderr)
	}
	return false
}
