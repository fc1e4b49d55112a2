package runloop

import (
	"strings"

	"patchloop/internal/change"
)

// fixPhrases are failure signatures in build/runtime logs that mean
// the repository is broken and needs repairing before anything else
var fixPhrases = []string{
	"module not found",
	"cannot find module",
	"build failed",
	"command failed",
	"syntax error",
	"type error",
	"failed to compile",
	"panic:",
}

// upgradePhrases are signatures of dependency problems that call for
// an upgrade run rather than a feature run
var upgradePhrases = []string{
	"security vulnerability",
	"deprecated dependency",
	"npm audit",
	"unsupported engine",
}

// DetectMode decides the run mode once per run: an explicit override
// wins, then known failure phrases in the latest logs, then FEATURE.
// The decision is passed unchanged into every proposal of the run.
func DetectMode(override, latestLog string) change.Mode {
	switch override {
	case string(change.ModeFix):
		return change.ModeFix
	case string(change.ModeFeature):
		return change.ModeFeature
	case string(change.ModeUpgrade):
		return change.ModeUpgrade
	}

	lower := strings.ToLower(latestLog)
	for _, phrase := range fixPhrases {
		if strings.Contains(lower, phrase) {
			return change.ModeFix
		}
	}
	for _, phrase := range upgradePhrases {
		if strings.Contains(lower, phrase) {
			return change.ModeUpgrade
		}
	}
	return change.ModeFeature
}
