package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
)

// Feature flag names. Each maps to FEATURE_<NAME> in the environment,
// e.g. FEATURE_AT_RISK_ALERTS=false.
const (
	FeatureAchievements      = "achievements"       // award achievements on interactions
	FeatureNotifications     = "notifications"      // publish progress notifications
	FeatureAtRiskAlerts      = "at_risk_alerts"     // at-risk events from the overdue job
	FeatureDistributedEvents = "distributed_events" // mirror domain events over Redis pub/sub
	FeatureSnapshotCache     = "snapshot_cache"     // cache snapshots in Redis
)

var defaultFeatures = map[string]bool{
	FeatureAchievements:      true,
	FeatureNotifications:     true,
	FeatureAtRiskAlerts:      true,
	FeatureDistributedEvents: false,
	FeatureSnapshotCache:     true,
}

// FeatureFlags toggles optional side channels of the worker.
type FeatureFlags struct {
	enabled map[string]bool
}

// LoadFeatureFlags returns the defaults overridden by FEATURE_* variables.
func LoadFeatureFlags() FeatureFlags {
	ff := FeatureFlags{enabled: make(map[string]bool, len(defaultFeatures))}
	for name, on := range defaultFeatures {
		ff.enabled[name] = on
		if v, ok := os.LookupEnv(featureNameToEnvKey(name)); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				ff.enabled[name] = b
			}
		}
	}
	return ff
}

func featureNameToEnvKey(name string) string {
	return "FEATURE_" + strings.ToUpper(name)
}

// IsEnabled reports whether a feature is on. Unknown features are off.
func (ff FeatureFlags) IsEnabled(name string) bool {
	return ff.enabled[name]
}

// Enabled lists enabled features in name order.
func (ff FeatureFlags) Enabled() []string {
	out := make([]string, 0, len(ff.enabled))
	for name, on := range ff.enabled {
		if on {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
