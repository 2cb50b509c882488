package config

import (
	"encoding/json"
	"reflect"
)

// ChangedSections lists the top-level sections that differ between two
// configs, in file order. The token is compared but never printed.
func ChangedSections(old, new *Config) []string {
	if old == nil || new == nil {
		if old == new {
			return nil
		}
		return []string{"telegram", "logging", "relay", "transform", "files", "storage", "metrics", "ingest"}
	}
	var out []string
	add := func(name string, a, b any) {
		if !sameJSON(a, b) {
			out = append(out, name)
		}
	}
	add("telegram", old.Telegram, new.Telegram)
	add("logging", old.Logging, new.Logging)
	add("relay", old.Relay, new.Relay)
	add("transform", old.Transform, new.Transform)
	add("files", old.Files, new.Files)
	add("storage", old.Storage, new.Storage)
	add("metrics", old.Metrics, new.Metrics)
	add("ingest", old.Ingest, new.Ingest)
	return out
}

func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(ja) == string(jb)
}

// RestartRequired reports sections that cannot be applied to a running
// process and need a restart instead.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "storage", "metrics", "ingest":
			out = append(out, s)
		}
	}
	return out
}
