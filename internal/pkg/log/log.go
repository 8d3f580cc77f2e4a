// Package log add logging utilities.
package log

import (
	"sort"
	"strings"
	"time"

	"statesync/internal/pkg/wire"

	"github.com/sirupsen/logrus"
)

// SetLogger sets the default logger's level.
func SetLogger(level string) {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = time.RFC3339
	customFormatter.FullTimestamp = true
	logrus.SetFormatter(customFormatter)
	logrus.SetLevel(ParseLevel(level))
}

// ParseLevel maps a level name to a logrus level, defaulting to error.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.ErrorLevel
	}
}

// keys returns at most max sorted keys, so that large updates do not flood the log.
func keys(m map[string]any, max int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	if len(out) > max {
		out = append(out[:max], "...")
	}
	return out
}

func UpdateToFields(msg *wire.StateUpdate) logrus.Fields {
	removed := 0
	for _, v := range msg.ChangedKeys {
		if v == nil {
			removed++
		}
	}
	return logrus.Fields{
		"changed": msg.Len() - removed,
		"removed": removed,
		"keys":    keys(msg.ChangedKeys, 8),
	}
}

func BatchToFields(msg *wire.UpdateStateRequest) logrus.Fields {
	return logrus.Fields{
		"token":  msg.AccessToken,
		"set":    keys(msg.Set, 8),
		"remove": msg.Remove,
	}
}

func LockToFields(msg *wire.LockRequest) logrus.Fields {
	return logrus.Fields{
		"token":    msg.AccessToken,
		"resource": msg.ResourceID,
		"action":   string(msg.Action),
		"lease":    msg.LeaseSeconds,
	}
}
