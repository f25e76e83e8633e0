package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "litemodel"

// Topics provides builders for litemodel MQTT topics under one prefix.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Prefix: "site1/db"}
//	topics.Changes("users")
//	// Returns: "site1/db/changes/users"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.TrimSuffix(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// Changes returns the topic committed mutations of a table are published on.
//
// Example: litemodel/changes/users
func (t Topics) Changes(table string) string {
	return fmt.Sprintf("%s/changes/%s", t.prefix(), table)
}

// AllChanges returns a wildcard matching every table's change topic.
//
// Example: litemodel/changes/+
func (t Topics) AllChanges() string {
	return fmt.Sprintf("%s/changes/+", t.prefix())
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: litemodel/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}
