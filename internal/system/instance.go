package system

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

var (
	instanceID   string
	instanceOnce sync.Once
)

// InstanceID identifies this server process in logs. It is generated once
// and stable for the process lifetime.
func InstanceID() string {
	instanceOnce.Do(func() {
		instanceID = GenerateInstanceID()
	})
	return instanceID
}

// GenerateInstanceID builds a new identifier from the host name, the process id
// and a random suffix.
func GenerateInstanceID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8])
}
