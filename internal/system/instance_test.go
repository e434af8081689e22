package system

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceID(t *testing.T) {
	id := InstanceID()
	assert.Equal(t, id, InstanceID(), "instance id must be stable")
	assert.Contains(t, id, fmt.Sprintf("-%d-", os.Getpid()))
}

func TestGenerateInstanceID_Unique(t *testing.T) {
	a := GenerateInstanceID()
	b := GenerateInstanceID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.Count(a, "-") >= 2)
}
