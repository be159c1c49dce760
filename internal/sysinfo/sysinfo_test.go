// ABOUTME: Tests for machine probing.

package sysinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverlabs/drover/internal/protocol"
)

func TestCollectProducesValidInfo(t *testing.T) {
	info := Collect()

	assert.NotEmpty(t, info.Hostname)
	assert.NotEmpty(t, info.Username)
	assert.Contains(t, []string{"Windows", "Linux", "macOS", "Unknown"}, info.OSType)

	// Whatever Collect produced must survive the wire codec.
	data, err := protocol.EncodeSystemInfo(info)
	require.NoError(t, err)
	decoded, err := protocol.DecodeSystemInfo(data)
	require.NoError(t, err)
	assert.Equal(t, info, decoded)
}

func TestClientIDIsSubjectSafe(t *testing.T) {
	id := ClientID()
	assert.NotEmpty(t, id)
	assert.True(t, protocol.ValidClientID(id), "client id %q must be subject safe", id)
}

func TestPrettyName(t *testing.T) {
	content := `NAME="Debian GNU/Linux"
VERSION_ID="13"
PRETTY_NAME="Debian GNU/Linux 13 (trixie)"
ID=debian
`
	assert.Equal(t, "Debian GNU/Linux 13 (trixie)", prettyName(content))
	assert.Equal(t, "", prettyName("NAME=foo\nID=bar\n"))
	assert.Equal(t, "plain", prettyName("PRETTY_NAME=plain\n"))
}
