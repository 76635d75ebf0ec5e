package bootstrap

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectRoleDefaultsToApp(t *testing.T) {
	s := NewMemStore()
	assert.Equal(t, RoleApp, DetectRole(s))
}

func TestDetectRoleHonorsMarker(t *testing.T) {
	s := NewMemStore()
	MarkSentinel(s)
	assert.Equal(t, RoleSentinel, DetectRole(s))
}

func TestDetectRoleAnyOtherValueIsApp(t *testing.T) {
	s := NewMemStore()
	s.Set(KeyProcessRole, "something-else")
	assert.Equal(t, RoleApp, DetectRole(s))
}

func TestArgvRoundTrip(t *testing.T) {
	s := NewMemStore()
	argv := []string{"app", "--flag", "value with spaces"}
	SaveArgv(s, argv)

	got, ok := LoadArgv(s)
	require.True(t, ok)
	assert.Equal(t, argv, got)
}

func TestArgvRoundTripNilArgv(t *testing.T) {
	s := NewMemStore()
	SaveArgv(s, nil)

	got, ok := LoadArgv(s)
	require.False(t, ok, "a zero count is not a reconstructable argv")
	assert.Nil(t, got)
}

func TestArgvMissingCountFallsBack(t *testing.T) {
	s := NewMemStore()
	_, ok := LoadArgv(s)
	assert.False(t, ok)
}

func TestArgvMissingSlotFallsBack(t *testing.T) {
	s := NewMemStore()
	s.Set(KeyAppArgCount, "3")
	s.Set(argKey(0), "app")
	s.Set(argKey(1), "--flag")
	// argKey(2) intentionally absent
	_, ok := LoadArgv(s)
	assert.False(t, ok)
}

func TestArgvOverLimitFallsBack(t *testing.T) {
	s := NewMemStore()
	s.Set(KeyAppArgCount, strconv.Itoa(MaxArgs))
	for i := 0; i < MaxArgs; i++ {
		s.Set(argKey(i), "x")
	}
	_, ok := LoadArgv(s)
	assert.False(t, ok, "count == MaxArgs must fall back, limit is < 100")
}

func TestArgvAtLimitMinusOneRoundTrips(t *testing.T) {
	s := NewMemStore()
	argv := make([]string, MaxArgs-1)
	for i := range argv {
		argv[i] = strconv.Itoa(i)
	}
	SaveArgv(s, argv)
	got, ok := LoadArgv(s)
	require.True(t, ok)
	assert.Equal(t, argv, got)
}

func TestPIDRoundTrip(t *testing.T) {
	s := NewMemStore()
	SavePID(s, KeyAppPID, 4242)
	pid, ok := LoadPID(s, KeyAppPID)
	require.True(t, ok)
	assert.Equal(t, 4242, pid)
}

func TestPIDMissing(t *testing.T) {
	s := NewMemStore()
	_, ok := LoadPID(s, KeySentinelPID)
	assert.False(t, ok)
}
