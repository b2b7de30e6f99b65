package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const testDoc = `{
	"web_port": 8080,
	"ping_interval": 10,
	"smtp": {
		"server": "smtp.example.com",
		"from": "netwatch@example.com",
		"user": "netwatch",
		"password": "secret",
		"recievers": ["a@example.com", "b@example.com"]
	},
	"users": [{"name": "admin", "password": "hunter2"}]
}`

func Test_Load_ParsesDocument(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "config.json", []byte(testDoc), 0o644))

	h, err := Load(fsys, "config.json")
	require.NoError(t, err)

	snap := h.Snapshot()
	require.Equal(t, uint16(8080), snap.WebPort)
	require.Equal(t, uint32(10), snap.PingInterval)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, snap.Smtp.Recievers)
	require.Len(t, snap.Users, 1)
}

func Test_Load_MissingFile_Error(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()

	_, err := Load(fsys, "config.json")
	require.Error(t, err)
}

func Test_Load_NilFsys_Error(t *testing.T) {
	t.Parallel()

	_, err := Load(nil, "config.json")
	require.ErrorIs(t, err, errInvalidArgument)
}

func Test_Handle_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "config.json", []byte(testDoc), 0o644))

	h, err := Load(fsys, "config.json")
	require.NoError(t, err)

	require.NoError(t, h.Save(fsys, "config2.json"))

	h2, err := Load(fsys, "config2.json")
	require.NoError(t, err)

	require.Equal(t, h.Snapshot(), h2.Snapshot())
}

func Test_Handle_UpdateSettings_RejectsZeroFields(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "config.json", []byte(testDoc), 0o644))

	h, err := Load(fsys, "config.json")
	require.NoError(t, err)

	require.False(t, h.UpdateSettings(Settings{WebPort: 0, PingInterval: 5}))
	require.False(t, h.UpdateSettings(Settings{WebPort: 9000, PingInterval: 0}))
	require.True(t, h.UpdateSettings(Settings{WebPort: 9000, PingInterval: 5}))

	snap := h.SettingsSnapshot()
	require.Equal(t, uint16(9000), snap.WebPort)
	require.Equal(t, uint32(5), snap.PingInterval)
}

func Test_Handle_Authenticate(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "config.json", []byte(testDoc), 0o644))

	h, err := Load(fsys, "config.json")
	require.NoError(t, err)

	require.True(t, h.Authenticate("admin", "hunter2"))
	require.False(t, h.Authenticate("admin", "wrong"))
	require.False(t, h.Authenticate("nobody", "hunter2"))
}

func Test_Handle_Recievers_NilWhenSmtpUnset(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "config.json",
		[]byte(`{"web_port":1,"ping_interval":1,"smtp":null,"users":[]}`), 0o644))

	h, err := Load(fsys, "config.json")
	require.NoError(t, err)

	require.Nil(t, h.Recievers())
	require.Nil(t, h.SmtpConfig())
}
