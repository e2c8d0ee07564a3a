package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	home := t.TempDir()
	t.Setenv("HOME", home)
	viper.Set("database", "$HOME/state/assets.db")
	viper.Set("kill-timeout", "2s")
	viper.Set("team-id", "ABCDE12345")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "state", "assets.db"), c.Database)
	assert.Equal(t, DriverSqlite, c.Driver)
	assert.Equal(t, 2*time.Second, c.KillTimeout)
	assert.Equal(t, "ABCDE12345", c.TeamID)
	assert.Equal(t, DefaultMinOS, c.MinOS)
	assert.Equal(t, InstallerUID, c.Installer.UID)
	assert.Equal(t, InstallerGID, c.Installer.GID)
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		conf    Config
		wantErr bool
	}{
		{name: "defaults", conf: Config{Database: "/tmp/a.db"}},
		{name: "memory", conf: Config{Database: "/tmp/a.gob", Driver: DriverMemory}},
		{name: "unknown driver", conf: Config{Database: "/tmp/a.db", Driver: "mysql"}, wantErr: true},
		{name: "postgres without url", conf: Config{Driver: DriverPostgres}, wantErr: true},
		{name: "negative timeout", conf: Config{Database: "/tmp/a.db", KillTimeout: -time.Second}, wantErr: true},
		{name: "negative uid", conf: Config{Database: "/tmp/a.db", Installer: installer{UID: -1, GID: 33}}, wantErr: true},
		{name: "missing substrate", conf: Config{Database: "/tmp/a.db", Substrate: "/nonexistent/CydiaSubstrate.framework"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conf.verify()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLayout(t *testing.T) {
	l := NewLayout("")
	assert.Equal(t, DefaultMinOS, l.MinimumOSVersion)
	assert.Equal(t, "@rpath/TrollFoolsDummy.framework/TrollFoolsDummy", l.DummyInstallName())

	root := "/var/containers/Bundle/Application/UUID/Demo.app"
	assert.Equal(t, root+"/Frameworks/TrollFoolsDummy.framework/TrollFoolsDummy", l.DummyExecutable(root))
	assert.Equal(t, root+"/Frameworks/CydiaSubstrate.framework", l.TrustHelperPath(root))
	assert.Equal(t, "15.0", NewLayout("15.0").MinimumOSVersion)

	assert.True(t, l.IsBackup(root+"/Demo.troll-fools.bak"))
	assert.False(t, l.IsBackup(root+"/Demo"))
	assert.False(t, l.IsBackup(".troll-fools.bak"))
}
