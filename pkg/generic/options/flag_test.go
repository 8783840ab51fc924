package options

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOptions struct {
	Port   string `json:"port"`
	Serial string `json:"serial"`
	BaseOptions
}

func (o *testOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Port, "port", o.Port, "")
	fs.StringVar(&o.Serial, "serial", o.Serial, "")
}

func writeConfig(t *testing.T, content string) string {
	name := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
	return name
}

func TestParseAndApplyConfigFile(t *testing.T) {
	o := &testOptions{Port: "5000", Serial: "/dev/ttyACM0", BaseOptions: NewDefaultBaseOptions()}
	o.ConfigFile = writeConfig(t, "port: \"8080\"\nserial: /dev/ttyUSB0\n")

	// --version is not known to the Optioner and must not break the re-parse
	args := []string{"--config", o.ConfigFile, "--serial=/dev/ttyS1", "--version=false"}
	require.NoError(t, ParseAndApplyConfigFile(o, args))
	assert.Equal(t, "8080", o.Port)
	assert.Equal(t, "/dev/ttyS1", o.Serial)
}

func TestParseAndApplyConfigFileWithoutFile(t *testing.T) {
	o := &testOptions{Port: "5000", BaseOptions: NewDefaultBaseOptions()}
	require.NoError(t, ParseAndApplyConfigFile(o, []string{"--port=1"}))
	assert.Equal(t, "5000", o.Port)
}

func TestParseAndApplyConfigFileErrors(t *testing.T) {
	o := &testOptions{BaseOptions: NewDefaultBaseOptions()}
	o.ConfigFile = writeConfig(t, "prot: \"8080\"\n")
	err := ParseAndApplyConfigFile(o, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")

	o.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")
	err = ParseAndApplyConfigFile(o, nil)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}
