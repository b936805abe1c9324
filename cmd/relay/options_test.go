package main

import (
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		dataDir string
		envFile string
		port    int
	}{
		{name: "defaults", args: []string{"models"}, envFile: ".env"},
		{name: "global flags", args: []string{"--data-dir", "/tmp/relay", "--env-file", "prod.env", "models"}, dataDir: "/tmp/relay", envFile: "prod.env"},
		{name: "serve port", args: []string{"serve", "--port", "8080"}, envFile: ".env", port: 8080},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := &Options{}
			parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
			// Execute is not wanted here; only the parsed values are checked.
			parser.CommandHandler = func(flags.Commander, []string) error { return nil }
			_, err := parser.ParseArgs(tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.dataDir, opts.DataDir)
			assert.Equal(t, tc.envFile, opts.EnvFile)
			assert.Equal(t, tc.port, opts.Serve.Port)
		})
	}
}

func TestLoad_AppliesOverrides(t *testing.T) {
	t.Setenv("RELAY_DATA_DIR", "from-env")
	opts := &Options{DataDir: "from-flag", EnvFile: "missing.env", LogLevel: "debug"}
	cfg := opts.load()
	assert.Equal(t, "from-flag", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
}
