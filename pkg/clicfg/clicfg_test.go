package clicfg_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"feedsync/pkg/clicfg"
)

type testConfig struct {
	Name     string        `flag:"name"`
	Debug    bool          `flag:"debug"`
	Port     int           `flag:"port"`
	Rate     float64       `flag:"rate"`
	Interval time.Duration `flag:"interval"`

	Untagged string
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	var cfg testConfig

	cmd := &cli.Command{
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name"},
			&cli.BoolFlag{Name: "debug"},
			&cli.IntFlag{Name: "port"},
			&cli.Float64Flag{Name: "rate"},
			&cli.DurationFlag{Name: "interval"},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			return clicfg.ParseFlags(c, &cfg)
		},
	}

	err := cmd.Run(t.Context(), []string{
		"test",
		"--name", "feedsync",
		"--debug",
		"--port", "8080",
		"--rate", "1.5",
		"--interval", "45s",
	})
	require.NoError(t, err)

	require.Equal(t, "feedsync", cfg.Name)
	require.True(t, cfg.Debug)
	require.Equal(t, 8080, cfg.Port)
	require.InDelta(t, 1.5, cfg.Rate, 0.0001)
	require.Equal(t, 45*time.Second, cfg.Interval)
	require.Empty(t, cfg.Untagged)
}

func TestParseFlags_NotAPointer(t *testing.T) {
	t.Parallel()

	err := clicfg.ParseFlags(&cli.Command{}, testConfig{})
	require.ErrorIs(t, err, clicfg.ErrCannotParseFlags)
}

func TestParseFlags_NotAStruct(t *testing.T) {
	t.Parallel()

	s := "nope"
	err := clicfg.ParseFlags(&cli.Command{}, &s)
	require.ErrorIs(t, err, clicfg.ErrCannotParseFlags)
}

func TestParseFlags_UnsupportedFieldType(t *testing.T) {
	t.Parallel()

	var cfg struct {
		Values []string `flag:"values"`
	}
	err := clicfg.ParseFlags(&cli.Command{}, &cfg)
	require.ErrorIs(t, err, clicfg.ErrCannotParseFlags)
}
