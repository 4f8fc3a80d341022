package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/codecache/backend"
	"github.com/unkn0wn-root/codecache/internal/config"
)

var errNotFound = errors.New("entry not found")

type rootState struct {
	v       *viper.Viper
	cfgFile string
	metrics string
	app     *app
}

func newRootCmd() (*cobra.Command, *rootState) {
	st := &rootState{v: config.New()}

	root := &cobra.Command{
		Use:   "codecache",
		Short: "Store, read and execute cached code",
		Long: `codecache stores source code in an executable envelope on a pluggable
backend (file, redis, memory, ristretto, bigcache) and runs cached entries
at most once per process.

Configuration is read from --config, then CODECACHE_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(st.v, st.cfgFile)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr(), st.metrics)
			if err != nil {
				return err
			}
			st.app = a
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&st.cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	pf.StringVar(&st.metrics, "metrics-file", "", "write Prometheus metrics to this file on exit")
	pf.String("backend", "", "backend: memory, file, redis, ristretto, bigcache")
	pf.String("identifier", "", "cache identifier")
	pf.String("namespace", "", "storage namespace for kv backends")
	pf.String("executor", "", "executor for require: none, php, expr")
	pf.String("file-dir", "", "directory of the file backend")
	pf.String("log-level", "", "debug, info, warn, error")
	for flag, key := range map[string]string{
		"backend":    "backend",
		"identifier": "identifier",
		"namespace":  "namespace",
		"executor":   "executor",
		"file-dir":   "file.dir",
		"log-level":  "log.level",
	} {
		_ = st.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		newSetCmd(st),
		newGetCmd(st, false),
		newGetCmd(st, true),
		newRequireCmd(st),
		newRunCmd(st),
		newHasCmd(st),
		newRemoveCmd(st),
		newFlushCmd(st),
		newFlushTagCmd(st),
	)
	return root, st
}

// parseLifetime accepts "default", "unlimited" or a Go duration.
func parseLifetime(s string) (time.Duration, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return backend.DefaultLifetime, nil
	case "unlimited", "never", "0":
		return backend.Unlimited, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid lifetime %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid lifetime %q: must be positive", s)
	}
	return d, nil
}
