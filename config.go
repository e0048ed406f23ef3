package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"wwhdasm/pkg/linker"
)

const envPrefix = "WWHDASM"

type Config struct {
	Root      string
	DevkitPPC string
	Layout    linker.MemoryMap
	CFlags    []string
	LogLevel  string
}

func AddFlags(f *pflag.FlagSet) {
	f.String("root", ".", "directory holding patches/, patch_diffs/ and linker.ld")
	f.String("devkitppc", "", "devkitPPC installation (default $DEVKITPPC)")
	f.Uint32("free-space-start", linker.DefaultMemoryMap.FreeSpaceStart, "first address handed to .org @NextFreeSpace chunks")
	f.Uint32("text-start", linker.DefaultMemoryMap.TextStart, "start of the executable's code region")
	f.Uint32("data-start", linker.DefaultMemoryMap.DataStart, "start of the executable's data region")
	f.StringSlice("cflags", nil, "extra flags for C and C++ sources")
	f.String("log-level", "info", "one of debug, info, error")
	f.String("config", "", "optional config file with the same keys as the flags")
}

// NewViper binds flags, WWHDASM_* environment variables and $DEVKITPPC.
// Flags win over the environment, which wins over the config file.
func NewViper(fs afero.Fs, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, errors.Wrap(err, "failed to bind flags")
	}
	if err := v.BindEnv("devkitppc", "DEVKITPPC"); err != nil {
		return nil, errors.Wrap(err, "failed to bind $DEVKITPPC")
	}
	return v, nil
}

func LoadConfig(v *viper.Viper) (Config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config %s", path)
		}
	}

	cfg := Config{
		Root:      v.GetString("root"),
		DevkitPPC: v.GetString("devkitppc"),
		Layout: linker.MemoryMap{
			FreeSpaceStart: v.GetUint32("free-space-start"),
			TextStart:      v.GetUint32("text-start"),
			DataStart:      v.GetUint32("data-start"),
		},
		CFlags:   v.GetStringSlice("cflags"),
		LogLevel: v.GetString("log-level"),
	}

	l := cfg.Layout
	if !(l.TextStart <= l.FreeSpaceStart && l.FreeSpaceStart < l.DataStart) {
		return Config{}, errors.Errorf("memory map must satisfy text-start <= free-space-start < data-start, got %#x, %#x, %#x",
			l.TextStart, l.FreeSpaceStart, l.DataStart)
	}
	return cfg, nil
}
