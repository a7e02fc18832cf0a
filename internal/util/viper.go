package util

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the inspected environment variables.
const EnvPrefix = "STATSAGG"

// GetSubViper returns the named section of v, or an empty viper when the section is absent.
// Settings of the section can be overridden through STATSAGG_<SECTION>_<NAME>.
func GetSubViper(v *viper.Viper, section string) *viper.Viper {
	n := v.Sub(section)
	if n == nil {
		n = viper.New()
	}
	InitViper(n, section)
	return n
}

// InitViper sets up env var handling for a viper. Nested vipers do not inherit these
// settings, so it must be run on every sub viper too.
func InitViper(v *viper.Viper, section string) {
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	if section != "" {
		v.SetEnvPrefix(EnvPrefix + "_" + strings.ToUpper(section))
	} else {
		v.SetEnvPrefix(EnvPrefix)
	}
	v.SetTypeByDefaultValue(true)
	v.AutomaticEnv()
}
