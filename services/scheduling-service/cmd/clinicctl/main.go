// clinicctl is the operator CLI: seed demo data, query and book slots against the CSV
// schedule, mint staff tokens and probe service health.
package main

import (
	"os"
	"strings"

	"github.com/md-rashed-zaman/clinicsched/libs/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	_ = config.LoadDotEnv()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Clinic scheduling operator tool",
		SilenceUsage: true,
	}
	root.AddCommand(seedCmd(), slotsCmd(), tokenCmd(), healthCmd())
	return root
}

// Flags that fall back to the environment variable the services read.
var envFlags = []string{"schedule-csv", "patients-csv", "database-url", "jwt-secret"}

// settings binds a command's flags through viper. An explicitly set flag wins over the
// environment, which wins over the flag default.
func settings(flags *pflag.FlagSet) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(flags)
	for _, key := range envFlags {
		if flags.Lookup(key) != nil {
			_ = v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, "-", "_")))
		}
	}
	return v
}
