package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/3leaps/lsfq/pkg/lsf"
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Show the effective driver options",
	Long: `Show the driver options after configuration, environment and flags are
applied, together with the strategy they select.

--set name=value applies extra values first and fails on unknown names or
on a strategy that cannot be initialized, which makes it useful for checking
a configuration before submitting.`,
	Args: cobra.NoArgs,
	RunE: runOptions,
}

var optionsSet []string

func init() {
	rootCmd.AddCommand(optionsCmd)
	optionsCmd.Flags().StringArrayVar(&optionsSet, "set", nil, "Set an option (name=value); may be repeated")
}

type optionsResult struct {
	Mode    lsf.Mode          `json:"mode" yaml:"mode"`
	Options map[string]string `json:"options" yaml:"options"`
}

func runOptions(cmd *cobra.Command, _ []string) error {
	s, err := openSession(appConfig)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, kv := range optionsSet {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return exitError(ExitInvalidArgument, "Invalid --set", fmt.Errorf("expected name=value, got %q", kv))
		}
		if err := s.driver.SetOption(strings.TrimSpace(name), value); err != nil {
			return driverExitError("Invalid option", err)
		}
	}

	snap := s.driver.Options()
	res := optionsResult{Mode: s.driver.Mode(), Options: make(map[string]string, len(snap))}
	for _, name := range lsf.OptionNames() {
		res.Options[name] = snap[name]
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, res); ok {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "mode\t%s\n", res.Mode)
	for _, name := range lsf.OptionNames() {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", name, orDash(res.Options[name]))
	}
	return tw.Flush()
}
