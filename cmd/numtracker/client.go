package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Query or configure a running numtracker service",
}

// --- client configuration ------------------------------------------------

var configurationInstruments []string

var clientConfigurationCmd = &cobra.Command{
	Use:   "configuration",
	Short: "Print stored configuration for one or more instruments",
	RunE: func(cmd *cobra.Command, args []string) error {
		const query = `
			query($filters: [String!]) {
				configurations(instrumentFilters: $filters) {
					instrument
					scanNumber
					visitDirectory
					scanFile
					detectorFile
					fileExtension
					fileScanNumber
				}
			}`
		variables := map[string]any{}
		if len(configurationInstruments) > 0 {
			variables["filters"] = configurationInstruments
		}

		var result struct {
			Configurations []map[string]any `json:"configurations"`
		}
		if err := gqlDo(query, variables, &result); err != nil {
			return err
		}
		return printYAML(result.Configurations)
	},
}

// --- client configure ------------------------------------------------------

var (
	configureDirectory            string
	configureScan                 string
	configureDetector             string
	configureScanNumber           int64
	configureTrackerFileExtension string
)

var clientConfigureCmd = &cobra.Command{
	Use:   "configure <instrument>",
	Short: "Create or update an instrument's configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instrument := args[0]

		const mutation = `
			mutation($instrument: String!, $cfg: ConfigurationUpdate!) {
				configure(instrument: $instrument, configuration: $cfg) {
					instrument
					scanNumber
					visitDirectory
					scanFile
					detectorFile
					fileExtension
				}
			}`
		cfg := map[string]any{}
		if cmd.Flags().Changed("directory") {
			cfg["visitDirectory"] = configureDirectory
		}
		if cmd.Flags().Changed("scan") {
			cfg["scanFile"] = configureScan
		}
		if cmd.Flags().Changed("detector") {
			cfg["detectorFile"] = configureDetector
		}
		if cmd.Flags().Changed("scan-number") {
			cfg["scanNumber"] = configureScanNumber
		}
		if cmd.Flags().Changed("tracker-file-extension") {
			cfg["trackerFileExtension"] = configureTrackerFileExtension
		}

		var result struct {
			Configure map[string]any `json:"configure"`
		}
		if err := gqlDo(mutation, map[string]any{"instrument": instrument, "cfg": cfg}, &result); err != nil {
			return err
		}
		return printYAML(result.Configure)
	},
}

// --- client visit-directory -------------------------------------------------

var clientVisitDirectoryCmd = &cobra.Command{
	Use:   "visit-directory <instrument> <session>",
	Short: "Resolve the session data directory for an instrument",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		const query = `
			query($instrument: String!, $session: String!) {
				paths(instrument: $instrument, session: $session) {
					instrument
					session
					directory
				}
			}`
		var result struct {
			Paths map[string]any `json:"paths"`
		}
		if err := gqlDo(query, map[string]any{"instrument": args[0], "session": args[1]}, &result); err != nil {
			return err
		}
		return printYAML(result.Paths)
	},
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(v)
}

func init() {
	clientConfigurationCmd.Flags().StringSliceVarP(&configurationInstruments, "instrument", "i", nil, "restrict to these instruments (repeatable)")

	clientConfigureCmd.Flags().StringVar(&configureDirectory, "directory", "", "directory (visit) template")
	clientConfigureCmd.Flags().StringVar(&configureScan, "scan", "", "scan-file template")
	clientConfigureCmd.Flags().StringVar(&configureDetector, "detector", "", "detector-file template")
	clientConfigureCmd.Flags().Int64Var(&configureScanNumber, "scan-number", 0, "absolute scan-number override")
	clientConfigureCmd.Flags().StringVar(&configureTrackerFileExtension, "tracker-file-extension", "", "tracker file extension override")

	clientCmd.AddCommand(clientConfigurationCmd)
	clientCmd.AddCommand(clientConfigureCmd)
	clientCmd.AddCommand(clientVisitDirectoryCmd)
}
