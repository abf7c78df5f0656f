package main

import (
	"encoding/json"
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.Version=... -X main.GitCommit=... -X main.BuildTime=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuiltAt   string `json:"built_at"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func currentBuild() buildInfo {
	return buildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuiltAt:   BuildTime,
		GoVersion: goruntime.Version(),
		Platform:  goruntime.GOOS + "/" + goruntime.GOARCH,
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := currentBuild()
		out := cmd.OutOrStdout()

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		_, err := fmt.Fprintf(out, "marketlens %s (%s, built %s) %s %s\n",
			info.Version, info.Commit, info.BuiltAt, info.GoVersion, info.Platform)
		return err
	},
}

func init() {
	versionCmd.Flags().Bool("json", false, "print as JSON")
	rootCmd.AddCommand(versionCmd)
}
