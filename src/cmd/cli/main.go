// Package main provides the release-agent CLI, the collection of release
// automation commands for the bottom project: triggering and polling CI
// builds, generating package manifests, validating configs against the
// published schema, and resolving docs-site redirects.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"release-agent/src/choco"
	"release-agent/src/cirrus"
	"release-agent/src/config"
	"release-agent/src/docs"
	"release-agent/src/logger"
	"release-agent/src/packager"
	"release-agent/src/schemacheck"
)

// exitCodeExhausted is returned when every build attempt failed. Kept
// distinct from generic errors so CI callers can tell "builds kept failing"
// apart from "the tool itself broke".
const exitCodeExhausted = 2

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "release-agent",
	Short: "Release automation tooling for the bottom project",
	Long: `release-agent bundles the small automation steps of the release
process:

- cirrus: trigger a Cirrus CI build, poll it, and download artifacts
- package: hash deployment files into a packaging template
- choco: generate the Chocolatey nuspec and install script
- validate: check a TOML config against a JSON Schema
- nightly-redirect: resolve the docs-site nightly release redirect`,
}

// cirrusCmd is the build trigger & poll orchestrator. Positional arguments
// mirror the historical script: branch, download dir, build type label, and
// an optional previously created build id to resume instead of submitting.
var cirrusCmd = &cobra.Command{
	Use:   "cirrus <branch> [dl-dir] [build-type] [build-id]",
	Short: "Trigger a Cirrus CI build and download its release artifacts",
	Long: `Submits a build for the given branch through Cirrus CI's GraphQL API,
waits out the warm-up period, polls for completion with bounded retries, and
downloads the release artifacts on success.

The Cirrus CI API key is read from the CIRRUS_KEY environment variable.

When a build id is supplied, no new build is submitted; the existing build is
checked once and its artifacts downloaded if it completed.

Exit codes: 0 on success, 2 when all attempts are exhausted.`,
	Args: cobra.RangeArgs(1, 4),
	Run: func(cmd *cobra.Command, args []string) {
		branch := args[0]
		outDir := "."
		buildType := "build"
		buildID := ""
		if len(args) >= 2 && args[1] != "" {
			outDir = args[1]
		}
		if len(args) >= 3 && args[2] != "" {
			buildType = args[2]
		}
		if len(args) >= 4 {
			buildID = args[3]
		}

		cfg, err := config.LoadFromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}

		configPath, _ := cmd.Flags().GetString("config")
		orch, err := config.LoadOrchestration(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}

		log := logger.NewConsoleLogger()
		log.Info("Running Cirrus build for branch '%s'", branch)

		client := cirrus.NewClient(orch.Endpoint, cfg.CirrusKey)
		orchestrator := cirrus.NewOrchestrator(client, orch, log)

		ctx := context.Background()
		var result *cirrus.Result
		if buildID != "" {
			result, err = orchestrator.Resume(ctx, buildID, outDir)
		} else {
			result, err = orchestrator.Run(ctx, branch, buildType, outDir)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, failureStyle.Render(fmt.Sprintf("Build run failed: %v", err)))
			os.Exit(1)
		}

		if !result.Completed {
			fmt.Fprintln(os.Stderr, failureStyle.Render("No completed build; giving up."))
			os.Exit(exitCodeExhausted)
		}

		fmt.Println(successStyle.Render(fmt.Sprintf("Build %s complete, %d artifacts downloaded.", result.BuildID, len(result.Downloaded))))
	},
}

// packageCmd hashes deployment files and substitutes version and hashes into
// a packaging template.
var packageCmd = &cobra.Command{
	Use:   "package <version> <template> <output> <hash-type> <file> [file2 [file3]]",
	Short: "Generate a package file from a template and deployment file hashes",
	Long: `Computes the SHA512/SHA256/SHA1 digest of up to three deployment files
and substitutes $version and $hash1..$hash3 into the template, writing the
result to the output path. Unknown $variables in the template are preserved.`,
	Args: cobra.RangeArgs(5, 7),
	Run: func(cmd *cobra.Command, args []string) {
		in := packager.Input{
			Version:      args[0],
			TemplatePath: args[1],
			OutputPath:   args[2],
			HashType:     args[3],
			Files:        args[4:],
		}

		if err := packager.Generate(in, logger.NewConsoleLogger()); err != nil {
			fmt.Fprintf(os.Stderr, "Packaging failed: %v\n", err)
			os.Exit(1)
		}
	},
}

// chocoCmd generates the Chocolatey nuspec and install script.
var chocoCmd = &cobra.Command{
	Use:   "choco <64bit-file> <version> <nuspec-template> <ps1-template> <out-nuspec> <out-ps1> <out-ps1-dir>",
	Short: "Generate the Chocolatey nuspec and chocolateyinstall.ps1",
	Args:  cobra.ExactArgs(7),
	Run: func(cmd *cobra.Command, args []string) {
		in := choco.Input{
			File64:          args[0],
			Version:         args[1],
			NuspecTemplate:  args[2],
			PS1Template:     args[3],
			GeneratedNuspec: args[4],
			GeneratedPS1:    args[5],
			GeneratedPS1Dir: args[6],
		}

		if err := choco.Generate(in, logger.NewConsoleLogger()); err != nil {
			fmt.Fprintf(os.Stderr, "Chocolatey packaging failed: %v\n", err)
			os.Exit(1)
		}
	},
}

// validateCmd checks a TOML config file against a JSON Schema.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a TOML file against a JSON Schema",
	Long: `Validates a TOML file against a JSON Schema. With --should-fail the
check passes only when the file does NOT conform, which is how the schema's
own negative test fixtures are exercised in CI.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		schema, _ := cmd.Flags().GetString("schema")
		shouldFail, _ := cmd.Flags().GetBool("should-fail")

		result, err := schemacheck.ValidateTOML(schema, file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Validation could not run: %v\n", err)
			os.Exit(1)
		}

		switch {
		case result.Valid && shouldFail:
			fmt.Println(failureStyle.Render("Fail! Expected the file to be rejected."))
			os.Exit(1)
		case result.Valid:
			fmt.Println(successStyle.Render("All good!"))
		case shouldFail:
			fmt.Println(successStyle.Render("Caught error, good!"))
		default:
			fmt.Println(failureStyle.Render(fmt.Sprintf("Fail! %v", result.Detail)))
			os.Exit(1)
		}
	},
}

// nightlyRedirectCmd resolves the docs-site nightly release redirect target.
var nightlyRedirectCmd = &cobra.Command{
	Use:   "nightly-redirect",
	Short: "Print the redirect target for the newest nightly release",
	Long: `Queries the GitHub releases API and prints the URL of the newest
release whose tag contains "nightly-". On any error the general releases page
is printed instead; the docs build treats that as a soft fallback, so this
command never fails.`,
	Run: func(cmd *cobra.Command, args []string) {
		repo, _ := cmd.Flags().GetString("repo")
		log := logger.NewConsoleLogger()

		log.Info("Resolving nightly release redirect...")
		client := docs.NewReleasesClient("")
		target, err := client.NightlyRedirect(context.Background(), repo)
		if err != nil {
			log.Warn("Falling back to the general releases page: %v", err)
		} else {
			log.Info("Nightly release redirect points to %s", target)
		}

		fmt.Println(target)
	},
}

func init() {
	cirrusCmd.Flags().StringP("config", "c", "", "YAML file overriding the orchestration settings (tasks, timing)")

	validateCmd.Flags().StringP("file", "f", "", "The file to check")
	validateCmd.Flags().StringP("schema", "s", "", "The schema to use")
	validateCmd.Flags().Bool("should-fail", false, "Whether the checked file should fail validation")
	_ = validateCmd.MarkFlagRequired("file")
	_ = validateCmd.MarkFlagRequired("schema")

	nightlyRedirectCmd.Flags().String("repo", docs.DefaultRepo, "GitHub repository (owner/name) to query")

	rootCmd.AddCommand(cirrusCmd)
	rootCmd.AddCommand(packageCmd)
	rootCmd.AddCommand(chocoCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(nightlyRedirectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
