// Package choco generates the Chocolatey package files: the nuspec manifest
// and the chocolateyinstall.ps1 script. Chocolatey needs two templated files
// with different variables, so it gets its own flow instead of reusing the
// single-template packager CLI path.
package choco

import (
	"fmt"
	"os"

	"release-agent/src/logger"
	"release-agent/src/packager"
)

// Input describes one Chocolatey packaging run.
type Input struct {
	// File64 is the 64-bit deployment archive; its SHA1 goes into the
	// install script (SHA1 because that is what the feed verifies against).
	File64 string
	// Version is the release version substituted into both templates.
	Version string

	NuspecTemplate string
	PS1Template    string

	GeneratedNuspec string
	GeneratedPS1    string
	// GeneratedPS1Dir is created before writing the install script. It must
	// not already exist; leftovers from a previous run mean something went
	// wrong upstream.
	GeneratedPS1Dir string
}

// Generate writes the nuspec (version only) and the install script (version
// plus the 64-bit archive hash).
func Generate(in Input, log logger.Logger) error {
	log.Info("Generating Chocolatey package for:")
	log.Info("     64-bit: %s", in.File64)
	log.Info("     VERSION: %s", in.Version)
	log.Info("     NUSPEC TEMPLATE: %s", in.NuspecTemplate)
	log.Info("     PS1 TEMPLATE: %s", in.PS1Template)
	log.Info("     GENERATED NUSPEC: %s", in.GeneratedNuspec)
	log.Info("     GENERATED PS1: %s", in.GeneratedPS1)
	log.Info("     GENERATED PS1 DIR: %s", in.GeneratedPS1Dir)

	hash64, err := packager.FileHash(in.File64, "sha1")
	if err != nil {
		return err
	}
	log.Info("Generated hash for 64-bit program: %s", hash64)

	if err := generateFile(in.NuspecTemplate, in.GeneratedNuspec, map[string]string{
		"version": in.Version,
	}, "nuspec", log); err != nil {
		return err
	}

	if err := os.Mkdir(in.GeneratedPS1Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", in.GeneratedPS1Dir, err)
	}

	return generateFile(in.PS1Template, in.GeneratedPS1, map[string]string{
		"version": in.Version,
		"hash_64": hash64,
	}, "chocolatey-install", log)
}

func generateFile(templatePath, outputPath string, vars map[string]string, label string, log logger.Logger) error {
	template, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read %s template: %w", label, err)
	}

	generated := packager.Substitute(string(template), vars)

	log.Info("\n================== Generated %s file ==================\n\n%s\n\n============================================================\n", label, generated)

	if err := os.WriteFile(outputPath, []byte(generated), 0o644); err != nil {
		return fmt.Errorf("failed to write generated %s file: %w", label, err)
	}

	return nil
}
