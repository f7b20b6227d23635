// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"image-collector/pkg/registry"
)

var registryPath string

func main() {
	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{initCmd, updateCmd, validateCmd} {
		fs.StringVar(&registryPath, "path", "configs/job-registry.json", "Path to registry file")
	}
	force := initCmd.Bool("force", false, "Overwrite an existing registry file")

	idUpdate := updateCmd.String("id", "", "Job type ID to update")
	field := updateCmd.String("field", "", "Field to update (displayName, description, queue, version, timeout, retries)")
	value := updateCmd.String("value", "", "New value for the field")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		initCmd.Parse(os.Args[2:])
		if err := initRegistry(*force); err != nil {
			fmt.Printf("Error writing registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default registry to %s\n", registryPath)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateJobType(*idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating job type: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated job type %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func initRegistry(force bool) error {
	if _, err := os.Stat(registryPath); err == nil && !force {
		return fmt.Errorf("%s already exists, use -force to overwrite", registryPath)
	}
	if err := os.MkdirAll(filepath.Dir(registryPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return registry.Save(registryPath, registry.Default())
}

func updateJobType(id, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	found := false
	for i := range reg.JobTypes {
		if reg.JobTypes[i].ID != id {
			continue
		}
		found = true
		jt := &reg.JobTypes[i]
		switch field {
		case "displayName":
			jt.DisplayName = value
		case "description":
			jt.Description = value
		case "queue":
			jt.Queue = value
		case "version":
			jt.Version = value
		case "timeout":
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("invalid timeout value: %w", err)
			}
			jt.Timeout = value
		case "retries":
			retries, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid retries value: %w", err)
			}
			jt.Retries = retries
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		break
	}
	if !found {
		return fmt.Errorf("job type with ID %s not found", id)
	}
	return registry.Save(registryPath, reg)
}

func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if len(reg.JobTypes) == 0 {
		return fmt.Errorf("registry contains no job types")
	}

	ids := make(map[string]bool)
	for _, jt := range reg.JobTypes {
		if jt.ID == "" {
			return fmt.Errorf("job type missing required field: id")
		}
		if ids[jt.ID] {
			return fmt.Errorf("duplicate job type ID: %s", jt.ID)
		}
		ids[jt.ID] = true
		if jt.Queue == "" {
			return fmt.Errorf("job type %s missing required field: queue", jt.ID)
		}
		if jt.Timeout != "" {
			if _, err := time.ParseDuration(jt.Timeout); err != nil {
				return fmt.Errorf("job type %s has invalid timeout %q", jt.ID, jt.Timeout)
			}
		}
	}
	if _, err := reg.Validator(); err != nil {
		return err
	}

	fmt.Printf("Registry validation passed. Found %d job types.\n", len(reg.JobTypes))
	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  init     Write the built-in job registry
  update   Update a job type's field
  validate Validate the registry file and compile its input schemas
  help     Show this help message

Examples:
  registry-updater init -path configs/job-registry.json
  registry-updater update -id collect-item -field retries -value 5
  registry-updater validate -path configs/job-registry.json

Use 'registry-updater <command> -h' for more information about a command.
` + "\n")
}
