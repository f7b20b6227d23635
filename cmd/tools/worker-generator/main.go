// cmd/tools/worker-generator/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"image-collector/pkg/registry"
)

func main() {
	jobType := flag.String("job-type", "", "Job type ID from the registry (e.g., collect-item)")
	group := flag.String("group", "collection", "Worker group directory under the output directory")
	outputDir := flag.String("output", "./internal/workers/", "Output directory for the generated worker")
	registryPath := flag.String("registry", "configs/job-registry.json", "Path to the job registry JSON file")
	force := flag.Bool("force", false, "Overwrite existing files")
	flag.Parse()

	if *jobType == "" {
		fmt.Println("Usage: worker-generator -job-type <id> [-group <dir>] [-output <dir>] [-registry <path>]")
		fmt.Println("\nExample:")
		fmt.Println("  go run ./cmd/tools/worker-generator -job-type collect-item -group collection")
		os.Exit(1)
	}

	reg, err := registry.LoadOrDefault(*registryPath)
	if err != nil {
		fmt.Printf("Error loading registry from %s: %v\n", *registryPath, err)
		os.Exit(1)
	}

	jt, ok := reg.Lookup(*jobType)
	if !ok {
		fmt.Printf("Job type '%s' not found in registry %s\n", *jobType, *registryPath)
		os.Exit(1)
	}

	data := newWorkerData(jt, *group)
	workerDir := filepath.Join(*outputDir, data.Group, data.ID)

	written, err := writeScaffold(workerDir, data, *force)
	for _, path := range written {
		fmt.Printf("Generated %s\n", path)
	}
	if err != nil {
		fmt.Printf("Error generating worker: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nWorker scaffold generated at: %s\n", workerDir)
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("  1. Implement execute in handler.go\n")
	fmt.Printf("  2. Register the worker on queue %q in cmd/worker-manager/main.go\n", data.Queue)
	fmt.Printf("  3. Add queues.%s to configs/config.yaml\n", data.Queue)
}
