// cmd/tools/category-seeder/main.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"image-collector/internal/common/config"
	"image-collector/internal/common/database"
	apperrors "image-collector/internal/common/errors"
	apphttp "image-collector/internal/common/http"
	"image-collector/internal/common/logger"
	"image-collector/internal/itemstore"
	"image-collector/internal/models"
	"image-collector/internal/planner"
	"image-collector/internal/scheduler"
)

func main() {
	manifestPath := flag.String("manifest", "", "Path to the YAML vocabulary manifest")
	configPath := flag.String("config", "", "Config file (defaults to the standard lookup)")
	plan := flag.Bool("plan", false, "Print the batches a category collection would run")
	apiURL := flag.String("api", "", "Ops API base URL; when set, collection is triggered for each category")
	force := flag.Bool("force", false, "Plan or trigger with forceRestart")
	flag.Parse()

	if *manifestPath == "" {
		fmt.Println("Error: -manifest is required.")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(*manifestPath, *configPath, *plan, *apiURL, *force); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(manifestPath, configPath string, plan bool, apiURL string, force bool) error {
	m, err := loadManifest(manifestPath)
	if err != nil {
		return err
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sum, err := seed(ctx, store, m)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d categories: %d created, %d updated, %d unchanged\n",
		len(m.Categories), sum.Created, sum.Updated, sum.Unchanged)

	if plan {
		log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
		p := planner.New(store, idleQueue{}, planner.OptionsFromConfig(cfg), log)
		for _, c := range m.Categories {
			if err := printPlan(ctx, os.Stdout, p, c.Name, force); err != nil {
				return err
			}
		}
	}

	if apiURL != "" {
		client := apphttp.NewClient(10 * time.Second)
		for _, c := range m.Categories {
			handle, err := triggerCollection(ctx, client, apiURL, c.Name, force)
			if err != nil {
				return err
			}
			state := "queued"
			if handle.Existing {
				state = "already queued"
			}
			fmt.Printf("Category %s: %s as job %s\n", c.Name, state, handle.ID)
		}
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (itemstore.Store, func(), error) {
	if cfg.ItemStore.Driver != "postgres" {
		fmt.Println("Warning: item store driver is not postgres; seeded items live only for this run.")
		return itemstore.NewMemoryStore(), func() {}, nil
	}
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Ping(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	store := itemstore.NewPostgresStore(pg.GetDB(), cfg.ItemStore.Table)
	if err := store.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return store, func() { pg.Close() }, nil
}

// idleQueue lets the planner run without a scheduler; nothing is active.
type idleQueue struct{}

func (idleQueue) Enqueue(context.Context, string, models.JobPayload, scheduler.JobOptions) (scheduler.JobHandle, error) {
	return scheduler.JobHandle{}, errors.New("dry run")
}

func (idleQueue) WaitFor(context.Context, string, string) (scheduler.Job, error) {
	return scheduler.Job{}, errors.New("dry run")
}

func (idleQueue) ActiveJobs(string) ([]scheduler.Job, error) { return nil, nil }

func printPlan(ctx context.Context, w io.Writer, p *planner.Planner, category string, force bool) error {
	ticket, err := p.Plan(ctx, models.CollectCategoryPayload{Category: category, ForceRestart: force}, "")
	if errors.Is(err, apperrors.ErrNoPendingItems) {
		fmt.Fprintf(w, "Category %s: nothing to collect\n", category)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Category %s: %d items in %d batches\n", category, ticket.Total, len(ticket.Batches))
	for i, b := range ticket.Batches {
		names := make([]string, len(b))
		for j, k := range b {
			names[j] = k.Name
		}
		fmt.Fprintf(w, "  batch %d: %s\n", i+1, strings.Join(names, ", "))
	}
	return nil
}

type apiEnvelope struct {
	Status string              `json:"status"`
	Data   scheduler.JobHandle `json:"data"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func triggerCollection(ctx context.Context, client *apphttp.Client, baseURL, category string, force bool) (scheduler.JobHandle, error) {
	body, err := json.Marshal(models.CollectCategoryPayload{Category: category, ForceRestart: force})
	if err != nil {
		return scheduler.JobHandle{}, err
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/categories/" + url.PathEscape(category) + "/collect"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return scheduler.JobHandle{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return scheduler.JobHandle{}, fmt.Errorf("trigger %s: %w", category, err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return scheduler.JobHandle{}, fmt.Errorf("trigger %s: decode response: %w", category, err)
	}
	if env.Status != "ok" {
		if env.Error != nil {
			return scheduler.JobHandle{}, fmt.Errorf("trigger %s: %s: %s", category, env.Error.Code, env.Error.Message)
		}
		return scheduler.JobHandle{}, fmt.Errorf("trigger %s: status %d", category, resp.StatusCode)
	}
	return env.Data, nil
}
