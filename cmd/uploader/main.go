// Uploader reads conversion items from a JSON file and pushes them
// through the upload pipeline against the configured account.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/conversion-relay/internal/ads"
	"github.com/ignite/conversion-relay/internal/config"
	"github.com/ignite/conversion-relay/internal/dedup"
	"github.com/ignite/conversion-relay/internal/identity"
	"github.com/ignite/conversion-relay/internal/payload"
	"github.com/ignite/conversion-relay/internal/pipeline"
	"github.com/ignite/conversion-relay/internal/pkg/logger"
	"github.com/ignite/conversion-relay/internal/repository/postgres"
	"github.com/ignite/conversion-relay/internal/retry"
)

// fileItem is one entry of the input items file.
type fileItem struct {
	ConversionAction  string      `json:"conversionAction"`
	Timestamp         interface{} `json:"timestamp"`
	Value             float64     `json:"value"`
	Currency          string      `json:"currency"`
	OrderID           string      `json:"orderId"`
	AdUserData        string      `json:"adUserData"`
	AdPersonalization string      `json:"adPersonalization"`

	Method        string `json:"method"`
	ClickID       string `json:"clickId"`
	AppInstallID  string `json:"appInstallId"`
	WebToAppID    string `json:"webToAppId"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	StreetAddress string `json:"streetAddress"`
	City          string `json:"city"`
	PostalCode    string `json:"postalCode"`
	CountryCode   string `json:"countryCode"`
}

func (f fileItem) toRaw() payload.RawConversion {
	return payload.RawConversion{
		ConversionAction:  f.ConversionAction,
		Timestamp:         f.Timestamp,
		Value:             f.Value,
		Currency:          f.Currency,
		OrderID:           f.OrderID,
		AdUserData:        f.AdUserData,
		AdPersonalization: f.AdPersonalization,
		Method:            f.Method,
		Identity: identity.RawIdentity{
			ClickID:       f.ClickID,
			AppInstallID:  f.AppInstallID,
			WebToAppID:    f.WebToAppID,
			Email:         f.Email,
			Phone:         f.Phone,
			FirstName:     f.FirstName,
			LastName:      f.LastName,
			StreetAddress: f.StreetAddress,
			City:          f.City,
			PostalCode:    f.PostalCode,
			CountryCode:   f.CountryCode,
		},
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	itemsPath := flag.String("items", "items.json", "path to conversion items JSON file")
	validateOnly := flag.Bool("validate-only", false, "validate conversions upstream without applying them")
	single := flag.Bool("single", false, "disable batching, one upload call per item")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.RedactionEnabled())

	items, err := loadItems(*itemsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	if len(items) == 0 {
		fmt.Println("no items to upload")
		return
	}

	client := ads.NewClient(cfg.Ads)
	builder := payload.NewBuilder()
	retryCfg := retry.Config{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay(),
		MaxDelay:   cfg.Retry.MaxDelay(),
	}

	uploader := pipeline.New(client, builder, retryCfg)

	if cfg.Dedup.Enabled {
		cache := dedup.New(cfg.Dedup.RedisAddr, cfg.Dedup.RedisPassword, cfg.Dedup.RedisDB, cfg.Dedup.TTL())
		defer cache.Close()
		uploader.SetDedup(cache)
	}

	acct := payload.AccountContext{
		AccountID:         cfg.Ads.AccountID,
		ManagedAccountID:  cfg.Ads.ManagedAccountID,
		UseManagedAccount: cfg.Ads.UseManagedAccount,
	}

	raw := make([]payload.RawConversion, len(items))
	for i, it := range items {
		raw[i] = it.toRaw()
	}

	opts := pipeline.Options{
		BatchingEnabled: !*single && cfg.Upload.BatchingEnabled,
		BatchSize:       cfg.Upload.BatchSize,
		Mode:            pipeline.Mode(cfg.Upload.Mode),
		ValidateOnly:    *validateOnly || cfg.Upload.ValidateOnly,
		ContinueOnFail:  cfg.Upload.ContinueOnFail,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	started := time.Now()
	results, err := uploader.Run(ctx, acct, raw, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: upload run aborted: %v\n", err)
		os.Exit(1)
	}
	finished := time.Now()

	succeeded := printSummary(results, opts)

	if cfg.Storage.Enabled {
		if err := recordRun(ctx, cfg, acct, results, opts, started, finished); err != nil {
			logger.Warn("failed to record run in audit store", "error", err.Error())
		}
	}

	if succeeded < len(results) {
		os.Exit(2)
	}
}

func loadItems(path string) ([]fileItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading items file: %w", err)
	}
	var items []fileItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing items file: %w", err)
	}
	return items, nil
}

func printSummary(results []pipeline.ItemResult, opts pipeline.Options) int {
	succeeded := 0
	for _, r := range results {
		status := "FAIL"
		if r.Success {
			status = "ok"
			succeeded++
		}
		fmt.Printf("  [%s] item %d (batch %d): %s\n", status, r.Index, r.Batch, r.Message)
	}

	fmt.Println("---------------------------------------------------------")
	fmt.Printf("uploaded %d/%d items", succeeded, len(results))
	if opts.ValidateOnly {
		fmt.Print(" (validate-only)")
	}
	fmt.Println()
	return succeeded
}

func recordRun(ctx context.Context, cfg *config.Config, acct payload.AccountContext, results []pipeline.ItemResult, opts pipeline.Options, started, finished time.Time) error {
	db, err := sql.Open("postgres", cfg.Storage.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening audit database: %w", err)
	}
	defer db.Close()

	accountID, err := acct.Resolve()
	if err != nil {
		return err
	}

	repo := postgres.NewUploadRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	return repo.RecordRun(ctx, &postgres.RunRecord{
		AccountID:    accountID,
		Mode:         string(opts.Mode),
		ValidateOnly: opts.ValidateOnly,
		StartedAt:    started,
		FinishedAt:   finished,
		Results:      results,
	})
}
