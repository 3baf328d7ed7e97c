package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/expense-importer/internal/config"
	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/dvloznov/expense-importer/internal/gcsuploader"
	"github.com/dvloznov/expense-importer/internal/infra"
	"github.com/dvloznov/expense-importer/internal/logger"
	"github.com/dvloznov/expense-importer/internal/pipeline"
	"github.com/dvloznov/expense-importer/internal/storage"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewFromConfig(cfg.Log.Level, true)

	switch os.Args[1] {
	case "import":
		runImport(log, cfg)
	case "preview":
		runPreview(log, cfg)
	case "years":
		runYears(log, cfg)
	case "list":
		runList(log, cfg)
	case "stats":
		runStats(log, cfg)
	case "delete":
		runDelete(log, cfg)
	case "search":
		runSearch(log, cfg)
	case "uploads":
		runUploads(log, cfg)
	case "download":
		runDownload(log, cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Expense Importer CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  import    Normalize a spreadsheet and save it under a year")
	fmt.Println("  preview   Show the normalized first rows of a spreadsheet")
	fmt.Println("  years     List years holding expenses")
	fmt.Println("  list      List the expenses of a year")
	fmt.Println("  stats     Show statistics for a year")
	fmt.Println("  delete    Delete every expense of a year")
	fmt.Println("  search    Search expenses by year, category, dates and amount")
	fmt.Println("  uploads   List archived spreadsheets of a year")
	fmt.Println("  download  Download an archived spreadsheet from GCS")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, log zerolog.Logger, cfg config.Config) storage.Store {
	store, err := infra.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	return store
}

func requireYear(log zerolog.Logger, year string) {
	if err := pipeline.ValidateYear(year); err != nil {
		log.Fatal().Err(err).Msg("Error: -year is required")
	}
}

func readUpload(log zerolog.Logger, path, year string) pipeline.Upload {
	if path == "" {
		log.Fatal().Msg("Error: -file is required")
	}
	requireYear(log, year)

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to read file")
	}
	return pipeline.Upload{Filename: filepath.Base(path), Year: year, Data: data}
}

func runImport(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the .xlsx spreadsheet")
	year := fs.String("year", "", "Year of the expenses (YYYY)")
	archive := fs.Bool("archive", true, "Archive the spreadsheet to the configured GCS bucket")
	fs.Parse(os.Args[2:])

	upload := readUpload(log, *filePath, *year)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store := openStore(ctx, log, cfg)
	defer store.Close()

	var archiver pipeline.StorageService
	if *archive {
		svc, err := infra.OpenArchive(ctx, cfg, log)
		if err != nil {
			log.Warn().Err(err).Msg("Upload archive unavailable")
		} else if svc != nil {
			defer svc.Close()
			archiver = svc
		}
	}

	im := pipeline.NewImporter(store, infra.OpenNormalizer(ctx, cfg, log), archiver, cfg.Server.MaxUploadBytes, log)
	result, err := im.Import(ctx, upload)
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	printJSON(result)
	if result.Status == domain.StatusError {
		os.Exit(1)
	}
}

func runPreview(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the .xlsx spreadsheet")
	year := fs.String("year", "", "Year of the expenses (YYYY)")
	fs.Parse(os.Args[2:])

	upload := readUpload(log, *filePath, *year)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	im := pipeline.NewImporter(nil, infra.OpenNormalizer(ctx, cfg, log), nil, cfg.Server.MaxUploadBytes, log)
	result, err := im.Preview(ctx, upload)
	if err != nil {
		log.Fatal().Err(err).Msg("Preview failed")
	}

	printJSON(result)
}

func runYears(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("years", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	ctx := context.Background()
	store := openStore(ctx, log, cfg)
	defer store.Close()

	years, err := store.GetAllYears(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list years")
	}

	printJSON(map[string]interface{}{"years": years, "count": len(years)})
}

func runList(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	year := fs.String("year", "", "Year to list (YYYY)")
	limit := fs.Int("limit", 100, "Maximum number of expenses, 0 for all")
	fs.Parse(os.Args[2:])

	requireYear(log, *year)

	ctx := context.Background()
	store := openStore(ctx, log, cfg)
	defer store.Close()

	expenses, err := store.GetExpensesByYear(ctx, *year, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list expenses")
	}

	printJSON(map[string]interface{}{"year": *year, "count": len(expenses), "expenses": expenses})
}

func runStats(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	year := fs.String("year", "", "Year to summarize (YYYY)")
	fs.Parse(os.Args[2:])

	requireYear(log, *year)

	ctx := context.Background()
	store := openStore(ctx, log, cfg)
	defer store.Close()

	stats, err := store.GetYearStatistics(ctx, *year)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to compute statistics")
	}

	printJSON(stats)
}

func runDelete(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	year := fs.String("year", "", "Year to delete (YYYY)")
	yes := fs.Bool("yes", false, "Confirm the deletion")
	fs.Parse(os.Args[2:])

	requireYear(log, *year)
	if !*yes {
		log.Fatal().Str("year", *year).Msg("Refusing to delete without -yes")
	}

	ctx := context.Background()
	store := openStore(ctx, log, cfg)
	defer store.Close()

	result := store.DeleteExpensesByYear(ctx, *year)
	printJSON(result)
	if result.Status == domain.StatusError {
		os.Exit(1)
	}
}

func runSearch(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	year := fs.String("year", "", "Year partition")
	category := fs.String("category", "", "Exact category")
	from := fs.String("from", "", "Earliest date (YYYY-MM-DD)")
	to := fs.String("to", "", "Latest date (YYYY-MM-DD)")
	minAmount := fs.Float64("min", 0, "Minimum amount")
	maxAmount := fs.Float64("max", 0, "Maximum amount")
	fs.Parse(os.Args[2:])

	f := domain.SearchFilter{Year: *year, Category: *category, DateFrom: *from, DateTo: *to}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "min":
			f.MinAmount = minAmount
		case "max":
			f.MaxAmount = maxAmount
		}
	})

	ctx := context.Background()
	store := openStore(ctx, log, cfg)
	defer store.Close()

	expenses, err := store.SearchExpenses(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("Search failed")
	}

	printJSON(map[string]interface{}{"count": len(expenses), "expenses": expenses})
}

func runUploads(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("uploads", flag.ExitOnError)
	year := fs.String("year", "", "Year to list (YYYY)")
	fs.Parse(os.Args[2:])

	requireYear(log, *year)

	ctx := context.Background()
	svc, err := infra.OpenArchive(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload archive unavailable")
	}
	if svc == nil {
		log.Fatal().Msg("Error: gcs.bucket is not configured")
	}
	defer svc.Close()

	files, err := svc.ListUploads(ctx, *year)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list uploads")
	}

	printJSON(map[string]interface{}{"year": *year, "files": files, "count": len(files)})
}

func runDownload(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	uri := fs.String("uri", "", "gs:// URI of the archived spreadsheet")
	out := fs.String("out", "", "Output path (defaults to the object's filename)")
	fs.Parse(os.Args[2:])

	if *uri == "" {
		log.Fatal().Msg("Error: -uri is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg.GCS.Bucket = bucketOrDefault(cfg.GCS.Bucket, *uri)
	svc, err := infra.OpenArchive(ctx, cfg, log)
	if err != nil || svc == nil {
		log.Fatal().Err(err).Msg("Upload archive unavailable")
	}
	defer svc.Close()

	data, err := svc.FetchFromGCS(ctx, *uri)
	if err != nil {
		log.Fatal().Err(err).Msg("Download failed")
	}

	if *out == "" {
		*out = svc.ExtractFilenameFromGCSURI(*uri)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", *out).Msg("Failed to write file")
	}

	fmt.Printf("Downloaded %s to %s (%d bytes)\n", *uri, *out, len(data))
}

// bucketOrDefault lets download work without gcs.bucket by taking the
// bucket from the URI.
func bucketOrDefault(bucket, uri string) string {
	if bucket != "" {
		return bucket
	}
	if b, _, err := gcsuploader.ParseGCSURI(uri); err == nil {
		return b
	}
	return bucket
}
