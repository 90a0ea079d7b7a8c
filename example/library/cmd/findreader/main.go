// Command findreader looks up a single reader by email or by name.
//
// The database is configured with a YAML file and SPECQUERY_* environment variables, see package config.
//
//	findreader -config library.yaml -email ada@library.test
//	findreader -name Ada -view
//	findreader -email nobody@library.test -optional
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/specquery-go/config"
	"github.com/AntonStoeckl/specquery-go/example/library"
	"github.com/AntonStoeckl/specquery-go/specquery"
	"github.com/AntonStoeckl/specquery-go/specquery/conversion"
)

const shutdownTimeout = 5 * time.Second

type flags struct {
	configPath    string
	email         string
	name          string
	view          bool
	optional      bool
	observability bool
}

func main() {
	f := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f); err != nil {
		if errors.Is(err, library.ErrReaderNotFound) {
			fmt.Fprintln(os.Stderr, "reader not found")
			os.Exit(2)
		}

		log.Fatalf("findreader: %v", err)
	}
}

func parseFlags() flags {
	var f flags

	flag.StringVar(&f.configPath, "config", "specquery.yaml", "Path to the YAML config file (optional)")
	flag.StringVar(&f.email, "email", "", "Email of the reader to find")
	flag.StringVar(&f.name, "name", "", "Name of the active reader to find")
	flag.BoolVar(&f.view, "view", false, "Print the public view instead of the full reader")
	flag.BoolVar(&f.optional, "optional", false, "Print null instead of failing when nothing matches")
	flag.BoolVar(&f.observability, "observability-enabled", false, "Enable OpenTelemetry observability")
	flag.Parse()

	if (f.email == "") == (f.name == "") {
		log.Fatal("exactly one of -email and -name is required")
	}

	return f
}

func run(ctx context.Context, f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var observability *config.Observability

	if f.observability {
		observability, err = cfg.NewObservability(ctx)
		if err != nil {
			return err
		}

		observability.Install()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if shutdownErr := observability.Shutdown(shutdownCtx); shutdownErr != nil {
				log.Printf("observability shutdown: %v", shutdownErr)
			}
		}()
	}

	resolverOptions := config.NewResolverOptions(logger, observability)
	providerOptions := config.NewProviderOptions(logger, observability)

	provider, closeDB, err := config.NewProvider(ctx, cfg, providerOptions...)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	conversions := conversion.NewService()
	library.RegisterConversions(conversions)

	resolver, err := specquery.NewResolver(conversions, resolverOptions...)
	if err != nil {
		return err
	}

	repository, err := library.NewReaderRepository(provider, resolver)
	if err != nil {
		return err
	}

	spec := library.ReaderWithEmail(f.email)
	if f.name != "" {
		spec = library.ActiveReaderNamed(f.name)
	}

	result, err := find(ctx, repository, spec, f)
	if err != nil {
		return err
	}

	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))

	return nil
}

func find(ctx context.Context, repository *library.ReaderRepository, spec specquery.Specification, f flags) (any, error) {
	switch {
	case f.optional:
		return repository.FindOptionalReader(ctx, spec)
	case f.view:
		return repository.FindReaderView(ctx, spec)
	default:
		return repository.FindReader(ctx, spec)
	}
}
