package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/habforecast/eo-fetcher/catalog"
	"github.com/habforecast/eo-fetcher/common"
	"github.com/habforecast/eo-fetcher/downloader"
	"github.com/habforecast/eo-fetcher/interface/provider"
	"github.com/habforecast/eo-fetcher/interface/session"
	"github.com/habforecast/eo-fetcher/service"
	"github.com/habforecast/eo-fetcher/service/log"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	userAgent    = "eo-fetcher/1.0"
	probeTimeout = time.Minute
)

type config struct {
	OutDir       string
	Username     string
	Password     string
	Netrc        string
	PersistNetrc bool
	CookieFile   string
	Retries      int
	RetryDelay   time.Duration
	SkipExisting bool
	Verbose      bool
	EnvFile      string
	ReportFile   string

	DaymetURL     string
	OceanColorURL string
	StatusAddr    string
	ArchiveURI    string
	ArchiveZip    string
	Restore       bool
	PostCommand   string
	EventQueue    string
	PsProject     string
	PgqConnection string
	Inventory     catalog.Inventory
}

const usage = `usage: downloader [flags] <variant> [arguments]

variants:
  daymet  <YEAR|Y1-Y2> [VAR ...]          Daymet V4 daily files (variables: %s)
  daymet  -list urls.txt                  a list of urls, one per line
  monthly <YEAR|Y1-Y2> [SAT] [REGION] [START_MONTH] [END_MONTH]
                                          Ocean Color ILW monthly composites (default S3B CONUS 1 12)
  daily   <YEAR|Y1-Y2> [SAT] [REGION] [START_DATE] [END_DATE]
                                          Ocean Color ILW daily composites (default S3M CONUS, whole year)

flags:
`

func newAppConfig(args []string) (*config, error) {
	config := config{}
	flags := flag.NewFlagSet("downloader", flag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), usage, strings.Join(common.DaymetVariables, " "))
		flags.PrintDefaults()
	}

	// Global config
	flags.StringVar(&config.OutDir, "out", ".", "download root")
	flags.BoolVar(&config.SkipExisting, "skip-existing", false, "skip any non-empty local file without checking the remote file")
	flags.IntVar(&config.Retries, "retries", -1, "number of retries in case of temporary failure (default: 0 for daymet, 3 otherwise)")
	flags.DurationVar(&config.RetryDelay, "retry-delay", 0, "delay between two retries (default 10s)")
	flags.BoolVar(&config.Verbose, "verbose", false, "debug logs")
	flags.StringVar(&config.EnvFile, "env-file", ".env", "file of environment variables (optional)")
	flags.StringVar(&config.ReportFile, "report", "", "write the report of the batch as json in this file (optional)")
	flags.StringVar(&config.DaymetURL, "daymet-url", provider.DaymetBaseURL, "base url of the Daymet files")
	flags.StringVar(&config.OceanColorURL, "oceancolor-url", provider.OceanColorBaseURL, "base url of the Ocean Color files")

	// Credentials
	flags.StringVar(&config.Username, "username", "", "Earthdata login (default: $EARTHDATA_USERNAME, then the netrc file, then prompt)")
	flags.StringVar(&config.Password, "password", "", "Earthdata password (default: $EARTHDATA_PASSWORD)")
	flags.StringVar(&config.Netrc, "netrc", session.DefaultUserNetrc(), "netrc file of the user")
	flags.BoolVar(&config.PersistNetrc, "persist-netrc", false, "add the credentials to the netrc file of the user if it has no entry for "+session.EarthdataMachine)
	flags.StringVar(&config.CookieFile, "cookies", session.DefaultCookieFile(), "cookie file, loaded at startup and saved at the end (empty: no persistence)")

	// Side services
	flags.StringVar(&config.StatusAddr, "status-addr", "", "address of the status endpoint serving /progress and /metrics (optional, e.g. :9000)")
	flags.StringVar(&config.ArchiveURI, "archive-uri", "", "mirror the fetched files to this storage (optional, local path, gs:// or s3://)")
	flags.StringVar(&config.ArchiveZip, "archive-zip", "", "save the files of the batch as one zip file in the archive instead of file by file (optional)")
	flags.BoolVar(&config.Restore, "restore", false, "restore the files missing locally from the archive (-archive-uri) before fetching them")
	flags.StringVar(&config.PostCommand, "post-command", "", "command to run on every fetched file, appended as last argument (optional)")

	// Messaging
	flags.StringVar(&config.EventQueue, "event-queue", "", "name of the queue for fetch events (pgqueue or pubsub topic, optional)")
	flags.StringVar(&config.PsProject, "ps-project", "", "pubsub project (gcp only/not required in local usage)")
	flags.StringVar(&config.PgqConnection, "pgq-connection", "", "enable pgq messaging system with a connection to the database")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(config.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("env-file %s: %w", config.EnvFile, err)
	}
	if config.Username == "" {
		config.Username = os.Getenv("EARTHDATA_USERNAME")
	}
	if config.Password == "" {
		config.Password = os.Getenv("EARTHDATA_PASSWORD")
	}

	if config.OutDir == "" {
		return nil, fmt.Errorf("missing out config flag")
	}
	if config.ArchiveZip != "" && config.ArchiveURI == "" {
		return nil, fmt.Errorf("archive-zip requires archive-uri")
	}
	if config.Restore && config.ArchiveURI == "" {
		return nil, fmt.Errorf("restore requires archive-uri")
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return nil, fmt.Errorf("missing variant")
	}
	inv, err := newInventory(&config, flags.Arg(0), flags.Args()[1:])
	if err != nil {
		return nil, err
	}
	config.Inventory = inv
	return &config, nil
}

// newInventory parses the arguments of the variant
func newInventory(config *config, variant string, args []string) (catalog.Inventory, error) {
	flags := flag.NewFlagSet(variant, flag.ContinueOnError)
	switch variant {
	case "daymet":
		list := flags.String("list", "", "file of urls to fetch instead of the yearly files")
		if err := flags.Parse(args); err != nil {
			return nil, err
		}
		if *list != "" {
			f, err := os.Open(*list)
			if err != nil {
				return nil, fmt.Errorf("daymet: %w", err)
			}
			defer f.Close()
			urls, err := catalog.ReadURLList(f)
			if err != nil {
				return nil, fmt.Errorf("daymet.%w", err)
			}
			return catalog.URLListInventory{URLs: urls}, nil
		}
		years, err := catalog.ParseYears(flags.Arg(0))
		if err != nil {
			return nil, fmt.Errorf("daymet.%w", err)
		}
		return catalog.DaymetInventory{BaseURL: config.DaymetURL, Years: years, Variables: flags.Args()[1:]}, nil

	case "monthly":
		if err := flags.Parse(args); err != nil {
			return nil, err
		}
		years, err := catalog.ParseYears(flags.Arg(0))
		if err != nil {
			return nil, fmt.Errorf("monthly.%w", err)
		}
		months, err := catalog.ParseMonthRange(flags.Arg(3), flags.Arg(4))
		if err != nil {
			return nil, fmt.Errorf("monthly.%w", err)
		}
		return catalog.MonthlyInventory{
			BaseURL:   config.OceanColorURL,
			Years:     years,
			Satellite: argOr(flags, 1, common.DefaultMonthlySatellite),
			Region:    argOr(flags, 2, common.DefaultRegion),
			Months:    months,
		}, nil

	case "daily":
		if err := flags.Parse(args); err != nil {
			return nil, err
		}
		years, err := catalog.ParseYears(flags.Arg(0))
		if err != nil {
			return nil, fmt.Errorf("daily.%w", err)
		}
		dates, err := catalog.ParseDateRange(flags.Arg(3), flags.Arg(4))
		if err != nil {
			return nil, fmt.Errorf("daily.%w", err)
		}
		return catalog.DailyInventory{
			BaseURL:   config.OceanColorURL,
			Years:     years,
			Satellite: argOr(flags, 1, common.DefaultDailySatellite),
			Region:    argOr(flags, 2, common.DefaultRegion),
			Dates:     dates,
		}, nil
	}
	return nil, fmt.Errorf("unknown variant %q (must be daymet, monthly or daily)", variant)
}

func argOr(flags *flag.FlagSet, i int, def string) string {
	if a := flags.Arg(i); a != "" {
		return a
	}
	return def
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context, args []string) error {
	config, err := newAppConfig(args)
	if err != nil {
		return err
	}
	if config.Verbose {
		log.SetLevel(zap.DebugLevel)
	}
	dataset := config.Inventory.Dataset()

	// Credentials
	creds, err := session.SetupCredentials(session.CredentialOptions{
		Username:  config.Username,
		Password:  config.Password,
		UserNetrc: config.Netrc,
		Prompt:    true,
	})
	if err != nil {
		return err
	}
	defer creds.Close()
	if config.PersistNetrc {
		added, err := creds.PersistTo(config.Netrc)
		if err != nil {
			return err
		}
		if added {
			log.Logger(ctx).Sugar().Infof("credentials of %s added to %s", creds.Machine, config.Netrc)
		}
	}

	opts := downloader.DefaultOptions(dataset)
	opts.OutDir = config.OutDir
	opts.SkipExisting = config.SkipExisting
	if config.Retries >= 0 {
		opts.Retries = config.Retries
	}
	if config.RetryDelay > 0 {
		opts.RetryDelay = config.RetryDelay
	}

	// Session
	sess, err := session.New(ctx, session.Options{
		CookieFile:   config.CookieFile,
		NetrcFile:    creds.File(),
		UserAgent:    userAgent,
		Retries:      opts.Retries,
		RetryDelay:   opts.RetryDelay,
		ProbeTimeout: probeTimeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Logger(ctx).Warn("unable to save cookies", zap.Error(err))
		}
	}()

	var p provider.Provider
	if dataset == common.DatasetDaymet {
		p = provider.NewDaymetProvider(sess.Client(), userAgent)
	} else {
		p = provider.NewOceanColorProvider(sess.Client(), userAgent)
	}

	// Listeners
	registry := prometheus.NewRegistry()
	listeners := []downloader.Listener{downloader.NewMetrics(registry)}
	var logServices []string

	eventPublisher, stopPublisher, err := newEventPublisher(ctx, config)
	if err != nil {
		return err
	}
	if eventPublisher != nil {
		defer stopPublisher()
		listeners = append(listeners, downloader.NewEventListener(eventPublisher))
		logServices = append(logServices, "events on "+config.EventQueue)
	}

	var archiveListener *downloader.ArchiveListener
	if config.ArchiveURI != "" {
		archive, err := service.NewArchive(ctx, config.ArchiveURI)
		if err != nil {
			return fmt.Errorf("archive %s: %w", config.ArchiveURI, err)
		}
		if config.Restore {
			opts.Mirror = archive
		}
		archiveListener = downloader.NewArchiveListener(archive, config.OutDir, config.ArchiveZip == "")
		listeners = append(listeners, archiveListener)
		logServices = append(logServices, "archive to "+config.ArchiveURI)
	}

	if config.PostCommand != "" {
		commandListener, err := downloader.NewCommandListener(config.PostCommand)
		if err != nil {
			return err
		}
		listeners = append(listeners, commandListener)
		logServices = append(logServices, "post-command "+config.PostCommand)
	}

	executor := downloader.NewExecutor(sess, p, opts, listeners...)
	if len(logServices) > 0 {
		log.Logger(ctx).Debug("downloader starts with " + strings.Join(logServices, ", "))
	}

	// Batch and status endpoint
	wg, gctx := errgroup.WithContext(ctx)
	status := newStatusServer(config.StatusAddr, executor, registry)
	if status != nil {
		wg.Go(func() error { return status.Serve(gctx) })
	}
	var report *downloader.Report
	wg.Go(func() error {
		if status != nil {
			defer status.Stop()
		}
		var err error
		report, err = executor.Run(gctx, config.Inventory)
		return err
	})
	batchErr := wg.Wait()

	if report != nil {
		finishBatch(ctx, config, report.Snapshot(), archiveListener)
	}
	return batchErr
}

// finishBatch writes the report and saves the zip of the batch.
// Failures are only logged, they never change the outcome of the batch.
func finishBatch(ctx context.Context, config *config, report downloader.ReportSnapshot, archiveListener *downloader.ArchiveListener) {
	if config.ReportFile != "" {
		if err := service.ToJSON(report, filepath.Dir(config.ReportFile), filepath.Base(config.ReportFile)); err != nil {
			log.Logger(ctx).Warn("unable to write the report", zap.Error(err))
		}
	}
	if archiveListener != nil && config.ArchiveZip != "" && ctx.Err() == nil {
		uri, err := archiveListener.SaveZip(ctx, config.ArchiveZip)
		if err != nil {
			log.Logger(ctx).Warn("unable to archive the batch", zap.Error(err))
		} else if uri != "" {
			log.Logger(ctx).Sugar().Infof("batch archived in %s", uri)
		}
	}
}
