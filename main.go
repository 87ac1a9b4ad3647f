package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rubiojr/pinmap/pkg/app"
	"github.com/rubiojr/pinmap/pkg/config"
	"github.com/rubiojr/pinmap/pkg/geo"
	"github.com/rubiojr/pinmap/pkg/gpx"
	"github.com/rubiojr/pinmap/pkg/locstore"
	"github.com/rubiojr/pinmap/pkg/logger"
	"github.com/rubiojr/pinmap/pkg/mapsvc"
	"github.com/rubiojr/pinmap/pkg/querystate"
	"github.com/rubiojr/pinmap/pkg/render"
	"github.com/rubiojr/pinmap/pkg/stats"
)

const desktopID = "io.github.rubiojr.pinmap"

var (
	debugFlag     bool
	dataDirFlag   string
	configDirFlag string
	cacheDirFlag  string

	addrFlag string

	listText    string
	listMinRate int
	listSort    string
	listDesc    bool
	listJSON    bool

	exportOut       string
	importRecursive bool
)

var rootCmd = &cobra.Command{
	Use:           "pinmap",
	Short:         "Bookmark, rate and browse places on a map",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		logger.SetDebug(debugFlag)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the location API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored locations",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show rating and recency statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export locations as GPX",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file-or-dir>",
	Short: "Import GPX waypoints as locations",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&debugFlag, "debug", false, "enable debug logging")
	pf.StringVar(&dataDirFlag, "data-dir", "", "custom data directory (overrides XDG_DATA_HOME)")
	pf.StringVar(&configDirFlag, "config-dir", "", "custom config directory (overrides XDG_CONFIG_HOME)")
	pf.StringVar(&cacheDirFlag, "cache-dir", "", "custom cache directory (overrides XDG_CACHE_HOME)")

	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (default from config, "+config.DefaultAddr+")")

	listCmd.Flags().StringVar(&listText, "txt", "", "only names or addresses containing this text")
	listCmd.Flags().IntVar(&listMinRate, "min-rate", 0, "minimum rating")
	listCmd.Flags().StringVar(&listSort, "sort", "", "sort field: name, rate, createdAt, updatedAt")
	listCmd.Flags().BoolVar(&listDesc, "desc", false, "sort descending")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")

	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "write to file instead of stdout")
	importCmd.Flags().BoolVarP(&importRecursive, "recursive", "r", false, "walk subdirectories")

	rootCmd.AddCommand(serveCmd, listCmd, statsCmd, exportCmd, importCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		logger.Error("%v", err)
		logger.Sync()
		os.Exit(1)
	}
}

// env is what every command needs: directories, configuration and an
// open store.
type env struct {
	dirs  dirs
	cfg   *config.Config
	store locstore.Store
}

func openEnv(ctx context.Context) (*env, error) {
	d, err := resolveDirs(dataDirFlag, configDirFlag, cacheDirFlag)
	if err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}
	cfgPath := filepath.Join(d.config, config.FileName)
	if fileExists(cfgPath) {
		logger.Debug("using config %s", cfgPath)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg.Resolve(d.data)

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	return &env{dirs: d, cfg: cfg, store: store}, nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (locstore.Store, error) {
	switch sc.Driver {
	case config.DriverMongo:
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		logger.Debug("store: mongo %s/%s", sc.MongoDatabase, sc.Collection)
		return locstore.OpenMongo(ctx, sc.MongoURI, sc.MongoDatabase, sc.Collection)
	default:
		logger.Debug("store: sqlite %s", sc.Path)
		return locstore.OpenSQLite(sc.Path)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.store.Close()

	addr := e.cfg.Addr
	if addrFlag != "" {
		addr = addrFlag
	}

	geocoder, err := mapsvc.NewNominatim(mapsvc.NominatimConfig{
		Server:    e.cfg.Map.NominatimServer,
		Retries:   e.cfg.Map.NominatimRetries,
		CachePath: filepath.Join(e.dirs.cache, "geocode.sqlite"),
	})
	if err != nil {
		return err
	}
	defer geocoder.Close()

	var positioner mapsvc.Positioner
	if p := e.cfg.Position; p != nil {
		positioner = mapsvc.StaticPosition{Lat: p.Lat, Lng: p.Lng}
	} else {
		gc := mapsvc.NewGeoClue(desktopID)
		defer gc.Close()
		positioner = gc
	}

	maps := mapsvc.New(mapsvc.Config{TileURL: e.cfg.Map.TileURL}, geocoder, positioner)
	bridge, err := querystate.NewBridge("http://" + addr + "/")
	if err != nil {
		return err
	}
	notifier := render.NewNotifier(e.cfg.Notify.Delay)
	defer notifier.Stop()
	page := render.NewPage(notifier)
	clip := &app.MemoryClipboard{}
	svc := locstore.NewService(e.store)
	ctl := app.New(svc, maps, bridge, page, app.Options{
		Clipboard: clip,
		UserZoom:  e.cfg.Map.UserZoom,
	})

	a := &api{
		ctl:   ctl,
		svc:   svc,
		page:  page,
		maps:  maps,
		tiles: mapsvc.NewTileProxy(mapsvc.TileConfig{Upstream: e.cfg.Map.TileURL, DiskDir: filepath.Join(e.dirs.cache, "tiles")}),
		clip:  clip,
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.routes(debugFlag),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := ctl.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		// startup failures are already on the page; keep serving
		if err := ctl.Dispatch(gctx, app.Start{}); err != nil {
			logger.Error("startup: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("pinmap API listening on http://%s/api/page", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.store.Close()

	field, err := locstore.ParseSortField(listSort)
	if err != nil {
		return err
	}
	svc := locstore.NewService(e.store)
	svc.SetFilter(locstore.Filter{Text: listText, MinRate: listMinRate})
	if field != locstore.SortNone {
		svc.SetSort(locstore.NewSort(field, listDesc))
	}
	locs, err := svc.List(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(locs)
	}
	if len(locs) == 0 {
		fmt.Fprintln(out, render.EmptyList)
		return nil
	}
	var userPos *geo.Coords
	if p := e.cfg.Position; p != nil {
		userPos = &geo.Coords{Lat: p.Lat, Lng: p.Lng}
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tRATE\tADDRESS\tDISTANCE\tTIMES")
	// Items keeps the order of locs
	for i, it := range render.Items(locs, "", userPos, time.Now()) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", it.ID, it.Name, it.Stars, locs[i].Geo.Address, it.Distance, it.Times())
	}
	return tw.Flush()
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.store.Close()

	var rating, recency locstore.Tally
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rating, err = e.store.CountByRating(gctx)
		return err
	})
	g.Go(func() (err error) {
		recency, err = e.store.CountByRecency(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, section := range []struct {
		title string
		tally locstore.Tally
	}{{"Rating", rating}, {"Last update", recency}} {
		chart := stats.Pie(section.tally)
		fmt.Fprintf(out, "%s (total %d)\n", section.title, section.tally.Total)
		for _, s := range chart.Slices {
			fmt.Fprintf(out, "  %-8s %4d  %3d%%  %s\n", s.Label, s.Count, s.Percent, s.Color)
		}
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.store.Close()

	locs, err := e.store.Query(ctx, locstore.Filter{}, locstore.Sort{})
	if err != nil {
		return err
	}
	if exportOut == "" {
		return gpx.Encode(cmd.OutOrStdout(), locs)
	}
	if err := gpx.WriteFile(exportOut, locs); err != nil {
		return err
	}
	logger.Info("exported %d locations to %s", len(locs), exportOut)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.store.Close()

	wps, err := gpx.ReadPath(args[0], importRecursive)
	if err != nil {
		return err
	}
	res, err := gpx.Import(ctx, e.store, wps)
	if err != nil {
		return err
	}
	logger.Info("imported %d locations (%d duplicates, %d skipped) from %s", res.Added, res.Duplicate, res.Skipped, args[0])
	return nil
}
