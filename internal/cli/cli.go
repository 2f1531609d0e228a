// ============================================================================
// slidetiles CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra commands over the decode pool and the overlay pipeline
//
// Command Structure:
//   slidetiles                     # Root command
//   ├── serve                      # Run a decode server (remote executor target)
//   ├── decode <block>             # Decode one compressed block
//   ├── ingest                     # Write a tile from a JSON feature file
//   ├── render                     # Render one overlay tile to PNG
//   ├── palette                    # Print the resolved marker palette
//   ├── status                     # Show configuration and decode server state
//   └── --config, -c               # Config file (default: configs/default.yaml)
//
// serve Command:
//   1. Load config file
//   2. Start the shared decode pool
//   3. Serve slidetiles.decode.v1.BlockDecoder over gRPC
//   4. Start Metrics HTTP server (if enabled)
//   5. Wait for SIGINT/SIGTERM, then stop the server and the pool
//
//   Examples:
//     ./slidetiles serve
//     ./slidetiles serve -c custom-config.yaml --port 50052
//
// ingest Command:
//   JSON format:
//   [
//     {"id": 1, "x": 10.5, "y": 20, "outline": [0,0, 10,0, 10,10], "markers": ["tumor"]}
//   ]
//   "bitmask" may be given instead of "markers".
//
//   Examples:
//     ./slidetiles ingest -f features.json --level 3 --x 1 --y 2
//
// render Command:
//   Examples:
//     ./slidetiles render --level 3 --x 1 --y 2 --zoom 9 -o tile.png
//     ./slidetiles render --level 3 --x 1 --y 2 --pick 5
//
// ============================================================================

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChuLiYu/slidetiles/internal/codec"
	"github.com/ChuLiYu/slidetiles/internal/config"
	"github.com/ChuLiYu/slidetiles/internal/decoder"
	"github.com/ChuLiYu/slidetiles/internal/metrics"
	"github.com/ChuLiYu/slidetiles/internal/overlay"
	"github.com/ChuLiYu/slidetiles/internal/palette"
	"github.com/ChuLiYu/slidetiles/internal/raster"
	"github.com/ChuLiYu/slidetiles/internal/remote"
	"github.com/ChuLiYu/slidetiles/internal/storage"
	"github.com/ChuLiYu/slidetiles/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "slidetiles",
		Short: "slidetiles: whole-slide block decoding and overlay tiles",
		Long: `slidetiles decodes compressed image blocks on a worker pool and
renders marker overlays from columnar tiles:
- LZW and JPEG 2000 block codecs with a content-addressed cache
- local or remote (gRPC) decode workers
- Arrow overlay tiles with per-feature marker bitmasks
- Prometheus metrics`,
		Version:      "1.0.0",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildDecodeCommand())
	rootCmd.AddCommand(buildIngestCommand())
	rootCmd.AddCommand(buildRenderCommand())
	rootCmd.AddCommand(buildPaletteCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func loadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

// configureDecoding points the shared decode pool at the configured workers.
func configureDecoding(cfg *config.Config, m *metrics.Collector) {
	s := decoder.Settings{
		Workers:      cfg.Worker.WorkerCount,
		CacheEntries: cfg.Cache.MaxEntries,
		JobTimeout:   cfg.Worker.JobTimeout,
		Metrics:      m,
	}
	if cfg.Worker.RemoteAddr != "" {
		s.NewExecutor = remote.Executors(cfg.Worker.RemoteAddr)
	}
	decoder.Configure(s)
}

// ============================================================================
// serve
// ============================================================================

func buildServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a decode server",
		Long:  "Serve block decodes over gRPC so other processes can use this pool as remote workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default: remote.port from config)")
	return cmd
}

func runServer(port int) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port == 0 {
		port = cfg.Remote.Port
	}
	if cfg.Worker.RemoteAddr != "" {
		// serve always decodes locally
		return errors.New("serve runs local workers; unset worker.remote_addr")
	}

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	configureDecoding(cfg, collector)
	defer decoder.ShutdownPool()

	pool, err := decoder.SharedPool()
	if err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	log.Printf("Workers: %d, Job timeout: %s\n", pool.WorkerCount(), cfg.Worker.JobTimeout)

	if cfg.Metrics.Enabled {
		go func() {
			log.Printf("Starting metrics server on :%d\n", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer); err != nil {
				log.Printf("Metrics server error: %v\n", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	grpcServer := remote.NewGRPCServer(remote.NewServer(pool, codec.Default()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	log.Printf("Decode server listening on :%d\n", port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("Received shutdown signal, stopping gracefully...")
		grpcServer.GracefulStop()
	case err := <-errCh:
		return fmt.Errorf("decode server failed: %w", err)
	}

	log.Println("Server stopped. Goodbye!")
	return nil
}

// ============================================================================
// decode
// ============================================================================

func buildDecodeCommand() *cobra.Command {
	var (
		codecID        string
		width, height  int
		bytesPerSample int
		outFile        string
	)

	cmd := &cobra.Command{
		Use:   "decode <block-file>",
		Short: "Decode one compressed block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decodeBlock(args[0], types.CodecID(codecID), width, height, bytesPerSample, outFile)
		},
	}

	cmd.Flags().StringVar(&codecID, "codec", string(types.CodecLZW), "Block codec: lzw, jp2k")
	cmd.Flags().IntVar(&width, "width", 0, "Block width in pixels")
	cmd.Flags().IntVar(&height, "height", 0, "Block height in pixels")
	cmd.Flags().IntVar(&bytesPerSample, "bps", 1, "Bytes per sample")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Write decoded bytes to this file")
	return cmd
}

func decodeBlock(path string, codecID types.CodecID, width, height, bytesPerSample int, outFile string) error {
	input, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read block file: %w", err)
	}
	if _, err := codec.Lookup(codecID); err != nil {
		return err
	}
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	configureDecoding(cfg, nil)
	defer decoder.ShutdownPool()

	start := time.Now()
	out, err := decoder.New(codecID, width, height, bytesPerSample).Decode(context.Background(), input)
	if err != nil {
		return err
	}
	log.Printf("Decoded %d bytes into %d bytes in %s\n", len(input), len(out), time.Since(start))

	if outFile == "" {
		return nil
	}
	if err := os.WriteFile(outFile, out, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// ============================================================================
// ingest
// ============================================================================

type featureInput struct {
	ID      int64     `json:"id"`
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	Outline []float64 `json:"outline"`
	Markers []string  `json:"markers"`
	Bitmask *uint32   `json:"bitmask"`
}

func buildIngestCommand() *cobra.Command {
	var (
		featureFile string
		key         types.TileKey
		chunkSize   int
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Write an overlay tile from a JSON feature file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ingestTile(featureFile, key, chunkSize)
		},
	}

	cmd.Flags().StringVarP(&featureFile, "file", "f", "", "JSON file containing features")
	cmd.Flags().IntVar(&key.Level, "level", 0, "Tile level")
	cmd.Flags().IntVar(&key.X, "x", 0, "Tile column")
	cmd.Flags().IntVar(&key.Y, "y", 0, "Tile row")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Rows per record batch (0: one batch)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func ingestTile(path string, key types.TileKey, chunkSize int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read feature file: %w", err)
	}
	var inputs []featureInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return fmt.Errorf("failed to parse feature file: %w", err)
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	known := types.MarkerNames(cfg.Overlay.Markers)

	features := make([]overlay.Feature, len(inputs))
	for i, in := range inputs {
		mask := overlay.EnabledBitmask(known, in.Markers)
		if in.Bitmask != nil {
			mask = *in.Bitmask
		}
		features[i] = overlay.Feature{ID: in.ID, X: in.X, Y: in.Y, Outline: in.Outline, Bitmask: mask}
	}
	payload, err := overlay.EncodeTile(features, overlay.EncodeOptions{ChunkSize: chunkSize})
	if err != nil {
		return fmt.Errorf("failed to encode tile: %w", err)
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	w, ok := store.(storage.Writer)
	if !ok {
		return fmt.Errorf("%s storage is read-only", cfg.Storage.Kind)
	}
	if err := w.PutTile(context.Background(), key, payload); err != nil {
		return fmt.Errorf("failed to store tile %s: %w", key, err)
	}
	log.Printf("Stored tile %s with %d features (%d bytes)\n", key, len(features), len(payload))
	return nil
}

// ============================================================================
// render
// ============================================================================

func buildRenderCommand() *cobra.Command {
	var (
		key     types.TileKey
		zoom    float64
		enabled []string
		size    int
		outFile string
		pick    int
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one overlay tile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return renderTile(cmd, key, zoom, enabled, size, outFile, pick)
		},
	}

	cmd.Flags().IntVar(&key.Level, "level", 0, "Tile level")
	cmd.Flags().IntVar(&key.X, "x", 0, "Tile column")
	cmd.Flags().IntVar(&key.Y, "y", 0, "Tile row")
	cmd.Flags().Float64Var(&zoom, "zoom", 0, "View zoom; selects point or polygon mode")
	cmd.Flags().StringSliceVar(&enabled, "enabled", nil, "Enabled markers (default: overlay.enabled from config)")
	cmd.Flags().IntVar(&size, "size", 512, "Output image size in pixels")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Write PNG to this file")
	cmd.Flags().IntVar(&pick, "pick", -1, "Print the labels of this feature index")
	return cmd
}

func renderTile(cmd *cobra.Command, key types.TileKey, zoom float64, enabled []string, size int, outFile string, pick int) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if enabled == nil {
		enabled = cfg.Overlay.Enabled
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	configureDecoding(cfg, nil)
	defer decoder.ShutdownPool()

	pipeline, err := newPipeline(cfg, store)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	layer, err := pipeline.RenderTile(ctx, overlay.Request{
		Key:           key,
		Enabled:       enabled,
		StrokeOpacity: cfg.Overlay.StrokeOpacity,
		Zoom:          zoom,
	})
	if err != nil {
		return fmt.Errorf("failed to render tile %s: %w", key, err)
	}
	if layer == nil {
		log.Printf("Tile %s has nothing to draw\n", key)
		return nil
	}
	log.Printf("Tile %s: %d features in %s mode\n", key, layer.Len(), layer.Mode)

	if pick >= 0 {
		info, ok := pipeline.Pick(key, pick, enabled)
		if !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "feature %d: no enabled markers\n", pick)
		} else {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(info); err != nil {
				return err
			}
		}
	}

	if outFile == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := raster.EncodePNG(&buf, layer, size, size); err != nil {
		return err
	}
	if err := os.WriteFile(outFile, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	log.Printf("Wrote %s\n", outFile)
	return nil
}

func newPipeline(cfg *config.Config, store storage.Store) (*overlay.Pipeline, error) {
	pc := overlay.Config{
		Store:            store,
		PointModeZoom:    cfg.Overlay.PointModeZoom,
		PointRadius:      cfg.Overlay.PointRadius,
		MinPixelRadius:   cfg.Overlay.MinPixelRadius,
		LineWidth:        cfg.Overlay.LineWidth,
		MinZoom:          cfg.Overlay.MinZoom,
		MaxZoom:          cfg.Overlay.MaxZoom,
		Extent:           overlay.Extent{Width: cfg.Overlay.Extent.Width, Height: cfg.Overlay.Extent.Height},
		TileCacheEntries: cfg.Overlay.TileCacheEntries,
	}
	if cfg.Overlay.PayloadCodec != "" {
		pc.Decoder = decoder.New(cfg.Overlay.PayloadCodec, 0, 0, 0)
	}
	p, err := overlay.NewPipeline(pc)
	if err != nil {
		return nil, err
	}
	p.SetMarkers(cfg.Overlay.Markers, cfg.Overlay.Opacity)
	return p, nil
}

func openStore(cfg *config.Config) (storage.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Storage.Kind {
	case config.StorageBolt:
		s, err := storage.OpenBoltStore(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StorageHTTP:
		return storage.NewHTTPStore(cfg.Storage.URL, nil), noop, nil
	}
	return storage.NewFileStore(cfg.Storage.Dir), noop, nil
}

// ============================================================================
// palette
// ============================================================================

func buildPaletteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "palette",
		Short: "Print the resolved marker palette",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			printPalette(cmd, cfg.Overlay.Markers, cfg.Overlay.Opacity)
			return nil
		},
	}
}

func printPalette(cmd *cobra.Command, markers []types.MarkerDefinition, opacity float64) {
	p := palette.Resolve(markers, opacity)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Opacity: %.2f\n", p.Opacity)
	for s, c := range p.Colors {
		var names []string
		for i := s; i < len(markers) && i < palette.MaxMarkers; i += palette.Slots {
			names = append(names, markers[i].Name)
		}
		fmt.Fprintf(out, "  slot %d: rgba(%3d,%3d,%3d,%3d) %v\n", s, c.R, c.G, c.B, c.A, names)
	}
	if len(markers) > palette.MaxMarkers {
		fmt.Fprintf(out, "  %d markers past the first %d cannot be shown\n", len(markers)-palette.MaxMarkers, palette.MaxMarkers)
	}
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		Long:  "Display configuration and, with --addr, the state of a decode server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Decode server address (e.g. localhost:50051)")
	return cmd
}

func showStatus(cmd *cobra.Command, addr string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "slidetiles status")
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  ├─ Config File:     %s\n", configFile)
	fmt.Fprintf(out, "  ├─ Worker Count:    %d\n", cfg.Worker.WorkerCount)
	fmt.Fprintf(out, "  ├─ Job Timeout:     %s\n", cfg.Worker.JobTimeout)
	fmt.Fprintf(out, "  ├─ Cache Entries:   %d\n", cfg.Cache.MaxEntries)
	if cfg.Worker.RemoteAddr != "" {
		fmt.Fprintf(out, "  ├─ Remote Workers:  %s\n", cfg.Worker.RemoteAddr)
	}
	fmt.Fprintf(out, "  └─ Codecs:          %v\n", codec.Default().IDs())

	fmt.Fprintln(out, "Overlay:")
	fmt.Fprintf(out, "  ├─ Storage:         %s\n", cfg.Storage.Kind)
	fmt.Fprintf(out, "  ├─ Markers:         %d (%d enabled)\n", len(cfg.Overlay.Markers), len(cfg.Overlay.Enabled))
	fmt.Fprintf(out, "  └─ Point Mode From: zoom %g\n", cfg.Overlay.PointModeZoom)

	fmt.Fprintln(out, "Metrics:")
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  └─ Enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Fprintln(out, "  └─ Disabled")
	}

	if addr == "" {
		return nil
	}
	e, err := remote.Dial(addr)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := e.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to query decode server %s: %w", addr, err)
	}
	fmt.Fprintf(out, "Decode Server %s:\n", addr)
	fmt.Fprintf(out, "  ├─ Workers: %d\n", st.Workers)
	fmt.Fprintf(out, "  ├─ Queued:  %d\n", st.Queued)
	fmt.Fprintf(out, "  └─ Codecs:  %v\n", st.Codecs)
	return nil
}
