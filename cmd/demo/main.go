package main

// ============================================================================
// slidetiles demo: generate a synthetic overlay pyramid and render it.
//
//   go run ./cmd/demo generate   # write tiles into storage.dir
//   go run ./cmd/demo render     # render every generated tile to demo-out/
// ============================================================================

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/ChuLiYu/slidetiles/internal/config"
	"github.com/ChuLiYu/slidetiles/internal/overlay"
	"github.com/ChuLiYu/slidetiles/internal/raster"
	"github.com/ChuLiYu/slidetiles/internal/storage"
	"github.com/ChuLiYu/slidetiles/pkg/types"
)

const (
	demoLevel  = 2
	tilesPerAx = 2
	tileSize   = 256.0
	perTile    = 200
	outDir     = "demo-out"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/demo <generate|render>")
		os.Exit(1)
	}

	cfg, err := config.Load("configs/default.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	store := storage.NewFileStore(cfg.Storage.Dir)

	switch os.Args[1] {
	case "generate":
		if err := generate(store, len(cfg.Overlay.Markers)); err != nil {
			log.Fatalf("Failed to generate tiles: %v", err)
		}
	case "render":
		if err := render(cfg, store); err != nil {
			log.Fatalf("Failed to render tiles: %v", err)
		}
	default:
		log.Fatalf("unknown mode %q", os.Args[1])
	}
}

func generate(store *storage.FileStore, markers int) error {
	rng := rand.New(rand.NewSource(1))
	ctx := context.Background()
	id := int64(0)
	for tx := 0; tx < tilesPerAx; tx++ {
		for ty := 0; ty < tilesPerAx; ty++ {
			features := make([]overlay.Feature, perTile)
			for i := range features {
				id++
				x := float64(tx)*tileSize + rng.Float64()*tileSize
				y := float64(ty)*tileSize + rng.Float64()*tileSize
				features[i] = overlay.Feature{
					ID:      id,
					X:       x,
					Y:       y,
					Outline: cell(x, y, 3+rng.Float64()*4, rng),
					Bitmask: uint32(rng.Int63()) & (1<<uint(markers) - 1),
				}
			}
			payload, err := overlay.EncodeTile(features, overlay.EncodeOptions{ChunkSize: 64})
			if err != nil {
				return err
			}
			key := types.TileKey{Level: demoLevel, X: tx, Y: ty}
			if err := store.PutTile(ctx, key, payload); err != nil {
				return err
			}
			fmt.Printf("✓ Tile %s: %d features, %d bytes\n", key, len(features), len(payload))
		}
	}
	return nil
}

// cell returns a jittered hexagon around (x, y).
func cell(x, y, r float64, rng *rand.Rand) []float64 {
	out := make([]float64, 0, 12)
	for k := 0; k < 6; k++ {
		a := float64(k) * math.Pi / 3
		rr := r * (0.8 + 0.4*rng.Float64())
		out = append(out, x+rr*math.Cos(a), y+rr*math.Sin(a))
	}
	return out
}

func render(cfg *config.Config, store storage.Store) error {
	pipeline, err := overlay.NewPipeline(overlay.Config{
		Store:         store,
		PointModeZoom: cfg.Overlay.PointModeZoom,
		MaxZoom:       cfg.Overlay.MaxZoom,
		Extent:        overlay.Extent{Width: tileSize * tilesPerAx, Height: tileSize * tilesPerAx},
	})
	if err != nil {
		return err
	}
	pipeline.SetMarkers(cfg.Overlay.Markers, cfg.Overlay.Opacity)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for tx := 0; tx < tilesPerAx; tx++ {
		for ty := 0; ty < tilesPerAx; ty++ {
			key := types.TileKey{Level: demoLevel, X: tx, Y: ty}
			for _, zoom := range []float64{0, cfg.Overlay.PointModeZoom} {
				layer, err := pipeline.RenderTile(context.Background(), overlay.Request{
					Key:           key,
					Enabled:       cfg.Overlay.Enabled,
					StrokeOpacity: cfg.Overlay.StrokeOpacity,
					Zoom:          zoom,
				})
				if err != nil {
					return err
				}
				if layer == nil {
					fmt.Printf("⚠️  Tile %s missing, run 'generate' first\n", key)
					continue
				}
				path := filepath.Join(outDir, fmt.Sprintf("%d_%d_%d_%s.png", key.Level, tx, ty, layer.Mode))
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				err = raster.EncodePNG(f, layer, 512, 512)
				f.Close()
				if err != nil {
					return err
				}
				fmt.Printf("✓ %s\n", path)
			}
		}
	}
	return nil
}
