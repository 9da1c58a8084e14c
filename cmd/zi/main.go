// Command zi runs a Zi pipeline over a batch of JSON records from the
// command line: load a pipeline config, load input records, execute, write
// results. Orchestration logic lives in internal/pipeline; this file is
// peripheral glue.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	zictx "github.com/dunimd/zi/internal/context"
	"github.com/dunimd/zi/internal/pipeline"
	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/version"
	"github.com/dunimd/zi/internal/ziconfig"
)

func main() {
	log.SetFlags(0)

	var (
		pipelinePath = flag.String("pipeline", "", "path to a pipeline config (.json or .yaml)")
		inputPath    = flag.String("input", "", "path to a JSON array of input records")
		outputPath   = flag.String("output", "", "path to write the JSON array of output records")
		chunkSize    = flag.Int("chunk-size", 0, "run in fixed-size chunks instead of as one batch (0 disables)")
		workers      = flag.Int("workers", 0, "run chunks across this many goroutines concurrently (0 disables)")
		cached       = flag.Bool("cache", false, "cache the pipeline result keyed by input content hash")
		instrument   = flag.Bool("instrument", false, "collect and print per-stage timing")
		versionStore = flag.String("version-store", "", "path to a version-store JSON file to append a snapshot to")
	)
	flag.Parse()

	if *pipelinePath == "" || *inputPath == "" {
		log.Fatal("usage: zi -pipeline <config> -input <records.json> [-output <out.json>]")
	}

	ctx := context.Background()
	envCfg := ziconfig.Load()
	zc, err := zictx.NewFromEnv(ctx, envCfg)
	if err != nil {
		log.Fatalf("init context: %v", err)
	}

	pipelineBytes, err := zc.Filesystem().ReadFile(ctx, *pipelinePath)
	if err != nil {
		log.Fatalf("read pipeline config: %v", err)
	}

	builder := pipeline.WithDefaults()
	var p *pipeline.Pipeline
	if strings.HasSuffix(*pipelinePath, ".yaml") || strings.HasSuffix(*pipelinePath, ".yml") {
		p, err = builder.BuildFromYAML(pipelineBytes)
	} else {
		p, err = builder.BuildFromJSON(pipelineBytes)
	}
	if err != nil {
		log.Fatalf("build pipeline: %v", err)
	}

	if *instrument {
		p.WithInstrumentation(true)
	}
	if *cached {
		p.WithCache(zc.Cache(), int64(envCfg.CacheTTL.Seconds()))
	}

	inputBytes, err := zc.Filesystem().ReadFile(ctx, *inputPath)
	if err != nil {
		log.Fatalf("read input records: %v", err)
	}
	var batch record.Batch
	if err := json.Unmarshal(inputBytes, &batch); err != nil {
		log.Fatalf("parse input records: %v", err)
	}

	out, err := runPipeline(ctx, p, batch, *chunkSize, *workers, *cached)
	if err != nil {
		log.Fatalf("run pipeline: %v", err)
	}

	if *instrument {
		for _, m := range p.StageMetrics() {
			zc.Logger().Info().
				Str("stage", m.StageName).
				Int("input", m.InputRecords).
				Int("output", m.OutputRecords).
				Dur("duration", m.Duration).
				Msg("stage completed")
		}
	}

	if *versionStore != "" {
		if err := appendVersionSnapshot(ctx, zc, *versionStore, p, batch); err != nil {
			log.Fatalf("record version: %v", err)
		}
	}

	outBytes, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Fatalf("marshal output records: %v", err)
	}
	if *outputPath == "" {
		os.Stdout.Write(outBytes)
		os.Stdout.Write([]byte("\n"))
		return
	}
	if err := zc.Filesystem().MkdirAll(ctx, filepath.Dir(*outputPath)); err != nil {
		log.Fatalf("create output directory: %v", err)
	}
	if err := zc.Filesystem().WriteFile(ctx, *outputPath, outBytes); err != nil {
		log.Fatalf("write output records: %v", err)
	}
}

func runPipeline(ctx context.Context, p *pipeline.Pipeline, batch record.Batch, chunkSize, workers int, cached bool) (record.Batch, error) {
	switch {
	case workers > 0:
		return p.RunParallel(ctx, batch, workers)
	case chunkSize > 0:
		return p.RunChunked(batch, chunkSize)
	case cached:
		return p.RunCached(ctx, batch)
	default:
		return p.Run(batch)
	}
}

func appendVersionSnapshot(ctx context.Context, zc *zictx.Context, path string, p *pipeline.Pipeline, batch record.Batch) error {
	store, err := version.LoadFromPath(ctx, zc.Filesystem(), path, true)
	if err != nil {
		store = version.NewStore()
	}

	_, v, err := p.RunWithVersion(batch, store, nil, map[string]any{})
	if err != nil {
		return err
	}
	zc.Logger().Info().Str("version", v.ID).Msg("recorded version snapshot")

	return store.SaveToPath(ctx, zc.Filesystem(), path, version.SaveOptions{
		Pretty:            true,
		Atomic:            true,
		CreateDirectories: true,
	})
}
