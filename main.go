package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/tpsmesh/rpm"

	"gonum.org/v1/gonum/mat"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile = flag.String("config", "config.yaml", "Path to configuration file")
	demoMode   = flag.Bool("demo", false, "Run a synthetic registration demo and exit")
	demoSeed   = flag.Int64("seed", 42, "Random seed for --demo")
	sourceFile = flag.String("source", "", "Source point file (.txt, .json or .geojson)")
	targetFile = flag.String("target", "", "Target point file (.txt, .json or .geojson)")
	outputFile = flag.String("output", "registration.png", "Output image file (.png or .svg)")
	pinsFlag   = flag.String("pins", "", "Pinned pairs: SRC=TGT,SRC2=TGT2 (e.g. 0=3,1=5)")
	workers    = flag.Int("workers", 0, "Worker pool size for matrix builds (0 = GOMAXPROCS)")
	bothSide   = flag.Bool("both-side-outlier", false, "Enable both-side outlier normalization")
	affineReg  = flag.Bool("affine-reg", false, "Regularize the affine part toward identity")
	mqttMode   = flag.Bool("mqtt", false, "Run MQTT service mode")
	httpMode   = flag.Bool("http", false, "Enable HTTP server for status and rendered results")
	httpPort   = flag.Int("http-port", 8080, "HTTP server port")
)

func main() {
	flag.Parse()
	fmt.Printf("tpsmesh version: %s\n", Version)

	if *demoMode {
		runDemo()
		return
	}

	if *sourceFile != "" || *targetFile != "" {
		runEstimateFiles()
		return
	}

	if *mqttMode || *httpMode {
		runService()
		return
	}

	fmt.Println("tpsmesh: non-rigid 2D point-set registration (TPS-RPM)")
	fmt.Println("Use --demo to run a synthetic registration demo")
	fmt.Println("Use --source and --target to register two point files")
	fmt.Println("Use --pins to force correspondences, e.g. --pins 0=3,1=5")
	fmt.Println("Use --mqtt to run the registration service")
	fmt.Println("Use --http to serve status and rendered results")
	fmt.Println("\nConfiguration:")
	fmt.Println("  config.yaml - MQTT settings, sources and engine tuning")
}

// engineConfig assembles the engine tuning from flags.
func engineConfig() rpm.Config {
	cfg := rpm.DefaultConfig()
	cfg.Workers = *workers
	cfg.BothSideOutlier = *bothSide
	cfg.AffineReg = *affineReg
	return cfg
}

// runDemo synthesizes a bent, jittered copy of a random point set, injects
// outliers on both sides, registers the sets and writes the plot.
func runDemo() {
	rng := rand.New(rand.NewSource(*demoSeed))

	source := rpm.GenerateRandomPoints(rng, 40, 0, 100)

	// Target: gently rotated and translated copy with a sinusoidal bend.
	warp := rpm.MultiplyMatrices(rpm.Translation(12, -8), rpm.RotationDeg(10))
	target := rpm.WarpAffineSet(source, warp)
	rows, _ := target.Dims()
	for i := 0; i < rows; i++ {
		target.Set(i, 1, target.At(i, 1)+6*math.Sin(2*math.Pi*target.At(i, 0)/100))
	}
	target = rpm.AddGaussianNoise(rng, target, 0, 0.5)

	source = rpm.AddOutliers(rng, source, 4)
	target = rpm.AddOutliers(rng, target, 4)

	estimateAndReport(source, target, nil)
}

func runEstimateFiles() {
	if *sourceFile == "" || *targetFile == "" {
		log.Fatal("both --source and --target are required")
	}

	source, err := rpm.LoadPoints(*sourceFile)
	if err != nil {
		log.Fatalf("Loading source: %v", err)
	}
	target, err := rpm.LoadPoints(*targetFile)
	if err != nil {
		log.Fatalf("Loading target: %v", err)
	}

	pins, err := parsePins(*pinsFlag)
	if err != nil {
		log.Fatalf("Parsing --pins: %v", err)
	}

	estimateAndReport(source, target, pins)
}

func estimateAndReport(source, target *mat.Dense, pins []rpm.PinnedPair) {
	k, _ := source.Dims()
	n, _ := target.Dims()
	fmt.Printf("Registering %d source points onto %d target points...\n", k, n)

	start := time.Now()
	result, err := rpm.Estimate(context.Background(), source, target, pins, engineConfig())
	if err != nil {
		log.Fatalf("Estimate failed: %v", err)
	}
	fmt.Printf("Estimate time: %v\n", time.Since(start).Round(time.Millisecond))

	summary := rpm.Summarize(result, target, 0.5)
	fmt.Printf("Matched %d/%d source points, outlier mass %.2f, mean residual %.4f\n",
		summary.Matched, summary.SourceCount, summary.OutlierMass, summary.MeanResidual)

	if *outputFile == "" {
		return
	}
	if err := writeRendering(source, target, result, *outputFile); err != nil {
		log.Fatalf("Rendering: %v", err)
	}
	fmt.Printf("Saved: %s\n", *outputFile)
}

func writeRendering(source, target *mat.Dense, result *rpm.Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	renderer := rpm.NewResultRenderer(source, target, result)
	if strings.HasSuffix(strings.ToLower(path), ".svg") {
		return renderer.RenderToSVG(f)
	}
	return renderer.RenderToPNG(f)
}

// parsePins parses the SRC=TGT,SRC=TGT pin flag format.
func parsePins(spec string) ([]rpm.PinnedPair, error) {
	if spec == "" {
		return nil, nil
	}

	var pins []rpm.PinnedPair
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("bad pin %q: want SRC=TGT", part)
		}
		src, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, fmt.Errorf("bad pin source in %q: %v", part, err)
		}
		tgt, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("bad pin target in %q: %v", part, err)
		}
		pins = append(pins, rpm.PinnedPair{Source: src, Target: tgt})
	}
	return pins, nil
}

func runService() {
	config, err := rpm.LoadServiceConfig(*configFile)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}
	if *workers != 0 {
		config.Engine.Workers = *workers
	}

	app := NewApp(config)

	if *mqttMode {
		if err := app.Start(); err != nil {
			log.Fatalf("Starting service: %v", err)
		}
		defer app.Stop()
	}

	if *httpMode {
		addr := fmt.Sprintf(":%d", *httpPort)
		server := &http.Server{Addr: addr, Handler: app.Routes()}
		go func() {
			log.Printf("HTTP server listening on %s", addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTP server: %v", err)
			}
		}()
		defer server.Close()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down")
}
