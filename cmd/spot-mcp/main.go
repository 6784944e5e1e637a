package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ironsheep/spot-tools-mcp/internal/detection"
	"github.com/ironsheep/spot-tools-mcp/internal/imaging"
	"github.com/ironsheep/spot-tools-mcp/internal/server"
	"github.com/ironsheep/spot-tools-mcp/internal/synth"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("spot-tools-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "bench":
			if err := runBench(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "bench: %v\n", err)
				os.Exit(1)
			}
			return
		case "find":
			if err := runFind(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "find: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	debug := os.Getenv("SPOT_MCP_LOG_LEVEL") == "debug"
	if debug {
		log.Printf("Spot MCP Server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	srv := server.New(server.WithVersion(Version), server.WithDebug(debug))
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func printHelp() {
	fmt.Println("spot-tools-mcp - MCP server for sub-pixel spot detection")
	fmt.Println()
	fmt.Println("Usage: spot-tools-mcp [options]")
	fmt.Println("       spot-tools-mcp bench [size] [repeats] [threshold]")
	fmt.Println("       spot-tools-mcp find <path> <threshold> [max_detections]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  bench    Time detection on a synthetic size x size frame (default 1024 100 100)")
	fmt.Println("  find     Detect spots in an image file and print the result as JSON")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  SPOT_MCP_LOG_LEVEL=debug    Enable debug logging")
	fmt.Println()
	fmt.Println("Without a command the server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}

// intArg parses args[i] as an integer, returning def when it is absent.
func intArg(args []string, i, def int, name string) (int, error) {
	if len(args) <= i {
		return def, nil
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, args[i], err)
	}
	return v, nil
}

// runBench times detection on a flat frame of ones, the worst case for the
// scan since every pixel is compared against its neighbours.
func runBench(args []string) error {
	size, err := intArg(args, 0, 1024, "size")
	if err != nil {
		return err
	}
	repeats, err := intArg(args, 1, 100, "repeats")
	if err != nil {
		return err
	}
	threshold, err := intArg(args, 2, 100, "threshold")
	if err != nil {
		return err
	}
	if size <= 0 || repeats <= 0 {
		return fmt.Errorf("size and repeats must be positive")
	}

	frame := synth.Uniform(size, size, 1)
	finder, err := detection.NewFinder(detection.Options{Threshold: threshold})
	if err != nil {
		return err
	}

	start := time.Now()
	for i := 0; i < repeats; i++ {
		result, err := finder.Find(frame)
		if err != nil {
			return err
		}
		if i%10 == 0 {
			fmt.Println(i, result.Count)
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("Time to process an image: %s (%d x %d, %d repeats)\n",
		elapsed/time.Duration(repeats), size, size, repeats)
	return nil
}

func runFind(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: find <path> <threshold> [max_detections]")
	}
	threshold, err := intArg(args, 1, 0, "threshold")
	if err != nil {
		return err
	}
	maxDetections, err := intArg(args, 2, 0, "max_detections")
	if err != nil {
		return err
	}

	frame, err := imaging.NewFrameCache().Load(args[0])
	if err != nil {
		return err
	}
	result, err := detection.FindSpots(frame, detection.Options{
		Threshold:     threshold,
		MaxDetections: maxDetections,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
