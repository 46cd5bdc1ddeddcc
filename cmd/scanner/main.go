package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"warescan/internal/config"
	"warescan/internal/logger"
	"warescan/internal/scanner"
)

func main() {
	mode := flag.String("mode", "catalog", "workflow: catalog, request or pick")
	request := flag.String("request", "", "pick request name (pick mode)")
	queries := flag.String("queries", "", "comma-separated product search filters (catalog mode)")
	flag.Parse()

	cfg := config.Load()
	logg := logger.New(cfg.LogDirectory)

	session, err := buildSession(cfg, logg, *mode, *request, *queries)
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	if err := session.Start(); err != nil {
		log.Fatalf("Failed to start scanner: %v", err)
	}

	fmt.Printf("📷 Scanner running (%s mode) against %s\n", *mode, cfg.ServerURL)
	fmt.Println("Press Ctrl+C to stop")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			session.Stop()
			fmt.Println("Scanner stopped")
			return
		case <-ticker.C:
			printStatus(session)
			switch session.State() {
			case scanner.StateSubmitted, scanner.StateFailed:
				if err := session.Err(); err != nil {
					log.Fatalf("Scanner failed: %v", err)
				}
				fmt.Println("Scanner finished")
				return
			}
		}
	}
}

// workflowSession is the part of a session the CLI drives.
type workflowSession interface {
	Start() error
	Stop()
	State() scanner.SessionState
	Notice() string
	Err() error
}

func buildSession(cfg *config.Config, logg *logger.Logger, mode, request, queries string) (workflowSession, error) {
	switch mode {
	case "catalog":
		var qs []string
		for _, q := range strings.Split(queries, ",") {
			if q = strings.TrimSpace(q); q != "" {
				qs = append(qs, q)
			}
		}
		return scanner.NewCatalogSession(cfg, logg, qs), nil
	case "request":
		return scanner.NewCartSession(cfg, logg), nil
	case "pick":
		if request == "" {
			return nil, fmt.Errorf("pick mode needs -request")
		}
		return scanner.NewPickSession(cfg, logg, request), nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

func printStatus(session workflowSession) {
	if notice := session.Notice(); notice != "" {
		fmt.Printf("⚠️  %s\n", notice)
	}

	switch s := session.(type) {
	case *scanner.CatalogSession:
		for _, det := range s.Detections() {
			fmt.Printf("  %s %s [%s]\n", det.UPC, det.ProductName, det.MatchType)
		}
	case *scanner.CartSession:
		if pending := s.PendingProduct(); pending != nil {
			fmt.Printf("  Detected: %s (%s)\n", pending.Name, pending.UPC)
		}
		for _, item := range s.Cart() {
			fmt.Printf("  %s x%d\n", item.ProductName, item.Quantity)
		}
	case *scanner.PickSession:
		complete, total := s.Progress()
		fmt.Printf("  Progress: %d/%d\n", complete, total)
		for _, item := range s.Items() {
			status := fmt.Sprintf("%d left", item.Remaining())
			if item.IsComplete() {
				status = "complete"
			}
			fmt.Printf("  %s %d/%d (%s)\n", item.ProductName, item.PickedQty, item.RequestedQty, status)
		}
	}
}
