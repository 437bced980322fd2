//go:build ignore

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/applens/privacy-backend/config"
	"github.com/applens/privacy-backend/database"
	"github.com/applens/privacy-backend/models"
	"github.com/applens/privacy-backend/services"
)

func main() {
	fmt.Printf("Privacy Pipeline Health Check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", 50))

	cfg := config.LoadConfig()

	healthScore := 0
	totalTests := 4

	// Test 1: Chart feed API
	fmt.Print("Chart feed API: ")
	chartService := services.NewChartService(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if entries, err := chartService.FetchBoard(ctx, models.BoardTopFree); err != nil {
		fmt.Printf("FAILED (%v)\n", err)
	} else {
		fmt.Printf("OK (%d entries)\n", len(entries))
		healthScore++
	}
	cancel()

	// Test 2: Database
	fmt.Print("Database: ")
	if cfg.DatabaseURL == "" {
		fmt.Println("SKIPPED (no DATABASE_URL)")
		totalTests--
	} else if err := database.Connect(cfg.DatabaseURL); err != nil {
		fmt.Printf("FAILED (%v)\n", err)
	} else {
		fmt.Println("OK")
		healthScore++
		database.Close()
	}

	// Test 3: Snapshot artifact freshness
	fmt.Print("Snapshot artifact: ")
	if payload, err := os.ReadFile(cfg.SnapshotPath); err != nil {
		fmt.Printf("MISSING (%v)\n", err)
	} else {
		var snapshot models.Snapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			fmt.Printf("UNPARSABLE (%v)\n", err)
		} else if time.Since(snapshot.AsOf) > 2*cfg.GetRefreshInterval() {
			fmt.Printf("STALE (as of %v)\n", snapshot.AsOf)
		} else {
			fmt.Printf("OK (as of %v)\n", snapshot.AsOf)
			healthScore++
		}
	}

	// Test 4: Scorer sanity
	fmt.Print("Intensity scorer: ")
	scorer := services.NewIntensityScorer()
	empty := scorer.Score(nil)
	record := models.NewPrivacyRecord(models.AppIdentity{StoreID: 1, Name: "probe"})
	record.AddCategory(models.BucketTracked, services.CategoryIdentifiers)
	nonEmpty := scorer.Score(record)
	if empty.Score == 0 && empty.Band == models.BandLow && nonEmpty.Score > 0 {
		fmt.Println("OK")
		healthScore++
	} else {
		fmt.Printf("FAILED (empty=%+v, non-empty=%+v)\n", empty, nonEmpty)
	}

	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Health: %d/%d checks passed\n", healthScore, totalTests)
	if healthScore < totalTests {
		os.Exit(1)
	}
}
