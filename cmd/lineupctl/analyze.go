package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lineup-tv/lineup-api/internal/engine"
	"github.com/lineup-tv/lineup-api/internal/models"
	"github.com/lineup-tv/lineup-api/pkg/config"
)

var analyzeCommand = &cobra.Command{
	Use:   "analyze",
	Short: "Score an existing set of placements under a profile",
	Long: `Replays placements through the scoring pipeline and prints the per-item and per-block report as JSON.

The placements file is an array of {"blockName": ..., "itemId": ...} objects; each itemId must exist in the library file.`,
	RunE: runAnalyzeCmd,
}

var (
	analyzeProfilePath    string
	analyzeLibraryPath    string
	analyzePlacementsPath string
	analyzeOutputPath     string
)

type placementSpec struct {
	BlockName string `json:"blockName"`
	ItemID    string `json:"itemId"`
}

func init() {
	analyzeCommand.Flags().StringVarP(&analyzeProfilePath, "profile", "p", "", "Path to the programming profile JSON file")
	analyzeCommand.Flags().StringVarP(&analyzeLibraryPath, "library", "l", "", "Path to the media library JSON file (array of items)")
	analyzeCommand.Flags().StringVar(&analyzePlacementsPath, "placements", "", "Path to the placements JSON file")
	analyzeCommand.Flags().StringVarP(&analyzeOutputPath, "output", "o", "", "Write the report JSON to a file instead of stdout")

	_ = analyzeCommand.MarkFlagRequired("profile")
	_ = analyzeCommand.MarkFlagRequired("library")
	_ = analyzeCommand.MarkFlagRequired("placements")

	rootCmd.AddCommand(analyzeCommand)
}

func runAnalyzeCmd(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var profile models.Profile
	if err := loadJSON(analyzeProfilePath, &profile); err != nil {
		return err
	}

	var items []models.MediaItem
	if err := loadJSON(analyzeLibraryPath, &items); err != nil {
		return err
	}
	library := make(map[string]models.MediaItem, len(items))
	for _, item := range items {
		library[item.ID] = item
	}

	var specs []placementSpec
	if err := loadJSON(analyzePlacementsPath, &specs); err != nil {
		return err
	}
	placements := make([]engine.Placement, 0, len(specs))
	for i, spec := range specs {
		item, ok := library[spec.ItemID]
		if !ok {
			return fmt.Errorf("placements[%d]: item %q not found in library", i, spec.ItemID)
		}
		placements = append(placements, engine.Placement{BlockName: spec.BlockName, Item: item})
	}

	analyzer := engine.NewAnalyzer(engineTuning(cfg))
	report, err := analyzer.Analyze(profile, placements, time.Now().UTC())
	if err != nil {
		return err
	}

	return writeResult(analyzeOutputPath, report)
}
