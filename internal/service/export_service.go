package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lineup-tv/lineup-api/internal/models"
	"github.com/lineup-tv/lineup-api/pkg/export"
	"github.com/lineup-tv/lineup-api/pkg/storage"
)

type lineupSource interface {
	GetByID(ctx context.Context, id string) (*models.Lineup, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	RenderSections(title string, meta [][]string, sections []export.Section) ([]byte, error)
}

// ExportService renders saved lineups into downloadable rundown files.
type ExportService struct {
	lineups lineupSource
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(lineups lineupSource, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		lineups: lineups,
		storage: storage,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate renders the lineup referenced by the job and stores the file.
func (s *ExportService) Generate(ctx context.Context, job *models.LineupJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	if job.Params.LineupID == "" {
		return nil, fmt.Errorf("export job missing lineup id")
	}
	lineup, err := s.lineups.GetByID(ctx, job.Params.LineupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lineup %s not found", job.Params.LineupID)
		}
		return nil, err
	}

	format := job.Params.Format
	if format == "" {
		format = models.ExportFormatCSV
	}

	var payload []byte
	switch format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(buildLineupDataset(lineup))
	case models.ExportFormatPDF:
		payload, err = s.pdf.RenderSections(exportTitle(lineup), lineupMeta(lineup), buildLineupSections(lineup))
	default:
		err = fmt.Errorf("unsupported format %s", format)
	}
	if err != nil {
		return nil, err
	}

	filename := buildExportFilename(lineup, format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// --- Dataset assembly ---

var rundownHeaders = []string{"Block", "Air Time", "Title", "Type", "Duration", "Genres", "Age Rating", "Rating", "Score"}

var sectionHeaders = []string{"Air Time", "Title", "Type", "Duration", "Rating", "Score"}

func buildLineupDataset(lineup *models.Lineup) export.Dataset {
	rows := make([]map[string]string, 0, lineup.ItemCount)
	for _, block := range lineup.Blocks {
		for _, placed := range block.Items {
			rows = append(rows, placementRow(block, placed))
		}
	}
	return export.Dataset{
		Meta:    lineupMeta(lineup),
		Headers: rundownHeaders,
		Rows:    rows,
	}
}

func buildLineupSections(lineup *models.Lineup) []export.Section {
	sections := make([]export.Section, 0, len(lineup.Blocks))
	for _, block := range lineup.Blocks {
		rows := make([]map[string]string, 0, len(block.Items))
		for _, placed := range block.Items {
			rows = append(rows, placementRow(block, placed))
		}
		sections = append(sections, export.Section{
			Heading: blockHeading(block),
			Data: export.Dataset{
				Headers: sectionHeaders,
				Rows:    rows,
			},
		})
	}
	return sections
}

func placementRow(block models.BlockFill, placed models.PlacedItem) map[string]string {
	return map[string]string{
		"Block":      block.BlockName,
		"Air Time":   airTime(block.Start, placed.OffsetSeconds),
		"Title":      placed.Item.Title,
		"Type":       string(placed.Item.Type),
		"Duration":   placed.Item.Duration().String(),
		"Genres":     strings.Join(placed.Item.Genres, "; "),
		"Age Rating": placed.Item.AgeRating,
		"Rating":     fmt.Sprintf("%.1f", placed.Item.Rating),
		"Score":      fmt.Sprintf("%.4f", placed.Score),
	}
}

func blockHeading(block models.BlockFill) string {
	heading := fmt.Sprintf("%s (%s to %s)", block.BlockName, block.Start, block.End)
	if block.GapSeconds > 0 {
		heading += fmt.Sprintf(", unfilled %s", block.Gap())
	}
	return heading
}

func lineupMeta(lineup *models.Lineup) [][]string {
	meta := [][]string{
		{"Lineup", lineupDisplayName(lineup)},
		{"Profile", lineup.ProfileID},
		{"Status", string(lineup.Status)},
		{"Score", fmt.Sprintf("%.4f", lineup.Score)},
		{"Items", fmt.Sprintf("%d", lineup.ItemCount)},
		{"Seed", fmt.Sprintf("%d", lineup.Seed)},
	}
	if gap := lineup.TotalGap(); gap > 0 {
		meta = append(meta, []string{"Unfilled", gap.String()})
	}
	return meta
}

func exportTitle(lineup *models.Lineup) string {
	return fmt.Sprintf("Lineup Rundown %s", lineupDisplayName(lineup))
}

func lineupDisplayName(lineup *models.Lineup) string {
	if lineup.Name != "" {
		return lineup.Name
	}
	return lineup.ID
}

// airTime resolves a placement to wall-clock air time, wrapping past
// midnight for overnight blocks.
func airTime(start models.ClockTime, offsetSeconds int) string {
	total := (int(start)*60 + offsetSeconds) % 86400
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func buildExportFilename(lineup *models.Lineup, format models.ExportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	namePart := sanitizeFilename(lineupDisplayName(lineup))
	return fmt.Sprintf("lineup_%s_%s.%s", namePart, timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
