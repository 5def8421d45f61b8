package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"orgdirectory/internal/blob"
	"orgdirectory/pkg/domain"
)

// Export artifact names.
const (
	DefaultExportPrefix = "exports"
	ExportJSONName      = "directory.json"
	ExportXLSXName      = "organizations.xlsx"
	exportSheet         = "Organizations"
	xlsxContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportOptions tunes ExportDirectory.
type ExportOptions struct {
	// Prefix is the key prefix under which the export folder is created.
	Prefix string
}

// ExportManifest describes one completed export.
type ExportManifest struct {
	ID            string      `json:"id"`
	Folder        string      `json:"folder"`
	GeneratedAt   time.Time   `json:"generated_at"`
	Buildings     int         `json:"buildings"`
	Activities    int         `json:"activities"`
	Organizations int         `json:"organizations"`
	Files         []blob.Info `json:"files"`
}

type directoryDocument struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	Buildings     []Building     `json:"buildings"`
	Activities    []ActivityNode `json:"activities"`
	Organizations []Organization `json:"organizations"`
}

// ExportDirectory writes a JSON document and an XLSX sheet describing the
// whole directory, both taken from a single read snapshot, into a fresh
// folder <prefix>/<timestamp>-<uuid>/ on store.
func (s *Service) ExportDirectory(ctx context.Context, store blob.Store, opts ExportOptions) (ExportManifest, error) {
	var manifest ExportManifest
	err := s.run(ctx, "export_directory", func(ctx context.Context) (int64, error) {
		if store == nil {
			return 0, fmt.Errorf("export: blob store is required")
		}
		now := s.clock.Now().UTC()
		doc := directoryDocument{GeneratedAt: now}
		var activities []Activity
		if err := s.view(ctx, func(v TransactionView) error {
			doc.Buildings = v.ListBuildings()
			doc.Activities = buildActivityTree(v, domain.MaxActivityDepth)
			doc.Organizations = v.ListOrganizations()
			activities = v.ListActivities()
			return nil
		}); err != nil {
			return 0, err
		}

		prefix := strings.Trim(opts.Prefix, "/")
		if prefix == "" {
			prefix = DefaultExportPrefix
		}
		id := uuid.NewString()
		manifest = ExportManifest{
			ID:            id,
			Folder:        path.Join(prefix, now.Format("20060102T150405Z")+"-"+id),
			GeneratedAt:   now,
			Buildings:     len(doc.Buildings),
			Activities:    len(activities),
			Organizations: len(doc.Organizations),
		}

		raw, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return 0, fmt.Errorf("encode directory: %w", err)
		}
		sheet, err := organizationsWorkbook(doc.Buildings, activities, doc.Organizations)
		if err != nil {
			return 0, err
		}
		meta := map[string]string{"export_id": id}
		for _, f := range []struct {
			name, contentType string
			body              []byte
		}{
			{ExportJSONName, "application/json", raw},
			{ExportXLSXName, xlsxContentType, sheet},
		} {
			info, err := store.Put(ctx, path.Join(manifest.Folder, f.name), bytes.NewReader(f.body), blob.PutOptions{
				ContentType: f.contentType,
				Metadata:    meta,
			})
			if err != nil {
				return 0, fmt.Errorf("store %s: %w", f.name, err)
			}
			manifest.Files = append(manifest.Files, info)
		}
		return 0, nil
	})
	if err != nil {
		return ExportManifest{}, err
	}
	return manifest, nil
}

var exportHeaders = []string{"ID", "Name", "Address", "Latitude", "Longitude", "Phones", "Activities"}

// organizationsWorkbook renders one row per organization.
func organizationsWorkbook(buildings []Building, activities []Activity, orgs []Organization) ([]byte, error) {
	addresses := make(map[int64]Building, len(buildings))
	for _, b := range buildings {
		addresses[b.ID] = b
	}
	names := make(map[int64]string, len(activities))
	for _, a := range activities {
		names[a.ID] = a.Name
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	for col, header := range exportHeaders {
		if err := setCell(f, col+1, 1, header); err != nil {
			return nil, err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}
	widths := []float64{8, 28, 32, 12, 12, 40, 40}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(exportSheet, col, col, w); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for i, o := range orgs {
		row := i + 2
		b := addresses[o.BuildingID]
		activityNames := make([]string, 0, len(o.ActivityIDs))
		for _, id := range o.ActivityIDs {
			activityNames = append(activityNames, names[id])
		}
		values := []any{o.ID, o.Name, b.Address, b.Latitude, b.Longitude,
			strings.Join(o.PhoneNumbers(), "; "), strings.Join(activityNames, "; ")}
		for col, v := range values {
			if err := setCell(f, col+1, row, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(exportSheet, cell, value); err != nil {
		return fmt.Errorf("set cell %s: %w", cell, err)
	}
	return nil
}
