package store

import (
	"encoding/base64"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const exportSheet = "Inventory"

// ExportXLSX writes the ledger to an .xlsx workbook. Embedded thumbnails
// become real pictures anchored to their row, which is what the base64
// column exists for in the first place.
func (s *Store) ExportXLSX(l *Ledger, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(exportSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	for col, name := range l.Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(exportSheet, cell, name); err != nil {
			return err
		}
	}

	for rowIdx, r := range l.Records {
		row := s.encodeRecord(l.Columns, r)
		for col, name := range l.Columns {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return err
			}

			if name == ColThumbnail && r.Thumbnail != "" {
				pic, decErr := base64.StdEncoding.DecodeString(r.Thumbnail)
				if decErr != nil {
					s.logger.Warn("Skipping undecodable thumbnail",
						zap.Int64("record_id", r.ID), zap.Error(decErr))
					continue
				}
				if err := f.AddPictureFromBytes(exportSheet, cell, &excelize.Picture{
					Extension: ".jpg",
					File:      pic,
					Format:    &excelize.GraphicOptions{AutoFit: true},
				}); err != nil {
					return fmt.Errorf("failed to embed thumbnail for record %d: %w", r.ID, err)
				}
				continue
			}

			if err := f.SetCellValue(exportSheet, cell, row[col]); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to write workbook %s: %w", path, err)
	}
	return nil
}
