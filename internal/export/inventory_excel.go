package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
)

// InventoryExportHeader 库存导出表头
var InventoryExportHeader = []string{
	"Item Name",
	"Barcode",
	"Quantity",
	"Min Quantity",
	"Alert State",
	"Last Alert At",
	"Updated At",
}

// GenerateInventoryExport 生成库存导出 Excel 文件
// items 为空时只生成表头
func GenerateInventoryExport(items []domain.StockItem) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "Inventory"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 设置表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 写入表头
	for col, header := range InventoryExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to build cell name: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell: %w", err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 写入数据行
	for rowIdx, item := range items {
		row := rowIdx + 2
		values := []any{
			item.Name,
			nullableString(item.Barcode.Valid, item.Barcode.String),
			item.QuantityCurrent,
			item.QuantityMin,
			string(item.AlertState),
			nullableTime(item.LastAlertAt.Valid, item.LastAlertAt.Time),
			item.UpdatedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to build cell name: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set data cell: %w", err)
			}
		}
	}

	// 列宽
	if err := f.SetColWidth(sheetName, "A", "B", 24); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "C", "G", 16); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write excel file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close excel file: %w", err)
	}

	return buf.Bytes(), nil
}

func nullableString(valid bool, s string) string {
	if !valid {
		return ""
	}
	return s
}

func nullableTime(valid bool, t time.Time) string {
	if !valid {
		return ""
	}
	return t.Format(time.RFC3339)
}
