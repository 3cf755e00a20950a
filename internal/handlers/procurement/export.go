package procurement

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/xuri/excelize/v2"

	"procuro/internal/audit"
	"procuro/internal/response"
)

// ExportAOQ exports an abstract's comparison grid: one row per item,
// one unit-cost column per supplier who quoted in the batch, with the
// chosen awardee in the last column.
func (h *Handler) ExportAOQ(w http.ResponseWriter, r *http.Request, id string) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}

	aoq, err := h.loadAOQ(id)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}

	// Stable supplier column order: first appearance across items, which
	// loadAOQ already sorts by price then supplier.
	var supplierIDs []string
	supplierNames := map[string]string{}
	seen := map[string]bool{}
	for _, it := range aoq.Items {
		for _, d := range it.Details {
			if !seen[d.SupplierID] {
				seen[d.SupplierID] = true
				supplierIDs = append(supplierIDs, d.SupplierID)
				supplierNames[d.SupplierID] = d.SupplierName
			}
		}
	}

	headers := []string{"#", "Description", "Unit", "Qty"}
	for _, sid := range supplierIDs {
		name := supplierNames[sid]
		if name == "" {
			name = sid
		}
		headers = append(headers, name)
	}
	headers = append(headers, "Awardee", "Doc Type")

	var data [][]string
	for _, it := range aoq.Items {
		if !it.Included {
			continue
		}

		var seq int
		var description, unit string
		var qty float64
		h.DB.QueryRow("SELECT seq, description, unit, qty FROM purchase_request_items WHERE id=?", it.PRItemID).
			Scan(&seq, &description, &unit, &qty)

		row := []string{strconv.Itoa(seq), description, unit, strconv.FormatFloat(qty, 'f', -1, 64)}
		quotes := map[string]float64{}
		for _, d := range it.Details {
			quotes[d.SupplierID] = d.UnitCost
		}
		for _, sid := range supplierIDs {
			if cost, ok := quotes[sid]; ok {
				row = append(row, strconv.FormatFloat(cost, 'f', 2, 64))
			} else {
				row = append(row, "")
			}
		}
		awardee := ""
		if it.AwardeeID != nil {
			awardee = supplierNames[*it.AwardeeID]
			if awardee == "" {
				awardee = *it.AwardeeID
			}
		}
		row = append(row, awardee, it.DocumentType)
		data = append(data, row)
	}

	if h.OfficeHead != "" {
		signatory := h.OfficeHead
		if h.OfficeName != "" {
			signatory += ", " + h.OfficeName
		}
		data = append(data, []string{}, []string{"", "Approved by:", signatory})
	}

	h.LogAudit(r, audit.ActionExport, "abstract_quotations", id,
		fmt.Sprintf("Exported abstract %s as %s", id, format), nil, false)

	if format == "csv" {
		exportCSV(w, "abstract-"+id+".csv", headers, data)
		return
	}
	exportExcel(w, "Abstract "+id, "abstract-"+id+".xlsx", headers, data)
}

func exportCSV(w http.ResponseWriter, filename string, headers []string, data [][]string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(headers); err != nil {
		http.Error(w, "Failed to write CSV headers", 500)
		return
	}
	for _, row := range data {
		if err := writer.Write(row); err != nil {
			http.Error(w, "Failed to write CSV row", 500)
			return
		}
	}
}

func exportExcel(w http.ResponseWriter, sheetName, filename string, headers []string, data [][]string) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		http.Error(w, "Failed to create Excel sheet", 500)
		return
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		http.Error(w, "Failed to create header style", 500)
		return
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, row := range data {
		for colIdx, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	for i := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, 18)
	}

	if sheetName != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := f.Write(w); err != nil {
		http.Error(w, "Failed to write Excel file", 500)
	}
}
