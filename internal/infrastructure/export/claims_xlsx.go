package export

import (
	"fmt"
	"io"
	"time"

	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// RegisterSheet is the worksheet holding the claims register
const RegisterSheet = "Claims"

var registerColumns = []string{
	"Claim ID", "Employee ID", "Claim Type", "Claim Date (UTC)", "Status",
	"Queue No", "Hospital Code", "Amount Claimed", "Amount Approved", "Last Updated (UTC)",
}

// ClaimsRegister renders claims as an XLSX register
type ClaimsRegister struct {
	logger *zap.Logger
}

// NewClaimsRegister creates a register writer
func NewClaimsRegister(logger *zap.Logger) *ClaimsRegister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimsRegister{logger: logger}
}

// Write renders the claims with a totals row and streams the workbook to w
func (r *ClaimsRegister) Write(w io.Writer, claims []*entity.Claim, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", RegisterSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}

	for i, title := range registerColumns {
		r.setCell(f, cell(i+1, 1), title)
	}
	if err := f.SetCellStyle(RegisterSheet, "A1", cell(len(registerColumns), 1), headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	totalClaimed := decimal.Zero
	totalApproved := decimal.Zero
	for i, c := range claims {
		row := i + 2
		r.setCell(f, cell(1, row), c.ClaimID)
		r.setCell(f, cell(2, row), c.EmployeeID)
		r.setCell(f, cell(3, row), string(c.ClaimType))
		r.setCell(f, cell(4, row), c.ClaimDate.UTC().Format("2006-01-02"))
		r.setCell(f, cell(5, row), c.Status.String())
		if c.QueueNo != nil {
			r.setCell(f, cell(6, row), *c.QueueNo)
		}
		if c.HospitalCode != nil {
			r.setCell(f, cell(7, row), *c.HospitalCode)
		}
		r.setCell(f, cell(8, row), c.AmountClaimed.InexactFloat64())
		if c.AmountApproved != nil {
			r.setCell(f, cell(9, row), c.AmountApproved.InexactFloat64())
			totalApproved = totalApproved.Add(*c.AmountApproved)
		}
		r.setCell(f, cell(10, row), c.LastUpdatedAt.UTC().Format(time.RFC3339))
		totalClaimed = totalClaimed.Add(c.AmountClaimed)
	}

	totalRow := len(claims) + 2
	r.setCell(f, cell(1, totalRow), "Total")
	r.setCell(f, cell(8, totalRow), totalClaimed.InexactFloat64())
	r.setCell(f, cell(9, totalRow), totalApproved.InexactFloat64())
	if err := f.SetCellStyle(RegisterSheet, cell(8, 2), cell(9, totalRow), amountStyle); err != nil {
		return fmt.Errorf("failed to style amounts: %w", err)
	}

	r.setCell(f, cell(1, totalRow+2), "Generated at "+generatedAt.UTC().Format(time.RFC3339))

	if err := f.SetPanes(RegisterSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		r.logger.Warn("Failed to freeze header row", zap.Error(err))
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	r.logger.Info("Claims register exported", zap.Int("rows", len(claims)))
	return nil
}

func (r *ClaimsRegister) setCell(f *excelize.File, ref string, value interface{}) {
	if err := f.SetCellValue(RegisterSheet, ref, value); err != nil {
		r.logger.Warn("Failed to set cell value",
			zap.String("cell", ref),
			zap.Error(err))
	}
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
