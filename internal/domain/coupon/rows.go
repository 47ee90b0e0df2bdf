package coupon

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Column layout of the coupon sheet, 0-based within the configured range.
const (
	ColCode = iota
	ColDiscountType
	ColDiscountValue
	ColMinOrder
	ColMaxUsage
	ColUsedCount
	ColumnCount
)

// ParseRows converts raw sheet values into a Set. startRow is the sheet row of rows[0],
// so row i lives at startRow+i. Rows without a code are skipped; bad numbers become zero.
func ParseRows(rows [][]interface{}, startRow int) *Set {
	coupons := make([]*Coupon, 0, len(rows))
	for i, row := range rows {
		code := SanitizeCode(cellString(row, ColCode))
		if code == "" {
			continue
		}
		coupons = append(coupons, Reconstruct(
			code,
			ParseDiscountType(cellString(row, ColDiscountType)),
			cellFloat(row, ColDiscountValue),
			int64(math.Round(cellFloat(row, ColMinOrder))),
			int(cellFloat(row, ColMaxUsage)),
			int(cellFloat(row, ColUsedCount)),
			startRow+i,
		))
	}
	return NewSet(coupons)
}

func cellString(row []interface{}, col int) string {
	if col >= len(row) || row[col] == nil {
		return ""
	}
	switch v := row[col].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func cellFloat(row []interface{}, col int) float64 {
	if col >= len(row) || row[col] == nil {
		return 0
	}
	switch v := row[col].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	f, err := strconv.ParseFloat(cellString(row, col), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
