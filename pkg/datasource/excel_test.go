package datasource

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", "Processes"))
	processRows := [][]any{
		{"ID", "Name", "Location", "ValidFrom", "TechnicalType"},
		{"p1", "steel rolling", "DE", "2020", "converter route"},
		{"p2", "steel rolling", "CN", "2018", "electric arc"},
		{"p3", "aluminium casting", "DE", "2021", ""},
	}
	for i, row := range processRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Processes", cell, &row))
	}

	_, err := f.NewSheet("Flows")
	require.NoError(t, err)
	flowRows := [][]any{
		{"ProcessID", "FlowName", "FlowID"},
		{"p1", "iron ore", "f1"},
		{"p1", "coke", "f2"},
		{"p2", "scrap steel", "f3"},
	}
	for i, row := range flowRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Flows", cell, &row))
	}

	path := filepath.Join(t.TempDir(), "processes.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestExcelListTables(t *testing.T) {
	src, err := OpenExcel(writeWorkbook(t))
	require.NoError(t, err)
	defer src.Close()

	tables, err := src.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Processes", "Flows"}, tables)
}

func TestExcelSelectFilters(t *testing.T) {
	src, err := OpenExcel(writeWorkbook(t))
	require.NoError(t, err)
	defer src.Close()

	rows, err := src.Select(context.Background(), "Processes", Query{
		Filters: map[string]string{"Name": "steel rolling", "Location": "DE"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0]["ID"].String())
	assert.Equal(t, "converter route", rows[0]["TechnicalType"].String())
}

func TestExcelSelectProjection(t *testing.T) {
	src, err := OpenExcel(writeWorkbook(t))
	require.NoError(t, err)
	defer src.Close()

	rows, err := src.Select(context.Background(), "Flows", Query{
		Filters: map[string]string{"ProcessID": "p1"},
		Columns: []string{"FlowName"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Len(t, row, 1)
		assert.Contains(t, row, "FlowName")
	}
}

func TestExcelNullCells(t *testing.T) {
	src, err := OpenExcel(writeWorkbook(t))
	require.NoError(t, err)
	defer src.Close()

	rows, err := src.Select(context.Background(), "Processes", Query{
		Filters: map[string]string{"ID": "p3"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["TechnicalType"].Null, "empty cell surfaces as null, not empty string")
}

func TestExcelNoMatchesIsEmptyNotError(t *testing.T) {
	src, err := OpenExcel(writeWorkbook(t))
	require.NoError(t, err)
	defer src.Close()

	rows, err := src.Select(context.Background(), "Flows", Query{
		Filters: map[string]string{"ProcessID": "p999"},
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExcelErrorTaxonomy(t *testing.T) {
	src, err := OpenExcel(writeWorkbook(t))
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()

	_, err = src.Select(ctx, "Recipes", Query{})
	assert.ErrorIs(t, err, ErrTableNotFound)

	_, err = src.Select(ctx, "Processes", Query{Filters: map[string]string{"Color": "red"}})
	assert.ErrorIs(t, err, ErrColumnNotFound)

	_, err = src.Select(ctx, "Processes", Query{Columns: []string{"Color"}})
	assert.ErrorIs(t, err, ErrColumnNotFound)
}
