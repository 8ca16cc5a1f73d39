package excel

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestImportCSV(t *testing.T) {
	csvData := "слово,перевод\nкошка,cat\nсобака,\"dog, hound\"\n"

	res, err := Import("words.csv", strings.NewReader(csvData), ImportConfig{StartRow: 2, Columns: []string{"A"}})
	require.NoError(t, err)
	assert.Equal(t, "кошка\nсобака\n", res.Text)
	assert.Equal(t, 2, res.Rows)

	res, err = Import("words.csv", strings.NewReader(csvData), DefaultImportConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.Contains(t, res.Text, "собака dog, hound")
}

func TestImportExcel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Текст"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Мама мыла раму"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "ignored"))
	_, err := f.NewSheet("Sheet2")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Sheet2", "A1", "Второй лист"))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	res, err := Import("book.xlsx", bytes.NewReader(buf.Bytes()), ImportConfig{Columns: []string{"A"}, StartRow: 1})
	require.NoError(t, err)
	assert.Equal(t, "Текст\nМама мыла раму\nВторой лист\n", res.Text)
	assert.Equal(t, 3, res.Cells)

	res, err = Import("book.xlsx", bytes.NewReader(buf.Bytes()), ImportConfig{SheetName: "Sheet1", StartRow: 2})
	require.NoError(t, err)
	assert.Equal(t, "Мама мыла раму ignored\n", res.Text)
}

func TestImportText(t *testing.T) {
	res, err := Import("Story.TXT", strings.NewReader("Жили-были дед и баба"), DefaultImportConfig())
	require.NoError(t, err)
	assert.Equal(t, "Жили-были дед и баба", res.Text)
}

func TestImportRejects(t *testing.T) {
	_, err := Import("image.png", strings.NewReader("x"), DefaultImportConfig())
	assert.Error(t, err)

	_, err = Import("bad.txt", bytes.NewReader([]byte{0xff, 0xfe}), DefaultImportConfig())
	assert.Error(t, err)

	_, err = Import("words.csv", strings.NewReader("a,b"), ImportConfig{Columns: []string{"1"}})
	assert.Error(t, err)

	assert.True(t, SupportedExtension("Book.XLSX"))
	assert.False(t, SupportedExtension("book.doc"))
}
