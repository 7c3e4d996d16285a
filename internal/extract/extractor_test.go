package extract

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractBytes_jsonQA(t *testing.T) {
	content := []byte(`{
		"categories": [
			{
				"category": "Accounts",
				"questions": [
					{"question": "What is the minimum balance?", "answer": "Rs. 500."},
					{"question": "", "answer": "orphan answer"}
				]
			},
			{
				"questions": [
					{"question": "How do I open an account?", "answer": "Visit a branch."}
				]
			}
		]
	}`)

	e := NewExtractor()
	records, err := e.ExtractBytes(content, ".json", "faq.json")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Category != "Accounts" {
		t.Errorf("category = %q", records[0].Category)
	}
	if records[0].Content != "Question: What is the minimum balance?\nAnswer: Rs. 500." {
		t.Errorf("content = %q", records[0].Content)
	}
	if records[1].Category != "Uncategorized" {
		t.Errorf("missing category should default, got %q", records[1].Category)
	}
	if records[0].Source != "faq.json" {
		t.Errorf("source = %q", records[0].Source)
	}
}

func TestExtractBytes_jsonGeneric(t *testing.T) {
	content := []byte(`{"bank": {"name": "Finbot", "branches": [{"city": "Islamabad"}]}}`)

	e := NewExtractor()
	records, err := e.ExtractBytes(content, ".json", "meta.json")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Content != "bank.branches.city: Islamabad" {
		t.Errorf("record 0 = %q", records[0].Content)
	}
	if records[1].Content != "bank.name: Finbot" {
		t.Errorf("record 1 = %q", records[1].Content)
	}
}

func TestExtractBytes_jsonInvalid(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("{nope"), ".json", "bad.json"); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func buildWorkbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			t.Fatal(err)
		}
	}
	for i, row := range rows {
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				t.Fatal(err)
			}
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return buf.Bytes()
}

func TestExtractBytes_excelQA(t *testing.T) {
	content := buildWorkbook(t, "FAQ", [][]any{
		{"Question", "Answer", "Category"},
		{"What are the charges?", "Rs. 100 per cheque book.", "Fees"},
		{"How long does card issuance take?", "Five working days.", ""},
	})

	e := NewExtractor()
	records, err := e.ExtractBytes(content, ".xlsx", "faq.xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Category != "Fees" {
		t.Errorf("category = %q", records[0].Category)
	}
	if records[1].Category != "FAQ" {
		t.Errorf("empty category should fall back to the sheet name, got %q", records[1].Category)
	}
	if records[0].SheetName != "FAQ" {
		t.Errorf("sheet name = %q", records[0].SheetName)
	}
}

func TestExtractBytes_excelProduct(t *testing.T) {
	content := buildWorkbook(t, "Products", [][]any{
		{"Product", "Description", "Features"},
		{"Value Plus Account", "Premium current account.", "Free SMS alerts"},
		{"Empty Product", "", ""},
	})

	e := NewExtractor()
	records, err := e.ExtractBytes(content, ".xlsx", "products.xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	want := "Product: Value Plus Account\nDescription: Premium current account.\nFeatures: Free SMS alerts"
	if records[0].Content != want {
		t.Errorf("content = %q", records[0].Content)
	}
}

func TestExtractBytes_excelGeneric(t *testing.T) {
	content := buildWorkbook(t, "Rates", [][]any{
		{"Tenor", "Rate"},
		{"1 Year", "18.5%"},
	})

	e := NewExtractor()
	records, err := e.ExtractBytes(content, ".xlsx", "rates.xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Content != "Tenor: 1 Year\nRate: 18.5%" {
		t.Errorf("content = %q", records[0].Content)
	}
}

func TestExtractBytes_csvTextColumn(t *testing.T) {
	content := []byte("id,text\n1,Transfers are free for premium accounts.\n2,\n")

	e := NewExtractor()
	records, err := e.ExtractBytes(content, ".csv", "notes.csv")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Content != "Transfers are free for premium accounts." {
		t.Errorf("content = %q", records[0].Content)
	}
}

func TestExtractBytes_csvGeneric(t *testing.T) {
	content := []byte("service,fee\nSMS alerts,Rs. 50\n")

	e := NewExtractor()
	records, err := e.ExtractBytes(content, ".csv", "fees.csv")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Content != "service: SMS alerts\nfee: Rs. 50" {
		t.Errorf("content = %q", records[0].Content)
	}
}

func TestExtractBytes_plain(t *testing.T) {
	e := NewExtractor()
	records, err := e.ExtractBytes([]byte("hello\x80world"), ".txt", "note.txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].Content != "hello�world" {
		t.Errorf("invalid UTF-8 should be replaced, got %q", records[0].Content)
	}
}

func TestExtractBytes_unsupported(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("x"), ".exe", "x.exe"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestExtract_file(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.json")
	content := `{"categories":[{"category":"Cards","questions":[{"question":"q","answer":"a"}]}]}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor()
	records, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].Source != "faq.json" {
		t.Errorf("source = %q", records[0].Source)
	}
}

func TestSupportedExt(t *testing.T) {
	for _, ext := range []string{".json", ".xlsx", ".xls", ".csv", ".pdf", ".txt", ".md"} {
		if !SupportedExt(ext) {
			t.Errorf("SupportedExt(%q) = false", ext)
		}
	}
	for _, ext := range []string{".exe", ".docx", ""} {
		if SupportedExt(ext) {
			t.Errorf("SupportedExt(%q) = true", ext)
		}
	}
}
