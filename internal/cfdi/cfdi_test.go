package cfdi

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const cfdi4Doc = `<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Serie="F" Folio="77" Fecha="2025-03-01T10:00:00">
  <cfdi:Receptor Nombre="IMSS BIENESTAR" Rfc="IMB210101AAA"/>
  <cfdi:Conceptos>
    <cfdi:Concepto Descripcion="Paracetamol 500mg" Cantidad="10" Importe="150.50"/>
    <cfdi:Concepto Descripcion="Ibuprofeno 400mg" Cantidad="5" Importe="80.00"/>
  </cfdi:Conceptos>
  <cfdi:Complemento>
    <tfd:TimbreFiscalDigital xmlns:tfd="http://www.sat.gob.mx/TimbreFiscalDigital" UUID="AAAA-1111"/>
  </cfdi:Complemento>
</cfdi:Comprobante>`

const cfdi3Doc = `<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/3" Folio="88" Fecha="2024-12-01T09:00:00">
  <cfdi:Receptor Nombre="INSABI" Rfc="INS190101BBB"/>
  <cfdi:Conceptos>
    <cfdi:Concepto Descripcion="Gasas" Cantidad="2" Importe="30.00"/>
  </cfdi:Conceptos>
  <cfdi:Complemento>
    <tfd:TimbreFiscalDigital xmlns:tfd="http://www.sat.gob.mx/TimbreFiscalDigital" UUID="BBBB-2222"/>
  </cfdi:Complemento>
</cfdi:Comprobante>`

const foreignDoc = `<?xml version="1.0"?><Comprobante xmlns="http://example.com/other" Folio="99"/>`

func writeXML(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExtractParsesAndAppendsOnlyUnseen(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "2025", "marzo")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeXML(t, dir, "f77.xml", cfdi4Doc)
	writeXML(t, sub, "f88.xml", cfdi3Doc)
	writeXML(t, dir, "other.xml", foreignDoc)
	writeXML(t, dir, "broken.xml", "<not-xml")

	database := filepath.Join(t.TempDir(), "xmls_extraidos.xlsx")
	db, added, err := Extract(context.Background(), []string{dir}, database, 4)
	if err != nil {
		t.Fatal(err)
	}
	if added != 3 {
		t.Fatalf("added = %d, want 3 concepto rows", added)
	}

	byUUID := map[string]int{}
	for _, r := range db.Rows {
		byUUID[r["UUID"].(string)]++
	}
	if byUUID["AAAA-1111"] != 2 || byUUID["BBBB-2222"] != 1 {
		t.Fatalf("rows per document: %v", byUUID)
	}

	var f77 map[string]any
	for _, r := range db.Rows {
		if r["Folio"] == "F-77" && r["Descripcion"] == "Paracetamol 500mg" {
			f77 = r
		}
	}
	if f77 == nil {
		t.Fatal("serie-folio row missing")
	}
	if f77["Cantidad"] != 10.0 || f77["Importe"] != 150.50 {
		t.Errorf("numeric conceptos not parsed: %#v", f77)
	}
	if f77["Rfc"] != "IMB210101AAA" {
		t.Errorf("receptor not extracted: %#v", f77)
	}

	// Second pass over the same folders adds nothing; the workbook already
	// records every UUID.
	_, added, err = Extract(context.Background(), []string{dir}, database, 4)
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 {
		t.Fatalf("re-run added %d rows, want 0", added)
	}
}

func TestExtractStartsFreshWithoutDatabase(t *testing.T) {
	db, added, err := Extract(context.Background(), []string{t.TempDir()}, filepath.Join(t.TempDir(), "db.xlsx"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 || !db.Empty() {
		t.Fatalf("empty folder: added=%d rows=%d", added, len(db.Rows))
	}
}
