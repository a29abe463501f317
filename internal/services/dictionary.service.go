package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	logger "github.com/Bparsons0904/goLogger"
)

const (
	ColumnMunicipality  = "Mun Trab"
	ColumnUF            = "UF"
	ColumnCNAE          = "CNAE 2.0 Subclasse"
	ColumnCBO           = "CBO Ocupação 2002"
	translatedSuffix    = " (Traduzido)"
	municipalityCodeCol = "COD"
	municipalityNameCol = "DESC MUNICIPIO"
	municipalityUFCol   = "DESC UF"
)

// TranslatedColumns are the dictionary sheets, applied in this order.
var TranslatedColumns = []string{
	ColumnMunicipality,
	"Natureza Jurídica",
	"Tamanho Estabelecimento",
	ColumnCBO,
	"Faixa Hora Contrat",
	"Faixa Tempo Emprego",
	"Tipo Vínculo",
	"Escolaridade após 2005",
	"Nacionalidade",
	"Raça Cor",
	"Sexo Trabalhador",
	"Tipo Defic",
	ColumnCNAE,
}

// appendedColumns keep their code and gain a translated sibling column.
var appendedColumns = map[string]bool{
	ColumnCNAE: true,
	ColumnCBO:  true,
}

// Dictionary maps a code to its label.
type Dictionary map[string]string

// TranslationTable holds every dictionary of a run. It is read-only once built.
type TranslationTable struct {
	columns     map[string]Dictionary
	region      Dictionary
	place       Dictionary
	notInformed string
}

func NewTranslationTable(notInformed string) *TranslationTable {
	return &TranslationTable{
		columns:     make(map[string]Dictionary),
		region:      Dictionary{},
		place:       Dictionary{},
		notInformed: notInformed,
	}
}

func (t *TranslationTable) lookup(dict Dictionary, code string) string {
	if label, ok := dict[strings.TrimSpace(code)]; ok && label != "" {
		return label
	}
	return t.notInformed
}

// Translate returns the label of code in column, or the not-informed sentinel.
func (t *TranslationTable) Translate(column, code string) string {
	return t.lookup(t.columns[column], code)
}

// Region returns the UF of a municipality code.
func (t *TranslationTable) Region(code string) string {
	return t.lookup(t.region, code)
}

// Place returns the municipality name of a municipality code.
func (t *TranslationTable) Place(code string) string {
	return t.lookup(t.place, code)
}

func (t *TranslationTable) NotInformed() string {
	return t.notInformed
}

// Size returns the number of entries loaded for column.
func (t *TranslationTable) Size(column string) int {
	if column == ColumnMunicipality {
		return len(t.place)
	}
	return len(t.columns[column])
}

func (t *TranslationTable) set(column string, dict Dictionary) {
	t.columns[column] = dict
}

type DictionaryService struct {
	path        string
	notInformed string
	open        WorkbookOpener
	table       *TranslationTable
	mu          sync.Mutex
	log         logger.Logger
}

func NewDictionaryService(path, notInformed string, open WorkbookOpener) *DictionaryService {
	if open == nil {
		open = OpenExcelWorkbook
	}
	return &DictionaryService{
		path:        path,
		notInformed: notInformed,
		open:        open,
		log:         logger.New("dictionaryService"),
	}
}

// Load builds the translation table on first use and returns the cached table
// afterwards. A workbook that cannot be opened is a critical error; a missing or
// malformed sheet only leaves its dictionary empty.
func (s *DictionaryService) Load(ctx context.Context) (*TranslationTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table != nil {
		return s.table, nil
	}

	log := s.log.TraceFromContext(ctx).Function("Load")

	workbook, err := s.open(s.path)
	if err != nil {
		return nil, log.Err("failed to open dictionary workbook", err, "path", s.path)
	}
	defer func() {
		if closeErr := workbook.Close(); closeErr != nil {
			log.Warn("failed to close dictionary workbook", "error", closeErr)
		}
	}()

	table := NewTranslationTable(s.notInformed)
	for _, column := range TranslatedColumns {
		rows, err := workbook.Rows(column)
		if err != nil {
			log.Warn("Failed to read dictionary sheet, using empty dictionary", "sheet", column, "error", err)
			rows = nil
		}

		if column == ColumnMunicipality {
			region, place, err := parseMunicipalitySheet(rows)
			if err != nil {
				log.Warn("Malformed municipality sheet, using empty dictionary", "sheet", column, "error", err)
			}
			table.region = region
			table.place = place
			continue
		}

		table.set(column, parseCodeSheet(rows))
	}

	loaded := 0
	for _, column := range TranslatedColumns {
		if table.Size(column) > 0 {
			loaded++
		}
	}
	log.Info("Dictionaries loaded", "sheets", len(TranslatedColumns), "nonEmpty", loaded)

	s.table = table
	return table, nil
}

// parseCodeSheet reads code and label from the first two columns, skipping the header.
func parseCodeSheet(rows [][]string) Dictionary {
	dict := Dictionary{}
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		code := strings.TrimSpace(row[0])
		if code == "" {
			continue
		}
		dict[code] = row[1]
	}
	return dict
}

func parseMunicipalitySheet(rows [][]string) (Dictionary, Dictionary, error) {
	region, place := Dictionary{}, Dictionary{}
	if len(rows) == 0 {
		return region, place, nil
	}

	header := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		header[strings.TrimSpace(name)] = i
	}

	codeIdx, okCode := header[municipalityCodeCol]
	placeIdx, okPlace := header[municipalityNameCol]
	ufIdx, okUF := header[municipalityUFCol]
	if !okCode || !okPlace || !okUF {
		return region, place, fmt.Errorf(
			"missing header columns, want %s, %s and %s",
			municipalityCodeCol, municipalityNameCol, municipalityUFCol,
		)
	}

	cell := func(row []string, idx int) string {
		if idx < len(row) {
			return row[idx]
		}
		return ""
	}

	for _, row := range rows[1:] {
		code := strings.TrimSpace(cell(row, codeIdx))
		if code == "" {
			continue
		}
		if name := cell(row, placeIdx); name != "" {
			place[code] = name
		}
		if uf := cell(row, ufIdx); uf != "" {
			region[code] = uf
		}
	}
	return region, place, nil
}
