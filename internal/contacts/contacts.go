package contacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Contact is one row of an uploaded contact list.
type Contact struct {
	Company string `json:"company"`
	Person  string `json:"person"`
	Email   string `json:"email"`
}

// ErrNoValidContacts is returned when a file parses but contains no row
// with a usable email address.
var ErrNoValidContacts = errors.New("no valid contacts found in file")

// MissingColumnsError reports which required columns could not be mapped.
type MissingColumnsError struct {
	Missing []string
	Found   []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s (found columns: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Found, ", "))
}

// Column header aliases, matched after lowercasing and trimming.
var (
	companyAliases = []string{"company", "company name", "company_name", "ceg", "cégnév", "cegnev"}
	personAliases  = []string{"person", "person name", "person_name", "name", "contact", "nev", "név", "kapcsolattarto", "kapcsolattartó"}
	emailAliases   = []string{"email", "e-mail", "email address", "email_address", "mail"}
)

// ParseFile parses an uploaded contact file. The format is chosen by file
// extension: .xlsx/.xls are read as a workbook, .csv as comma-separated
// text. Any other extension is rejected.
func ParseFile(filename string, r io.Reader) ([]Contact, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls":
		return parseWorkbook(r)
	case ".csv":
		return parseCSV(r)
	default:
		return nil, fmt.Errorf("invalid file type %q: please upload a .xlsx, .xls or .csv file", filepath.Ext(filename))
	}
}

func parseWorkbook(r io.Reader) ([]Contact, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return fromRows(rows)
}

func parseCSV(r io.Reader) ([]Contact, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	return fromRows(rows)
}

// fromRows maps a header row plus data rows into contacts.
func fromRows(rows [][]string) ([]Contact, error) {
	if len(rows) == 0 {
		return nil, errors.New("file is empty")
	}

	header := rows[0]
	mapping, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var result []Contact
	for _, row := range rows[1:] {
		c := Contact{
			Company: cell(row, mapping["company"]),
			Person:  cell(row, mapping["person"]),
			Email:   cell(row, mapping["email"]),
		}
		if ValidEmail(c.Email) {
			result = append(result, c)
		}
	}

	if len(result) == 0 {
		return nil, ErrNoValidContacts
	}
	return result, nil
}

// mapColumns resolves the required logical columns against the header row
// through the alias tables.
func mapColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}

	mapping := make(map[string]int, 3)
	for field, aliases := range map[string][]string{
		"company": companyAliases,
		"person":  personAliases,
		"email":   emailAliases,
	} {
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				mapping[field] = i
				break
			}
		}
	}

	if len(mapping) != 3 {
		var missing []string
		for _, field := range []string{"company", "person", "email"} {
			if _, ok := mapping[field]; !ok {
				missing = append(missing, field)
			}
		}
		sort.Strings(missing)
		return nil, &MissingColumnsError{Missing: missing, Found: header}
	}
	return mapping, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ValidEmail applies the minimal validity check used for uploaded rows:
// non-empty and containing both '@' and '.'.
func ValidEmail(email string) bool {
	return email != "" && strings.Contains(email, "@") && strings.Contains(email, ".")
}
