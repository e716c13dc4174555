// Package campaign loads debtor spreadsheets and runs outbound opening
// batches through the messaging provider.
package campaign

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Debtor is one row of the collection spreadsheet.
type Debtor struct {
	Phone       string
	Name        string
	AmountCents int64
	DueDate     time.Time
	InvoiceID   string
}

// ErrNoDebtors is returned when the spreadsheet has no usable rows.
var ErrNoDebtors = errors.New("campaign: spreadsheet has no usable rows")

// expected header names, case-insensitive. Both the Portuguese operator
// spreadsheets and the English exports are accepted.
var headerAliases = map[string]string{
	"telefone":   "phone",
	"phone":      "phone",
	"celular":    "phone",
	"nome":       "name",
	"name":       "name",
	"valor":      "amount",
	"amount":     "amount",
	"vencimento": "due_date",
	"due_date":   "due_date",
	"fatura":     "invoice",
	"invoice":    "invoice",
}

// LoadDebtors parses a debtor CSV. Rows that cannot be parsed are skipped
// and reported in the returned row errors; the batch proceeds with the
// valid rows.
func LoadDebtors(r io.Reader) ([]Debtor, []error, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("campaign: read header: %w", err)
	}
	cols := make(map[string]int)
	for i, name := range header {
		if canonical, ok := headerAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
			cols[canonical] = i
		}
	}
	for _, required := range []string{"phone", "name", "amount", "due_date"} {
		if _, ok := cols[required]; !ok {
			return nil, nil, fmt.Errorf("campaign: missing required column %q", required)
		}
	}

	var (
		debtors   []Debtor
		rowErrors []error
	)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rowErrors = append(rowErrors, fmt.Errorf("campaign: row %d: %w", line, err))
			continue
		}
		debtor, err := parseRow(record, cols)
		if err != nil {
			rowErrors = append(rowErrors, fmt.Errorf("campaign: row %d: %w", line, err))
			continue
		}
		debtors = append(debtors, debtor)
	}
	if len(debtors) == 0 {
		return nil, rowErrors, ErrNoDebtors
	}
	return debtors, rowErrors, nil
}

func parseRow(record []string, cols map[string]int) (Debtor, error) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	phone, err := normalizePhone(field("phone"))
	if err != nil {
		return Debtor{}, err
	}
	name := field("name")
	if name == "" {
		return Debtor{}, errors.New("missing name")
	}
	amount, err := parseAmountCents(field("amount"))
	if err != nil {
		return Debtor{}, err
	}
	due, err := parseDate(field("due_date"))
	if err != nil {
		return Debtor{}, err
	}

	return Debtor{
		Phone:       phone,
		Name:        name,
		AmountCents: amount,
		DueDate:     due,
		InvoiceID:   field("invoice"),
	}, nil
}

// normalizePhone reduces a Brazilian phone to E.164, defaulting the
// country code to +55 when absent.
func normalizePhone(raw string) (string, error) {
	digits := strings.Builder{}
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	num := digits.String()
	switch {
	case num == "":
		return "", errors.New("missing phone")
	case strings.HasPrefix(num, "55") && len(num) >= 12:
		return "+" + num, nil
	case len(num) == 10 || len(num) == 11:
		return "+55" + num, nil
	default:
		return "", fmt.Errorf("unrecognized phone %q", raw)
	}
}

// parseAmountCents accepts "1234.56", "1234,56" and "R$ 1.234,56".
func parseAmountCents(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.New("missing amount")
	}
	cleaned := strings.TrimSpace(strings.TrimPrefix(raw, "R$"))
	cleaned = strings.TrimSpace(cleaned)
	if strings.Contains(cleaned, ",") {
		// Brazilian format: dots group thousands, comma is decimal.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	if value <= 0 {
		return 0, fmt.Errorf("non-positive amount %q", raw)
	}
	return int64(value*100 + 0.5), nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing due date")
	}
	for _, layout := range []string{"02/01/2006", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid due date %q", raw)
}
