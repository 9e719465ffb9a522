package http

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-fin/meridian/internal/report"
	"github.com/meridian-fin/meridian/internal/statement"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

// amountPrinter renders thousands-separated amounts for the export.
var amountPrinter = message.NewPrinter(language.English)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	if _, err := s.buf.WriteString(line); err != nil {
		return err
	}
	return nil
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	return s.Flush()
}

// writeReportCSV streams the three statements as one sheet: shared period
// columns, one blank row between statements, metadata in comment rows up top.
func writeReportCSV(w io.Writer, rep report.Report) error {
	streamer := newCSVStreamer(w)
	if err := writeReportMetadata(streamer, rep.Metadata); err != nil {
		return err
	}
	header := csvHeader(rep)
	if err := streamer.writeRow(header); err != nil {
		return err
	}
	for _, st := range []statement.Statement{rep.IncomeStatement, rep.BalanceSheet, rep.CashFlow} {
		if err := streamer.writeRow(make([]string, len(header))); err != nil {
			return err
		}
		if err := writeStatementRows(streamer, st, rep); err != nil {
			return err
		}
	}
	return streamer.Close()
}

func csvHeader(rep report.Report) []string {
	header := []string{"Statement", "Section", "Account", "Line"}
	for _, p := range rep.Periods {
		header = append(header, p.Label)
		if rep.Metadata.IncludeYoY {
			header = append(header, p.Label+" (PY)")
		}
		if rep.Metadata.IncludeBudget {
			header = append(header, p.Label+" (Budget)")
		}
	}
	return header
}

func writeStatementRows(streamer *csvStreamer, st statement.Statement, rep report.Report) error {
	for _, sec := range st.Sections {
		for _, line := range sec.Lines {
			if err := streamer.writeRow(lineRow(st.Title, sec.Title, line, rep)); err != nil {
				return err
			}
		}
		if sec.Subtotal != nil {
			if err := streamer.writeRow(lineRow(st.Title, sec.Title, *sec.Subtotal, rep)); err != nil {
				return err
			}
		}
	}
	return nil
}

func lineRow(statementTitle, sectionTitle string, line statement.LineItem, rep report.Report) []string {
	row := []string{
		statementTitle,
		sectionTitle,
		line.AccountNumber,
		strings.Repeat("  ", line.Indent) + line.Label,
	}
	for _, p := range rep.Periods {
		row = append(row, formatCell(line, line.Amounts, p.Key))
		if rep.Metadata.IncludeYoY {
			row = append(row, formatCell(line, line.PriorAmounts, p.Key))
		}
		if rep.Metadata.IncludeBudget {
			row = append(row, formatCell(line, line.BudgetAmounts, p.Key))
		}
	}
	return row
}

// formatCell renders one amount cell. Percent lines hold raw ratios and are
// shown scaled; columns the line does not carry stay empty.
func formatCell(line statement.LineItem, series map[string]float64, key string) string {
	if series == nil {
		return ""
	}
	v := series[key]
	if line.Percent {
		return fmt.Sprintf("%.1f%%", v*100)
	}
	return amountPrinter.Sprintf("%.2f", v)
}

func writeReportMetadata(streamer *csvStreamer, meta report.Metadata) error {
	if err := streamer.writeComment(fmt.Sprintf("# Report: Financial Statements | %s: %s",
		scopeLabel(meta.Scope), meta.DisplayName)); err != nil {
		return err
	}
	if err := streamer.writeComment(fmt.Sprintf("# Range: %s..%s | Granularity: %s | YoY: %s | Budget: %s",
		meta.StartPeriod, meta.EndPeriod, meta.Granularity,
		onOff(meta.IncludeYoY), onOff(meta.IncludeBudget))); err != nil {
		return err
	}
	if err := streamer.writeComment(fmt.Sprintf("# Generated: %s | Report ID: %s",
		meta.GeneratedAt.Format(time.RFC3339), meta.ReportID)); err != nil {
		return err
	}
	warnings := metadataWarnings(meta)
	if len(warnings) == 0 {
		return streamer.writeComment("# Warnings: none")
	}
	return streamer.writeComment("# Warnings: " + strings.Join(warnings, "; "))
}

func metadataWarnings(meta report.Metadata) []string {
	var warnings []string
	for _, failed := range meta.FailedEntities {
		warnings = append(warnings, fmt.Sprintf("entity %s excluded: %s", failed.Name, failed.Reason))
	}
	if n := len(meta.Unmapped); n > 0 {
		warnings = append(warnings, fmt.Sprintf("%d unmapped accounts excluded from consolidation", n))
	}
	return warnings
}

func scopeLabel(scope report.Scope) string {
	if scope == report.ScopeOrganization {
		return "Organization"
	}
	return "Entity"
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}
