// Copyright 2025 Switchyard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

// OutputMode defines the output format for CLI commands
type OutputMode string

const (
	// ModeJSON outputs data as JSON
	ModeJSON OutputMode = "json"
	// ModeTable outputs data as ASCII table
	ModeTable OutputMode = "table"
)

// Formatter provides consistent output formatting across CLI commands
type Formatter interface {
	// PrintJSON outputs data as JSON to stdout
	PrintJSON(data any) error

	// PrintTable outputs data as ASCII table to stdout
	PrintTable(headers []string, rows [][]string) error

	// PrintSuccess outputs a success message to stdout (unless quiet mode)
	PrintSuccess(message string) error

	// PrintError outputs an error to stderr (or JSON to stdout in JSON mode)
	PrintError(err error) error

	// PrintTotalFailureSummary outputs a failed operation with actionable
	// suggestions (or a JSON error object in JSON mode)
	PrintTotalFailureSummary(operation string, err error, suggestions []string) error

	// IsJSON reports whether the formatter emits machine-readable output
	IsJSON() bool
}

// formatter implements the Formatter interface
type formatter struct {
	stdout io.Writer
	stderr io.Writer
	mode   OutputMode
	quiet  bool
	color  bool
}

// New creates a new Formatter
func New(stdout, stderr io.Writer, mode OutputMode, quiet, color bool) Formatter {
	return &formatter{
		stdout: stdout,
		stderr: stderr,
		mode:   mode,
		quiet:  quiet,
		color:  color,
	}
}

// PrintJSON outputs data as JSON to stdout
func (f *formatter) PrintJSON(data any) error {
	enc := json.NewEncoder(f.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// PrintTable outputs data as ASCII table to stdout
func (f *formatter) PrintTable(headers []string, rows [][]string) error {
	if f.mode == ModeJSON {
		// In JSON mode, convert table to structured data
		var items []map[string]string
		for _, row := range rows {
			item := make(map[string]string)
			for i, header := range headers {
				if i < len(row) {
					item[header] = row[i]
				}
			}
			items = append(items, item)
		}
		return f.PrintJSON(items)
	}

	// Table mode using text/tabwriter
	w := tabwriter.NewWriter(f.stdout, 0, 0, 2, ' ', 0)

	// Print header (uppercase and bold if color enabled)
	if f.color {
		headerLine := make([]string, len(headers))
		for i, h := range headers {
			headerLine[i] = color.New(color.Bold).Sprint(strings.ToUpper(h))
		}
		if _, err := fmt.Fprintln(w, strings.Join(headerLine, "\t")); err != nil {
			return err
		}
	} else {
		if _, err := fmt.Fprintln(w, strings.Join(headers, "\t")); err != nil {
			return err
		}
	}

	// Print rows
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}

	return w.Flush()
}

// PrintSuccess outputs a success message to stdout (unless quiet mode)
// Example: "✓ Added user alice (admin)"
func (f *formatter) PrintSuccess(message string) error {
	if f.quiet {
		return nil
	}

	if f.mode == ModeJSON {
		return f.PrintJSON(map[string]any{
			"success": true,
			"message": message,
		})
	}

	if f.color {
		_, err := color.New(color.FgGreen).Fprintf(f.stdout, "✓ %s\n", message)
		return err
	}

	_, err := fmt.Fprintf(f.stdout, "✓ %s\n", message)
	return err
}

// PrintError outputs an error to stderr (or JSON to stdout in JSON mode)
func (f *formatter) PrintError(err error) error {
	if err == nil {
		return nil
	}

	if f.mode == ModeJSON {
		// JSON mode: error object to stdout (machine-readable)
		return f.PrintJSON(map[string]any{
			"success": false,
			"error":   err.Error(),
		})
	}

	// Table mode: error to stderr (human-readable)
	var writeErr error
	if f.color {
		_, writeErr = color.New(color.FgRed).Fprintf(f.stderr, "Error: %v\n", err)
	} else {
		_, writeErr = fmt.Fprintf(f.stderr, "Error: %v\n", err)
	}

	return writeErr
}

// PrintTotalFailureSummary prints total failure with error and suggestions
// Example output:
//
//	✗ Failed to start server: bind: address already in use
//
//	💡 Suggestions:
//	  → Pick another port:  switchyard serve --server.port <port>
func (f *formatter) PrintTotalFailureSummary(operation string, err error, suggestions []string) error {
	if f.quiet {
		return nil
	}

	if f.mode == ModeJSON {
		return f.PrintJSON(map[string]any{
			"success":     false,
			"operation":   operation,
			"error":       err.Error(),
			"suggestions": suggestions,
		})
	}

	var sb strings.Builder

	errorMsg := fmt.Sprintf("✗ Failed to %s: %v", operation, err)
	if f.color {
		sb.WriteString(color.RedString("%s\n", errorMsg))
	} else {
		sb.WriteString(fmt.Sprintf("%s\n", errorMsg))
	}

	if len(suggestions) > 0 {
		sb.WriteString("\n💡 Suggestions:\n")
		for _, s := range suggestions {
			sb.WriteString(fmt.Sprintf("  → %s\n", s))
		}
	}

	_, writeErr := f.stderr.Write([]byte(sb.String()))
	return writeErr
}

// IsJSON reports whether the formatter emits machine-readable output
func (f *formatter) IsJSON() bool {
	return f.mode == ModeJSON
}

// ValidateMode checks if the output mode is valid
func ValidateMode(mode string) error {
	switch OutputMode(mode) {
	case ModeJSON, ModeTable:
		return nil
	default:
		return fmt.Errorf("invalid output mode: %s (must be 'json' or 'table')", mode)
	}
}

// ParseMode converts a string to OutputMode
func ParseMode(mode string) OutputMode {
	switch strings.ToLower(mode) {
	case "json":
		return ModeJSON
	case "table":
		return ModeTable
	default:
		return ModeTable // default
	}
}
