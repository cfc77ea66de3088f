package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output управляет форматом вывода команд: таблица или JSON.
type Output struct {
	jsonMode bool
	out      io.Writer
	errOut   io.Writer
}

// NewOutput создаёт вывод. При jsonMode все данные печатаются как JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		out:      os.Stdout,
		errOut:   os.Stderr,
	}
}

// Print печатает данные: таблицей в обычном режиме, JSON в режиме --json.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) error {
	if o.jsonMode {
		return o.JSON(jsonData)
	}
	return o.Table(headers, rows)
}

// Table печатает табличный вывод через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) error {
	w := tabwriter.NewWriter(o.out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))

	separators := make([]string, len(headers))
	for i, h := range headers {
		separators[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(separators, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	return w.Flush()
}

// JSON печатает данные в формате JSON с отступами.
func (o *Output) JSON(data any) error {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Success печатает сообщение об успехе в stderr, чтобы не мешать pipe.
func (o *Output) Success(format string, args ...any) {
	fmt.Fprintf(o.errOut, format+"\n", args...)
}

// Error печатает сообщение об ошибке в stderr.
func (o *Output) Error(format string, args ...any) {
	fmt.Fprintf(o.errOut, "Error: "+format+"\n", args...)
}
