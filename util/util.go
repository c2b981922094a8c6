package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "20060102T150405"
)

// Yesterday returns the calendar day before now, formatted YYYY-MM-DD
func Yesterday(now time.Time) string {
	return now.AddDate(0, 0, -1).Format(DateLayout)
}

// Timestamp formats now as YYYYMMDDTHHMMSS
func Timestamp(now time.Time) string {
	return now.Format(TimestampLayout)
}

// ExpandPath resolves a leading ~ to the home directory
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// JoinObjectKey joins a remote folder and a file name with "/", skipping an empty folder
func JoinObjectKey(folder, name string) string {
	if folder == "" {
		return name
	}
	return strings.TrimSuffix(folder, "/") + "/" + name
}

// PyNumber keeps integers verbatim and renders floats the way Python's repr does
func PyNumber(text string) string {
	if !strings.ContainsAny(text, ".eE") {
		return text
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return text
	}

	abs := f
	if abs < 0 {
		abs = -abs
	}
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ToString renders a flattened value as a CSV cell, numbers and booleans in their Python form
func ToString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return PyNumber(t.String())
	case bool:
		if t {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprintf("%v", v)
	}
}
