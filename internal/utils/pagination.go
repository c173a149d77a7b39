// Package utils provides small helpers shared by the transport layer.
package utils

import "strconv"

// AtoiDefault parses s, returning def when s is empty or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Page is a clamped page request.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"page_size"`
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages returns how many pages total rows span.
func (p Page) TotalPages(total int64) int {
	if p.Size <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

// ParsePage reads page and page_size query values, defaulting to page 1
// of defSize and capping the size at maxSize.
func ParsePage(page, size string, defSize, maxSize int) Page {
	p := Page{Number: AtoiDefault(page, 1), Size: AtoiDefault(size, defSize)}
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = 1
	}
	if p.Size > maxSize {
		p.Size = maxSize
	}
	return p
}
