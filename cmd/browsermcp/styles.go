package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Color Palette
var (
	salmonPink = lipgloss.Color("#FFB3BA") // errors and headers
	mintGreen  = lipgloss.Color("#A8E6CF") // success
	amber      = lipgloss.Color("#FFD580") // warnings
	mutedGray  = lipgloss.Color("#6B7280") // hints
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(salmonPink).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(mintGreen).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(amber)
	errorStyle   = lipgloss.NewStyle().Foreground(salmonPink).Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(mutedGray)
	codeStyle    = lipgloss.NewStyle().Foreground(mintGreen)
)

// console writes human-facing messages. It is always stderr in the real
// binary: stdout carries the MCP stream.
type console struct {
	w io.Writer
}

func (c console) line(style lipgloss.Style, format string, args ...any) {
	fmt.Fprintln(c.w, style.Render(fmt.Sprintf(format, args...)))
}

func (c console) header(format string, args ...any)  { c.line(headerStyle, format, args...) }
func (c console) success(format string, args ...any) { c.line(successStyle, format, args...) }
func (c console) warn(format string, args ...any)    { c.line(warningStyle, format, args...) }
func (c console) fail(format string, args ...any)    { c.line(errorStyle, format, args...) }
func (c console) hint(format string, args ...any)    { c.line(hintStyle, format, args...) }
func (c console) code(format string, args ...any)    { c.line(codeStyle, "   "+format, args...) }
func (c console) blank()                             { fmt.Fprintln(c.w) }
