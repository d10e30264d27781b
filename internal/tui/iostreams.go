// Package tui provides the terminal views for a repair run: the live
// tick-by-tick dashboard and the image-build progress display, both driven
// by events on a channel.
//
// Styles are re-exported from internal/iostreams and text utilities from
// internal/text — the canonical sources of truth. This file exists so the
// views can access that vocabulary without importing either directly.
//
// IMPORTANT: This file must NOT import github.com/charmbracelet/lipgloss.
package tui

import (
	"github.com/schmitthub/envrepair/internal/iostreams"
	"github.com/schmitthub/envrepair/internal/text"
)

// BrandOrangeStyle is the accent style for headers and spinners.
var BrandOrangeStyle = iostreams.BrandOrangeStyle

// Truncate shortens a string to maxLen characters, adding "..." if truncated.
func Truncate(s string, maxLen int) string { return text.Truncate(s, maxLen) }

// CountVisibleWidth returns the visible width of a string, excluding ANSI codes.
func CountVisibleWidth(s string) int { return text.CountVisibleWidth(s) }
