// Package ui renders the operator-facing terminal views of the gateway CLI with lipgloss.
//
// [StatusView] is the only view: a summary of setup state, provider credential and guest sessions
// printed by `tunegate status`. Styles come from a [Palette] so output stays consistent across commands.
package ui
