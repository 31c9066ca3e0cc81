// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline renders values as one rune per value, scaled to the series max.
// Only the newest width values are drawn.
func sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	peak := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}

	var b strings.Builder
	for _, v := range values {
		idx := 0
		if peak > 0 && v > 0 {
			idx = int(v / peak * float64(len(sparkRunes)-1))
			if idx >= len(sparkRunes) {
				idx = len(sparkRunes) - 1
			}
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}

// gauge renders a percentage as a filled bar followed by the number.
func gauge(percent float64, width int) string {
	if width < 1 {
		width = 1
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100 * float64(width))

	style := gaugeGoodStyle
	switch {
	case percent < 50:
		style = gaugeBadStyle
	case percent < 80:
		style = gaugeWarnStyle
	}

	return style.Render(strings.Repeat("█", filled)) +
		gaugeEmptyStyle.Render(strings.Repeat("░", width-filled)) +
		fmt.Sprintf(" %5.1f%%", percent)
}

// barChart renders one horizontal bar per label, scaled to the largest value.
func barChart(labels []string, values []uint64, width int, style lipgloss.Style) string {
	labelWidth := 0
	for _, l := range labels {
		if len(l) > labelWidth {
			labelWidth = len(l)
		}
	}

	var peak uint64
	var total uint64
	for _, v := range values {
		total += v
		if v > peak {
			peak = v
		}
	}

	var b strings.Builder
	for i, label := range labels {
		v := values[i]
		n := 0
		if peak > 0 {
			n = int(float64(v) / float64(peak) * float64(width))
		}
		share := 0.0
		if total > 0 {
			share = float64(v) / float64(total) * 100
		}
		fmt.Fprintf(&b, "%-*s %s %s\n",
			labelWidth, label,
			style.Render(padRight(strings.Repeat("■", n), width)),
			mutedStyle.Render(fmt.Sprintf("%s (%4.1f%%)", formatCount(v), share)),
		)
	}
	return b.String()
}

// formatCount renders n with thousands separators.
func formatCount(n uint64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func padRight(s string, width int) string {
	n := lipgloss.Width(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
