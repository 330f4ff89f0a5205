package schedule

import (
	"fmt"
	"strings"
)

// Telegram-facing formatting. Texts stay in Ukrainian; parse mode is
// Markdown.

// FormatForQueue renders one queue's outages for the day.
func (d *Daily) FormatForQueue(queue string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 *%s*\n", d.DisplayDate())
	fmt.Fprintf(&b, "🔌 Черга *%s*\n\n", queue)

	hours, ok := d.HoursForQueue(queue)
	if !ok || len(hours) == 0 {
		b.WriteString("⏳ _Очікується_")
		return b.String()
	}
	b.WriteString("⏰ Години відключень:\n")
	for _, h := range hours {
		fmt.Fprintf(&b, "  • %s\n", h)
	}
	return b.String()
}

// FormatAll renders the whole day. When userQueue is set and has outages it
// is shown prominently at the top.
func (d *Daily) FormatAll(userQueue string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 *%s*\n\n", d.DisplayDate())

	if !d.HasData() {
		b.WriteString("⏳ _Графік очікується..._")
		return b.String()
	}

	if userQueue != "" {
		if hours, ok := d.HoursForQueue(userQueue); ok && len(hours) > 0 {
			fmt.Fprintf(&b, "🔌 *Черга %s:*\n", userQueue)
			fmt.Fprintf(&b, "⏰ *%s*\n\n", strings.Join(hours, ", "))
		}
	}

	for _, q := range Queues {
		hours, ok := d.QueueHours[q]
		var line string
		if !ok || len(hours) == 0 {
			line = "⏳ очікується"
		} else {
			line = strings.Join(hours, ", ")
		}
		if q == userQueue && len(hours) > 0 {
			fmt.Fprintf(&b, "*%s:* *%s*\n", q, line)
		} else {
			fmt.Fprintf(&b, "*%s:* %s\n", q, line)
		}
	}
	return b.String()
}
