package userclient

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Underline(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	selfStyle    = lipgloss.NewStyle().Bold(true)
)

// FormatLatency renders an average round trip, or "?" when none is known.
func FormatLatency(ms *float64) string {
	if ms == nil {
		return "?"
	}
	return fmt.Sprintf("%.1f ms", *ms)
}

// Render draws the group as plain lines: members with their color, latency
// and targets, then devices by slot with the users driving them.
func Render(s State, now time.Time) string {
	var b strings.Builder

	if s.GroupID == "" {
		b.WriteString(titleStyle.Render("Not in a group"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(titleStyle.Render("Group " + s.GroupID))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Users (%d)", len(s.Users))))
	b.WriteString("\n")
	for _, u := range s.Users {
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(u.Color)).Render("●")
		name := u.Name
		if u.ID == s.UserID {
			name = selfStyle.Render(name + " (you)")
		}
		idle := now.Sub(time.Unix(0, int64(u.LastActivityTime*float64(time.Second)))).Truncate(time.Second)
		targets := make([]string, 0, len(u.ConnectedDeviceIDs))
		for _, id := range u.ConnectedDeviceIDs {
			targets = append(targets, deviceLabel(s, id))
		}
		fmt.Fprintf(&b, "  %s %s  %s  %s", swatch, name, FormatLatency(u.LastPing), dimStyle.Render("idle "+idle.String()))
		if len(targets) > 0 {
			fmt.Fprintf(&b, "  -> %s", strings.Join(targets, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Devices (%d)", len(s.Devices))))
	b.WriteString("\n")
	for _, d := range s.Devices {
		users := make([]string, 0, len(d.ConnectedUserIDs))
		for _, id := range d.ConnectedUserIDs {
			users = append(users, s.UserName(id))
		}
		fmt.Fprintf(&b, "  [%d] %s  %s  %s", d.Slot, d.Name, FormatLatency(d.LastPing), dimStyle.Render(d.ID))
		if len(users) > 0 {
			fmt.Fprintf(&b, "  <- %s", strings.Join(users, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func deviceLabel(s State, id string) string {
	for _, d := range s.Devices {
		if d.ID == id {
			return fmt.Sprintf("[%d] %s", d.Slot, d.Name)
		}
	}
	return id
}
