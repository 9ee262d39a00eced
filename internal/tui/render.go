package tui

import (
	"fmt"
	"strings"

	"github.com/kalambet/secureguard/internal/session"
	"github.com/kalambet/secureguard/internal/similarity"
	"github.com/kalambet/secureguard/internal/turn"
)

const welcome = `Welcome to SecureGuard AI.

Ask anything about staying safe online: passwords, phishing, privacy,
device security. Pick a suggestion from the sidebar to get started.`

func (m Model) renderHistory() string {
	hist := m.d.Session().History()
	if len(hist) == 0 && !m.busy {
		return titleStyle.Render("🛡️  SecureGuard AI") + "\n\n" + subtitleStyle.Render(welcome)
	}

	// The report belongs to the newest assistant turn only.
	reportAt := -1
	if n := len(hist); n > 0 && m.last.Flow == turn.ProcessFlow && !m.last.Report.Empty() &&
		hist[n-1].Speaker == session.Assistant && hist[n-1].Message == m.last.Answer {
		reportAt = n - 1
	}

	var sb strings.Builder
	for i, t := range hist {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if t.Speaker == session.User {
			sb.WriteString(userLabelStyle.Render("👤 You"))
			sb.WriteString("\n")
			sb.WriteString(t.Message)
			continue
		}
		if i == reportAt {
			sb.WriteString(renderReport(m.last.Report))
			sb.WriteString("\n\n")
		}
		sb.WriteString(botLabelStyle.Render("🛡️ SecureGuard"))
		sb.WriteString("\n")
		sb.WriteString(m.markdown(t.Message))
	}

	if m.busy && m.inflight != "" {
		if len(hist) > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(userLabelStyle.Render("👤 You"))
		sb.WriteString("\n")
		sb.WriteString(m.inflight)
	}
	return sb.String()
}

// renderReport draws the similarity analysis of one turn.
func renderReport(r similarity.Report) string {
	var sb strings.Builder
	sb.WriteString(sectionStyle.Render("🔍 Similarity Analysis"))
	for _, e := range r.Entries {
		sb.WriteString("\n")
		sb.WriteString(bandStyle(e.Band).Render(fmt.Sprintf("Similarity Score: %.4f - %s", e.Score, e.Band.Label())))
		sb.WriteString("\n")
		if e.Included {
			sb.WriteString(useStyle.Render(fmt.Sprintf("✓ %s (Threshold: %s)", e.Verdict(), r.ThresholdText())))
		} else {
			sb.WriteString(filterStyle.Render(fmt.Sprintf("✗ %s (Threshold: %s)", e.Verdict(), r.ThresholdText())))
		}
		sb.WriteString("\n")
		sb.WriteString(dimStyle.Render("Preview: " + e.Preview))
	}
	used, filtered := r.Counts()
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(fmt.Sprintf("%d used, %d filtered", used, filtered)))
	return sb.String()
}

func (m Model) renderSidebar() string {
	stats := m.d.Session().Stats()

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("SecureGuard AI"))
	sb.WriteString("\n")
	sb.WriteString(subtitleStyle.Render("Your cybersecurity companion"))
	sb.WriteString("\n\n")

	sb.WriteString(sectionStyle.Render("📊 Session"))
	sb.WriteString(fmt.Sprintf("\nTotal messages: %d\nYour messages: %d\n", stats.Total, stats.User))
	sb.WriteString(fmt.Sprintf("Threshold: %s\n\n", similarity.Report{Threshold: m.d.Threshold()}.ThresholdText()))

	kb := m.opts.Knowledge
	sb.WriteString(sectionStyle.Render("📚 Knowledge base"))
	sb.WriteString(fmt.Sprintf("\nDocuments: %d\nChunks: %d\n", kb.Documents, kb.Chunks))
	if kb.EmbedModel != "" {
		sb.WriteString(dimStyle.Render("Embeddings: " + kb.EmbedModel))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString(sectionStyle.Render("💡 Suggestions"))
	for i, s := range turn.Suggestions {
		sb.WriteString(fmt.Sprintf("\n%s %s", dimStyle.Render(fmt.Sprintf("alt+%d", i+1)), s))
	}
	return sidebarStyle.Height(m.history.Height + 4).Render(sb.String())
}
