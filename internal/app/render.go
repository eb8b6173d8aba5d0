package app

import (
	"fmt"
	"strings"

	"chatcore/internal/session"
	"chatcore/internal/types"
)

// renderTranscript lays out the conversation as a column of bubbles. The
// streaming snapshot, if any, appears as a trailing unfinished agent bubble.
func renderTranscript(state session.State, width int) string {
	bubbleWidth := width - 4
	if bubbleWidth < 20 {
		bubbleWidth = 20
	}

	var blocks []string
	for _, msg := range state.Messages {
		blocks = append(blocks, renderMessage(msg, bubbleWidth))
	}

	if state.StreamingText != "" {
		blocks = append(blocks, agentBubbleStyle.Width(bubbleWidth).Render(renderMarkdown(state.StreamingText, bubbleWidth-2)))
	} else if state.Status == types.StatusLoading || state.Status == types.StatusStreaming {
		if activity := renderActivity(state.LiveEvents); activity != "" {
			blocks = append(blocks, activityStyle.Render(activity))
		}
	}

	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "\n")
}

func renderMessage(msg types.Message, width int) string {
	var block string
	switch msg.Role {
	case types.RoleUser:
		block = userBubbleStyle.Width(width).Render(msg.Text)
	case types.RoleSystem:
		block = systemNoteStyle.Width(width).Render(msg.Text)
	default:
		block = agentBubbleStyle.Width(width).Render(renderMarkdown(msg.Text, width-2))
	}
	if len(msg.Products) > 0 {
		block += "\n" + renderProducts(msg.Products, width)
	}
	return block
}

func renderProducts(products []types.Product, width int) string {
	var cards []string
	for _, p := range products {
		var lines []string
		lines = append(lines, p.Name)
		if label := priceLabel(p); label != "" {
			lines = append(lines, priceStyle.Render(label))
		}
		if p.URL != "" {
			lines = append(lines, helpStyle.Render(p.URL))
		}
		cards = append(cards, productStyle.Width(width).Render(strings.Join(lines, "\n")))
	}
	return strings.Join(cards, "\n")
}

func priceLabel(p types.Product) string {
	if p.PriceLabel != "" {
		return p.PriceLabel
	}
	if p.Price != "" {
		return "$" + p.Price
	}
	return ""
}

// renderActivity summarizes in-flight tool work while no text has arrived.
func renderActivity(events []types.Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		if !event.IsToolEvent() {
			continue
		}
		if event.Kind == types.EventFunctionCall {
			return fmt.Sprintf("calling %s...", event.Name)
		}
		return fmt.Sprintf("%s finished", event.Name)
	}
	return ""
}

func renderRecoveryPrompt(count int) string {
	plural := "messages"
	if count == 1 {
		plural = "message"
	}
	return promptStyle.Render(fmt.Sprintf(
		"Resume your previous conversation? (%d %s)  [y] resume  [n] start fresh", count, plural))
}

func statusLine(state session.State, spinnerView string) string {
	switch {
	case state.IsInitializing:
		return statusStyle.Render(spinnerView + " connecting...")
	case state.Status == types.StatusRecovering:
		if state.HasPendingRecovery {
			return statusStyle.Render("previous conversation found")
		}
		return statusStyle.Render(spinnerView + " checking for a previous conversation...")
	case state.Status == types.StatusLoading:
		return statusStyle.Render(spinnerView + " thinking...")
	case state.Status == types.StatusStreaming:
		return statusStyle.Render(spinnerView + " answering...")
	case state.Status == types.StatusHumanMode:
		return humanModeStyle.Render("human agent connected")
	default:
		return statusStyle.Render("ready")
	}
}
