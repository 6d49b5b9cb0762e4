package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

// line is one utterance of a scripted call
type line struct {
	Speaker types.Speaker
	Text    string
}

// defaultScript escalates far enough to trip a negative streak of 3
var defaultScript = []line{
	{types.SpeakerAgent, "Thank you for calling, my name is Sam. How can I help you today?"},
	{types.SpeakerCustomer, "Hi, my internet connection keeps dropping every evening."},
	{types.SpeakerAgent, "I'm sorry to hear that. Let me check your line, one moment please."},
	{types.SpeakerCustomer, "This is terrible, I already called twice this week."},
	{types.SpeakerCustomer, "Nobody fixed anything and I am really angry about it."},
	{types.SpeakerCustomer, "Your service is awful and I want to cancel my contract."},
	{types.SpeakerAgent, "I understand your frustration. I can see the issue and I will send a technician tomorrow."},
	{types.SpeakerCustomer, "Okay, thank you. That sounds good."},
	{types.SpeakerAgent, "Is there anything else I can help you with? Thank you for your patience, have a great day."},
}

// parseScript reads "Speaker: text" lines. Blank lines and lines starting with # are skipped.
func parseScript(r io.Reader) ([]line, error) {
	var out []line
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		who, text, found := strings.Cut(raw, ":")
		if !found {
			return nil, fmt.Errorf("line %d: expected \"Speaker: text\"", n)
		}
		speaker := types.ParseSpeaker(who)
		if speaker == types.SpeakerUnknown {
			return nil, fmt.Errorf("line %d: unknown speaker %q", n, strings.TrimSpace(who))
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, fmt.Errorf("line %d: empty utterance", n)
		}
		out = append(out, line{Speaker: speaker, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("script has no utterances")
	}
	return out, nil
}
