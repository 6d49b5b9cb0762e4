package websocket

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

const unknownAgent = "unknown"

var (
	customerLeg = []*regexp.Regexp{
		regexp.MustCompile(`(?:^|[^a-z0-9])(customer|a_leg|caller|client)(?:[^a-z0-9]|$)`),
		regexp.MustCompile(`(?:^|[^a-z0-9])leg_?a(?:[^a-z0-9]|$)`),
	}
	agentLeg = []*regexp.Regexp{
		regexp.MustCompile(`(?:^|[^a-z0-9])(agent|b_leg|representative|rep)(?:[^a-z0-9]|$)`),
		regexp.MustCompile(`(?:^|[^a-z0-9])leg_?b(?:[^a-z0-9]|$)`),
	}

	callIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)call[_-](\w+)`),
		regexp.MustCompile(`(?i)session[_-](\w+)`),
		regexp.MustCompile(`(?i)_(\d+\.\d+)`),
		regexp.MustCompile(`(?i)_(\d{8,})`),
		regexp.MustCompile(`(?i)/(\w{8,})`),
		regexp.MustCompile(`(?i)[_-](\w{6,})(?:[_/]|$)`),
	}
	agentIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)agent[_-](\w+)`),
		regexp.MustCompile(`(?i)agentid[_-](\w+)`),
		regexp.MustCompile(`(?i)user[_-](\w+)`),
		regexp.MustCompile(`/(\d{3,5})/`),
		regexp.MustCompile(`[_-](\d{3,5})[_-]`),
		regexp.MustCompile(`[_-](\d{3,5})(?:[_./]|$)`),
		regexp.MustCompile(`\b(\d{3,5})\b`),
	}
)

// LegSpeaker infers which party an audio leg carries from its URL
func LegSpeaker(path string) types.Speaker {
	lower := strings.ToLower(path)
	for _, re := range customerLeg {
		if re.MatchString(lower) {
			return types.SpeakerCustomer
		}
	}
	for _, re := range agentLeg {
		if re.MatchString(lower) {
			return types.SpeakerAgent
		}
	}
	return types.SpeakerUnknown
}

// ExtractCallAgent derives the call and agent ids of an audio leg. Values in
// meta (call_id, agent_id) take precedence over the URL.
func ExtractCallAgent(path string, meta map[string]string) (callID, agentID string) {
	callID = strings.TrimSpace(meta["call_id"])
	agentID = strings.TrimSpace(meta["agent_id"])

	if callID == "" {
		callID = firstMatch(callIDPatterns, path)
	}
	if callID == "" {
		h := fnv.New32a()
		h.Write([]byte(stripQuery(path)))
		callID = fmt.Sprintf("call_%d", h.Sum32()%100000)
	}

	if agentID == "" {
		agentID = firstMatch(agentIDPatterns, path)
	}
	if agentID == "" {
		agentID = unknownAgent
	}
	return callID, agentID
}

func firstMatch(patterns []*regexp.Regexp, s string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(s); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
