package orchestrator

import (
	"strings"

	"github.com/transitmesh/dispatch/catalog"
)

// intentCue maps description keywords to a coarse intent label. Cues are
// checked in order; the first hit wins.
type intentCue struct {
	words  []string
	intent string
}

var intentCues = []intentCue{
	{words: []string{"alert", "delay"}, intent: "alerts"},
	{words: []string{"stop", "station"}, intent: "stops"},
	{words: []string{"route", "planning"}, intent: "trip_planning"},
}

const (
	intentGeneral     = "general"
	cueConfidence     = 0.85
	defaultConfidence = 0.5
)

// inferIntent derives an informational intent label from the top-matched
// agent's description. The label never gates execution; it is reported to
// the caller alongside the answer. With no match the label stays "general".
func inferIntent(snap *catalog.Snapshot, matched []string) (string, float64) {
	if len(matched) == 0 {
		return intentGeneral, defaultConfidence
	}
	top, ok := snap.Lookup(matched[0])
	if !ok {
		return intentGeneral, defaultConfidence
	}

	desc := strings.ToLower(top.Description)
	for _, cue := range intentCues {
		for _, w := range cue.words {
			if strings.Contains(desc, w) {
				return cue.intent, cueConfidence
			}
		}
	}
	return intentGeneral, defaultConfidence
}
