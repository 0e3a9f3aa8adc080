package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownCommand indicates an unrecognized command payload.
// The caller logs and ignores it; no state is mutated.
var ErrUnknownCommand = errors.New("protocol: unknown command")

// CommandAction identifies what a command asks the node to do.
type CommandAction string

const (
	// ActionPlayTrack requests playback of a specific playlist track.
	ActionPlayTrack CommandAction = "play_track"
	// ActionStopAudio stops the current announcement.
	ActionStopAudio CommandAction = "stop_audio"
	// ActionResetCount zeroes the people counter.
	ActionResetCount CommandAction = "reset_count"
)

// Command is a parsed inbound command.
type Command struct {
	Action CommandAction
	// Track is the 0-based playlist index for ActionPlayTrack.
	Track int
}

// jsonCommand is the structured command variant.
type jsonCommand struct {
	Action string `json:"action"`
	Track  *int   `json:"track,omitempty"`
}

// ParseCommand decodes a command payload. Two wire forms are accepted:
// plain strings ("PLAY_AUDIO_1", "STOP_AUDIO", "RESET_COUNT") as sent by
// the dashboard scripts, and JSON objects ({"action":"play_track","track":0}).
func ParseCommand(payload []byte) (Command, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return Command{}, fmt.Errorf("%w: empty payload", ErrUnknownCommand)
	}

	if strings.HasPrefix(text, "{") {
		return parseJSONCommand(payload)
	}
	return parsePlainCommand(text)
}

func parsePlainCommand(text string) (Command, error) {
	upper := strings.ToUpper(text)
	switch {
	case upper == "RESET_COUNT":
		return Command{Action: ActionResetCount}, nil
	case upper == "STOP_AUDIO":
		return Command{Action: ActionStopAudio}, nil
	case strings.HasPrefix(upper, "PLAY_AUDIO_"):
		n, err := strconv.Atoi(upper[len("PLAY_AUDIO_"):])
		if err != nil || n < 1 {
			return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, text)
		}
		// Wire commands are 1-based, playlists are 0-based.
		return Command{Action: ActionPlayTrack, Track: n - 1}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, text)
	}
}

func parseJSONCommand(payload []byte) (Command, error) {
	var jc jsonCommand
	if err := json.Unmarshal(payload, &jc); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrUnknownCommand, err)
	}

	switch CommandAction(jc.Action) {
	case ActionResetCount:
		return Command{Action: ActionResetCount}, nil
	case ActionStopAudio:
		return Command{Action: ActionStopAudio}, nil
	case ActionPlayTrack:
		if jc.Track == nil || *jc.Track < 0 {
			return Command{}, fmt.Errorf("%w: play_track needs a track index", ErrUnknownCommand)
		}
		return Command{Action: ActionPlayTrack, Track: *jc.Track}, nil
	default:
		return Command{}, fmt.Errorf("%w: action %q", ErrUnknownCommand, jc.Action)
	}
}
