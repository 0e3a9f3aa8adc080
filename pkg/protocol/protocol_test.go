package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopics(t *testing.T) {
	topics := NewTopics("", "esp32-01")

	assert.Equal(t, "nus-smartstop/ir-sensor/data", topics.IRSensor())
	assert.Equal(t, "nus-smartstop/voice", topics.Voice())
	assert.Equal(t, "nus-smartstop/ultrasonic/data", topics.Ultrasonic())
	assert.Equal(t, "nus-smartstop/status", topics.Status())
	assert.Equal(t, "nus-smartstop/command/esp32-01", topics.Command())

	custom := NewTopics("lab", "dev")
	assert.Equal(t, "lab/voice", custom.Voice())
}

func TestIRReport_RoundTrip(t *testing.T) {
	in := IRReport{PeopleCount: 4, Location: "bus-stop-7", Entries: 12, Exits: 8}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out IRReport
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestUltrasonicReport_RoundTrip(t *testing.T) {
	in := UltrasonicReport{
		Sensors: map[string]ZoneReport{
			"LEFT":   {Distance: 60.5, Occupied: 1},
			"CENTER": {Distance: 95.0, Occupied: 0},
			"RIGHT":  {Distance: 70.2, Occupied: 1},
		},
		Density: 2.0 / 3.0,
	}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out UltrasonicReport
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestVoiceReport_Schema(t *testing.T) {
	data, err := Marshal(VoiceReport{DeviceID: "esp32-01", Voice: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"deviceId":"esp32-01","voice":true}`, string(data))
}

func TestCombinedReport_Schema(t *testing.T) {
	data, err := Marshal(CombinedReport{DeviceID: "esp32-01", PeopleCount: 3, Voice: false})
	require.NoError(t, err)
	assert.JSONEq(t, `{"deviceId":"esp32-01","people_count":3,"voice":false}`, string(data))
}

func TestParseCommand_Plain(t *testing.T) {
	cases := []struct {
		payload string
		want    Command
	}{
		{"RESET_COUNT", Command{Action: ActionResetCount}},
		{"STOP_AUDIO", Command{Action: ActionStopAudio}},
		{"PLAY_AUDIO_1", Command{Action: ActionPlayTrack, Track: 0}},
		{"PLAY_AUDIO_3", Command{Action: ActionPlayTrack, Track: 2}},
		{"play_audio_2", Command{Action: ActionPlayTrack, Track: 1}},
		{"  RESET_COUNT \n", Command{Action: ActionResetCount}},
	}

	for _, tc := range cases {
		got, err := ParseCommand([]byte(tc.payload))
		require.NoError(t, err, "payload %q", tc.payload)
		assert.Equal(t, tc.want, got, "payload %q", tc.payload)
	}
}

func TestParseCommand_JSON(t *testing.T) {
	got, err := ParseCommand([]byte(`{"action":"play_track","track":2}`))
	require.NoError(t, err)
	assert.Equal(t, Command{Action: ActionPlayTrack, Track: 2}, got)

	got, err = ParseCommand([]byte(`{"action":"reset_count"}`))
	require.NoError(t, err)
	assert.Equal(t, Command{Action: ActionResetCount}, got)
}

func TestParseCommand_Malformed(t *testing.T) {
	malformed := []string{
		"",
		"   ",
		"PLAY_AUDIO_",
		"PLAY_AUDIO_0",
		"PLAY_AUDIO_x",
		"SELF_DESTRUCT",
		`{"action":"warp_drive"}`,
		`{"action":"play_track"}`,
		`{"action":"play_track","track":-1}`,
		`{broken json`,
	}

	for _, payload := range malformed {
		_, err := ParseCommand([]byte(payload))
		assert.ErrorIs(t, err, ErrUnknownCommand, "payload %q", payload)
	}
}
