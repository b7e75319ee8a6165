package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(d *Decoder, chunks ...string) []Event {
	var events []Event
	for _, c := range chunks {
		events = append(events, d.Feed([]byte(c))...)
	}
	return events
}

func TestDecoderJSONSplitAcrossChunks(t *testing.T) {
	d := NewDecoder()

	events := feedAll(d,
		`data: {"typ`,
		`e":"emotion","emotion":{"emotion":"negative","intensity":7,"risk_level":"medium","primary_feeling":"hopeless"}}`+"\n\n",
	)

	require.Len(t, events, 1)
	assert.Equal(t, EventEmotion, events[0].Type)
	assert.Equal(t, chatapi.RiskMedium, events[0].Emotion.RiskLevel)
	assert.Equal(t, "hopeless", events[0].Emotion.PrimaryFeeling)
	assert.Zero(t, d.Malformed())
}

func TestDecoderSkipsCommentsBlankAndForeignLines(t *testing.T) {
	d := NewDecoder()

	events := feedAll(d,
		": keep-alive\n",
		"\r\n",
		"event: ping\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\r\n\r\n",
	)

	require.Len(t, events, 1)
	assert.Equal(t, Event{Type: EventDelta, Text: "Hi"}, events[0])
}

func TestDecoderStopsAtDone(t *testing.T) {
	d := NewDecoder()

	events := feedAll(d,
		"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\ndata: [DONE]\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"late\"}}]}\n\n",
	)

	require.Len(t, events, 2)
	assert.Equal(t, EventDelta, events[0].Type)
	assert.Equal(t, EventDone, events[1].Type)
	assert.True(t, d.Done())
	assert.Nil(t, d.Feed([]byte("data: [DONE]\n")))
	assert.Nil(t, d.Flush())
}

func TestDecoderEmotionOnlyOnce(t *testing.T) {
	d := NewDecoder()
	line := `data: {"type":"emotion","emotion":{"emotion":"neutral","intensity":5,"risk_level":"low","primary_feeling":"neutral"}}` + "\n\n"

	events := feedAll(d, line, line)
	require.Len(t, events, 1)
	assert.Equal(t, EventEmotion, events[0].Type)
}

func TestDecoderDropsMalformedLine(t *testing.T) {
	d := NewDecoder()

	events := feedAll(d,
		"data: {not json}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n",
	)

	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Text)
	assert.Equal(t, 1, d.Malformed())
}

func TestDecoderIgnoresEmptyDeltas(t *testing.T) {
	d := NewDecoder()
	events := feedAll(d,
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n",
		"data: {\"choices\":[]}\n\n",
	)
	assert.Empty(t, events)
}

func TestDecoderFlushParsesUnterminatedTail(t *testing.T) {
	d := NewDecoder()

	events := feedAll(d, `data: {"choices":[{"delta":{"content":"tail"}}]}`)
	assert.Empty(t, events)

	events = d.Flush()
	require.Len(t, events, 2)
	assert.Equal(t, Event{Type: EventDelta, Text: "tail"}, events[0])
	assert.Equal(t, EventDone, events[1].Type)
}

func TestDecoderFlushDiscardsTruncatedJSON(t *testing.T) {
	d := NewDecoder()
	feedAll(d, `data: {"choices":[{"delta":{"cont`)

	events := d.Flush()
	require.Len(t, events, 1)
	assert.Equal(t, EventDone, events[0].Type)
}

func TestConsumeByteAtATime(t *testing.T) {
	body := strings.Join([]string{
		`data: {"type":"emotion","emotion":{"emotion":"positive","intensity":6,"risk_level":"low","primary_feeling":"happy"}}`,
		``,
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"lo ✨"}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	var got []Event
	for ev := range Consume(iotest.OneByteReader(strings.NewReader(body))) {
		got = append(got, ev)
	}

	require.Len(t, got, 4)
	assert.Equal(t, EventEmotion, got[0].Type)
	assert.Equal(t, "Hel", got[1].Text)
	assert.Equal(t, "lo ✨", got[2].Text)
	assert.Equal(t, EventDone, got[3].Type)
}

func TestConsumeReportsReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n"),
		iotest.ErrReader(boom),
	)

	var got []Event
	for ev := range Consume(r) {
		got = append(got, ev)
	}

	require.Len(t, got, 2)
	assert.Equal(t, EventDelta, got[0].Type)
	assert.Equal(t, EventError, got[1].Type)
	assert.ErrorIs(t, got[1].Err, boom)
}

func TestConsumeEOFWithoutDoneStillCompletes(t *testing.T) {
	var got []Event
	for ev := range Consume(strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")) {
		got = append(got, ev)
	}

	require.Len(t, got, 2)
	assert.Equal(t, EventDone, got[1].Type)
}
