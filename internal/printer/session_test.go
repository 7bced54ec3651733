package printer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipt-print/internal/escpos"
)

func readyManager(t *testing.T) (*Manager, *fakeLink, *fakeChar) {
	t.Helper()
	link, char := printerLink()
	m := NewManager(newFakeAdapter(link, testDevice), testConfig())
	require.NoError(t, m.Connect(context.Background(), testDevice.Name))
	return m, link, char
}

func concat(cmds ...escpos.Command) []byte {
	var b bytes.Buffer
	for _, c := range cmds {
		b.Write(c)
	}
	return b.Bytes()
}

func TestSessionPrint(t *testing.T) {
	t.Run("BodyFeedsAndCuts", func(t *testing.T) {
		m, _, char := readyManager(t)
		err := NewSession(m).Print(context.Background(), Job{
			Lines: []string{"Hello"}, FontSize: 12, CenterAlign: true, IsBody: true,
		})
		require.NoError(t, err)

		want := concat(
			escpos.Initialize(),
			escpos.CenterAlign(),
			escpos.Command{0x1B, 0x21, 0x00},
			escpos.Command("Hello\n"),
			escpos.FeedLines(3),
			escpos.FullCut(),
		)
		assert.Equal(t, want, char.stream())
		assert.Equal(t, 6, char.writeCount())
		for _, noResp := range char.noResp {
			assert.True(t, noResp)
		}
	})

	t.Run("HeaderSkipsFeedAndCut", func(t *testing.T) {
		m, _, char := readyManager(t)
		err := NewSession(m).Print(context.Background(), Job{
			Lines: []string{"Hello"}, FontSize: 12, CenterAlign: true, IsBody: false,
		})
		require.NoError(t, err)

		want := concat(
			escpos.Initialize(),
			escpos.CenterAlign(),
			escpos.Command{0x1B, 0x21, 0x00},
			escpos.Command("Hello\n"),
		)
		assert.Equal(t, want, char.stream())
	})

	t.Run("FailureOnSecondLineStops", func(t *testing.T) {
		m, _, char := readyManager(t)
		// init, align, font, line 1, then line 2 fails
		char.failAt = 5
		err := NewSession(m).Print(context.Background(), Job{
			Lines: []string{"one", "two", "three"}, FontSize: 12, IsBody: true,
		})
		assert.ErrorIs(t, err, ErrWriteFailed)
		assert.Equal(t, 5, char.writeCount())

		stream := char.stream()
		assert.NotContains(t, string(stream), "three")
		assert.False(t, bytes.Contains(stream, escpos.FullCut()))
		assert.False(t, bytes.Contains(stream, escpos.FeedLines(3)))
		assert.Equal(t, StateReady, m.State(), "write failure leaves the link up")
	})

	t.Run("LeftAlignAndLargeFont", func(t *testing.T) {
		m, _, char := readyManager(t)
		require.NoError(t, NewSession(m).Print(context.Background(), Job{
			Lines: []string{"TOTAL"}, FontSize: 30,
		}))
		stream := char.stream()
		assert.True(t, bytes.HasPrefix(stream, concat(
			escpos.Initialize(), escpos.LeftAlign(), escpos.Command{0x1B, 0x21, 0x30},
		)))
	})

	t.Run("EmptyLinesSkipped", func(t *testing.T) {
		m, _, char := readyManager(t)
		require.NoError(t, NewSession(m).Print(context.Background(), Job{
			Lines: []string{"", "a", ""}, FontSize: 12,
		}))
		assert.Equal(t, 4, char.writeCount())
	})

	t.Run("LongLineIsChunked", func(t *testing.T) {
		m, _, char := readyManager(t)
		line := strings.Repeat("x", 1000)
		require.NoError(t, NewSession(m).Print(context.Background(), Job{
			Lines: []string{line}, FontSize: 12,
		}))
		// 1001 bytes at 480 per chunk
		assert.Equal(t, 3+3, char.writeCount())
		for _, w := range char.writes[3:] {
			assert.LessOrEqual(t, len(w), m.Params().ChunkSize)
		}
		assert.True(t, bytes.HasSuffix(char.stream(), []byte(line+"\n")))
	})

	t.Run("NotReady", func(t *testing.T) {
		link, char := printerLink()
		m := NewManager(newFakeAdapter(link, testDevice), testConfig())
		err := NewSession(m).Print(context.Background(), Job{Lines: []string{"x"}})
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Zero(t, char.writeCount())
	})
}
