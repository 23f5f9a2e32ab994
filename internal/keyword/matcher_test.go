package keyword

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Matches(t *testing.T) {
	t.Parallel()

	m := New()
	cases := []struct {
		name string
		text string
		term string
		want bool
	}{
		{name: "prefix is not a word", text: "inspection", term: "inspect", want: false},
		{name: "whole word", text: "an inspection report", term: "inspection", want: true},
		{name: "case insensitive", text: "Robotic crawler deployed", term: "ROBOTIC", want: true},
		{name: "hyphen is a boundary", text: "re-inspection of tanks", term: "inspection", want: true},
		{name: "apostrophe is a boundary", text: "the rov's camera", term: "rov", want: true},
		{name: "underscore is a word char", text: "ndt_report", term: "ndt", want: false},
		{name: "digits are word chars", text: "ut2 gauge", term: "ut", want: false},
		{name: "string edges", text: "ndt", term: "ndt", want: true},
		{name: "multi word term", text: "Remotely operated vehicle", term: "remotely operated", want: true},
		{name: "metacharacters escaped", text: "price (a.b) quoted", term: "a.b", want: true},
		{name: "dot is literal", text: "axb", term: "a.b", want: false},
		{name: "empty term", text: "anything", term: "", want: false},
		{name: "blank term", text: "anything", term: "   ", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, m.Matches(tc.text, tc.term))
		})
	}
}

func TestMatcher_FindAll(t *testing.T) {
	t.Parallel()

	m := New()
	text := "Visual inspection and NDT of the pipeline; x-ray optional."
	got := m.FindAll(text, []string{"robotic", "ndt", "visual", "inspection", "x-ray", "NDT"})
	require.Equal(t, []string{"ndt", "visual", "inspection", "x-ray"}, got)

	require.Empty(t, m.FindAll("", []string{"ndt"}))
	require.Empty(t, m.FindAll("nothing relevant", nil))
}

func TestMatcher_MatchesAny(t *testing.T) {
	t.Parallel()

	m := New()
	require.True(t, m.MatchesAny("crack detected", []string{"weld", "crack"}))
	require.False(t, m.MatchesAny("cracked surface", []string{"weld", "crack"}))
}

func TestMatcher_ConcurrentUse(t *testing.T) {
	t.Parallel()

	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.True(t, m.Matches("corrosion survey", "corrosion"))
			}
		}()
	}
	wg.Wait()
}
