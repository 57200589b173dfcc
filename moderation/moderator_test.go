package moderation

import (
	"testing"
	"testing/fstest"

	apperrors "support-chat/errors"

	"github.com/stretchr/testify/require"
)

func testModerator(t *testing.T, words ...string) Moderator {
	t.Helper()
	moderator, err := NewModerator(words, '*')
	require.NoError(t, err)
	return moderator
}

func TestCensor_Masks_Listed_Words(t *testing.T) {
	req := require.New(t)
	moderator := testModerator(t, "scammer", "idiot")

	req.Equal("you are a *******", moderator.Censor("you are a scammer"))
	req.Equal("*****! *******!", moderator.Censor("Idiot! SCAMMER!"))
}

func TestCensor_Folds_Leet_Spellings(t *testing.T) {
	req := require.New(t)
	moderator := testModerator(t, "scammer")

	// Digit and symbol substitutions hit the same pattern
	req.Equal("*******", moderator.Censor("sc4mmer"))
	req.Equal("*******", moderator.Censor("$cammer"))
	req.Equal("you *******", moderator.Censor("you sc@mm3r"))
}

func TestCensor_Preserves_Clean_Text(t *testing.T) {
	req := require.New(t)
	moderator := testModerator(t, "scammer")

	for _, clean := range []string{
		"Is the Serengeti tour still available?",
		"",
		"   ",
		"scampi for dinner",
	} {
		req.Equal(clean, moderator.Censor(clean))
	}
}

func TestCensor_Keeps_Surrounding_Spacing(t *testing.T) {
	req := require.New(t)
	moderator := testModerator(t, "scammer")

	// The word spans spaces in the original; only its letters get masked
	got := moderator.Censor("what a s c a m m e r move")
	req.Equal(len("what a s c a m m e r move"), len(got))
	req.Contains(got, "what a ")
	req.Contains(got, " move")
	req.NotContains(got, "scammer")
}

func TestLoadWordlists_Merges_Files_And_Dedups(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"wordlists/en.txt":    {Data: []byte("scammer\nidiot\n\nscammer\n")},
		"wordlists/fr.txt":    {Data: []byte("arnaque\r\nidiot\r\n")},
		"wordlists/notes.md":  {Data: []byte("ignored")},
		"wordlists/empty.txt": {Data: []byte("   \n")},
	}

	lists, err := LoadWordlists(fsys, "wordlists")
	req.NoError(err)
	req.ElementsMatch([]string{"scammer", "idiot", "arnaque"}, lists.Words)
	req.ElementsMatch([]string{"en", "fr", "empty"}, lists.Languages)
}

func TestLoadWordlists_Empty_Is_An_Error(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"wordlists/en.txt": {Data: []byte("\n  \n")},
	}

	_, err := LoadWordlists(fsys, "wordlists")
	req.ErrorIs(err, apperrors.ErrEmptyWords)
}
