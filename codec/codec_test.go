/*
Copyright (C) 2025  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package codec

import (
	"strings"
	"testing"

	"github.com/launix-de/lstsync/crdtdoc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyThenRenderListRoundTrips(t *testing.T) {
	doc := crdtdoc.NewListDocument("device-a")
	md := "- [ ] Milk\n- [x] Bread\n"

	require.NoError(t, ApplyListMarkdown(doc, md))
	rendered, err := RenderList(doc)
	require.NoError(t, err)

	doc2 := crdtdoc.NewListDocument("device-b")
	require.NoError(t, ApplyListMarkdown(doc2, rendered))
	rendered2, err := RenderList(doc2)
	require.NoError(t, err)

	assert.Equal(t, rendered, rendered2)
}

func TestReapplyingOwnRenderProducesNoChange(t *testing.T) {
	doc := crdtdoc.NewListDocument("device-a")
	require.NoError(t, ApplyListMarkdown(doc, "- [ ] Milk\n- [ ] Bread\n"))
	rendered, err := RenderList(doc)
	require.NoError(t, err)

	before := doc.List.Lines()
	require.NoError(t, ApplyListMarkdown(doc, rendered))
	after := doc.List.Lines()

	assert.Equal(t, before, after)
}

func TestListItemStatusToggleSurvivesRoundTrip(t *testing.T) {
	doc := crdtdoc.NewListDocument("device-a")
	require.NoError(t, ApplyListMarkdown(doc, "- [ ] Milk ^abcde\n"))

	rendered, err := RenderList(doc)
	require.NoError(t, err)
	toggled := toggleCheckbox(rendered)

	require.NoError(t, ApplyListMarkdown(doc, toggled))
	lines := doc.List.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, crdtdoc.Done, lines[0].Status)
	assert.Equal(t, "abcde", lines[0].Anchor)
}

func toggleCheckbox(markdown string) string {
	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		if checkboxLine.MatchString(line) && len(line) > 3 && line[3] == ' ' {
			lines[i] = line[:3] + "x" + line[4:]
		}
	}
	return strings.Join(lines, "\n")
}

func TestDeletedAnchorIsNotReused(t *testing.T) {
	doc := crdtdoc.NewListDocument("device-a")
	require.NoError(t, ApplyListMarkdown(doc, "- [ ] Milk ^abcde\n- [ ] Bread ^fghjk\n"))
	require.NoError(t, ApplyListMarkdown(doc, "- [ ] Bread ^fghjk\n"))

	_, ok := doc.List.ByAnchor("abcde")
	assert.False(t, ok)

	require.NoError(t, ApplyListMarkdown(doc, "- [ ] Bread ^fghjk\n- [ ] Eggs\n"))
	lines := doc.List.Lines()
	require.Len(t, lines, 2)
	assert.NotEqual(t, "abcde", lines[1].Anchor)
}

func TestNoteRoundTripsThroughSplice(t *testing.T) {
	doc := crdtdoc.NewNoteDocument("device-a")
	require.NoError(t, ApplyNoteMarkdown(doc, "hello world\n"))

	rendered, err := RenderNote(doc)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", rendered)

	require.NoError(t, ApplyNoteMarkdown(doc, "hello brave world\n"))
	rendered2, err := RenderNote(doc)
	require.NoError(t, err)
	assert.Equal(t, "hello brave world\n", rendered2)
}

func TestMalformedFrontmatterFallsBackToNoteBody(t *testing.T) {
	raw := "---\nnot: [valid: yaml\n---\nbody text\n"
	fm := splitFrontmatter(Canonicalize(raw))
	assert.Empty(t, fm.Fields)
	assert.Equal(t, raw, fm.Body)
}

func TestListFrontmatterMirrorsOnlyTitleAndID(t *testing.T) {
	doc := crdtdoc.NewListDocument("device-a")
	raw := "---\ntitle: Groceries\nid: abc-123\nextra: dropped\n---\n- [ ] Milk\n"
	require.NoError(t, ApplyListMarkdown(doc, raw))

	assert.Equal(t, "Groceries", doc.Meta["title"])
	assert.Equal(t, "abc-123", doc.Meta["id"])
	_, hasExtra := doc.Meta["extra"]
	assert.False(t, hasExtra)
}

func TestCategoryHeaderRoundTrips(t *testing.T) {
	doc := crdtdoc.NewListDocument("device-a")
	md := "- [ ] Top\n## Produce\n- [ ] Apples\n"
	require.NoError(t, ApplyListMarkdown(doc, md))

	rendered, err := RenderList(doc)
	require.NoError(t, err)
	assert.Contains(t, rendered, "## Produce")
}
