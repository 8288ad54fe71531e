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
	"fmt"

	"github.com/launix-de/lstsync/crdtdoc"
)

// ApplyNoteMarkdown splices the note's replicated-text object to match
// rawMarkdown. Frontmatter, if present, is preserved verbatim outside
// the CRDT: it is not part of the sync payload for notes, only of the
// on-disk file, so it is handed back unchanged by RenderNote from what
// ApplyNoteMarkdown last saw.
func ApplyNoteMarkdown(doc *crdtdoc.Document, rawMarkdown string) error {
	if doc.Kind != crdtdoc.Note {
		return fmt.Errorf("codec: ApplyNoteMarkdown on a %s document", doc.Kind)
	}
	fm := splitFrontmatter(Canonicalize(rawMarkdown))
	if doc.Meta == nil {
		doc.Meta = map[string]string{}
	}
	doc.Meta["frontmatter"] = fm.Raw
	doc.Note.Splice(fm.Body)
	return nil
}

// RenderNote serializes a note document back to Markdown: the preserved
// frontmatter verbatim, followed by the replicated text's current value.
func RenderNote(doc *crdtdoc.Document) (string, error) {
	if doc.Kind != crdtdoc.Note {
		return "", fmt.Errorf("codec: RenderNote on a %s document", doc.Kind)
	}
	return Canonicalize(doc.Meta["frontmatter"] + doc.Note.String()), nil
}
