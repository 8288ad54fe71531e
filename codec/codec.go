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

// ApplyFileToDoc applies the content of newMarkdown onto doc, dispatched
// by doc.Kind. It is the sync engine's only entry point into the codec
// for the local-write direction.
func ApplyFileToDoc(doc *crdtdoc.Document, newMarkdown string) error {
	switch doc.Kind {
	case crdtdoc.List:
		return ApplyListMarkdown(doc, newMarkdown)
	case crdtdoc.Note:
		return ApplyNoteMarkdown(doc, newMarkdown)
	default:
		return fmt.Errorf("codec: unknown document kind %q", doc.Kind)
	}
}

// Render serializes doc back to Markdown, dispatched by doc.Kind.
func Render(doc *crdtdoc.Document) (string, error) {
	switch doc.Kind {
	case crdtdoc.List:
		return RenderList(doc)
	case crdtdoc.Note:
		return RenderNote(doc)
	default:
		return "", fmt.Errorf("codec: unknown document kind %q", doc.Kind)
	}
}

// DetectKind guesses a new file's kind from its path, used the first
// time the watcher observes a file with no existing Local Store row.
// Files under a "lists/" path component are lists; everything else is a
// note. Only the path is consulted: a file under "lists/" stays list
// kind even when its frontmatter is malformed.
func DetectKind(relPath string) crdtdoc.Kind {
	for _, sep := range []string{"lists/", "lists\\"} {
		if len(relPath) >= len(sep) && relPath[:len(sep)] == sep {
			return crdtdoc.List
		}
	}
	return crdtdoc.Note
}
