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
	"regexp"
	"strings"

	"github.com/launix-de/lstsync/crdtdoc"
)

var (
	categoryLine = regexp.MustCompile(`^##\s+(.+)$`)
	checkboxLine = regexp.MustCompile(`^-\s*\[([ xX])\]\s*(.*)$`)
)

// ApplyListMarkdown performs the line-diff described in the list codec
// contract: lines carrying a recognizable anchor are matched by anchor
// (in-place edit or reorder); every unanchored line gets a freshly minted
// anchor and becomes an insert (unanchored lines are not matched against
// existing items by text); anchors present in doc but absent from the new
// text become deletes.
func ApplyListMarkdown(doc *crdtdoc.Document, rawMarkdown string) error {
	if doc.Kind != crdtdoc.List {
		return fmt.Errorf("codec: ApplyListMarkdown on a %s document", doc.Kind)
	}
	fm := splitFrontmatter(Canonicalize(rawMarkdown))
	if doc.Meta == nil {
		doc.Meta = map[string]string{}
	}
	if title, ok := fm.Fields["title"]; ok {
		doc.Meta["title"] = title
	}
	if id, ok := fm.Fields["id"]; ok {
		doc.Meta["id"] = id
	}

	existingAnchors := map[string]bool{}
	for _, l := range doc.List.Lines() {
		if l.Kind == crdtdoc.ElemItem {
			existingAnchors[l.Anchor] = true
		}
	}

	newLines := parseListLines(fm.Body, existingAnchors)
	seen := map[string]bool{}
	after := crdtdoc.OpID{}

	for _, nl := range newLines {
		if nl.isCategory {
			if id, ok := doc.List.CategoryIDOf(nl.text); ok {
				doc.List.MoveCategoryAfter(nl.text, after)
				after = id
				continue
			}
			after = doc.List.InsertCategory(after, nl.text)
			continue
		}
		seen[nl.anchor] = true
		if existing, ok := doc.List.ByAnchor(nl.anchor); ok {
			if existing.Text != nl.text {
				doc.List.SetText(nl.anchor, nl.text)
			}
			if existing.Status != nl.status {
				doc.List.SetStatus(nl.anchor, nl.status)
			}
			doc.List.MoveAfter(nl.anchor, after)
			id, _ := doc.List.IDOf(nl.anchor)
			after = id
		} else {
			after = doc.List.InsertItem(after, nl.anchor, nl.text, nl.status)
		}
	}

	for _, l := range doc.List.Lines() {
		if l.Kind == crdtdoc.ElemItem && !seen[l.Anchor] {
			doc.List.Delete(l.Anchor)
		}
	}
	return nil
}

type listLine struct {
	isCategory bool
	anchor     string
	text       string
	status     crdtdoc.Status
}

func parseListLines(body string, existingAnchors map[string]bool) []listLine {
	var out []listLine
	fresh := map[string]bool{}
	for k, v := range existingAnchors {
		fresh[k] = v
	}
	claimed := map[string]bool{}
	for _, rawLine := range strings.Split(body, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		if m := categoryLine.FindStringSubmatch(line); m != nil {
			out = append(out, listLine{isCategory: true, text: strings.TrimSpace(m[1])})
			continue
		}
		m := checkboxLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		status := crdtdoc.Open
		if strings.ToLower(m[1]) == "x" {
			status = crdtdoc.Done
		}
		text, anchor, hasAnchor := splitAnchor(m[2])
		text = strings.TrimSpace(text)
		// A token that looks like an anchor but collides with one
		// already claimed earlier in this same parse is treated as if
		// no anchor were present: mint a fresh one instead.
		if !hasAnchor || claimed[anchor] {
			anchor = newAnchor(fresh)
		}
		fresh[anchor] = true
		claimed[anchor] = true
		out = append(out, listLine{anchor: anchor, text: text, status: status})
	}
	return out
}

// RenderList serializes a list document back to Markdown: frontmatter
// (title/id only, if present), then items and category headers in
// document order, each item line carrying its anchor token.
func RenderList(doc *crdtdoc.Document) (string, error) {
	if doc.Kind != crdtdoc.List {
		return "", fmt.Errorf("codec: RenderList on a %s document", doc.Kind)
	}
	var b strings.Builder
	if len(doc.Meta) > 0 {
		fields := map[string]string{}
		if title, ok := doc.Meta["title"]; ok {
			fields["title"] = title
		}
		if id, ok := doc.Meta["id"]; ok {
			fields["id"] = id
		}
		b.WriteString(renderFrontmatter(fields))
	}
	for _, l := range doc.List.Lines() {
		if l.Kind == crdtdoc.ElemCategory {
			fmt.Fprintf(&b, "## %s\n", l.Name)
			continue
		}
		box := " "
		if l.Status == crdtdoc.Done {
			box = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s ^%s\n", box, l.Text, l.Anchor)
	}
	return Canonicalize(b.String()), nil
}
