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

// Package codec implements the pure Markdown <-> CRDT bridge: no file
// I/O, no network, just apply_file_to_doc and render over an in-memory
// crdtdoc.Document.
package codec

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the parsed YAML header of a Markdown file, kept
// verbatim alongside the raw text that follows it.
type Frontmatter struct {
	Fields map[string]string
	Body   string
	Raw    string // the original "---\n...\n---\n" block, or "" if absent
}

// splitFrontmatter separates a leading "---\n...\n---\n" YAML block from
// the rest of the file. Malformed frontmatter (present but not valid
// YAML) is treated as absent: the whole input becomes body, which the
// caller then treats as note kind with empty frontmatter per the
// documented failure mode.
func splitFrontmatter(raw string) Frontmatter {
	const delim = "---"
	if !strings.HasPrefix(raw, delim+"\n") && raw != delim {
		return Frontmatter{Fields: map[string]string{}, Body: raw}
	}
	rest := raw[len(delim)+1:]
	end := strings.Index(rest, "\n"+delim)
	if end < 0 {
		return Frontmatter{Fields: map[string]string{}, Body: raw}
	}
	yamlBlock := rest[:end]
	afterIdx := end + 1 + len(delim)
	body := rest[afterIdx:]
	body = strings.TrimPrefix(body, "\n")

	var fields map[string]string
	if err := yaml.Unmarshal([]byte(yamlBlock), &fields); err != nil {
		return Frontmatter{Fields: map[string]string{}, Body: raw}
	}
	if fields == nil {
		fields = map[string]string{}
	}
	return Frontmatter{
		Fields: fields,
		Body:   body,
		Raw:    raw[:len(delim)+1+afterIdx] + "\n",
	}
}

// renderFrontmatter re-serializes fields as a "---\n...\n---\n" block,
// or "" if fields is empty, so a note created without frontmatter stays
// without frontmatter.
func renderFrontmatter(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	data, err := yaml.Marshal(fields)
	if err != nil {
		return ""
	}
	return "---\n" + string(data) + "---\n"
}
