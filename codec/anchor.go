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
	"crypto/rand"
	"regexp"
)

// anchorAlphabet excludes visually ambiguous characters (0/O, 1/l/I) so
// an anchor typed by hand, if a user ever sees one, isn't confusable.
const anchorAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

// anchorTrailer matches a trailing " ^xxxxx" anchor token (4-8 chars
// from anchorAlphabet) at the end of a line.
var anchorTrailer = regexp.MustCompile(`\s*\^([23456789abcdefghjkmnpqrstuvwxyz]{4,8})\s*$`)

// newAnchor generates a fresh 5-character anchor token, regenerating on
// the rare collision against existing.
func newAnchor(existing map[string]bool) string {
	for {
		token := randomToken(5)
		if !existing[token] {
			return token
		}
	}
}

func randomToken(n int) string {
	buf := make([]byte, n)
	idx := make([]byte, n)
	if _, err := rand.Read(idx); err != nil {
		panic(err) // crypto/rand failure means the platform RNG is broken; nothing downstream can recover
	}
	for i, b := range idx {
		buf[i] = anchorAlphabet[int(b)%len(anchorAlphabet)]
	}
	return string(buf)
}

// splitAnchor extracts a trailing anchor token from line, if present,
// returning the line with the token stripped and the token itself.
func splitAnchor(line string) (stripped, anchor string, ok bool) {
	loc := anchorTrailer.FindStringSubmatchIndex(line)
	if loc == nil {
		return line, "", false
	}
	return line[:loc[0]], line[loc[2]:loc[3]], true
}
