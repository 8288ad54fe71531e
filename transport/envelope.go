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

package transport

import "encoding/json"

// Decode unmarshals env's body into out. Both the relay's message
// handlers and the device daemon's sync engine use this to get from a
// received Envelope to a typed message struct.
func Decode(env Envelope, out any) error {
	return json.Unmarshal(env.Body, out)
}

// Encode builds an Envelope carrying body under msgType.
func Encode(msgType string, body any) (Envelope, error) {
	return encode(msgType, body)
}
