// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"regexp"
	"strings"
)

// tagPattern accepts a leading letter or underscore followed by
// alphanumerics, hyphens, underscores, and dots.
var tagPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.-]*$`)

// ValidateTag validates a tag name for use as an element name.
//
// Rules:
//   - must match tagPattern
//   - must not begin with "xml" in any case (reserved)
func ValidateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("%w: empty tag", ErrInvalidTag)
	}
	if !tagPattern.MatchString(tag) {
		return fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	}
	if strings.HasPrefix(strings.ToLower(tag), "xml") {
		return fmt.Errorf("%w: %q: names beginning with xml are reserved", ErrInvalidTag, tag)
	}
	return nil
}

// ValidateAttrName validates an attribute name. The xml-prefix reservation
// does not apply to attributes.
func ValidateAttrName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAttrName)
	}
	if !tagPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidAttrName, name)
	}
	return nil
}

// Sanitize strips control characters from free-form text and attribute
// values. Tab, newline, and carriage return are kept.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}
