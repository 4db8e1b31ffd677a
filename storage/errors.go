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


package storage

import "errors"

var (
	// ErrInvalidPath indicates a document path that failed validation.
	ErrInvalidPath = errors.New("invalid path")

	// ErrPasswordRequired indicates a sealed archive operation without a
	// usable password. A wrong password is indistinguishable from corrupt
	// ciphertext, so failed decryption reports this too.
	ErrPasswordRequired = errors.New("password required")

	// ErrArchive indicates a malformed archive container.
	ErrArchive = errors.New("malformed archive")

	// ErrStorage wraps underlying filesystem failures.
	ErrStorage = errors.New("storage failure")
)
